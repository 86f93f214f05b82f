package apierrors

import (
	"net/http"

	"charity-server/internal/observability"

	"github.com/gin-gonic/gin"
)

var logger = observability.NewLogger()

// ErrorResponse is the JSON structure returned to API clients for errors
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	Field     string `json:"field,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// RespondWithError maps err and sends a sanitized response. The processor has already
// logged the detailed error; this log line carries the request id for correlation.
func RespondWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	respondWith(c, MapError(err))
}

func respondWith(c *gin.Context, apiErr *APIError) {
	ctx := observability.WithFields(c.Request.Context(),
		observability.Field{Key: "status_code", Value: apiErr.StatusCode},
		observability.Field{Key: "error_code", Value: apiErr.Code},
		observability.Field{Key: "error_message", Value: apiErr.Message},
	)
	if apiErr.StatusCode >= http.StatusInternalServerError && apiErr.Err != nil {
		logger.Error(ctx, "API error response", apiErr.Err)
	} else {
		logger.Info(ctx, "API error response")
	}

	c.AbortWithStatusJSON(apiErr.StatusCode, ErrorResponse{
		Success:   false,
		Message:   apiErr.Message,
		Code:      apiErr.Code,
		Field:     apiErr.Field,
		Retryable: apiErr.Retryable,
	})
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, code, message string) {
	respondWith(c, badRequest(code, message))
}

// NotFound sends a 404 response
func NotFound(c *gin.Context, message string) {
	respondWith(c, notFound(CodeNotFound, message))
}

// Unauthorized sends a 401 response
func Unauthorized(c *gin.Context, message string) {
	respondWith(c, New(http.StatusUnauthorized, CodeUnauthorized, message))
}

// Forbidden sends a 403 response
func Forbidden(c *gin.Context, message string) {
	respondWith(c, New(http.StatusForbidden, CodeForbidden, message))
}

// InternalError sends a sanitized 500 response
func InternalError(c *gin.Context, internalErr error) {
	respondWith(c, internalError(internalErr))
}
