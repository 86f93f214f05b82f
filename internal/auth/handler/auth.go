package handler

import (
	"strings"

	"charity-server/internal/apierrors"
	"charity-server/internal/auth/processor"
	"charity-server/internal/observability"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Context keys set by HandleJWTMiddleware
const (
	userIDKey = "User-ID"
	roleKey   = "Role"
	emailKey  = "Email"
)

type Handler struct {
	authProcessor processor.AuthProcessor
	logger        *observability.Logger
}

func New(authProcessor processor.AuthProcessor, logger *observability.Logger) Handler {
	return Handler{authProcessor: authProcessor, logger: logger}
}

func (h *Handler) HandleJWTMiddleware(c *gin.Context) {
	ctx := c.Request.Context()
	tokenHeader := c.GetHeader("Authorization")

	if tokenHeader == "" || !strings.HasPrefix(tokenHeader, "Bearer ") {
		apierrors.Unauthorized(c, "Authorization token is missing or invalid")
		return
	}
	tokenString := strings.TrimPrefix(tokenHeader, "Bearer ")

	identity, err := h.authProcessor.Authenticate(ctx, tokenString)
	if err != nil {
		apierrors.Unauthorized(c, "Authorization token is missing or invalid")
		return
	}

	SetCurrentUser(c, identity)
	c.Request = c.Request.WithContext(observability.WithFields(ctx,
		observability.Field{Key: "user_id", Value: identity.UserID.String()},
	))
	c.Next()
}

// RequireAdmin rejects callers without the admin role. It runs after HandleJWTMiddleware.
func (h *Handler) RequireAdmin(c *gin.Context) {
	if c.GetString(roleKey) != processor.RoleAdmin {
		apierrors.Forbidden(c, "Administrator access required")
		return
	}
	c.Next()
}

// CurrentUser returns the identity HandleJWTMiddleware stored on the request.
func CurrentUser(c *gin.Context) (processor.Identity, bool) {
	userID, err := uuid.Parse(c.GetString(userIDKey))
	if err != nil {
		return processor.Identity{}, false
	}
	return processor.Identity{UserID: userID, Role: c.GetString(roleKey), Email: c.GetString(emailKey)}, true
}

// SetCurrentUser stores an identity the way HandleJWTMiddleware does.
func SetCurrentUser(c *gin.Context, identity processor.Identity) {
	c.Set(userIDKey, identity.UserID.String())
	c.Set(roleKey, identity.Role)
	c.Set(emailKey, identity.Email)
}
