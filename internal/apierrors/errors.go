package apierrors

import (
	"net/http"
)

// Error codes returned to API clients
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeInvalidFilter      = "INVALID_FILTER"
	CodeInvalidTier        = "INVALID_TIER"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeInvalidWebhook     = "INVALID_WEBHOOK"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeDonationNotFound   = "DONATION_NOT_FOUND"
	CodeCampaignNotFound   = "CAMPAIGN_NOT_FOUND"
	CodeCheckoutNotFound   = "CHECKOUT_NOT_FOUND"
	CodeOverrideNotFound   = "TIER_OVERRIDE_NOT_FOUND"
	CodeCampaignClosed     = "CAMPAIGN_CLOSED"
	CodeDonationSettled    = "DONATION_SETTLED"
	CodeDonationNotSettled = "DONATION_NOT_SETTLED"
	CodeNotOffline         = "NOT_OFFLINE_DONATION"
	CodeNotRetryable       = "NOT_RETRYABLE"
	CodeConflict           = "CONFLICT"
	CodePaymentPending     = "PAYMENT_PENDING"
	CodePaymentRejected    = "PAYMENT_REJECTED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeNetworkError       = "NETWORK_ERROR"
	CodeInternal           = "INTERNAL_ERROR"
)

// APIError is an error with everything needed to render it to a client. Err holds the
// underlying cause for logs and is never sent.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Field      string
	Retryable  bool
	Err        error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// New builds an APIError.
func New(statusCode int, code, message string) *APIError {
	return &APIError{StatusCode: statusCode, Code: code, Message: message}
}

func badRequest(code, message string) *APIError {
	return New(http.StatusBadRequest, code, message)
}

func notFound(code, message string) *APIError {
	return New(http.StatusNotFound, code, message)
}

func conflict(code, message string) *APIError {
	return New(http.StatusConflict, code, message)
}

// networkError is a transport or gateway failure the client may retry.
func networkError(err error) *APIError {
	return &APIError{
		StatusCode: http.StatusServiceUnavailable,
		Code:       CodeNetworkError,
		Message:    "The payment provider could not be reached. Please try again.",
		Retryable:  true,
		Err:        err,
	}
}

func internalError(err error) *APIError {
	return &APIError{
		StatusCode: http.StatusInternalServerError,
		Code:       CodeInternal,
		Message:    "An internal error occurred. Please try again later.",
		Err:        err,
	}
}
