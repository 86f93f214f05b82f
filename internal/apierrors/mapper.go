package apierrors

import (
	"errors"
	"net/http"

	donations "charity-server/internal/donations/processor"
	"charity-server/internal/filters"
	billing "charity-server/internal/money/billing/processor"
	"charity-server/internal/store"
	"charity-server/internal/tiers"
)

// MapError converts domain and processor errors to APIErrors. Unknown errors become a
// sanitized 500.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var formErr *donations.ValidationError
	if errors.As(err, &formErr) {
		e := badRequest(CodeInvalidInput, formErr.Error())
		e.Field = formErr.Field
		return e
	}
	var filterErr *filters.ValidationError
	if errors.As(err, &filterErr) {
		e := badRequest(CodeInvalidFilter, filterErr.Error())
		e.Field = filterErr.Field
		return e
	}

	switch {
	// Donations
	case errors.Is(err, donations.ErrDonationNotFound):
		return notFound(CodeDonationNotFound, "Donation not found")
	case errors.Is(err, donations.ErrCampaignNotFound):
		return notFound(CodeCampaignNotFound, "Campaign not found")
	case errors.Is(err, donations.ErrCampaignClosed):
		return conflict(CodeCampaignClosed, "This campaign is not currently accepting donations")
	case errors.Is(err, donations.ErrDonationSettled):
		return conflict(CodeDonationSettled, "Donation is no longer pending")
	case errors.Is(err, donations.ErrDonationNotSettled):
		return conflict(CodeDonationNotSettled, "Only completed or failed donations can be edited")
	case errors.Is(err, donations.ErrNotOfflineDonation):
		return conflict(CodeNotOffline, "Donation is paid through checkout and confirmed automatically")
	case errors.Is(err, donations.ErrNotRetryable):
		return conflict(CodeNotRetryable, "Only failed donations can be retried")
	case errors.Is(err, donations.ErrInvalidTransition):
		return conflict(CodeInvalidTransition, "Donation cannot move to that state")
	case errors.Is(err, donations.ErrPaymentPending):
		return New(http.StatusAccepted, CodePaymentPending, "Payment has not completed yet")
	case errors.Is(err, donations.ErrFailedToSubmit),
		errors.Is(err, donations.ErrFailedToConfirm),
		errors.Is(err, donations.ErrFailedToUpdate),
		errors.Is(err, donations.ErrFailedToLoad):
		return internalError(err)

	// Payment gateway
	case errors.Is(err, billing.ErrGatewayUnavailable):
		return networkError(err)
	case errors.Is(err, billing.ErrCheckoutRejected):
		return &APIError{
			StatusCode: http.StatusBadGateway,
			Code:       CodePaymentRejected,
			Message:    "The payment provider rejected the request",
			Err:        err,
		}
	case errors.Is(err, billing.ErrCheckoutNotFound):
		return notFound(CodeCheckoutNotFound, "Checkout session not found")
	case errors.Is(err, billing.ErrInvalidWebhook):
		return badRequest(CodeInvalidWebhook, "Invalid webhook payload")

	// Tiers
	case errors.Is(err, tiers.ErrUnknownTier):
		return badRequest(CodeInvalidTier, "Unknown tier")
	case errors.Is(err, tiers.ErrOverrideNotFound):
		return notFound(CodeOverrideNotFound, "Donor has no tier override")
	case errors.Is(err, tiers.ErrFailedToLoadTier), errors.Is(err, tiers.ErrFailedToSetTier):
		return internalError(err)

	// Store errors that reach a handler directly
	case errors.Is(err, store.ErrNotFound):
		return notFound(CodeNotFound, "Resource not found")
	case errors.Is(err, store.ErrConflict):
		return conflict(CodeConflict, "Resource was modified concurrently")
	}

	return internalError(err)
}
