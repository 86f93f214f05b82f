package handler

import (
	"io"
	"net/http"

	"charity-server/internal/apierrors"
	"charity-server/internal/metrics"
	"charity-server/internal/observability"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 65536

// HandleWebhook verifies a Stripe notification and applies it. A non-2xx response makes
// Stripe redeliver, which confirmation tolerates.
func (h *Handler) HandleWebhook(c *gin.Context) {
	ctx := c.Request.Context()

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		apierrors.BadRequest(c, apierrors.CodeInvalidInput, "failed to read request body")
		return
	}

	signatureHeader := c.GetHeader("Stripe-Signature")
	if signatureHeader == "" {
		apierrors.BadRequest(c, apierrors.CodeInvalidInput, "missing Stripe-Signature header")
		return
	}

	event, err := h.verifier.ConstructEvent(payload, signatureHeader)
	if err != nil {
		metrics.RecordWebhookEvent("unverified", "rejected")
		apierrors.BadRequest(c, apierrors.CodeInvalidInput, "invalid webhook signature")
		return
	}

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "stripe_event_id", Value: event.ID},
		observability.Field{Key: "stripe_event_type", Value: string(event.Type)},
	)

	checkoutEvent, err := h.verifier.ParseCheckoutEvent(ctx, event)
	if err != nil {
		metrics.RecordWebhookEvent(string(event.Type), "rejected")
		apierrors.RespondWithError(c, err)
		return
	}

	if err := h.events.HandleCheckoutEvent(ctx, checkoutEvent); err != nil {
		metrics.RecordWebhookEvent(string(event.Type), "error")
		h.logger.Error(ctx, "failed to apply checkout event", err)
		apierrors.RespondWithError(c, err)
		return
	}

	metrics.RecordWebhookEvent(string(event.Type), string(checkoutEvent.Outcome))
	c.JSON(http.StatusOK, gin.H{"message": "success"})
}
