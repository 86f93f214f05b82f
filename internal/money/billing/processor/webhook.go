package processor

import (
	"context"
	"encoding/json"
	"fmt"

	"charity-server/internal/observability"
	"charity-server/internal/store"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// CheckoutOutcome is what a checkout webhook means for the donation behind it.
type CheckoutOutcome string

const (
	CheckoutPaid    CheckoutOutcome = "paid"
	CheckoutFailed  CheckoutOutcome = "failed"
	CheckoutIgnored CheckoutOutcome = "ignored"
)

// CheckoutEvent is a verified Stripe checkout notification.
type CheckoutEvent struct {
	EventID       string
	EventType     string
	Outcome       CheckoutOutcome
	Session       CheckoutSessionInfo
	FailureReason string
}

// ConstructEvent verifies the Stripe-Signature header against the endpoint secret.
func (p *BillingProcessor) ConstructEvent(payload []byte, signatureHeader string) (stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}
	return event, nil
}

// ParseCheckoutEvent maps a checkout.session.* event onto a donation outcome. A completed
// session whose payment is still processing (bank debits) is ignored until the async
// success or failure event arrives.
func (p *BillingProcessor) ParseCheckoutEvent(ctx context.Context, event stripe.Event) (CheckoutEvent, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "stripe_event_id", Value: event.ID},
		observability.Field{Key: "stripe_event_type", Value: string(event.Type)},
	)

	out := CheckoutEvent{EventID: event.ID, EventType: string(event.Type), Outcome: CheckoutIgnored}

	switch event.Type {
	case "checkout.session.completed",
		"checkout.session.async_payment_succeeded",
		"checkout.session.async_payment_failed",
		"checkout.session.expired":
	default:
		p.logger.Warn(ctx, fmt.Sprintf("Unhandled event type: %s", event.Type))
		return out, nil
	}

	if event.Data == nil {
		return CheckoutEvent{}, ErrInvalidWebhook
	}
	var s stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
		p.logger.Error(ctx, "failed to unmarshal checkout session", err)
		return CheckoutEvent{}, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}
	if s.ID == "" {
		return CheckoutEvent{}, ErrInvalidWebhook
	}
	out.Session = sessionInfo(&s)

	switch event.Type {
	case "checkout.session.completed":
		if out.Session.Paid() {
			out.Outcome = CheckoutPaid
		} else {
			p.logger.Info(ctx, "checkout completed with payment pending")
		}
	case "checkout.session.async_payment_succeeded":
		out.Outcome = CheckoutPaid
	case "checkout.session.async_payment_failed":
		out.Outcome = CheckoutFailed
		out.FailureReason = store.FailureReasonDeclined
	case "checkout.session.expired":
		out.Outcome = CheckoutFailed
		out.FailureReason = store.FailureReasonExpired
	}
	return out, nil
}
