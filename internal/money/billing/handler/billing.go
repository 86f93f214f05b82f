package handler

import (
	"context"

	"charity-server/internal/money/billing/processor"
	"charity-server/internal/observability"

	"github.com/stripe/stripe-go/v79"
)

// EventVerifier verifies and decodes Stripe webhooks
type EventVerifier interface {
	ConstructEvent(payload []byte, signatureHeader string) (stripe.Event, error)
	ParseCheckoutEvent(ctx context.Context, event stripe.Event) (processor.CheckoutEvent, error)
}

// CheckoutEventHandler applies a checkout outcome to the donation behind it
type CheckoutEventHandler interface {
	HandleCheckoutEvent(ctx context.Context, event processor.CheckoutEvent) error
}

type Handler struct {
	verifier EventVerifier
	events   CheckoutEventHandler
	logger   *observability.Logger
}

func New(verifier EventVerifier, events CheckoutEventHandler, logger *observability.Logger) Handler {
	return Handler{verifier: verifier, events: events, logger: logger}
}
