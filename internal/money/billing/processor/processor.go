package processor

import (
	"errors"
	"net/http"
	"time"

	"charity-server/internal/observability"

	"github.com/stripe/stripe-go/v79"
)

var (
	ErrGatewayUnavailable = errors.New("payment provider unavailable")
	ErrCheckoutRejected   = errors.New("payment provider rejected the checkout")
	ErrCheckoutNotFound   = errors.New("checkout session not found")
	ErrInvalidWebhook     = errors.New("invalid webhook payload")
)

// BillingProcessor talks to Stripe hosted checkout on behalf of the donation pipeline.
type BillingProcessor struct {
	webhookSecret string
	webhostURL    string
	sessionTTL    time.Duration
	checkout      CheckoutAPI
	logger        *observability.Logger
}

func New(stripeKey string, webhookSecret string, webhostURL string, logger *observability.Logger) *BillingProcessor {
	stripe.Key = stripeKey
	return NewWithAPI(stripeCheckout{}, webhookSecret, webhostURL, logger)
}

// NewWithAPI builds a processor over an explicit checkout API.
func NewWithAPI(api CheckoutAPI, webhookSecret string, webhostURL string, logger *observability.Logger) *BillingProcessor {
	return &BillingProcessor{
		webhookSecret: webhookSecret,
		webhostURL:    webhostURL,
		sessionTTL:    time.Hour,
		checkout:      api,
		logger:        logger,
	}
}

// gatewayError sorts a Stripe failure into not found, a definitive rejection, or a
// transport problem the donor may retry.
func gatewayError(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		switch {
		case se.HTTPStatusCode == http.StatusNotFound:
			return ErrCheckoutNotFound
		case se.HTTPStatusCode == http.StatusTooManyRequests:
			return ErrGatewayUnavailable
		case se.HTTPStatusCode >= 400 && se.HTTPStatusCode < 500:
			return ErrCheckoutRejected
		}
	}
	return ErrGatewayUnavailable
}
