package processor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"charity-server/internal/observability"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
)

// CheckoutRequest describes the payment for one pending donation.
type CheckoutRequest struct {
	DonationID    uuid.UUID
	DonorID       uuid.UUID
	CampaignID    uuid.UUID
	CampaignTitle string
	AmountMinor   int64
	Currency      string
	Recurring     bool
	Email         *string
}

// CheckoutSession is where the donor is redirected to pay.
type CheckoutSession struct {
	ID        string    `json:"session_id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CheckoutSessionInfo is the payment state of a session.
type CheckoutSessionInfo struct {
	SessionID     string  `json:"session_id"`
	Status        string  `json:"status"`
	PaymentStatus string  `json:"payment_status"`
	PaymentRef    *string `json:"payment_ref,omitempty"`
	DonationID    string  `json:"donation_id,omitempty"`
}

// Paid reports whether Stripe has collected the money.
func (i CheckoutSessionInfo) Paid() bool {
	return i.PaymentStatus == string(stripe.CheckoutSessionPaymentStatusPaid) ||
		i.PaymentStatus == string(stripe.CheckoutSessionPaymentStatusNoPaymentRequired)
}

// Expired reports whether the session can no longer be paid.
func (i CheckoutSessionInfo) Expired() bool {
	return i.Status == string(stripe.CheckoutSessionStatusExpired)
}

func sessionInfo(s *stripe.CheckoutSession) CheckoutSessionInfo {
	info := CheckoutSessionInfo{
		SessionID:     s.ID,
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		DonationID:    s.Metadata["donation_id"],
	}
	if info.DonationID == "" {
		info.DonationID = s.ClientReferenceID
	}
	switch {
	case s.PaymentIntent != nil && s.PaymentIntent.ID != "":
		info.PaymentRef = stripe.String(s.PaymentIntent.ID)
	case s.Subscription != nil && s.Subscription.ID != "":
		info.PaymentRef = stripe.String(s.Subscription.ID)
	}
	return info
}

// CreateDonationCheckout opens a hosted checkout session for a pending donation. Recurring
// donations become a monthly subscription. The request is keyed on the donation id so a
// repeated call cannot open a second charge.
func (p *BillingProcessor) CreateDonationCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "donation_id", Value: req.DonationID.String()},
		observability.Field{Key: "amount_minor", Value: req.AmountMinor},
		observability.Field{Key: "currency", Value: req.Currency},
	)

	donationID := req.DonationID.String()
	title := req.CampaignTitle
	if title == "" {
		title = "our cause"
	}

	priceData := &stripe.CheckoutSessionLineItemPriceDataParams{
		Currency:   stripe.String(strings.ToLower(req.Currency)),
		UnitAmount: stripe.Int64(req.AmountMinor),
		ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(fmt.Sprintf("Donation to %s", title)),
		},
	}

	expiresAt := time.Now().Add(p.sessionTTL)
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(donationID),
		SuccessURL: stripe.String(fmt.Sprintf("%s/donate/success?session_id={CHECKOUT_SESSION_ID}",
			p.webhostURL)),
		CancelURL: stripe.String(fmt.Sprintf("%s/donate/cancelled?donation_id=%s",
			p.webhostURL, donationID)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: priceData,
				Quantity:  stripe.Int64(1),
			},
		},
		ExpiresAt: stripe.Int64(expiresAt.Unix()),
	}
	params.Context = ctx
	params.SetIdempotencyKey("donation-checkout-" + donationID)
	if req.Email != nil && *req.Email != "" {
		params.CustomerEmail = stripe.String(*req.Email)
	}

	metadata := map[string]string{
		"donation_id": donationID,
		"donor_id":    req.DonorID.String(),
		"campaign_id": req.CampaignID.String(),
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	if req.Recurring {
		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
		priceData.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
			Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
		}
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{Metadata: metadata}
	} else {
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: metadata}
	}

	s, err := p.checkout.New(params)
	if err != nil {
		p.logger.Error(ctx, "failed to create checkout session", err)
		return CheckoutSession{}, gatewayError(err)
	}

	p.logger.Info(observability.WithFields(ctx, observability.Field{Key: "session_id", Value: s.ID}),
		"checkout session created")
	return CheckoutSession{ID: s.ID, URL: s.URL, ExpiresAt: expiresAt}, nil
}

// GetCheckoutSession returns the current payment state of a session
func (p *BillingProcessor) GetCheckoutSession(ctx context.Context, sessionID string) (CheckoutSessionInfo, error) {
	ctx = observability.WithFields(ctx, observability.Field{Key: "session_id", Value: sessionID})

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := p.checkout.Get(sessionID, params)
	if err != nil {
		p.logger.Error(ctx, "failed to get checkout session", err)
		return CheckoutSessionInfo{}, gatewayError(err)
	}

	return sessionInfo(s), nil
}

// ExpireCheckoutSession closes an open session so it can no longer be paid. Sessions that
// are already closed are left alone.
func (p *BillingProcessor) ExpireCheckoutSession(ctx context.Context, sessionID string) error {
	ctx = observability.WithFields(ctx, observability.Field{Key: "session_id", Value: sessionID})

	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	if _, err := p.checkout.Expire(sessionID, params); err != nil {
		mapped := gatewayError(err)
		if mapped == ErrCheckoutRejected {
			p.logger.Warn(ctx, "checkout session no longer open: "+err.Error())
			return nil
		}
		p.logger.Error(ctx, "failed to expire checkout session", err)
		return mapped
	}

	p.logger.Info(ctx, "checkout session expired")
	return nil
}
