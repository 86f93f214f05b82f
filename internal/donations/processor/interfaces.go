package processor

import (
	"context"
	"time"

	billing "charity-server/internal/money/billing/processor"
	"charity-server/internal/events"
	"charity-server/internal/store"

	"github.com/google/uuid"
)

// DonationStore defines the database operations required by DonationProcessor
type DonationStore interface {
	// Donations
	CreateDonation(ctx context.Context, params store.CreateDonationParams) (store.Donation, error)
	GetDonationByID(ctx context.Context, id uuid.UUID) (store.Donation, error)
	GetDonationByExternalRef(ctx context.Context, ref string) (store.Donation, error)
	SetDonationExternalRef(ctx context.Context, id uuid.UUID, ref string) error
	CompleteDonation(ctx context.Context, params store.CompleteDonationParams) (store.CompleteDonationResult, error)
	FailDonationByID(ctx context.Context, id uuid.UUID, reason string) (store.Donation, bool, error)
	FailDonationByExternalRef(ctx context.Context, ref, reason string) (store.Donation, bool, error)
	ListStalePendingDonations(ctx context.Context, cutoff time.Time, methods []string, limit int) ([]store.Donation, error)
	UpdateDonationAdmin(ctx context.Context, id uuid.UUID, params store.UpdateDonationAdminParams) (store.Donation, error)
	ListDonations(ctx context.Context, params store.ListDonationsParams) (store.ListDonationsResult, error)

	// Read models
	GetDonorProfile(ctx context.Context, userID uuid.UUID) (store.DonorProfile, error)
	GetCampaignByID(ctx context.Context, campaignID uuid.UUID) (store.Campaign, error)
	GetCampaignStats(ctx context.Context, campaignID uuid.UUID) (store.CampaignStats, error)
}

// CheckoutGateway opens and inspects hosted payment sessions
type CheckoutGateway interface {
	CreateDonationCheckout(ctx context.Context, req billing.CheckoutRequest) (billing.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (billing.CheckoutSessionInfo, error)
	ExpireCheckoutSession(ctx context.Context, sessionID string) error
}

// EventPublisher announces settled donations
type EventPublisher interface {
	PublishDonationCompleted(ctx context.Context, e events.DonationCompleted) error
	PublishDonationFailed(ctx context.Context, donationID, donorID, campaignID uuid.UUID, reason string) error
}

// TierClassifier derives the stored donor tier from a lifetime total and an override
type TierClassifier interface {
	ClassifyStored(totalMinor int64, override *string) string
}
