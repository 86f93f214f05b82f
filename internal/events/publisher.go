package events

import (
	"context"
	"time"

	"charity-server/internal/clients/kafka"
	"charity-server/internal/observability"

	"github.com/google/uuid"
)

// Event types
const (
	TypeDonationCompleted = "donation.completed"
	TypeDonationFailed    = "donation.failed"
)

// EventProducer is the subset of the Kafka producer the publisher needs
type EventProducer interface {
	PublishEvent(ctx context.Context, event kafka.EventMessage) error
}

// Publisher handles publishing domain events to Kafka
type Publisher struct {
	producer EventProducer
	logger   *observability.Logger
	now      func() time.Time
}

// NewPublisher creates a new event publisher
func NewPublisher(producer EventProducer, logger *observability.Logger) *Publisher {
	return &Publisher{
		producer: producer,
		logger:   logger,
		now:      time.Now,
	}
}

// DonationCompleted is the payload of a donation.completed event
type DonationCompleted struct {
	DonationID    uuid.UUID
	DonorID       uuid.UUID
	CampaignID    uuid.UUID
	DonorEmail    *string
	AmountMinor   int64
	Currency      string
	Kind          string
	TaxDeductible bool
	IsAnonymous   bool
	DonorTier     string
	TotalMinor    int64
}

// PublishDonationCompleted publishes a donation.completed event
func (p *Publisher) PublishDonationCompleted(ctx context.Context, d DonationCompleted) error {
	campaignIDStr := d.CampaignID.String()
	data := map[string]interface{}{
		"donation_id":    d.DonationID.String(),
		"donor_id":       d.DonorID.String(),
		"campaign_id":    campaignIDStr,
		"amount_minor":   d.AmountMinor,
		"currency":       d.Currency,
		"kind":           d.Kind,
		"tax_deductible": d.TaxDeductible,
		"is_anonymous":   d.IsAnonymous,
		"donor_tier":     d.DonorTier,
		"total_minor":    d.TotalMinor,
	}
	if d.DonorEmail != nil {
		data["email"] = *d.DonorEmail
	}

	return p.producer.PublishEvent(ctx, kafka.EventMessage{
		ID:         uuid.New().String(),
		Type:       TypeDonationCompleted,
		DonorID:    d.DonorID.String(),
		CampaignID: &campaignIDStr,
		Data:       data,
		Timestamp:  p.now().UTC().Format(time.RFC3339),
	})
}

// PublishDonationFailed publishes a donation.failed event
func (p *Publisher) PublishDonationFailed(ctx context.Context, donationID, donorID, campaignID uuid.UUID, reason string) error {
	campaignIDStr := campaignID.String()
	return p.producer.PublishEvent(ctx, kafka.EventMessage{
		ID:         uuid.New().String(),
		Type:       TypeDonationFailed,
		DonorID:    donorID.String(),
		CampaignID: &campaignIDStr,
		Data: map[string]interface{}{
			"donation_id": donationID.String(),
			"donor_id":    donorID.String(),
			"campaign_id": campaignIDStr,
			"reason":      reason,
		},
		Timestamp: p.now().UTC().Format(time.RFC3339),
	})
}
