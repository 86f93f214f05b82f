package email

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"charity-server/internal/clients/kafka"
	"charity-server/internal/events"
	"charity-server/internal/observability"
	"charity-server/internal/store"
	"charity-server/internal/tiers"

	"github.com/google/uuid"
)

// EventSource delivers events one at a time until ctx is done
type EventSource interface {
	ConsumeEvents(ctx context.Context, handler func(context.Context, kafka.EventMessage) error) error
}

// CampaignLookup resolves campaign titles for receipts
type CampaignLookup interface {
	GetCampaignByID(ctx context.Context, campaignID uuid.UUID) (store.Campaign, error)
	GetDonorProfile(ctx context.Context, userID uuid.UUID) (store.DonorProfile, error)
}

// EventConsumer consumes donation events and sends receipts
type EventConsumer struct {
	consumer EventSource
	sender   ReceiptSender
	store    CampaignLookup
	logger   *observability.Logger
}

// NewEventConsumer creates a new receipt event consumer
func NewEventConsumer(consumer EventSource, sender ReceiptSender, store CampaignLookup, logger *observability.Logger) *EventConsumer {
	return &EventConsumer{
		consumer: consumer,
		sender:   sender,
		store:    store,
		logger:   logger,
	}
}

// Start consumes events until ctx is done
func (c *EventConsumer) Start(ctx context.Context) error {
	c.logger.Info(ctx, "Starting receipt event consumer")
	err := c.consumer.ConsumeEvents(ctx, c.HandleEvent)
	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error(ctx, "consumer error", err)
		return err
	}
	return nil
}

// HandleEvent processes a single event. Returning an error makes the consumer retry it.
func (c *EventConsumer) HandleEvent(ctx context.Context, event kafka.EventMessage) error {
	switch event.Type {
	case events.TypeDonationCompleted:
		return c.handleDonationCompleted(ctx, event)
	default:
		// Ignore events we don't care about
		return nil
	}
}

type donationCompletedData struct {
	DonationID    string `json:"donation_id"`
	DonorID       string `json:"donor_id"`
	CampaignID    string `json:"campaign_id"`
	Email         string `json:"email"`
	AmountMinor   int64  `json:"amount_minor"`
	Currency      string `json:"currency"`
	Kind          string `json:"kind"`
	TaxDeductible bool   `json:"tax_deductible"`
	DonorTier     string `json:"donor_tier"`
	TotalMinor    int64  `json:"total_minor"`
}

func (c *EventConsumer) handleDonationCompleted(ctx context.Context, event kafka.EventMessage) error {
	var data donationCompletedData
	dataBytes, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	if err := json.Unmarshal(dataBytes, &data); err != nil {
		c.logger.Error(ctx, "dropping malformed donation event", err)
		return nil
	}

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "donation_id", Value: data.DonationID},
		observability.Field{Key: "campaign_id", Value: data.CampaignID},
	)

	if data.Email == "" {
		c.logger.Info(ctx, "donor has no email, skipping receipt")
		return nil
	}

	receipt := Receipt{
		To:            data.Email,
		DonationID:    data.DonationID,
		CampaignTitle: "our cause",
		Kind:          data.Kind,
		AmountMinor:   data.AmountMinor,
		TotalMinor:    data.TotalMinor,
		Currency:      data.Currency,
		TaxDeductible: data.TaxDeductible,
		DonatedAt:     eventTime(event.Timestamp),
	}
	if tier, err := tiers.ParseTier(data.DonorTier); err == nil && tier != tiers.TierNone {
		receipt.TierName = tier.DisplayName()
	}

	if campaignID, err := uuid.Parse(data.CampaignID); err == nil {
		campaign, err := c.store.GetCampaignByID(ctx, campaignID)
		switch {
		case err == nil:
			receipt.CampaignTitle = campaign.Title
		case errors.Is(err, store.ErrNotFound):
		default:
			return fmt.Errorf("failed to load campaign: %w", err)
		}
	}

	if donorID, err := uuid.Parse(data.DonorID); err == nil {
		profile, err := c.store.GetDonorProfile(ctx, donorID)
		if err == nil && profile.DisplayName != nil {
			receipt.DonorName = *profile.DisplayName
		}
	}

	err = c.sender.SendDonationReceipt(ctx, receipt)
	if errors.Is(err, ErrInvalidEmailAddress) {
		return nil
	}
	return err
}

func eventTime(ts string) time.Time {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return time.Now()
	}
	return t
}
