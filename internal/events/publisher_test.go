package events

import (
	"context"
	"testing"
	"time"

	"charity-server/internal/clients/kafka"
	"charity-server/internal/observability"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProducer struct {
	events []kafka.EventMessage
}

func (r *recordingProducer) PublishEvent(_ context.Context, e kafka.EventMessage) error {
	r.events = append(r.events, e)
	return nil
}

func TestPublishDonationCompleted(t *testing.T) {
	rec := &recordingProducer{}
	p := NewPublisher(rec, observability.NewNopLogger())
	p.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	email := "ada@example.org"
	donorID, campaignID := uuid.New(), uuid.New()
	err := p.PublishDonationCompleted(context.Background(), DonationCompleted{
		DonationID:  uuid.New(),
		DonorID:     donorID,
		CampaignID:  campaignID,
		DonorEmail:  &email,
		AmountMinor: 5000,
		Currency:    "USD",
		Kind:        "one_time",
	})
	require.NoError(t, err)
	require.Len(t, rec.events, 1)

	e := rec.events[0]
	assert.Equal(t, TypeDonationCompleted, e.Type)
	assert.Equal(t, donorID.String(), e.DonorID)
	assert.Equal(t, campaignID.String(), *e.CampaignID)
	assert.Equal(t, "2024-03-01T12:00:00Z", e.Timestamp)
	assert.Equal(t, int64(5000), e.Data["amount_minor"])
	assert.Equal(t, email, e.Data["email"])
}
