package processor

import (
	"context"
	"time"

	"charity-server/internal/events"
	billing "charity-server/internal/money/billing/processor"
	"charity-server/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockDonationStore is a mock implementation of DonationStore
type MockDonationStore struct {
	mock.Mock
}

func (m *MockDonationStore) CreateDonation(ctx context.Context, params store.CreateDonationParams) (store.Donation, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(store.Donation), args.Error(1)
}

func (m *MockDonationStore) GetDonationByID(ctx context.Context, id uuid.UUID) (store.Donation, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(store.Donation), args.Error(1)
}

func (m *MockDonationStore) GetDonationByExternalRef(ctx context.Context, ref string) (store.Donation, error) {
	args := m.Called(ctx, ref)
	return args.Get(0).(store.Donation), args.Error(1)
}

func (m *MockDonationStore) SetDonationExternalRef(ctx context.Context, id uuid.UUID, ref string) error {
	args := m.Called(ctx, id, ref)
	return args.Error(0)
}

func (m *MockDonationStore) CompleteDonation(ctx context.Context, params store.CompleteDonationParams) (store.CompleteDonationResult, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(store.CompleteDonationResult), args.Error(1)
}

func (m *MockDonationStore) FailDonationByID(ctx context.Context, id uuid.UUID, reason string) (store.Donation, bool, error) {
	args := m.Called(ctx, id, reason)
	return args.Get(0).(store.Donation), args.Bool(1), args.Error(2)
}

func (m *MockDonationStore) FailDonationByExternalRef(ctx context.Context, ref, reason string) (store.Donation, bool, error) {
	args := m.Called(ctx, ref, reason)
	return args.Get(0).(store.Donation), args.Bool(1), args.Error(2)
}

func (m *MockDonationStore) ListStalePendingDonations(ctx context.Context, cutoff time.Time, methods []string, limit int) ([]store.Donation, error) {
	args := m.Called(ctx, cutoff, methods, limit)
	return args.Get(0).([]store.Donation), args.Error(1)
}

func (m *MockDonationStore) UpdateDonationAdmin(ctx context.Context, id uuid.UUID, params store.UpdateDonationAdminParams) (store.Donation, error) {
	args := m.Called(ctx, id, params)
	return args.Get(0).(store.Donation), args.Error(1)
}

func (m *MockDonationStore) ListDonations(ctx context.Context, params store.ListDonationsParams) (store.ListDonationsResult, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(store.ListDonationsResult), args.Error(1)
}

func (m *MockDonationStore) GetDonorProfile(ctx context.Context, userID uuid.UUID) (store.DonorProfile, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(store.DonorProfile), args.Error(1)
}

func (m *MockDonationStore) GetCampaignByID(ctx context.Context, campaignID uuid.UUID) (store.Campaign, error) {
	args := m.Called(ctx, campaignID)
	return args.Get(0).(store.Campaign), args.Error(1)
}

func (m *MockDonationStore) GetCampaignStats(ctx context.Context, campaignID uuid.UUID) (store.CampaignStats, error) {
	args := m.Called(ctx, campaignID)
	return args.Get(0).(store.CampaignStats), args.Error(1)
}

// MockCheckoutGateway is a mock implementation of CheckoutGateway
type MockCheckoutGateway struct {
	mock.Mock
}

func (m *MockCheckoutGateway) CreateDonationCheckout(ctx context.Context, req billing.CheckoutRequest) (billing.CheckoutSession, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(billing.CheckoutSession), args.Error(1)
}

func (m *MockCheckoutGateway) GetCheckoutSession(ctx context.Context, sessionID string) (billing.CheckoutSessionInfo, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(billing.CheckoutSessionInfo), args.Error(1)
}

func (m *MockCheckoutGateway) ExpireCheckoutSession(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

// MockEventPublisher is a mock implementation of EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishDonationCompleted(ctx context.Context, e events.DonationCompleted) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockEventPublisher) PublishDonationFailed(ctx context.Context, donationID, donorID, campaignID uuid.UUID, reason string) error {
	args := m.Called(ctx, donationID, donorID, campaignID, reason)
	return args.Error(0)
}
