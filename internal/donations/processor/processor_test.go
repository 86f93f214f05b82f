package processor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"charity-server/internal/cachekeys"
	"charity-server/internal/events"
	"charity-server/internal/filters"
	billing "charity-server/internal/money/billing/processor"
	"charity-server/internal/observability"
	"charity-server/internal/querycache"
	"charity-server/internal/store"
	"charity-server/internal/tiers"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type fixedClassifier struct{}

func (fixedClassifier) ClassifyStored(totalMinor int64, override *string) string {
	if override != nil {
		return *override
	}
	return string(tiers.TierNone)
}

type testDeps struct {
	store    *MockDonationStore
	checkout *MockCheckoutGateway
	events   *MockEventPublisher
	cache    *querycache.Cache
}

func newTestProcessor(t *testing.T) (DonationProcessor, testDeps) {
	t.Helper()
	logger := observability.NewNopLogger()
	deps := testDeps{
		store:    new(MockDonationStore),
		checkout: new(MockCheckoutGateway),
		events:   new(MockEventPublisher),
		cache:    querycache.New(querycache.NewMemoryBackend(time.Hour), logger),
	}
	p := New(deps.store, deps.checkout, deps.events, fixedClassifier{}, deps.cache, testLimits(),
		Staleness{List: time.Minute, DonorProfile: time.Minute, CampaignStats: time.Minute}, logger)
	p.now = func() time.Time { return testNow }
	return p, deps
}

func activeCampaign() store.Campaign {
	return store.Campaign{ID: uuid.New(), Title: "Clean Water", Currency: "USD", Status: store.CampaignStatusActive}
}

func pendingDonation(donorID, campaignID uuid.UUID, amountMinor int64) store.Donation {
	return store.Donation{
		ID:            uuid.New(),
		DonorID:       donorID,
		CampaignID:    campaignID,
		AmountMinor:   amountMinor,
		Currency:      "USD",
		Kind:          store.DonationKindOneTime,
		PaymentMethod: store.PaymentMethodCard,
		Status:        store.DonationStatusPending,
		CreatedAt:     testNow,
	}
}

func withStatus(d store.Donation, status string) store.Donation {
	d.Status = status
	return d
}

func TestSubmitAndConfirm_OneTimeFiftyDollars(t *testing.T) {
	p, deps := newTestProcessor(t)
	ctx := context.Background()
	donorID := uuid.New()
	campaign := activeCampaign()
	pending := pendingDonation(donorID, campaign.ID, 5000)

	deps.store.On("GetCampaignByID", mock.Anything, campaign.ID).Return(campaign, nil)
	deps.store.On("CreateDonation", mock.Anything, mock.MatchedBy(func(params store.CreateDonationParams) bool {
		return params.AmountMinor == 5000 && params.Currency == "USD" &&
			params.Kind == store.DonationKindOneTime && params.PaymentMethod == store.PaymentMethodCard &&
			params.SelectedTier == nil && params.DonorID == donorID
	})).Return(pending, nil)
	deps.checkout.On("CreateDonationCheckout", mock.Anything, mock.MatchedBy(func(req billing.CheckoutRequest) bool {
		return req.DonationID == pending.ID && req.AmountMinor == 5000 && !req.Recurring && req.CampaignTitle == "Clean Water"
	})).Return(billing.CheckoutSession{ID: "cs_50", URL: "https://checkout.stripe.com/c/cs_50"}, nil).Once()
	deps.store.On("SetDonationExternalRef", mock.Anything, pending.ID, "cs_50").Return(nil)

	attempt, err := p.SubmitDonation(ctx, donorID, Form{CampaignID: campaign.ID, Amount: amount("50"), Currency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingPayment, attempt.State)
	assert.Equal(t, "https://checkout.stripe.com/c/cs_50", attempt.CheckoutURL)
	assert.Equal(t, "cs_50", *attempt.Donation.ExternalRef)

	// Prime the donor's profile so the completion has something to invalidate.
	deps.store.On("GetDonorProfile", mock.Anything, donorID).Return(store.DonorProfile{UserID: donorID, Currency: "USD"}, nil)
	_, err = p.GetDonorProfile(ctx, donorID)
	require.NoError(t, err)

	completed := withStatus(pending, store.DonationStatusCompleted)
	deps.store.On("CompleteDonation", mock.Anything, mock.MatchedBy(func(params store.CompleteDonationParams) bool {
		return params.ExternalRef == "cs_50" && params.Classify != nil
	})).Return(store.CompleteDonationResult{
		Donation: completed,
		Profile:  store.DonorProfile{UserID: donorID, TotalDonatedMinor: 5000, DonationTier: "none"},
	}, nil)
	deps.events.On("PublishDonationCompleted", mock.Anything, mock.MatchedBy(func(e events.DonationCompleted) bool {
		return e.DonationID == pending.ID && e.AmountMinor == 5000 && e.TotalMinor == 5000 && e.DonorTier == "none"
	})).Return(nil).Once()

	got, err := p.ConfirmPayment(ctx, Confirmation{ExternalRef: "cs_50", PaymentRef: ptr("pi_50")})
	require.NoError(t, err)
	assert.Equal(t, store.DonationStatusCompleted, got.Status)

	entry, found, err := deps.cache.Peek(ctx, cachekeys.DonorProfileKey(donorID))
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, entry.Stale)

	deps.store.AssertExpectations(t)
	deps.checkout.AssertExpectations(t)
	deps.events.AssertExpectations(t)
}

func ptr(s string) *string {
	return &s
}

func TestHandleCheckoutEvent_DuplicateWebhookPublishesOnce(t *testing.T) {
	p, deps := newTestProcessor(t)
	ctx := context.Background()
	completed := withStatus(pendingDonation(uuid.New(), uuid.New(), 2500), store.DonationStatusCompleted)

	deps.store.On("CompleteDonation", mock.Anything, mock.Anything).
		Return(store.CompleteDonationResult{Donation: completed}, nil).Once()
	deps.store.On("CompleteDonation", mock.Anything, mock.Anything).
		Return(store.CompleteDonationResult{Donation: completed, AlreadyCompleted: true}, nil).Once()
	deps.events.On("PublishDonationCompleted", mock.Anything, mock.Anything).Return(nil)

	event := billing.CheckoutEvent{
		EventID:   "evt_1",
		EventType: "checkout.session.completed",
		Outcome:   billing.CheckoutPaid,
		Session:   billing.CheckoutSessionInfo{SessionID: "cs_dup", PaymentStatus: "paid"},
	}
	require.NoError(t, p.HandleCheckoutEvent(ctx, event))
	require.NoError(t, p.HandleCheckoutEvent(ctx, event))

	deps.events.AssertNumberOfCalls(t, "PublishDonationCompleted", 1)
	deps.store.AssertExpectations(t)
}

func TestHandleCheckoutEvent_IgnoresSettledAndUnknown(t *testing.T) {
	p, deps := newTestProcessor(t)
	ctx := context.Background()
	completed := withStatus(pendingDonation(uuid.New(), uuid.New(), 2500), store.DonationStatusCompleted)

	deps.store.On("FailDonationByExternalRef", mock.Anything, "cs_done", store.FailureReasonExpired).
		Return(completed, false, store.ErrConflict)
	deps.store.On("CompleteDonation", mock.Anything, mock.Anything).
		Return(store.CompleteDonationResult{}, store.ErrNotFound)

	assert.NoError(t, p.HandleCheckoutEvent(ctx, billing.CheckoutEvent{
		Outcome:       billing.CheckoutFailed,
		FailureReason: store.FailureReasonExpired,
		Session:       billing.CheckoutSessionInfo{SessionID: "cs_done"},
	}))
	assert.NoError(t, p.HandleCheckoutEvent(ctx, billing.CheckoutEvent{
		Outcome: billing.CheckoutPaid,
		Session: billing.CheckoutSessionInfo{SessionID: "cs_other"},
	}))
	assert.NoError(t, p.HandleCheckoutEvent(ctx, billing.CheckoutEvent{Outcome: billing.CheckoutIgnored}))

	deps.events.AssertNotCalled(t, "PublishDonationFailed", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleCheckoutEvent_StoreErrorIsReturned(t *testing.T) {
	p, deps := newTestProcessor(t)
	deps.store.On("CompleteDonation", mock.Anything, mock.Anything).
		Return(store.CompleteDonationResult{}, errors.New("connection reset"))

	err := p.HandleCheckoutEvent(context.Background(), billing.CheckoutEvent{
		Outcome: billing.CheckoutPaid,
		Session: billing.CheckoutSessionInfo{SessionID: "cs_1"},
	})
	assert.ErrorIs(t, err, ErrFailedToConfirm)
}

func TestSubmitDonation_TierOverridesCustomAmount(t *testing.T) {
	p, deps := newTestProcessor(t)
	donorID := uuid.New()
	campaign := activeCampaign()
	pending := pendingDonation(donorID, campaign.ID, 10000)
	pending.Kind = store.DonationKindRecurring

	deps.store.On("GetCampaignByID", mock.Anything, campaign.ID).Return(campaign, nil)
	deps.store.On("CreateDonation", mock.Anything, mock.MatchedBy(func(params store.CreateDonationParams) bool {
		return params.AmountMinor == 10000 && params.SelectedTier != nil && *params.SelectedTier == "gold" &&
			params.Kind == store.DonationKindRecurring
	})).Return(pending, nil)
	deps.checkout.On("CreateDonationCheckout", mock.Anything, mock.MatchedBy(func(req billing.CheckoutRequest) bool {
		return req.AmountMinor == 10000 && req.Recurring
	})).Return(billing.CheckoutSession{ID: "cs_gold", URL: "https://checkout.stripe.com/c/cs_gold"}, nil)
	deps.store.On("SetDonationExternalRef", mock.Anything, pending.ID, "cs_gold").Return(nil)

	attempt, err := p.SubmitDonation(context.Background(), donorID, Form{
		CampaignID:   campaign.ID,
		Kind:         "recurring",
		Amount:       amount("75"),
		SelectedTier: tier(tiers.TierGold),
	})

	require.NoError(t, err)
	assert.Equal(t, StateAwaitingPayment, attempt.State)
	deps.store.AssertExpectations(t)
	deps.checkout.AssertExpectations(t)
}

func TestSubmitDonation_GatewayFailureMarksDonationFailed(t *testing.T) {
	p, deps := newTestProcessor(t)
	donorID := uuid.New()
	campaign := activeCampaign()
	pending := pendingDonation(donorID, campaign.ID, 2000)
	failed := withStatus(pending, store.DonationStatusFailed)

	deps.store.On("GetCampaignByID", mock.Anything, campaign.ID).Return(campaign, nil)
	deps.store.On("CreateDonation", mock.Anything, mock.Anything).Return(pending, nil)
	deps.checkout.On("CreateDonationCheckout", mock.Anything, mock.Anything).
		Return(billing.CheckoutSession{}, billing.ErrGatewayUnavailable).Once()
	deps.store.On("FailDonationByID", mock.Anything, pending.ID, store.FailureReasonGateway).Return(failed, true, nil)

	attempt, err := p.SubmitDonation(context.Background(), donorID, Form{CampaignID: campaign.ID, Amount: amount("20")})

	assert.ErrorIs(t, err, billing.ErrGatewayUnavailable)
	assert.Equal(t, StateFailed, attempt.State)
	assert.Equal(t, store.DonationStatusFailed, attempt.Donation.Status)
	deps.checkout.AssertNumberOfCalls(t, "CreateDonationCheckout", 1)
	deps.store.AssertNotCalled(t, "SetDonationExternalRef", mock.Anything, mock.Anything, mock.Anything)
	deps.store.AssertExpectations(t)
}

func TestSubmitDonation_ValidationNeverTouchesNetwork(t *testing.T) {
	p, deps := newTestProcessor(t)

	attempt, err := p.SubmitDonation(context.Background(), uuid.New(), Form{CampaignID: uuid.New(), Amount: amount("-1")})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "amount", verr.Field)
	assert.Equal(t, StateDraft, attempt.State)
	deps.store.AssertNotCalled(t, "GetCampaignByID", mock.Anything, mock.Anything)
	deps.store.AssertNotCalled(t, "CreateDonation", mock.Anything, mock.Anything)
	deps.checkout.AssertNotCalled(t, "CreateDonationCheckout", mock.Anything, mock.Anything)
}

func TestSubmitDonation_CampaignChecks(t *testing.T) {
	p, deps := newTestProcessor(t)
	paused := activeCampaign()
	paused.Status = store.CampaignStatusPaused
	missing := uuid.New()

	deps.store.On("GetCampaignByID", mock.Anything, paused.ID).Return(paused, nil)
	deps.store.On("GetCampaignByID", mock.Anything, missing).Return(store.Campaign{}, store.ErrNotFound)

	attempt, err := p.SubmitDonation(context.Background(), uuid.New(), Form{CampaignID: paused.ID, Amount: amount("5")})
	assert.ErrorIs(t, err, ErrCampaignClosed)
	assert.Equal(t, StateDraft, attempt.State)

	_, err = p.SubmitDonation(context.Background(), uuid.New(), Form{CampaignID: missing, Amount: amount("5")})
	assert.ErrorIs(t, err, ErrCampaignNotFound)

	deps.store.AssertNotCalled(t, "CreateDonation", mock.Anything, mock.Anything)
}

func TestSubmitDonation_OfflineSkipsCheckout(t *testing.T) {
	p, deps := newTestProcessor(t)
	donorID := uuid.New()
	campaign := activeCampaign()
	pending := pendingDonation(donorID, campaign.ID, 30000)
	pending.PaymentMethod = store.PaymentMethodCheck

	deps.store.On("GetCampaignByID", mock.Anything, campaign.ID).Return(campaign, nil)
	deps.store.On("CreateDonation", mock.Anything, mock.MatchedBy(func(params store.CreateDonationParams) bool {
		return params.PaymentMethod == store.PaymentMethodCheck
	})).Return(pending, nil)

	attempt, err := p.SubmitDonation(context.Background(), donorID, Form{
		CampaignID: campaign.ID, Amount: amount("300"), PaymentMethod: "check",
	})

	require.NoError(t, err)
	assert.Equal(t, StateAwaitingPayment, attempt.State)
	assert.Empty(t, attempt.CheckoutURL)
	deps.checkout.AssertNotCalled(t, "CreateDonationCheckout", mock.Anything, mock.Anything)
}

func TestConfirmOfflineDonation(t *testing.T) {
	p, deps := newTestProcessor(t)
	pending := pendingDonation(uuid.New(), uuid.New(), 30000)
	pending.PaymentMethod = store.PaymentMethodCheck
	ref := "offline-" + pending.ID.String()
	checkNo := "check #1042"

	deps.store.On("GetDonationByID", mock.Anything, pending.ID).Return(pending, nil)
	deps.store.On("SetDonationExternalRef", mock.Anything, pending.ID, ref).Return(nil)
	deps.store.On("CompleteDonation", mock.Anything, mock.MatchedBy(func(params store.CompleteDonationParams) bool {
		return params.ExternalRef == ref && *params.PaymentRef == checkNo
	})).Return(store.CompleteDonationResult{Donation: withStatus(pending, store.DonationStatusCompleted)}, nil)
	deps.events.On("PublishDonationCompleted", mock.Anything, mock.Anything).Return(nil)

	got, err := p.ConfirmOfflineDonation(context.Background(), pending.ID, &checkNo)
	require.NoError(t, err)
	assert.Equal(t, store.DonationStatusCompleted, got.Status)

	card := pendingDonation(uuid.New(), uuid.New(), 100)
	deps.store.On("GetDonationByID", mock.Anything, card.ID).Return(card, nil)
	_, err = p.ConfirmOfflineDonation(context.Background(), card.ID, nil)
	assert.ErrorIs(t, err, ErrNotOfflineDonation)
}

func primeDonation(t *testing.T, cache *querycache.Cache, d store.Donation) []byte {
	t.Helper()
	ctx := context.Background()
	_, _, err := querycache.Fetch(ctx, cache, cachekeys.DonationKey(d.ID), time.Minute,
		func(context.Context) (store.Donation, error) { return d, nil })
	require.NoError(t, err)
	entry, found, err := cache.Peek(ctx, cachekeys.DonationKey(d.ID))
	require.NoError(t, err)
	require.True(t, found)
	return entry.Value
}

func TestCancelDonation_RollsBackOptimisticUpdate(t *testing.T) {
	p, deps := newTestProcessor(t)
	ctx := context.Background()
	donorID := uuid.New()
	pending := pendingDonation(donorID, uuid.New(), 4000)
	before := primeDonation(t, deps.cache, pending)

	deps.store.On("GetDonationByID", mock.Anything, pending.ID).Return(pending, nil)
	deps.store.On("FailDonationByID", mock.Anything, pending.ID, store.FailureReasonCancelled).
		Return(store.Donation{}, false, errors.New("connection refused"))

	_, err := p.CancelDonation(ctx, donorID, pending.ID)
	assert.ErrorIs(t, err, ErrFailedToUpdate)

	after, found, err := deps.cache.Peek(ctx, cachekeys.DonationKey(pending.ID))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, before, after.Value)
	deps.checkout.AssertNotCalled(t, "ExpireCheckoutSession", mock.Anything, mock.Anything)
}

func TestCancelDonation_CommitsOptimisticUpdate(t *testing.T) {
	p, deps := newTestProcessor(t)
	ctx := context.Background()
	donorID := uuid.New()
	pending := pendingDonation(donorID, uuid.New(), 4000)
	pending.ExternalRef = ptr("cs_cancel")
	primeDonation(t, deps.cache, pending)

	failed := withStatus(pending, store.DonationStatusFailed)
	failed.FailureReason = ptr(store.FailureReasonCancelled)

	deps.store.On("GetDonationByID", mock.Anything, pending.ID).Return(pending, nil)
	deps.store.On("FailDonationByID", mock.Anything, pending.ID, store.FailureReasonCancelled).Return(failed, true, nil)
	deps.checkout.On("ExpireCheckoutSession", mock.Anything, "cs_cancel").Return(nil)
	deps.events.On("PublishDonationFailed", mock.Anything, pending.ID, donorID, pending.CampaignID, store.FailureReasonCancelled).Return(nil)

	got, err := p.CancelDonation(ctx, donorID, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, store.DonationStatusFailed, got.Status)

	entry, found, err := deps.cache.Peek(ctx, cachekeys.DonationKey(pending.ID))
	require.NoError(t, err)
	require.True(t, found)
	var cached store.Donation
	require.NoError(t, json.Unmarshal(entry.Value, &cached))
	assert.Equal(t, store.DonationStatusFailed, cached.Status)
	assert.True(t, entry.Stale)

	deps.checkout.AssertExpectations(t)
	deps.events.AssertExpectations(t)
}

func TestCancelDonation_Guards(t *testing.T) {
	p, deps := newTestProcessor(t)
	donorID := uuid.New()
	completed := withStatus(pendingDonation(donorID, uuid.New(), 100), store.DonationStatusCompleted)
	foreign := pendingDonation(uuid.New(), uuid.New(), 100)

	deps.store.On("GetDonationByID", mock.Anything, completed.ID).Return(completed, nil)
	deps.store.On("GetDonationByID", mock.Anything, foreign.ID).Return(foreign, nil)

	_, err := p.CancelDonation(context.Background(), donorID, completed.ID)
	assert.ErrorIs(t, err, ErrDonationSettled)

	_, err = p.CancelDonation(context.Background(), donorID, foreign.ID)
	assert.ErrorIs(t, err, ErrDonationNotFound)

	deps.store.AssertNotCalled(t, "FailDonationByID", mock.Anything, mock.Anything, mock.Anything)
}

func TestRetryDonation_ResubmitsFailedDonation(t *testing.T) {
	p, deps := newTestProcessor(t)
	donorID := uuid.New()
	campaign := activeCampaign()
	failed := withStatus(pendingDonation(donorID, campaign.ID, 1234), store.DonationStatusFailed)
	retried := pendingDonation(donorID, campaign.ID, 1234)

	deps.store.On("GetDonationByID", mock.Anything, failed.ID).Return(failed, nil)
	deps.store.On("GetCampaignByID", mock.Anything, campaign.ID).Return(campaign, nil)
	deps.store.On("CreateDonation", mock.Anything, mock.MatchedBy(func(params store.CreateDonationParams) bool {
		return params.AmountMinor == 1234
	})).Return(retried, nil)
	deps.checkout.On("CreateDonationCheckout", mock.Anything, mock.Anything).
		Return(billing.CheckoutSession{ID: "cs_retry", URL: "https://checkout.stripe.com/c/cs_retry"}, nil)
	deps.store.On("SetDonationExternalRef", mock.Anything, retried.ID, "cs_retry").Return(nil)

	attempt, err := p.RetryDonation(context.Background(), donorID, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, retried.ID, attempt.Donation.ID)
	assert.Equal(t, StateAwaitingPayment, attempt.State)

	pending := pendingDonation(donorID, campaign.ID, 100)
	deps.store.On("GetDonationByID", mock.Anything, pending.ID).Return(pending, nil)
	_, err = p.RetryDonation(context.Background(), donorID, pending.ID)
	assert.ErrorIs(t, err, ErrNotRetryable)
}

func TestPollPaymentSuccess(t *testing.T) {
	donorID := uuid.New()

	t.Run("paid session completes the donation", func(t *testing.T) {
		p, deps := newTestProcessor(t)
		pending := pendingDonation(donorID, uuid.New(), 5000)
		deps.store.On("GetDonationByExternalRef", mock.Anything, "cs_paid").Return(pending, nil)
		deps.checkout.On("GetCheckoutSession", mock.Anything, "cs_paid").
			Return(billing.CheckoutSessionInfo{SessionID: "cs_paid", PaymentStatus: "paid", PaymentRef: ptr("pi_1")}, nil)
		deps.store.On("CompleteDonation", mock.Anything, mock.Anything).
			Return(store.CompleteDonationResult{Donation: withStatus(pending, store.DonationStatusCompleted)}, nil)
		deps.events.On("PublishDonationCompleted", mock.Anything, mock.Anything).Return(nil)

		attempt, err := p.PollPaymentSuccess(context.Background(), donorID, "cs_paid")
		require.NoError(t, err)
		assert.Equal(t, StateCompleted, attempt.State)
	})

	t.Run("open session is still pending", func(t *testing.T) {
		p, deps := newTestProcessor(t)
		pending := pendingDonation(donorID, uuid.New(), 5000)
		deps.store.On("GetDonationByExternalRef", mock.Anything, "cs_open").Return(pending, nil)
		deps.checkout.On("GetCheckoutSession", mock.Anything, "cs_open").
			Return(billing.CheckoutSessionInfo{SessionID: "cs_open", Status: "open", PaymentStatus: "unpaid"}, nil)

		attempt, err := p.PollPaymentSuccess(context.Background(), donorID, "cs_open")
		assert.ErrorIs(t, err, ErrPaymentPending)
		assert.Equal(t, StateAwaitingPayment, attempt.State)
	})

	t.Run("settled donation skips the gateway", func(t *testing.T) {
		p, deps := newTestProcessor(t)
		completed := withStatus(pendingDonation(donorID, uuid.New(), 5000), store.DonationStatusCompleted)
		deps.store.On("GetDonationByExternalRef", mock.Anything, "cs_done").Return(completed, nil)

		attempt, err := p.PollPaymentSuccess(context.Background(), donorID, "cs_done")
		require.NoError(t, err)
		assert.Equal(t, StateCompleted, attempt.State)
		deps.checkout.AssertNotCalled(t, "GetCheckoutSession", mock.Anything, mock.Anything)
	})

	t.Run("another donor's session is hidden", func(t *testing.T) {
		p, deps := newTestProcessor(t)
		deps.store.On("GetDonationByExternalRef", mock.Anything, "cs_x").Return(pendingDonation(uuid.New(), uuid.New(), 1), nil)

		_, err := p.PollPaymentSuccess(context.Background(), donorID, "cs_x")
		assert.ErrorIs(t, err, ErrDonationNotFound)
	})
}

func TestReconcileAbandoned(t *testing.T) {
	p, deps := newTestProcessor(t)
	ctx := context.Background()

	paid := pendingDonation(uuid.New(), uuid.New(), 1000)
	paid.ExternalRef = ptr("cs_paid")
	open := pendingDonation(uuid.New(), uuid.New(), 2000)
	open.ExternalRef = ptr("cs_open")
	unreachable := pendingDonation(uuid.New(), uuid.New(), 3000)
	unreachable.ExternalRef = ptr("cs_unreachable")
	noSession := pendingDonation(uuid.New(), uuid.New(), 4000)

	cutoff := testNow.Add(-24 * time.Hour)
	deps.store.On("ListStalePendingDonations", mock.Anything, cutoff, onlineMethods, 50).
		Return([]store.Donation{paid, open, unreachable, noSession}, nil)

	deps.checkout.On("GetCheckoutSession", mock.Anything, "cs_paid").
		Return(billing.CheckoutSessionInfo{SessionID: "cs_paid", Status: "complete", PaymentStatus: "paid"}, nil)
	deps.store.On("CompleteDonation", mock.Anything, mock.MatchedBy(func(params store.CompleteDonationParams) bool {
		return params.ExternalRef == "cs_paid"
	})).Return(store.CompleteDonationResult{Donation: withStatus(paid, store.DonationStatusCompleted)}, nil)
	deps.events.On("PublishDonationCompleted", mock.Anything, mock.Anything).Return(nil)

	deps.checkout.On("GetCheckoutSession", mock.Anything, "cs_open").
		Return(billing.CheckoutSessionInfo{SessionID: "cs_open", Status: "open", PaymentStatus: "unpaid"}, nil)
	deps.checkout.On("ExpireCheckoutSession", mock.Anything, "cs_open").Return(nil)

	deps.checkout.On("GetCheckoutSession", mock.Anything, "cs_unreachable").
		Return(billing.CheckoutSessionInfo{}, billing.ErrGatewayUnavailable)

	for _, d := range []store.Donation{open, noSession} {
		deps.store.On("FailDonationByID", mock.Anything, d.ID, store.FailureReasonAbandoned).
			Return(withStatus(d, store.DonationStatusFailed), true, nil)
		deps.events.On("PublishDonationFailed", mock.Anything, d.ID, d.DonorID, d.CampaignID, store.FailureReasonAbandoned).Return(nil)
	}

	res, err := p.ReconcileAbandoned(ctx, 24*time.Hour, 50)
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Scanned: 4, Abandoned: 2, Completed: 1, Errors: 1}, res)
	deps.store.AssertNotCalled(t, "FailDonationByID", mock.Anything, unreachable.ID, mock.Anything)
	deps.store.AssertNotCalled(t, "FailDonationByID", mock.Anything, paid.ID, mock.Anything)
	deps.checkout.AssertExpectations(t)
	deps.events.AssertExpectations(t)
}

func TestUpdateDonationAdmin(t *testing.T) {
	p, deps := newTestProcessor(t)
	ctx := context.Background()
	completed := withStatus(pendingDonation(uuid.New(), uuid.New(), 100), store.DonationStatusCompleted)
	pending := pendingDonation(uuid.New(), uuid.New(), 100)
	ack := true
	note := "thanked by phone"

	updated := completed
	updated.Acknowledged = true
	updated.AdminNote = &note

	deps.store.On("GetDonationByID", mock.Anything, completed.ID).Return(completed, nil)
	deps.store.On("GetDonationByID", mock.Anything, pending.ID).Return(pending, nil)
	deps.store.On("UpdateDonationAdmin", mock.Anything, completed.ID, store.UpdateDonationAdminParams{
		AdminNote: &note, Acknowledged: &ack,
	}).Return(updated, nil)

	got, err := p.UpdateDonationAdmin(ctx, completed.ID, AdminUpdate{AdminNote: &note, Acknowledged: &ack})
	require.NoError(t, err)
	assert.True(t, got.Acknowledged)

	_, err = p.UpdateDonationAdmin(ctx, pending.ID, AdminUpdate{Acknowledged: &ack})
	assert.ErrorIs(t, err, ErrDonationNotSettled)
	deps.store.AssertNumberOfCalls(t, "UpdateDonationAdmin", 1)
}

func TestGetCampaignStats_CachedAndMapped(t *testing.T) {
	p, deps := newTestProcessor(t)
	ctx := context.Background()
	campaignID := uuid.New()
	missing := uuid.New()

	deps.store.On("GetCampaignStats", mock.Anything, campaignID).
		Return(store.CampaignStats{CampaignID: campaignID, TotalRaisedMinor: 9900}, nil).Once()
	deps.store.On("GetCampaignStats", mock.Anything, missing).Return(store.CampaignStats{}, store.ErrNotFound)

	for i := 0; i < 3; i++ {
		stats, err := p.GetCampaignStats(ctx, campaignID)
		require.NoError(t, err)
		assert.Equal(t, int64(9900), stats.TotalRaisedMinor)
	}
	deps.store.AssertNumberOfCalls(t, "GetCampaignStats", 1)

	_, err := p.GetCampaignStats(ctx, missing)
	assert.ErrorIs(t, err, ErrCampaignNotFound)
}

func TestGetDonorProfile_EmptyForNewDonor(t *testing.T) {
	p, deps := newTestProcessor(t)
	donorID := uuid.New()
	deps.store.On("GetDonorProfile", mock.Anything, donorID).Return(store.DonorProfile{}, store.ErrNotFound)

	profile, err := p.GetDonorProfile(context.Background(), donorID)
	require.NoError(t, err)
	assert.Equal(t, donorID, profile.UserID)
	assert.Equal(t, "none", profile.DonationTier)
	assert.Zero(t, profile.TotalDonatedMinor)
}

func TestConfirmPayment_TierChangeInvalidatesEveryCampaignStats(t *testing.T) {
	tests := []struct {
		name      string
		previous  string
		current   string
		wantStale bool
	}{
		{"reclassified", "bronze", "gold", true},
		{"same tier", "gold", "gold", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, deps := newTestProcessor(t)
			ctx := context.Background()
			donorID := uuid.New()
			paidCampaign, otherCampaign := uuid.New(), uuid.New()

			deps.store.On("GetCampaignStats", mock.Anything, otherCampaign).
				Return(store.CampaignStats{CampaignID: otherCampaign, ByTier: map[string]int{tt.previous: 1}}, nil).Once()
			_, err := p.GetCampaignStats(ctx, otherCampaign)
			require.NoError(t, err)

			pending := pendingDonation(donorID, paidCampaign, 500000)
			deps.store.On("CompleteDonation", mock.Anything, mock.Anything).Return(store.CompleteDonationResult{
				Donation:     withStatus(pending, store.DonationStatusCompleted),
				Profile:      store.DonorProfile{UserID: donorID, TotalDonatedMinor: 600000, DonationTier: tt.current},
				PreviousTier: tt.previous,
			}, nil)
			deps.events.On("PublishDonationCompleted", mock.Anything, mock.Anything).Return(nil)

			_, err = p.ConfirmPayment(ctx, Confirmation{ExternalRef: "cs_tier"})
			require.NoError(t, err)

			entry, found, err := deps.cache.Peek(ctx, cachekeys.CampaignStatsKey(otherCampaign))
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, tt.wantStale, entry.Stale)
		})
	}
}

func TestListDonations_EquivalentFiltersShareOneEntry(t *testing.T) {
	p, deps := newTestProcessor(t)
	ctx := context.Background()
	donorID := uuid.New()
	scope := ListScope{DonorID: &donorID}

	deps.store.On("ListDonations", mock.Anything, mock.MatchedBy(func(params store.ListDonationsParams) bool {
		return *params.DonorID == donorID && params.CampaignID == nil &&
			assert.ObjectsAreEqual([]string{"completed", "pending"}, params.Statuses)
	})).Return(store.ListDonationsResult{Donations: []store.Donation{pendingDonation(donorID, uuid.New(), 100)}, TotalCount: 1}, nil).Once()

	first, err := p.ListDonations(ctx, scope, filters.FilterState{Statuses: []string{"completed", "pending"}})
	require.NoError(t, err)
	second, err := p.ListDonations(ctx, scope, filters.FilterState{
		Statuses: []string{" Pending", "completed", "pending"},
		SortBy:   filters.DefaultSortBy,
		Page:     1,
	})
	require.NoError(t, err)

	assert.Equal(t, first.Donations, second.Donations)
	assert.Equal(t, int64(1), second.Pagination.TotalCount)
	deps.store.AssertNumberOfCalls(t, "ListDonations", 1)
}

func TestListDonations_DonorListPerCampaignIsSeparate(t *testing.T) {
	p, deps := newTestProcessor(t)
	ctx := context.Background()
	donorID := uuid.New()
	campaignA, campaignB := uuid.New(), uuid.New()

	forCampaign := func(id *uuid.UUID) interface{} {
		return mock.MatchedBy(func(params store.ListDonationsParams) bool {
			if id == nil {
				return params.CampaignID == nil
			}
			return params.CampaignID != nil && *params.CampaignID == *id
		})
	}
	deps.store.On("ListDonations", mock.Anything, forCampaign(&campaignA)).
		Return(store.ListDonationsResult{TotalCount: 1}, nil).Once()
	deps.store.On("ListDonations", mock.Anything, forCampaign(&campaignB)).
		Return(store.ListDonationsResult{TotalCount: 2}, nil).Once()
	deps.store.On("ListDonations", mock.Anything, forCampaign(nil)).
		Return(store.ListDonationsResult{TotalCount: 3}, nil).Once()

	for _, tc := range []struct {
		campaign *uuid.UUID
		total    int64
	}{{&campaignA, 1}, {&campaignB, 2}, {nil, 3}, {&campaignA, 1}} {
		list, err := p.ListDonations(ctx, ListScope{DonorID: &donorID, CampaignID: tc.campaign}, filters.FilterState{})
		require.NoError(t, err)
		assert.Equal(t, tc.total, list.Pagination.TotalCount)
		assert.NotNil(t, list.Donations)
	}
	deps.store.AssertNumberOfCalls(t, "ListDonations", 3)
}

func TestListDonations_AmountBoundsInMinorUnits(t *testing.T) {
	p, deps := newTestProcessor(t)
	ctx := context.Background()

	deps.store.On("ListDonations", mock.Anything, mock.MatchedBy(func(params store.ListDonationsParams) bool {
		return params.MinAmountMinor != nil && *params.MinAmountMinor == 1250 &&
			params.MaxAmountMinor != nil && *params.MaxAmountMinor == 10000
	})).Return(store.ListDonationsResult{}, nil).Once()

	_, err := p.ListDonations(ctx, ListScope{}, filters.FilterState{MinAmount: amount("12.50"), MaxAmount: amount("100")})
	require.NoError(t, err)

	_, err = p.ListDonations(ctx, ListScope{}, filters.FilterState{MinAmount: amount("1.005")})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "min_amount", verr.Field)

	_, err = p.ListDonations(ctx, ListScope{}, filters.FilterState{MaxAmount: amount("20.001")})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "max_amount", verr.Field)

	deps.store.AssertNumberOfCalls(t, "ListDonations", 1)
}

func TestListDonations_RefetchesAfterCompletion(t *testing.T) {
	p, deps := newTestProcessor(t)
	ctx := context.Background()
	donorID := uuid.New()
	campaignID := uuid.New()
	scope := ListScope{DonorID: &donorID}
	pending := pendingDonation(donorID, campaignID, 2500)
	completed := withStatus(pending, store.DonationStatusCompleted)

	deps.store.On("ListDonations", mock.Anything, mock.Anything).
		Return(store.ListDonationsResult{Donations: []store.Donation{pending}, TotalCount: 1}, nil).Once()
	deps.store.On("ListDonations", mock.Anything, mock.Anything).
		Return(store.ListDonationsResult{Donations: []store.Donation{completed}, TotalCount: 1}, nil).Once()
	deps.store.On("CompleteDonation", mock.Anything, mock.Anything).
		Return(store.CompleteDonationResult{Donation: completed}, nil)
	deps.events.On("PublishDonationCompleted", mock.Anything, mock.Anything).Return(nil)

	before, err := p.ListDonations(ctx, scope, filters.FilterState{})
	require.NoError(t, err)
	assert.Equal(t, store.DonationStatusPending, before.Donations[0].Status)

	_, err = p.ConfirmPayment(ctx, Confirmation{ExternalRef: "cs_list"})
	require.NoError(t, err)

	after, err := p.ListDonations(ctx, scope, filters.FilterState{})
	require.NoError(t, err)
	assert.Equal(t, store.DonationStatusCompleted, after.Donations[0].Status)
	assert.False(t, after.Stale)
	deps.store.AssertNumberOfCalls(t, "ListDonations", 2)
}
