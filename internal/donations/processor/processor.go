package processor

import (
	"context"
	"errors"
	"time"

	"charity-server/internal/cachekeys"
	"charity-server/internal/observability"
	"charity-server/internal/querycache"
	"charity-server/internal/store"

	"github.com/google/uuid"
)

var (
	ErrDonationNotFound   = errors.New("donation not found")
	ErrCampaignNotFound   = errors.New("campaign not found")
	ErrCampaignClosed     = errors.New("campaign is not accepting donations")
	ErrDonationSettled    = errors.New("donation is no longer pending")
	ErrDonationNotSettled = errors.New("only completed or failed donations can be edited")
	ErrNotOfflineDonation = errors.New("donation is paid through checkout")
	ErrNotRetryable       = errors.New("only failed donations can be retried")
	ErrPaymentPending     = errors.New("payment has not completed yet")
	ErrFailedToSubmit     = errors.New("failed to submit donation")
	ErrFailedToConfirm    = errors.New("failed to confirm donation")
	ErrFailedToUpdate     = errors.New("failed to update donation")
	ErrFailedToLoad       = errors.New("failed to load donation data")
)

// Staleness holds how old each cached read may be before it is refetched.
type Staleness struct {
	List          time.Duration
	DonorProfile  time.Duration
	CampaignStats time.Duration
}

type DonationProcessor struct {
	store     DonationStore
	checkout  CheckoutGateway
	events    EventPublisher
	tiers     TierClassifier
	cache     *querycache.Cache
	limits    Limits
	staleness Staleness
	logger    *observability.Logger
	now       func() time.Time
}

func New(
	store DonationStore,
	checkout CheckoutGateway,
	events EventPublisher,
	tiers TierClassifier,
	cache *querycache.Cache,
	limits Limits,
	staleness Staleness,
	logger *observability.Logger,
) DonationProcessor {
	return DonationProcessor{
		store:     store,
		checkout:  checkout,
		events:    events,
		tiers:     tiers,
		cache:     cache,
		limits:    limits,
		staleness: staleness,
		logger:    logger,
		now:       time.Now,
	}
}

// Limits returns the amount bounds and tier amounts the form is validated against.
func (p *DonationProcessor) Limits() Limits {
	return p.limits
}

// invalidate marks targets stale. A failed invalidation is logged; the write it follows has
// already happened.
func (p *DonationProcessor) invalidate(ctx context.Context, targets ...querycache.Target) {
	if err := p.cache.InvalidateTargets(ctx, targets...); err != nil {
		p.logger.Error(ctx, "failed to invalidate cached reads", err)
	}
}

func (p *DonationProcessor) invalidateDonation(ctx context.Context, d store.Donation, targets []querycache.Target) {
	p.invalidate(ctx, targets...)
	if err := p.cache.Invalidate(ctx, cachekeys.DonationKey(d.ID)); err != nil {
		p.logger.Error(ctx, "failed to invalidate cached donation", err)
	}
}

// ownedDonation loads a donation and hides it from anyone but its donor.
func (p *DonationProcessor) ownedDonation(ctx context.Context, donorID, donationID uuid.UUID) (store.Donation, error) {
	donation, err := p.store.GetDonationByID(ctx, donationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Donation{}, ErrDonationNotFound
		}
		p.logger.Error(ctx, "failed to get donation", err)
		return store.Donation{}, ErrFailedToLoad
	}
	if donation.DonorID != donorID {
		return store.Donation{}, ErrDonationNotFound
	}
	return donation, nil
}
