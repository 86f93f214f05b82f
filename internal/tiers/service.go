package tiers

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
	ErrOverrideNotFound = errors.New("tier override not found")
	ErrFailedToLoadTier = errors.New("failed to load donor tier")
	ErrFailedToSetTier  = errors.New("failed to update donor tier")
)

// TierStore defines the database operations required by TierService
type TierStore interface {
	GetDonorProfile(ctx context.Context, userID uuid.UUID) (store.DonorProfile, error)
	UpdateDonorTier(ctx context.Context, userID uuid.UUID, tier string) error
	GetTierOverride(ctx context.Context, donorID uuid.UUID) (store.TierOverride, error)
	UpsertTierOverride(ctx context.Context, override store.TierOverride) (store.TierOverride, error)
	DeleteTierOverride(ctx context.Context, donorID uuid.UUID) error
	GetTierCounts(ctx context.Context) ([]store.TierCount, error)
}

// TierService answers tier questions against the lifetime policy and administrative overrides.
type TierService struct {
	store     TierStore
	cache     *querycache.Cache
	policy    Policy
	staleness time.Duration
	logger    *observability.Logger
}

// New creates a new TierService
func New(store TierStore, cache *querycache.Cache, lifetime Policy, statsStaleness time.Duration, logger *observability.Logger) *TierService {
	return &TierService{
		store:     store,
		cache:     cache,
		policy:    lifetime,
		staleness: statsStaleness,
		logger:    logger,
	}
}

// Policy returns the lifetime policy donors are classified with.
func (s *TierService) Policy() Policy {
	return s.policy
}

// DonorTier is a donor's current tier and how it was derived.
type DonorTier struct {
	DonorID      uuid.UUID `json:"donor_id"`
	Tier         Tier      `json:"tier"`
	DisplayName  string    `json:"display_name"`
	TotalMinor   int64     `json:"total_donated_minor"`
	Currency     string    `json:"currency"`
	Overridden   bool      `json:"overridden"`
	ComputedTier Tier      `json:"computed_tier"`
}

// TierStat is the number of donors currently in one tier.
type TierStat struct {
	Tier        Tier   `json:"tier"`
	DisplayName string `json:"display_name"`
	DonorCount  int    `json:"donor_count"`
}

// ClassifyStored is the store's classification callback: the override, when present and
// valid, wins over the lifetime total.
func (s *TierService) ClassifyStored(totalMinor int64, override *string) string {
	var o *Tier
	if override != nil {
		if t, err := ParseTier(*override); err == nil {
			o = &t
		}
	}
	return string(s.policy.Resolve(totalMinor, o))
}

// CurrentTier returns the donor's tier. A donor without completed donations is TierNone
// unless an override says otherwise.
func (s *TierService) CurrentTier(ctx context.Context, donorID uuid.UUID) (DonorTier, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "operation", Value: "get_current_tier"},
		observability.Field{Key: "donor_id", Value: donorID.String()},
	)

	result := DonorTier{DonorID: donorID, Currency: string(s.policy.Currency())}

	profile, err := s.store.GetDonorProfile(ctx, donorID)
	switch {
	case err == nil:
		result.TotalMinor = profile.TotalDonatedMinor
		result.Currency = profile.Currency
	case !errors.Is(err, store.ErrNotFound):
		s.logger.Error(ctx, "failed to get donor profile", err)
		return DonorTier{}, ErrFailedToLoadTier
	}

	override, err := s.override(ctx, donorID)
	if err != nil {
		return DonorTier{}, err
	}

	result.ComputedTier = s.policy.Classify(result.TotalMinor)
	result.Tier = s.policy.Resolve(result.TotalMinor, override)
	result.Overridden = override != nil
	result.DisplayName = result.Tier.DisplayName()
	return result, nil
}

func (s *TierService) override(ctx context.Context, donorID uuid.UUID) (*Tier, error) {
	o, err := s.store.GetTierOverride(ctx, donorID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logger.Error(ctx, "failed to get tier override", err)
		return nil, ErrFailedToLoadTier
	}
	t, err := ParseTier(o.Tier)
	if err != nil {
		s.logger.Warn(ctx, "ignoring tier override with unknown tier "+o.Tier)
		return nil, nil
	}
	return &t, nil
}

// SetOverride pins a donor to tier until the override is cleared.
func (s *TierService) SetOverride(ctx context.Context, donorID, setBy uuid.UUID, tier Tier, reason *string) (DonorTier, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "operation", Value: "set_tier_override"},
		observability.Field{Key: "donor_id", Value: donorID.String()},
		observability.Field{Key: "tier", Value: string(tier)},
	)

	if tier.Rank() < 0 {
		return DonorTier{}, ErrUnknownTier
	}

	if _, err := s.store.UpsertTierOverride(ctx, store.TierOverride{
		DonorID: donorID,
		Tier:    string(tier),
		Reason:  reason,
		SetBy:   setBy,
	}); err != nil {
		s.logger.Error(ctx, "failed to upsert tier override", err)
		return DonorTier{}, ErrFailedToSetTier
	}

	s.logger.Info(ctx, "tier override set")
	return s.syncProfileTier(ctx, donorID)
}

// ClearOverride removes a donor's override; the tier falls back to the lifetime total.
func (s *TierService) ClearOverride(ctx context.Context, donorID uuid.UUID) (DonorTier, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "operation", Value: "clear_tier_override"},
		observability.Field{Key: "donor_id", Value: donorID.String()},
	)

	if err := s.store.DeleteTierOverride(ctx, donorID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return DonorTier{}, ErrOverrideNotFound
		}
		s.logger.Error(ctx, "failed to delete tier override", err)
		return DonorTier{}, ErrFailedToSetTier
	}

	s.logger.Info(ctx, "tier override cleared")
	return s.syncProfileTier(ctx, donorID)
}

// syncProfileTier writes the resolved tier onto the donor profile and drops cached reads
// that show it.
func (s *TierService) syncProfileTier(ctx context.Context, donorID uuid.UUID) (DonorTier, error) {
	current, err := s.CurrentTier(ctx, donorID)
	if err != nil {
		return DonorTier{}, err
	}

	err = s.store.UpdateDonorTier(ctx, donorID, string(current.Tier))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Error(ctx, "failed to update profile tier", err)
		return DonorTier{}, ErrFailedToSetTier
	}

	if err := s.cache.InvalidateTargets(ctx, cachekeys.TierChangeTargets(donorID)...); err != nil {
		s.logger.Error(ctx, "failed to invalidate tier caches", err)
	}
	return current, nil
}

// Stats returns the donor count for every tier, lowest first, served through the cache.
func (s *TierService) Stats(ctx context.Context) ([]TierStat, error) {
	stats, res, err := querycache.Fetch(ctx, s.cache, cachekeys.TierStatsKey(), s.staleness, s.loadStats)
	if err != nil {
		s.logger.Error(ctx, "failed to load tier stats", err)
		return nil, ErrFailedToLoadTier
	}
	if res.RefreshErr != nil {
		s.logger.Warn(ctx, "serving stale tier stats: "+res.RefreshErr.Error())
	}
	return stats, nil
}

func (s *TierService) loadStats(ctx context.Context) ([]TierStat, error) {
	counts, err := s.store.GetTierCounts(ctx)
	if err != nil {
		return nil, err
	}

	byTier := make(map[Tier]int, len(counts))
	for _, c := range counts {
		byTier[Tier(c.Tier)] += c.DonorCount
	}

	stats := make([]TierStat, 0, len(Ranked))
	for _, t := range Ranked {
		stats = append(stats, TierStat{Tier: t, DisplayName: t.DisplayName(), DonorCount: byTier[t]})
	}
	return stats, nil
}
