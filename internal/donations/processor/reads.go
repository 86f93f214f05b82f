package processor

import (
	"context"
	"errors"

	"charity-server/internal/cachekeys"
	"charity-server/internal/filters"
	"charity-server/internal/money/currency"
	"charity-server/internal/querycache"
	"charity-server/internal/store"
	"charity-server/internal/tiers"

	"github.com/google/uuid"
)

// DonationList is one page of a filtered donation list.
type DonationList struct {
	Donations  []store.Donation   `json:"donations"`
	Pagination filters.Pagination `json:"pagination"`
	Stale      bool               `json:"stale,omitempty"`
}

// ListScope narrows a list to one donor or one campaign. The zero value lists everything.
type ListScope struct {
	DonorID    *uuid.UUID
	CampaignID *uuid.UUID
}

func (s ListScope) cacheScope() string {
	switch {
	case s.DonorID != nil:
		return cachekeys.DonorScope(*s.DonorID)
	case s.CampaignID != nil:
		return cachekeys.CampaignScope(*s.CampaignID)
	}
	return querycache.GlobalScope
}

// ListDonations serves a filtered page through the cache. Equivalent filters share one entry.
func (p *DonationProcessor) ListDonations(ctx context.Context, scope ListScope, f filters.FilterState) (DonationList, error) {
	if err := f.Validate(); err != nil {
		return DonationList{}, err
	}
	c := f.Canonical()

	// A donor list inside one campaign is still donor scoped; the campaign goes in the params.
	key := c.CacheKey(cachekeys.Donations, scope.cacheScope())
	if scope.DonorID != nil && scope.CampaignID != nil {
		campaignParam := "campaign=" + scope.CampaignID.String()
		if key.Params != "" {
			campaignParam += "&" + key.Params
		}
		key.Params = campaignParam
	}

	list, res, err := querycache.Fetch(ctx, p.cache, key, p.staleness.List, func(ctx context.Context) (DonationList, error) {
		params, err := p.listParams(scope, c)
		if err != nil {
			return DonationList{}, err
		}
		result, err := p.store.ListDonations(ctx, params)
		if err != nil {
			return DonationList{}, err
		}
		donations := result.Donations
		if donations == nil {
			donations = []store.Donation{}
		}
		return DonationList{Donations: donations, Pagination: c.Pagination(result.TotalCount)}, nil
	})
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return DonationList{}, err
		}
		p.logger.Error(ctx, "failed to list donations", err)
		return DonationList{}, ErrFailedToLoad
	}
	if res.RefreshErr != nil {
		p.logger.Error(ctx, "serving stale donation list after refresh failure", res.RefreshErr)
	}
	list.Stale = res.Stale
	return list, nil
}

// listParams translates canonical filters into column values. Amount bounds are in the
// settlement currency.
func (p *DonationProcessor) listParams(scope ListScope, c filters.FilterState) (store.ListDonationsParams, error) {
	from, to := c.DateRange(p.now())
	params := store.ListDonationsParams{
		DonorID:        scope.DonorID,
		CampaignID:     scope.CampaignID,
		Statuses:       c.Statuses,
		Kinds:          c.Types,
		PaymentMethods: c.PaymentMethods,
		Currencies:     c.Currencies,
		From:           from,
		To:             to,
		Search:         c.Search,
		SortBy:         c.SortBy,
		SortDesc:       c.SortDir == filters.SortDesc,
		Limit:          c.Limit,
		Offset:         c.Offset(),
	}
	if c.MinAmount != nil {
		minor, err := currency.ToMinorUnits(*c.MinAmount, p.limits.Currency)
		if err != nil {
			return params, invalid("min_amount", "has more decimal places than %s allows", p.limits.Currency)
		}
		params.MinAmountMinor = &minor
	}
	if c.MaxAmount != nil {
		minor, err := currency.ToMinorUnits(*c.MaxAmount, p.limits.Currency)
		if err != nil {
			return params, invalid("max_amount", "has more decimal places than %s allows", p.limits.Currency)
		}
		params.MaxAmountMinor = &minor
	}
	return params, nil
}

// GetDonation returns one donation. Donors see only their own; admins see any.
func (p *DonationProcessor) GetDonation(ctx context.Context, viewerID uuid.UUID, admin bool, donationID uuid.UUID) (store.Donation, error) {
	donation, _, err := querycache.Fetch(ctx, p.cache, cachekeys.DonationKey(donationID), p.staleness.List,
		func(ctx context.Context) (store.Donation, error) {
			return p.store.GetDonationByID(ctx, donationID)
		})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Donation{}, ErrDonationNotFound
		}
		p.logger.Error(ctx, "failed to get donation", err)
		return store.Donation{}, ErrFailedToLoad
	}
	if !admin && donation.DonorID != viewerID {
		return store.Donation{}, ErrDonationNotFound
	}
	return donation, nil
}

// GetDonorProfile returns the donor's aggregate. A donor with no completed donation gets an
// empty profile in the settlement currency.
func (p *DonationProcessor) GetDonorProfile(ctx context.Context, donorID uuid.UUID) (store.DonorProfile, error) {
	profile, _, err := querycache.Fetch(ctx, p.cache, cachekeys.DonorProfileKey(donorID), p.staleness.DonorProfile,
		func(ctx context.Context) (store.DonorProfile, error) {
			profile, err := p.store.GetDonorProfile(ctx, donorID)
			if errors.Is(err, store.ErrNotFound) {
				return store.DonorProfile{
					UserID:       donorID,
					Currency:     string(p.limits.Currency),
					DonationTier: string(tiers.TierNone),
				}, nil
			}
			return profile, err
		})
	if err != nil {
		p.logger.Error(ctx, "failed to get donor profile", err)
		return store.DonorProfile{}, ErrFailedToLoad
	}
	return profile, nil
}

// GetCampaignStats returns the campaign rollup, refreshing in the background once stale.
func (p *DonationProcessor) GetCampaignStats(ctx context.Context, campaignID uuid.UUID) (store.CampaignStats, error) {
	stats, _, err := querycache.Fetch(ctx, p.cache, cachekeys.CampaignStatsKey(campaignID), p.staleness.CampaignStats,
		func(ctx context.Context) (store.CampaignStats, error) {
			return p.store.GetCampaignStats(ctx, campaignID)
		}, querycache.StaleWhileRevalidate())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.CampaignStats{}, ErrCampaignNotFound
		}
		p.logger.Error(ctx, "failed to get campaign stats", err)
		return store.CampaignStats{}, ErrFailedToLoad
	}
	return stats, nil
}
