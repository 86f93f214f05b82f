package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const sqlGetCampaignByID = `
SELECT id, slug, title, description, currency, goal_minor, status, starts_at, ends_at,
       created_at, updated_at, deleted_at
FROM campaigns
WHERE id = $1 AND deleted_at IS NULL
`

// GetCampaignByID retrieves a campaign by ID
func (s *Store) GetCampaignByID(ctx context.Context, campaignID uuid.UUID) (Campaign, error) {
	var campaign Campaign
	err := s.db.GetContext(ctx, &campaign, sqlGetCampaignByID, campaignID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Campaign{}, ErrNotFound
		}
		return Campaign{}, fmt.Errorf("failed to get campaign: %w", err)
	}
	return campaign, nil
}

const sqlGetCampaignTotals = `
SELECT COALESCE(SUM(amount_minor) FILTER (WHERE status = 'completed' AND currency = $2), 0) AS total_raised_minor,
       COUNT(*) FILTER (WHERE status = 'completed')                                     AS donation_count,
       COUNT(DISTINCT donor_id) FILTER (WHERE status = 'completed')                     AS donor_count,
       COUNT(*) FILTER (WHERE status = 'pending')                                       AS pending_count
FROM donations
WHERE campaign_id = $1
`

const sqlGetCampaignTierBreakdown = `
SELECT COALESCE(p.donation_tier, 'none') AS tier, COUNT(DISTINCT d.donor_id) AS donor_count
FROM donations d
LEFT JOIN donor_profiles p ON p.user_id = d.donor_id
WHERE d.campaign_id = $1 AND d.status = 'completed'
GROUP BY 1
`

const sqlGetCampaignKindBreakdown = `
SELECT kind, COALESCE(SUM(amount_minor), 0) AS total
FROM donations
WHERE campaign_id = $1 AND status = 'completed' AND currency = $2
GROUP BY kind
`

// GetCampaignStats recomputes a campaign's rollup from its donations
func (s *Store) GetCampaignStats(ctx context.Context, campaignID uuid.UUID) (CampaignStats, error) {
	campaign, err := s.GetCampaignByID(ctx, campaignID)
	if err != nil {
		return CampaignStats{}, err
	}

	var totals struct {
		TotalRaisedMinor int64 `db:"total_raised_minor"`
		DonationCount    int   `db:"donation_count"`
		DonorCount       int   `db:"donor_count"`
		PendingCount     int   `db:"pending_count"`
	}
	if err := s.db.GetContext(ctx, &totals, sqlGetCampaignTotals, campaignID, campaign.Currency); err != nil {
		s.logger.Error(ctx, "failed to get campaign totals", err)
		return CampaignStats{}, fmt.Errorf("failed to get campaign totals: %w", err)
	}

	var tiers []TierCount
	if err := s.db.SelectContext(ctx, &tiers, sqlGetCampaignTierBreakdown, campaignID); err != nil {
		s.logger.Error(ctx, "failed to get campaign tier breakdown", err)
		return CampaignStats{}, fmt.Errorf("failed to get campaign tier breakdown: %w", err)
	}

	var kinds []struct {
		Kind  string `db:"kind"`
		Total int64  `db:"total"`
	}
	if err := s.db.SelectContext(ctx, &kinds, sqlGetCampaignKindBreakdown, campaignID, campaign.Currency); err != nil {
		s.logger.Error(ctx, "failed to get campaign kind breakdown", err)
		return CampaignStats{}, fmt.Errorf("failed to get campaign kind breakdown: %w", err)
	}

	stats := CampaignStats{
		CampaignID:       campaign.ID,
		Currency:         campaign.Currency,
		GoalMinor:        campaign.GoalMinor,
		TotalRaisedMinor: totals.TotalRaisedMinor,
		DonationCount:    totals.DonationCount,
		DonorCount:       totals.DonorCount,
		PendingCount:     totals.PendingCount,
		ByTier:           make(map[string]int, len(tiers)),
		ByKind:           make(map[string]int64, len(kinds)),
	}
	for _, t := range tiers {
		stats.ByTier[t.Tier] = t.DonorCount
	}
	for _, k := range kinds {
		stats.ByKind[k.Kind] = k.Total
	}
	return stats, nil
}
