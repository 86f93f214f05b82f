package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const sqlGetTierOverride = `
SELECT donor_id, tier, reason, set_by, created_at, updated_at
FROM tier_overrides
WHERE donor_id = $1
`

// GetTierOverride retrieves a donor's administrative tier override
func (s *Store) GetTierOverride(ctx context.Context, donorID uuid.UUID) (TierOverride, error) {
	var override TierOverride
	err := s.db.GetContext(ctx, &override, sqlGetTierOverride, donorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TierOverride{}, ErrNotFound
		}
		return TierOverride{}, fmt.Errorf("failed to get tier override: %w", err)
	}
	return override, nil
}

const sqlUpsertTierOverride = `
INSERT INTO tier_overrides (donor_id, tier, reason, set_by)
VALUES ($1, $2, $3, $4)
ON CONFLICT (donor_id) DO UPDATE
SET tier = EXCLUDED.tier, reason = EXCLUDED.reason, set_by = EXCLUDED.set_by, updated_at = NOW()
RETURNING donor_id, tier, reason, set_by, created_at, updated_at
`

// UpsertTierOverride creates or replaces a donor's tier override
func (s *Store) UpsertTierOverride(ctx context.Context, override TierOverride) (TierOverride, error) {
	var saved TierOverride
	err := s.db.GetContext(ctx, &saved, sqlUpsertTierOverride,
		override.DonorID, override.Tier, override.Reason, override.SetBy)
	if err != nil {
		return TierOverride{}, fmt.Errorf("failed to upsert tier override: %w", err)
	}
	return saved, nil
}

const sqlDeleteTierOverride = `DELETE FROM tier_overrides WHERE donor_id = $1`

// DeleteTierOverride clears a donor's tier override
func (s *Store) DeleteTierOverride(ctx context.Context, donorID uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, sqlDeleteTierOverride, donorID)
	if err != nil {
		return fmt.Errorf("failed to delete tier override: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

const sqlGetTierCounts = `
SELECT donation_tier AS tier, COUNT(*) AS donor_count
FROM donor_profiles
GROUP BY donation_tier
`

// GetTierCounts returns the number of donors per stored tier
func (s *Store) GetTierCounts(ctx context.Context) ([]TierCount, error) {
	var counts []TierCount
	if err := s.db.SelectContext(ctx, &counts, sqlGetTierCounts); err != nil {
		return nil, fmt.Errorf("failed to get tier counts: %w", err)
	}
	return counts, nil
}
