package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const sqlGetDonorProfile = `
SELECT user_id, email, display_name, total_donated_minor, currency, donation_count, is_recurring_donor,
       preferred_payment_method, donation_frequency, last_donation_at, donation_tier,
       anonymous_by_default, created_at, updated_at
FROM donor_profiles
WHERE user_id = $1
`

// GetDonorProfile retrieves a donor's profile. Donors without a completed donation have none.
func (s *Store) GetDonorProfile(ctx context.Context, userID uuid.UUID) (DonorProfile, error) {
	var profile DonorProfile
	err := s.db.GetContext(ctx, &profile, sqlGetDonorProfile, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DonorProfile{}, ErrNotFound
		}
		return DonorProfile{}, fmt.Errorf("failed to get donor profile: %w", err)
	}
	return profile, nil
}

// UpdateDonorTier sets the stored tier of an existing profile
func (s *Store) UpdateDonorTier(ctx context.Context, userID uuid.UUID, tier string) error {
	result, err := s.db.ExecContext(ctx, sqlSetProfileTier, userID, tier)
	if err != nil {
		return fmt.Errorf("failed to update donor tier: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}
