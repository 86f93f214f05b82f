package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const donationColumns = `id, donor_id, donor_email, campaign_id, amount_minor, currency, kind, payment_method,
	selected_tier, status, external_ref, payment_ref, failure_reason, is_anonymous, tax_deductible,
	note, admin_note, acknowledged, donated_at, created_at, updated_at`

// CreateDonationParams represents parameters for recording a donation intent
type CreateDonationParams struct {
	DonorID       uuid.UUID
	DonorEmail    *string
	CampaignID    uuid.UUID
	AmountMinor   int64
	Currency      string
	Kind          string
	PaymentMethod string
	SelectedTier  *string
	IsAnonymous   bool
	TaxDeductible bool
	Note          *string
}

const sqlCreateDonation = `
INSERT INTO donations (donor_id, donor_email, campaign_id, amount_minor, currency, kind, payment_method,
                       selected_tier, is_anonymous, tax_deductible, note, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'pending')
RETURNING ` + donationColumns

// CreateDonation inserts a pending donation
func (s *Store) CreateDonation(ctx context.Context, params CreateDonationParams) (Donation, error) {
	var donation Donation
	err := s.db.GetContext(ctx, &donation, sqlCreateDonation,
		params.DonorID, params.DonorEmail, params.CampaignID, params.AmountMinor, params.Currency,
		params.Kind, params.PaymentMethod, params.SelectedTier, params.IsAnonymous, params.TaxDeductible,
		params.Note)
	if err != nil {
		return Donation{}, fmt.Errorf("failed to create donation: %w", err)
	}
	return donation, nil
}

const sqlGetDonationByID = `SELECT ` + donationColumns + ` FROM donations WHERE id = $1`

// GetDonationByID retrieves a donation by ID
func (s *Store) GetDonationByID(ctx context.Context, id uuid.UUID) (Donation, error) {
	var donation Donation
	err := s.db.GetContext(ctx, &donation, sqlGetDonationByID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Donation{}, ErrNotFound
		}
		return Donation{}, fmt.Errorf("failed to get donation: %w", err)
	}
	return donation, nil
}

const sqlGetDonationByExternalRef = `SELECT ` + donationColumns + ` FROM donations WHERE external_ref = $1`

// GetDonationByExternalRef retrieves a donation by its payment session reference
func (s *Store) GetDonationByExternalRef(ctx context.Context, ref string) (Donation, error) {
	var donation Donation
	err := s.db.GetContext(ctx, &donation, sqlGetDonationByExternalRef, ref)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Donation{}, ErrNotFound
		}
		return Donation{}, fmt.Errorf("failed to get donation by external ref: %w", err)
	}
	return donation, nil
}

const sqlSetDonationExternalRef = `
UPDATE donations
SET external_ref = $2, updated_at = NOW()
WHERE id = $1 AND status = 'pending' AND external_ref IS NULL
`

// SetDonationExternalRef attaches the checkout session reference to a pending donation
func (s *Store) SetDonationExternalRef(ctx context.Context, id uuid.UUID, ref string) error {
	result, err := s.db.ExecContext(ctx, sqlSetDonationExternalRef, id, ref)
	if err != nil {
		return fmt.Errorf("failed to set donation external ref: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrConflict
	}
	return nil
}

// CompleteDonationParams represents a confirmed payment
type CompleteDonationParams struct {
	ExternalRef string
	PaymentRef  *string
	// Classify derives the donor tier from the recomputed total and any active override.
	Classify func(totalMinor int64, override *string) string
}

// CompleteDonationResult is the outcome of CompleteDonation
type CompleteDonationResult struct {
	Donation         Donation
	Profile          DonorProfile
	// PreviousTier is the donor's tier before this completion was applied.
	PreviousTier     string
	AlreadyCompleted bool
}

// TierChanged reports whether the completion moved the donor to another tier.
func (r CompleteDonationResult) TierChanged() bool {
	return !r.AlreadyCompleted && r.PreviousTier != r.Profile.DonationTier
}

const sqlLockDonor = `SELECT pg_advisory_xact_lock(hashtext($1::text))`

const sqlMarkDonationCompleted = `
UPDATE donations
SET status = 'completed', payment_ref = COALESCE($2, payment_ref), donated_at = NOW(), updated_at = NOW()
WHERE external_ref = $1 AND status = 'pending'
RETURNING ` + donationColumns

const sqlRecomputeDonorProfile = `
INSERT INTO donor_profiles (user_id, email, currency, total_donated_minor, donation_count,
                            is_recurring_donor, preferred_payment_method, last_donation_at)
SELECT $1, $2, $3,
       COALESCE(SUM(amount_minor), 0), COUNT(*),
       COALESCE(BOOL_OR(kind = 'recurring'), FALSE), $4, MAX(donated_at)
FROM donations
WHERE donor_id = $1 AND status = 'completed' AND currency = $3
ON CONFLICT (user_id) DO UPDATE
SET email = COALESCE(EXCLUDED.email, donor_profiles.email),
    total_donated_minor = EXCLUDED.total_donated_minor,
    donation_count = EXCLUDED.donation_count,
    is_recurring_donor = EXCLUDED.is_recurring_donor,
    preferred_payment_method = EXCLUDED.preferred_payment_method,
    last_donation_at = EXCLUDED.last_donation_at,
    updated_at = NOW()
RETURNING user_id, email, display_name, total_donated_minor, currency, donation_count, is_recurring_donor,
          preferred_payment_method, donation_frequency, last_donation_at, donation_tier,
          anonymous_by_default, created_at, updated_at`

const sqlGetOverrideTier = `SELECT tier FROM tier_overrides WHERE donor_id = $1`

const sqlSetProfileTier = `UPDATE donor_profiles SET donation_tier = $2, updated_at = NOW() WHERE user_id = $1`

// CompleteDonation transitions the pending donation with the given external reference to
// completed and recomputes the donor's profile from all completed donations. Confirming an
// already completed donation changes nothing and reports AlreadyCompleted.
func (s *Store) CompleteDonation(ctx context.Context, params CompleteDonationParams) (CompleteDonationResult, error) {
	existing, err := s.GetDonationByExternalRef(ctx, params.ExternalRef)
	if err != nil {
		return CompleteDonationResult{}, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.Error(ctx, "failed to begin transaction", err)
		return CompleteDonationResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error(ctx, "failed to rollback transaction", rbErr)
		}
	}()

	if _, err := tx.ExecContext(ctx, sqlLockDonor, existing.DonorID.String()); err != nil {
		return CompleteDonationResult{}, fmt.Errorf("failed to lock donor: %w", err)
	}

	var donation Donation
	err = tx.GetContext(ctx, &donation, sqlMarkDonationCompleted, params.ExternalRef, params.PaymentRef)
	if errors.Is(err, sql.ErrNoRows) {
		return s.settledCompletion(ctx, params.ExternalRef)
	}
	if err != nil {
		return CompleteDonationResult{}, fmt.Errorf("failed to mark donation completed: %w", err)
	}

	var profile DonorProfile
	err = tx.GetContext(ctx, &profile, sqlRecomputeDonorProfile,
		donation.DonorID, donation.DonorEmail, donation.Currency, donation.PaymentMethod)
	if err != nil {
		return CompleteDonationResult{}, fmt.Errorf("failed to recompute donor profile: %w", err)
	}

	var override *string
	var tier string
	err = tx.GetContext(ctx, &tier, sqlGetOverrideTier, donation.DonorID)
	switch {
	case err == nil:
		override = &tier
	case !errors.Is(err, sql.ErrNoRows):
		return CompleteDonationResult{}, fmt.Errorf("failed to get tier override: %w", err)
	}

	previousTier := profile.DonationTier
	if params.Classify != nil {
		profile.DonationTier = params.Classify(profile.TotalDonatedMinor, override)
		if _, err := tx.ExecContext(ctx, sqlSetProfileTier, profile.UserID, profile.DonationTier); err != nil {
			return CompleteDonationResult{}, fmt.Errorf("failed to update donor tier: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error(ctx, "failed to commit transaction", err)
		return CompleteDonationResult{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return CompleteDonationResult{Donation: donation, Profile: profile, PreviousTier: previousTier}, nil
}

// settledCompletion reports on a donation that was no longer pending when confirmation arrived.
func (s *Store) settledCompletion(ctx context.Context, ref string) (CompleteDonationResult, error) {
	current, err := s.GetDonationByExternalRef(ctx, ref)
	if err != nil {
		return CompleteDonationResult{}, err
	}
	if current.Status != DonationStatusCompleted {
		return CompleteDonationResult{Donation: current}, ErrConflict
	}
	profile, err := s.GetDonorProfile(ctx, current.DonorID)
	if err != nil {
		return CompleteDonationResult{}, err
	}
	return CompleteDonationResult{Donation: current, Profile: profile, PreviousTier: profile.DonationTier, AlreadyCompleted: true}, nil
}

const sqlFailDonationByID = `
UPDATE donations
SET status = 'failed', failure_reason = $2, updated_at = NOW()
WHERE id = $1 AND status = 'pending'
RETURNING ` + donationColumns

const sqlFailDonationByExternalRef = `
UPDATE donations
SET status = 'failed', failure_reason = $2, updated_at = NOW()
WHERE external_ref = $1 AND status = 'pending'
RETURNING ` + donationColumns

// FailDonationByID marks a pending donation failed. changed is false when it was already failed;
// a completed donation yields ErrConflict.
func (s *Store) FailDonationByID(ctx context.Context, id uuid.UUID, reason string) (Donation, bool, error) {
	var donation Donation
	err := s.db.GetContext(ctx, &donation, sqlFailDonationByID, id, reason)
	if err == nil {
		return donation, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Donation{}, false, fmt.Errorf("failed to mark donation failed: %w", err)
	}
	current, err := s.GetDonationByID(ctx, id)
	if err != nil {
		return Donation{}, false, err
	}
	return settledFailure(current)
}

// FailDonationByExternalRef is FailDonationByID addressed by payment session reference.
func (s *Store) FailDonationByExternalRef(ctx context.Context, ref, reason string) (Donation, bool, error) {
	var donation Donation
	err := s.db.GetContext(ctx, &donation, sqlFailDonationByExternalRef, ref, reason)
	if err == nil {
		return donation, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Donation{}, false, fmt.Errorf("failed to mark donation failed: %w", err)
	}
	current, err := s.GetDonationByExternalRef(ctx, ref)
	if err != nil {
		return Donation{}, false, err
	}
	return settledFailure(current)
}

func settledFailure(current Donation) (Donation, bool, error) {
	if current.Status == DonationStatusFailed {
		return current, false, nil
	}
	return current, false, ErrConflict
}

const sqlListStalePendingDonations = `
SELECT ` + donationColumns + `
FROM donations
WHERE status = 'pending' AND created_at < $1 AND payment_method = ANY($2)
ORDER BY created_at
LIMIT $3`

// ListStalePendingDonations returns pending donations paid by one of methods and created
// before cutoff, oldest first
func (s *Store) ListStalePendingDonations(ctx context.Context, cutoff time.Time, methods []string, limit int) ([]Donation, error) {
	var donations []Donation
	err := s.db.SelectContext(ctx, &donations, sqlListStalePendingDonations, cutoff, methods, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale pending donations: %w", err)
	}
	return donations, nil
}

// UpdateDonationAdminParams represents the fields an admin may change on a settled donation
type UpdateDonationAdminParams struct {
	AdminNote    *string
	Acknowledged *bool
}

const sqlUpdateDonationAdmin = `
UPDATE donations
SET admin_note = COALESCE($2, admin_note),
    acknowledged = COALESCE($3, acknowledged),
    updated_at = NOW()
WHERE id = $1 AND status IN ('completed', 'failed')
RETURNING ` + donationColumns

// UpdateDonationAdmin edits admin fields of a terminal donation; pending donations yield ErrConflict
func (s *Store) UpdateDonationAdmin(ctx context.Context, id uuid.UUID, params UpdateDonationAdminParams) (Donation, error) {
	var donation Donation
	err := s.db.GetContext(ctx, &donation, sqlUpdateDonationAdmin, id, params.AdminNote, params.Acknowledged)
	if err == nil {
		return donation, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Donation{}, fmt.Errorf("failed to update donation: %w", err)
	}
	if _, err := s.GetDonationByID(ctx, id); err != nil {
		return Donation{}, err
	}
	return Donation{}, ErrConflict
}

// ListDonationsParams represents list criteria, already translated to column values
type ListDonationsParams struct {
	DonorID        *uuid.UUID
	CampaignID     *uuid.UUID
	Statuses       []string
	Kinds          []string
	PaymentMethods []string
	Currencies     []string
	From           *time.Time
	To             *time.Time
	MinAmountMinor *int64
	MaxAmountMinor *int64
	Search         string
	SortBy         string
	SortDesc       bool
	Limit          int
	Offset         int
}

// ListDonationsResult represents a page of donations and the total number of matches
type ListDonationsResult struct {
	Donations  []Donation
	TotalCount int64
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes every character of term match literally in a LIKE pattern.
func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}

var donationSortColumns = map[string]string{
	"donated_at": "COALESCE(donated_at, created_at)",
	"amount":     "amount_minor",
	"donor":      "donor_email",
}

// ListDonations retrieves donations with filters and pagination
func (s *Store) ListDonations(ctx context.Context, params ListDonationsParams) (ListDonationsResult, error) {
	var where []string
	var args []interface{}
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if params.DonorID != nil {
		add("donor_id = $%d", *params.DonorID)
	}
	if params.CampaignID != nil {
		add("campaign_id = $%d", *params.CampaignID)
	}
	if len(params.Statuses) > 0 {
		add("status = ANY($%d)", params.Statuses)
	}
	if len(params.Kinds) > 0 {
		add("kind = ANY($%d)", params.Kinds)
	}
	if len(params.PaymentMethods) > 0 {
		add("payment_method = ANY($%d)", params.PaymentMethods)
	}
	if len(params.Currencies) > 0 {
		add("currency = ANY($%d)", params.Currencies)
	}
	if params.From != nil {
		add("COALESCE(donated_at, created_at) >= $%d", *params.From)
	}
	if params.To != nil {
		add("COALESCE(donated_at, created_at) < $%d", *params.To)
	}
	if params.MinAmountMinor != nil {
		add("amount_minor >= $%d", *params.MinAmountMinor)
	}
	if params.MaxAmountMinor != nil {
		add("amount_minor <= $%d", *params.MaxAmountMinor)
	}
	if params.Search != "" {
		args = append(args, "%"+escapeLike(params.Search)+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(`(donor_email ILIKE $%d ESCAPE '\' OR note ILIKE $%d ESCAPE '\')`, n, n))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var totalCount int64
	err := s.db.GetContext(ctx, &totalCount, "SELECT COUNT(*) FROM donations"+clause, args...)
	if err != nil {
		s.logger.Error(ctx, "failed to count donations", err)
		return ListDonationsResult{}, fmt.Errorf("failed to count donations: %w", err)
	}

	sortCol, ok := donationSortColumns[params.SortBy]
	if !ok {
		sortCol = donationSortColumns["donated_at"]
	}
	dir := "ASC"
	if params.SortDesc {
		dir = "DESC"
	}
	query := fmt.Sprintf("SELECT %s FROM donations%s ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d",
		donationColumns, clause, sortCol, dir, dir, len(args)+1, len(args)+2)
	args = append(args, params.Limit, params.Offset)

	donations := []Donation{}
	if err := s.db.SelectContext(ctx, &donations, query, args...); err != nil {
		s.logger.Error(ctx, "failed to list donations", err)
		return ListDonationsResult{}, fmt.Errorf("failed to list donations: %w", err)
	}

	return ListDonationsResult{Donations: donations, TotalCount: totalCount}, nil
}
