package store

import (
	"time"

	"github.com/google/uuid"
)

// Donation is one payment event. Amounts are minor units of Currency.
type Donation struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	DonorID       uuid.UUID  `db:"donor_id" json:"donor_id"`
	DonorEmail    *string    `db:"donor_email" json:"donor_email,omitempty"`
	CampaignID    uuid.UUID  `db:"campaign_id" json:"campaign_id"`
	AmountMinor   int64      `db:"amount_minor" json:"amount_minor"`
	Currency      string     `db:"currency" json:"currency"`
	Kind          string     `db:"kind" json:"kind"`
	PaymentMethod string     `db:"payment_method" json:"payment_method"`
	SelectedTier  *string    `db:"selected_tier" json:"selected_tier,omitempty"`
	Status        string     `db:"status" json:"status"`
	ExternalRef   *string    `db:"external_ref" json:"external_ref,omitempty"`
	PaymentRef    *string    `db:"payment_ref" json:"payment_ref,omitempty"`
	FailureReason *string    `db:"failure_reason" json:"failure_reason,omitempty"`
	IsAnonymous   bool       `db:"is_anonymous" json:"is_anonymous"`
	TaxDeductible bool       `db:"tax_deductible" json:"tax_deductible"`
	Note          *string    `db:"note" json:"note,omitempty"`
	AdminNote     *string    `db:"admin_note" json:"admin_note,omitempty"`
	Acknowledged  bool       `db:"acknowledged" json:"acknowledged"`
	DonatedAt     *time.Time `db:"donated_at" json:"donated_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// IsTerminal reports whether the donation can no longer change status.
func (d Donation) IsTerminal() bool {
	return d.Status == DonationStatusCompleted || d.Status == DonationStatusFailed
}

// DonorProfile aggregates a donor's completed donations.
type DonorProfile struct {
	UserID                 uuid.UUID  `db:"user_id" json:"user_id"`
	Email                  *string    `db:"email" json:"email,omitempty"`
	DisplayName            *string    `db:"display_name" json:"display_name,omitempty"`
	TotalDonatedMinor      int64      `db:"total_donated_minor" json:"total_donated_minor"`
	Currency               string     `db:"currency" json:"currency"`
	DonationCount          int        `db:"donation_count" json:"donation_count"`
	IsRecurringDonor       bool       `db:"is_recurring_donor" json:"is_recurring_donor"`
	PreferredPaymentMethod *string    `db:"preferred_payment_method" json:"preferred_payment_method,omitempty"`
	DonationFrequency      *string    `db:"donation_frequency" json:"donation_frequency,omitempty"`
	LastDonationAt         *time.Time `db:"last_donation_at" json:"last_donation_at,omitempty"`
	DonationTier           string     `db:"donation_tier" json:"donation_tier"`
	AnonymousByDefault     bool       `db:"anonymous_by_default" json:"anonymous_by_default"`
	CreatedAt              time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time  `db:"updated_at" json:"updated_at"`
}

// Campaign is a fundraising campaign donations are made to.
type Campaign struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	Slug        string     `db:"slug" json:"slug"`
	Title       string     `db:"title" json:"title"`
	Description *string    `db:"description" json:"description,omitempty"`
	Currency    string     `db:"currency" json:"currency"`
	GoalMinor   int64      `db:"goal_minor" json:"goal_minor"`
	Status      string     `db:"status" json:"status"`
	StartsAt    *time.Time `db:"starts_at" json:"starts_at,omitempty"`
	EndsAt      *time.Time `db:"ends_at" json:"ends_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt   *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// CampaignStats is the read-only rollup of a campaign's completed donations.
type CampaignStats struct {
	CampaignID       uuid.UUID        `json:"campaign_id"`
	Currency         string           `json:"currency"`
	GoalMinor        int64            `json:"goal_minor"`
	TotalRaisedMinor int64            `json:"total_raised_minor"`
	DonationCount    int              `json:"donation_count"`
	DonorCount       int              `json:"donor_count"`
	PendingCount     int              `json:"pending_count"`
	ByTier           map[string]int   `json:"by_tier"`
	ByKind           map[string]int64 `json:"by_kind"`
}

// TierOverride pins a donor to a tier regardless of their total.
type TierOverride struct {
	DonorID   uuid.UUID `db:"donor_id" json:"donor_id"`
	Tier      string    `db:"tier" json:"tier"`
	Reason    *string   `db:"reason" json:"reason,omitempty"`
	SetBy     uuid.UUID `db:"set_by" json:"set_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TierCount is the number of donors currently in a tier.
type TierCount struct {
	Tier       string `db:"tier" json:"tier"`
	DonorCount int    `db:"donor_count" json:"donor_count"`
}
