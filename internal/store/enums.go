package store

// Donation status ENUMs
const (
	DonationStatusPending   = "pending"
	DonationStatusCompleted = "completed"
	DonationStatusFailed    = "failed"
)

// Donation kind ENUMs
const (
	DonationKindOneTime   = "one_time"
	DonationKindRecurring = "recurring"
	DonationKindInKind    = "in_kind"
)

// Payment method ENUMs
const (
	PaymentMethodCard         = "card"
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodPayPal       = "paypal"
	PaymentMethodCheck        = "check"
	PaymentMethodCash         = "cash"
	PaymentMethodOther        = "other"
)

// Failure reasons recorded on failed donations
const (
	FailureReasonGateway   = "gateway_error"
	FailureReasonDeclined  = "payment_declined"
	FailureReasonCancelled = "cancelled_by_donor"
	FailureReasonAbandoned = "payment_abandoned"
	FailureReasonExpired   = "checkout_expired"
)

// Campaign ENUMs
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusActive    = "active"
	CampaignStatusPaused    = "paused"
	CampaignStatusCompleted = "completed"
)
