package processor

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"charity-server/internal/money/currency"
	"charity-server/internal/store"
	"charity-server/internal/tiers"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const maxNoteLength = 1000

// fields applies the same tag rules the HTTP binding does.
var fields = validator.New()

// ValidationError names the form field that failed and why. It is raised before any
// network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Form is what a donor submits. Amount is in major units of Currency.
type Form struct {
	CampaignID    uuid.UUID
	Kind          string
	Amount        *decimal.Decimal
	Currency      string
	SelectedTier  *tiers.Tier
	PaymentMethod string
	IsAnonymous   bool
	TaxDeductible bool
	Note          *string
	Email         *string
}

// Limits bounds a single donation and carries the tier amounts offered for recurring gifts.
type Limits struct {
	Min       decimal.Decimal
	Max       decimal.Decimal
	Currency  currency.Code
	Recurring tiers.Policy
}

var (
	onlineMethods  = []string{store.PaymentMethodCard, store.PaymentMethodPayPal}
	offlineMethods = []string{store.PaymentMethodBankTransfer, store.PaymentMethodCheck, store.PaymentMethodCash, store.PaymentMethodOther}
	validKinds     = []string{store.DonationKindOneTime, store.DonationKindRecurring, store.DonationKindInKind}
)

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

// IsOnline reports whether the payment method is collected through hosted checkout.
func IsOnline(method string) bool {
	return contains(onlineMethods, method)
}

// FinalAmount is the amount that will be charged: the tier's monthly amount when a tier is
// selected, otherwise the custom amount, otherwise zero.
func (l Limits) FinalAmount(f Form) decimal.Decimal {
	if f.SelectedTier != nil {
		amount, err := l.Recurring.Amount(*f.SelectedTier)
		if err != nil {
			return decimal.Zero
		}
		return amount
	}
	if f.Amount != nil {
		return *f.Amount
	}
	return decimal.Zero
}

// Validate normalizes f in place and checks it. A selected tier wins over a custom amount,
// which is cleared.
func (l Limits) Validate(f *Form) error {
	if f.CampaignID == uuid.Nil {
		return invalid("campaign_id", "is required")
	}

	f.Kind = strings.ToLower(strings.TrimSpace(f.Kind))
	if f.Kind == "" {
		f.Kind = store.DonationKindOneTime
	}
	if !contains(validKinds, f.Kind) {
		return invalid("kind", "must be one of %s", strings.Join(validKinds, ", "))
	}

	code := currency.Normalize(f.Currency)
	if code == "" {
		code = l.Currency
	}
	if err := code.Validate(); err != nil {
		return invalid("currency", "%q is not a known currency", f.Currency)
	}
	if code != l.Currency {
		return invalid("currency", "donations are accepted in %s only", l.Currency)
	}
	f.Currency = string(code)

	if f.SelectedTier != nil {
		if f.Kind != store.DonationKindRecurring {
			return invalid("selected_tier", "tiers apply to recurring donations only")
		}
		if _, err := l.Recurring.Amount(*f.SelectedTier); err != nil {
			return invalid("selected_tier", "%q is not an offered tier", *f.SelectedTier)
		}
		f.Amount = nil
	}
	if f.SelectedTier == nil && f.Amount == nil {
		if f.Kind == store.DonationKindRecurring {
			return invalid("amount", "select a tier or enter a custom amount")
		}
		return invalid("amount", "is required")
	}

	amount := l.FinalAmount(*f)
	if !amount.IsPositive() {
		return invalid("amount", "must be positive")
	}
	if amount.LessThan(l.Min) {
		return invalid("amount", "must be at least %s", l.Min.String())
	}
	if amount.GreaterThan(l.Max) {
		return invalid("amount", "must be at most %s", l.Max.String())
	}
	if _, err := currency.ToMinorUnits(amount, code); err != nil {
		return invalid("amount", "has more decimal places than %s allows", code)
	}

	f.PaymentMethod = strings.ToLower(strings.TrimSpace(f.PaymentMethod))
	if f.PaymentMethod == "" {
		f.PaymentMethod = store.PaymentMethodCard
		if f.Kind == store.DonationKindInKind {
			f.PaymentMethod = store.PaymentMethodOther
		}
	}
	switch {
	case !IsOnline(f.PaymentMethod) && !contains(offlineMethods, f.PaymentMethod):
		return invalid("payment_method", "%q is not supported", f.PaymentMethod)
	case f.Kind == store.DonationKindRecurring && !IsOnline(f.PaymentMethod):
		return invalid("payment_method", "recurring donations must be paid by card or paypal")
	case f.Kind == store.DonationKindInKind && IsOnline(f.PaymentMethod):
		return invalid("payment_method", "in-kind donations are not paid online")
	}

	if f.Note != nil {
		note := strings.TrimSpace(*f.Note)
		if utf8.RuneCountInString(note) > maxNoteLength {
			return invalid("note", "must be at most %d characters", maxNoteLength)
		}
		if note == "" {
			f.Note = nil
		} else {
			f.Note = &note
		}
	}

	if f.Email != nil {
		email := strings.TrimSpace(*f.Email)
		if email == "" {
			f.Email = nil
		} else if err := fields.Var(email, "email"); err != nil {
			return invalid("email", "is not an email address")
		} else {
			f.Email = &email
		}
	}

	return nil
}
