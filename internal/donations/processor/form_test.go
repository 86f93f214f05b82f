package processor

import (
	"strings"
	"testing"

	"charity-server/internal/money/currency"
	"charity-server/internal/store"
	"charity-server/internal/tiers"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLimits() Limits {
	return Limits{
		Min:       decimal.NewFromInt(1),
		Max:       decimal.NewFromInt(100000),
		Currency:  currency.USD,
		Recurring: tiers.RecurringPolicy,
	}
}

func amount(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func tier(t tiers.Tier) *tiers.Tier {
	return &t
}

func TestValidate_Rejections(t *testing.T) {
	campaignID := uuid.New()
	longNote := strings.Repeat("a", maxNoteLength+1)

	tests := []struct {
		name  string
		form  Form
		field string
	}{
		{"missing campaign", Form{Amount: amount("10")}, "campaign_id"},
		{"unknown kind", Form{CampaignID: campaignID, Kind: "pledge", Amount: amount("10")}, "kind"},
		{"missing amount", Form{CampaignID: campaignID}, "amount"},
		{"zero amount", Form{CampaignID: campaignID, Amount: amount("0")}, "amount"},
		{"negative amount", Form{CampaignID: campaignID, Amount: amount("-5")}, "amount"},
		{"below minimum", Form{CampaignID: campaignID, Amount: amount("0.50")}, "amount"},
		{"above maximum", Form{CampaignID: campaignID, Amount: amount("100000.01")}, "amount"},
		{"sub-cent amount", Form{CampaignID: campaignID, Amount: amount("10.005")}, "amount"},
		{"unknown currency", Form{CampaignID: campaignID, Amount: amount("10"), Currency: "nope"}, "currency"},
		{"foreign currency", Form{CampaignID: campaignID, Amount: amount("10"), Currency: "eur"}, "currency"},
		{"tier on one-time gift", Form{CampaignID: campaignID, SelectedTier: tier(tiers.TierGold)}, "selected_tier"},
		{"tier without amount", Form{CampaignID: campaignID, Kind: "recurring", SelectedTier: tier(tiers.TierNone)}, "selected_tier"},
		{"recurring without tier or amount", Form{CampaignID: campaignID, Kind: "recurring"}, "amount"},
		{"recurring by check", Form{CampaignID: campaignID, Kind: "recurring", Amount: amount("20"), PaymentMethod: "check"}, "payment_method"},
		{"in-kind by card", Form{CampaignID: campaignID, Kind: "in_kind", Amount: amount("20"), PaymentMethod: "card"}, "payment_method"},
		{"unknown method", Form{CampaignID: campaignID, Amount: amount("20"), PaymentMethod: "crypto"}, "payment_method"},
		{"long note", Form{CampaignID: campaignID, Amount: amount("20"), Note: &longNote}, "note"},
		{"email without domain", Form{CampaignID: campaignID, Amount: amount("20"), Email: ptr("ada@")}, "email"},
		{"email with spaces", Form{CampaignID: campaignID, Amount: amount("20"), Email: ptr("ada lovelace@example.org")}, "email"},
	}

	limits := testLimits()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := tt.form
			err := limits.Validate(&form)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestValidate_Defaults(t *testing.T) {
	limits := testLimits()

	form := Form{CampaignID: uuid.New(), Amount: amount("50"), Currency: " usd "}
	require.NoError(t, limits.Validate(&form))
	assert.Equal(t, store.DonationKindOneTime, form.Kind)
	assert.Equal(t, "USD", form.Currency)
	assert.Equal(t, store.PaymentMethodCard, form.PaymentMethod)

	inKind := Form{CampaignID: uuid.New(), Kind: "IN_KIND", Amount: amount("200")}
	require.NoError(t, limits.Validate(&inKind))
	assert.Equal(t, store.DonationKindInKind, inKind.Kind)
	assert.Equal(t, store.PaymentMethodOther, inKind.PaymentMethod)

	blank := "   "
	withBlankNote := Form{CampaignID: uuid.New(), Amount: amount("5"), Note: &blank, Email: &blank}
	require.NoError(t, limits.Validate(&withBlankNote))
	assert.Nil(t, withBlankNote.Note)
	assert.Nil(t, withBlankNote.Email)

	padded := Form{CampaignID: uuid.New(), Amount: amount("5"), Email: ptr(" ada@example.org ")}
	require.NoError(t, limits.Validate(&padded))
	assert.Equal(t, "ada@example.org", *padded.Email)
}

func TestValidate_TierWinsOverCustomAmount(t *testing.T) {
	limits := testLimits()
	form := Form{
		CampaignID:   uuid.New(),
		Kind:         store.DonationKindRecurring,
		Amount:       amount("75"),
		SelectedTier: tier(tiers.TierGold),
	}

	require.NoError(t, limits.Validate(&form))
	assert.Nil(t, form.Amount)
	assert.True(t, decimal.NewFromInt(100).Equal(limits.FinalAmount(form)))
}

func TestFinalAmount(t *testing.T) {
	limits := testLimits()

	assert.True(t, decimal.NewFromInt(10).Equal(limits.FinalAmount(Form{SelectedTier: tier(tiers.TierBronze)})))
	assert.True(t, decimal.NewFromInt(250).Equal(limits.FinalAmount(Form{SelectedTier: tier(tiers.TierPlatinum), Amount: amount("3")})))
	assert.True(t, decimal.RequireFromString("12.34").Equal(limits.FinalAmount(Form{Amount: amount("12.34")})))
	assert.True(t, limits.FinalAmount(Form{}).IsZero())
}

func TestTransition(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateDraft, StateSubmitting, true},
		{StateSubmitting, StateAwaitingPayment, true},
		{StateSubmitting, StateFailed, true},
		{StateSubmitting, StateDraft, true},
		{StateAwaitingPayment, StateCompleted, true},
		{StateAwaitingPayment, StateFailed, true},
		{StateFailed, StateDraft, true},
		{StateDraft, StateCompleted, false},
		{StateCompleted, StateFailed, false},
		{StateCompleted, StateDraft, false},
		{StateFailed, StateCompleted, false},
		{StateAwaitingPayment, StateDraft, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			got, err := Transition(tt.from, tt.to)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.to, got)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition)
				assert.Equal(t, tt.from, got)
			}
		})
	}
}

func TestStateOf(t *testing.T) {
	assert.Equal(t, StateAwaitingPayment, StateOf(store.Donation{Status: store.DonationStatusPending}))
	assert.Equal(t, StateCompleted, StateOf(store.Donation{Status: store.DonationStatusCompleted}))
	assert.Equal(t, StateFailed, StateOf(store.Donation{Status: store.DonationStatusFailed}))
}
