package tiers

import (
	"errors"
	"fmt"
	"strings"

	"charity-server/internal/money/currency"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidPolicy = errors.New("invalid tier policy")
	ErrUnknownTier   = errors.New("unknown tier")
)

// Tier is a donor recognition bracket.
type Tier string

const (
	TierNone     Tier = "none"
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

// Ranked lists the tiers from lowest to highest.
var Ranked = []Tier{TierNone, TierBronze, TierSilver, TierGold, TierPlatinum}

// TierDisplayNames maps tiers to display strings
var TierDisplayNames = map[Tier]string{
	TierNone:     "Supporter",
	TierBronze:   "Bronze",
	TierSilver:   "Silver",
	TierGold:     "Gold",
	TierPlatinum: "Platinum",
}

// Rank orders tiers; none is 0 and platinum is 4. Unknown tiers rank -1.
func (t Tier) Rank() int {
	for i, r := range Ranked {
		if r == t {
			return i
		}
	}
	return -1
}

// DisplayName returns the display name for a tier
func (t Tier) DisplayName() string {
	if name, ok := TierDisplayNames[t]; ok {
		return name
	}
	return TierDisplayNames[TierNone]
}

// ParseTier accepts a tier name in any case.
func ParseTier(raw string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(raw)))
	if t.Rank() < 0 {
		return "", fmt.Errorf("%w: %q", ErrUnknownTier, raw)
	}
	return t, nil
}

// Threshold is the smallest amount, in minor units, that earns Tier.
type Threshold struct {
	Tier Tier
	Min  int64
}

// Policy is an ordered threshold table over bronze..platinum. Each tier covers
// [its threshold, next threshold), so the table has neither gaps nor overlaps.
type Policy struct {
	name       string
	currency   currency.Code
	thresholds []Threshold
}

// NewPolicy builds a policy from four major-unit thresholds (bronze, silver, gold, platinum),
// which must be positive and strictly increasing.
func NewPolicy(name string, cur currency.Code, mins []decimal.Decimal) (Policy, error) {
	paid := Ranked[1:]
	if len(mins) != len(paid) {
		return Policy{}, fmt.Errorf("%w: %s needs %d thresholds, got %d", ErrInvalidPolicy, name, len(paid), len(mins))
	}

	thresholds := make([]Threshold, len(mins))
	var prev int64
	for i, m := range mins {
		minor, err := currency.ToMinorUnits(m, cur)
		if err != nil {
			return Policy{}, fmt.Errorf("%w: %s %s threshold: %v", ErrInvalidPolicy, name, paid[i], err)
		}
		if minor <= prev {
			return Policy{}, fmt.Errorf("%w: %s thresholds must be positive and strictly increasing", ErrInvalidPolicy, name)
		}
		thresholds[i] = Threshold{Tier: paid[i], Min: minor}
		prev = minor
	}
	return Policy{name: name, currency: cur, thresholds: thresholds}, nil
}

func mustPolicy(name string, cur currency.Code, mins ...int64) Policy {
	ds := make([]decimal.Decimal, len(mins))
	for i, m := range mins {
		ds[i] = decimal.NewFromInt(m)
	}
	p, err := NewPolicy(name, cur, ds)
	if err != nil {
		panic(err)
	}
	return p
}

// RecurringPolicy classifies monthly recurring amounts. Its thresholds double as the
// amounts offered when a donor picks a tier on the donation form.
var RecurringPolicy = mustPolicy("recurring", currency.USD, 10, 50, 100, 250)

// RecurringPolicyFor rebuilds the recurring table in another settlement currency, keeping
// the same major-unit amounts.
func RecurringPolicyFor(cur currency.Code) (Policy, error) {
	if cur == RecurringPolicy.currency {
		return RecurringPolicy, nil
	}
	mins := make([]decimal.Decimal, len(RecurringPolicy.thresholds))
	for i, th := range RecurringPolicy.thresholds {
		d, err := currency.FromMinorUnits(th.Min, RecurringPolicy.currency)
		if err != nil {
			return Policy{}, err
		}
		mins[i] = d
	}
	return NewPolicy("recurring", cur, mins)
}

// Name returns the policy name.
func (p Policy) Name() string {
	return p.name
}

// Currency returns the currency thresholds are expressed in.
func (p Policy) Currency() currency.Code {
	return p.currency
}

// Thresholds returns a copy of the table, lowest tier first.
func (p Policy) Thresholds() []Threshold {
	out := make([]Threshold, len(p.thresholds))
	copy(out, p.thresholds)
	return out
}

// Classify returns the highest tier whose threshold is at most totalMinor, or TierNone.
func (p Policy) Classify(totalMinor int64) Tier {
	tier := TierNone
	for _, th := range p.thresholds {
		if totalMinor < th.Min {
			break
		}
		tier = th.Tier
	}
	return tier
}

// ClassifyAmount classifies a major-unit amount in the policy's currency.
func (p Policy) ClassifyAmount(total decimal.Decimal) (Tier, error) {
	minor, err := currency.ToMinorUnits(total.Round(scaleOf(p.currency)), p.currency)
	if err != nil {
		return TierNone, err
	}
	return p.Classify(minor), nil
}

// Amount returns the major-unit threshold of t.
func (p Policy) Amount(t Tier) (decimal.Decimal, error) {
	for _, th := range p.thresholds {
		if th.Tier == t {
			return currency.FromMinorUnits(th.Min, p.currency)
		}
	}
	return decimal.Zero, fmt.Errorf("%w: %q has no amount in the %s policy", ErrUnknownTier, t, p.name)
}

// Resolve applies an administrative override, which wins until it is cleared.
func (p Policy) Resolve(totalMinor int64, override *Tier) Tier {
	if override != nil && override.Rank() >= 0 {
		return *override
	}
	return p.Classify(totalMinor)
}

func scaleOf(c currency.Code) int32 {
	s, err := currency.Scale(c)
	if err != nil {
		return 2
	}
	return s
}
