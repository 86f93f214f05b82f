// Package currency converts between major-unit decimal amounts and the minor-unit
// integers used for persistence and tier comparison.
package currency

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
)

// Code is an ISO 4217 currency code such as "USD".
type Code string

const (
	USD Code = "USD"
	EUR Code = "EUR"
	GBP Code = "GBP"
	JPY Code = "JPY"
)

var (
	maxMinor = decimal.NewFromInt(math.MaxInt64)
)

// Normalize upper-cases and trims a currency code.
func Normalize(raw string) Code {
	return Code(strings.ToUpper(strings.TrimSpace(raw)))
}

func (c Code) unit() (currency.Unit, error) {
	u, err := currency.ParseISO(string(c))
	if err != nil {
		return currency.Unit{}, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, string(c))
	}
	return u, nil
}

// Validate reports whether c is a known ISO 4217 code.
func (c Code) Validate() error {
	_, err := c.unit()
	return err
}

// Scale returns the number of minor-unit digits for the currency (2 for USD, 0 for JPY).
func Scale(c Code) (int32, error) {
	u, err := c.unit()
	if err != nil {
		return 0, err
	}
	scale, _ := currency.Standard.Rounding(u)
	return int32(scale), nil
}

// ToMinorUnits converts a major-unit amount to an integer count of minor units.
func ToMinorUnits(amount decimal.Decimal, c Code) (int64, error) {
	scale, err := Scale(c)
	if err != nil {
		return 0, err
	}
	if amount.IsNegative() {
		return 0, fmt.Errorf("%w: negative amount %s", ErrInvalidAmount, amount)
	}

	shifted := amount.Shift(scale)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s has more than %d decimal places for %s", ErrInvalidAmount, amount, scale, c)
	}
	if shifted.GreaterThan(maxMinor) {
		return 0, fmt.Errorf("%w: %s overflows", ErrInvalidAmount, amount)
	}
	return shifted.IntPart(), nil
}

// FromMinorUnits is the exact inverse of ToMinorUnits.
func FromMinorUnits(minor int64, c Code) (decimal.Decimal, error) {
	scale, err := Scale(c)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.New(minor, -scale), nil
}

// ParseAmount parses user input into a decimal. NaN, infinities and exponents are rejected.
func ParseAmount(raw string, c Code) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	if strings.ContainsAny(raw, "eEnNiI") {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if _, err := ToMinorUnits(d, c); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// Format renders an amount for display in the given locale, e.g. "$ 1,250.00" or "€ 50,00".
func Format(amount decimal.Decimal, c Code, lang language.Tag) (string, error) {
	u, err := c.unit()
	if err != nil {
		return "", err
	}
	scale, _ := currency.Standard.Rounding(u)
	p := message.NewPrinter(lang)
	sym := p.Sprint(currency.Symbol(u))
	num := p.Sprint(number.Decimal(amount.Round(int32(scale)).InexactFloat64(), number.Scale(scale)))
	return sym + " " + num, nil
}
