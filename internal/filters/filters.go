// Package filters holds the donation list filter state and its canonical form. Two filter
// states that mean the same thing always render the same cache key and request parameters.
package filters

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"charity-server/internal/querycache"

	"github.com/shopspring/decimal"
)

const (
	DefaultPage    = 1
	DefaultLimit   = 20
	MaxLimit       = 100
	DefaultSortBy  = SortDonatedAt
	DefaultSortDir = SortDesc

	dateLayout = "2006-01-02"
)

// Sort keys
const (
	SortDonatedAt = "donated_at"
	SortAmount    = "amount"
	SortDonor     = "donor"
)

// Sort directions
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// Period presets. PeriodAll is the default and is never rendered.
const (
	PeriodAll      = "all"
	PeriodToday    = "today"
	Period7Days    = "7d"
	Period30Days   = "30d"
	Period90Days   = "90d"
	PeriodThisYear = "year"
)

var (
	validPeriods = []string{PeriodAll, PeriodToday, Period7Days, Period30Days, Period90Days, PeriodThisYear}
	validSorts   = []string{SortDonatedAt, SortAmount, SortDonor}

	ValidStatuses       = []string{"pending", "completed", "failed"}
	ValidTypes          = []string{"one_time", "recurring", "in_kind"}
	ValidPaymentMethods = []string{"card", "bank_transfer", "paypal", "check", "cash", "other"}
)

// ValidationError reports a filter parameter that cannot be honoured.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid filter %s: %s", e.Field, e.Reason)
}

// FilterState is the full set of list criteria. Zero values mean "not set".
type FilterState struct {
	Period         string
	From           *time.Time
	To             *time.Time
	MinAmount      *decimal.Decimal
	MaxAmount      *decimal.Decimal
	Currencies     []string
	PaymentMethods []string
	Types          []string
	Statuses       []string
	Search         string
	SortBy         string
	SortDir        string
	Page           int
	Limit          int
}

// Canonical returns the normalized form: defaults filled in, enum values lowercased,
// currency codes uppercased, sets sorted and de-duplicated, search whitespace collapsed.
func (f FilterState) Canonical() FilterState {
	c := FilterState{
		Period:         strings.ToLower(strings.TrimSpace(f.Period)),
		From:           truncateDate(f.From),
		To:             truncateDate(f.To),
		MinAmount:      f.MinAmount,
		MaxAmount:      f.MaxAmount,
		Currencies:     normalizeSet(f.Currencies, strings.ToUpper),
		PaymentMethods: normalizeSet(f.PaymentMethods, strings.ToLower),
		Types:          normalizeSet(f.Types, strings.ToLower),
		Statuses:       normalizeSet(f.Statuses, strings.ToLower),
		Search:         strings.Join(strings.Fields(f.Search), " "),
		SortBy:         strings.ToLower(strings.TrimSpace(f.SortBy)),
		SortDir:        strings.ToLower(strings.TrimSpace(f.SortDir)),
		Page:           f.Page,
		Limit:          f.Limit,
	}
	if c.Period == "" {
		c.Period = PeriodAll
	}
	if c.SortBy == "" {
		c.SortBy = DefaultSortBy
	}
	if c.SortDir == "" {
		c.SortDir = DefaultSortDir
	}
	if c.Page < 1 {
		c.Page = DefaultPage
	}
	if c.Limit < 1 {
		c.Limit = DefaultLimit
	}
	if c.Limit > MaxLimit {
		c.Limit = MaxLimit
	}
	return c
}

// Validate checks enum membership and range consistency of the canonical form.
func (f FilterState) Validate() error {
	c := f.Canonical()
	if !slices.Contains(validPeriods, c.Period) {
		return &ValidationError{Field: "period", Reason: fmt.Sprintf("unknown period %q", c.Period)}
	}
	if c.Period != PeriodAll && (c.From != nil || c.To != nil) {
		return &ValidationError{Field: "period", Reason: "cannot combine a period preset with from/to"}
	}
	if c.From != nil && c.To != nil && c.To.Before(*c.From) {
		return &ValidationError{Field: "to", Reason: "must not be before from"}
	}
	if c.MinAmount != nil && c.MinAmount.IsNegative() {
		return &ValidationError{Field: "min_amount", Reason: "must not be negative"}
	}
	if c.MinAmount != nil && c.MaxAmount != nil && c.MaxAmount.LessThan(*c.MinAmount) {
		return &ValidationError{Field: "max_amount", Reason: "must not be less than min_amount"}
	}
	for _, check := range []struct {
		field   string
		values  []string
		allowed []string
	}{
		{"payment_method", c.PaymentMethods, ValidPaymentMethods},
		{"type", c.Types, ValidTypes},
		{"status", c.Statuses, ValidStatuses},
	} {
		for _, v := range check.values {
			if !slices.Contains(check.allowed, v) {
				return &ValidationError{Field: check.field, Reason: fmt.Sprintf("unknown value %q", v)}
			}
		}
	}
	for _, cur := range c.Currencies {
		if len(cur) != 3 {
			return &ValidationError{Field: "currency", Reason: fmt.Sprintf("unknown currency %q", cur)}
		}
	}
	if !slices.Contains(validSorts, c.SortBy) {
		return &ValidationError{Field: "sort_by", Reason: fmt.Sprintf("unknown sort key %q", c.SortBy)}
	}
	if c.SortDir != SortAsc && c.SortDir != SortDesc {
		return &ValidationError{Field: "sort_dir", Reason: "must be asc or desc"}
	}
	return nil
}

// Query renders the canonical state as request parameters, omitting every default.
func (f FilterState) Query() url.Values {
	c := f.Canonical()
	q := c.criteria()
	if c.Page != DefaultPage {
		q.Set("page", strconv.Itoa(c.Page))
	}
	return q
}

// criteria is everything except the page number.
func (f FilterState) criteria() url.Values {
	q := url.Values{}
	if f.Period != PeriodAll {
		q.Set("period", f.Period)
	}
	if f.From != nil {
		q.Set("from", f.From.Format(dateLayout))
	}
	if f.To != nil {
		q.Set("to", f.To.Format(dateLayout))
	}
	if f.MinAmount != nil {
		q.Set("min_amount", f.MinAmount.String())
	}
	if f.MaxAmount != nil {
		q.Set("max_amount", f.MaxAmount.String())
	}
	setList(q, "currency", f.Currencies)
	setList(q, "payment_method", f.PaymentMethods)
	setList(q, "type", f.Types)
	setList(q, "status", f.Statuses)
	if f.Search != "" {
		q.Set("q", f.Search)
	}
	if f.SortBy != DefaultSortBy {
		q.Set("sort_by", f.SortBy)
	}
	if f.SortDir != DefaultSortDir {
		q.Set("sort_dir", f.SortDir)
	}
	if f.Limit != DefaultLimit {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	return q
}

// Params is the canonical parameter string used inside cache keys.
func (f FilterState) Params() string {
	return f.Query().Encode()
}

// CacheKey addresses this filtered read of resource under scope.
func (f FilterState) CacheKey(resource, scope string) querycache.Key {
	return querycache.NewKey(resource, scope, f.Params())
}

// With applies mutate to a copy. If anything other than the page changed, the page resets to 1.
func (f FilterState) With(mutate func(*FilterState)) FilterState {
	before := f.Canonical()
	next := f.clone()
	mutate(&next)
	after := next.Canonical()
	if after.criteria().Encode() != before.criteria().Encode() {
		after.Page = DefaultPage
	}
	return after
}

// Offset is the number of rows to skip for the current page.
func (f FilterState) Offset() int {
	c := f.Canonical()
	return (c.Page - 1) * c.Limit
}

// DateRange resolves the period preset, or the explicit from/to, to a half-open [from, to) range.
func (f FilterState) DateRange(now time.Time) (from, to *time.Time) {
	c := f.Canonical()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	tomorrow := day.AddDate(0, 0, 1)
	start := func(t time.Time) (*time.Time, *time.Time) { return &t, &tomorrow }

	switch c.Period {
	case PeriodToday:
		return start(day)
	case Period7Days:
		return start(day.AddDate(0, 0, -6))
	case Period30Days:
		return start(day.AddDate(0, 0, -29))
	case Period90Days:
		return start(day.AddDate(0, 0, -89))
	case PeriodThisYear:
		return start(time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location()))
	}
	if c.To != nil {
		end := c.To.AddDate(0, 0, 1)
		to = &end
	}
	return c.From, to
}

func (f FilterState) clone() FilterState {
	c := f
	c.Currencies = slices.Clone(f.Currencies)
	c.PaymentMethods = slices.Clone(f.PaymentMethods)
	c.Types = slices.Clone(f.Types)
	c.Statuses = slices.Clone(f.Statuses)
	return c
}

// FromQuery parses request parameters. Set-valued parameters accept repeats and comma lists.
func FromQuery(q url.Values) (FilterState, error) {
	f := FilterState{
		Period:         q.Get("period"),
		Currencies:     getList(q, "currency"),
		PaymentMethods: getList(q, "payment_method"),
		Types:          getList(q, "type"),
		Statuses:       getList(q, "status"),
		Search:         q.Get("q"),
		SortBy:         q.Get("sort_by"),
		SortDir:        q.Get("sort_dir"),
	}

	var err error
	if f.From, err = parseDate(q, "from"); err != nil {
		return FilterState{}, err
	}
	if f.To, err = parseDate(q, "to"); err != nil {
		return FilterState{}, err
	}
	if f.MinAmount, err = parseAmount(q, "min_amount"); err != nil {
		return FilterState{}, err
	}
	if f.MaxAmount, err = parseAmount(q, "max_amount"); err != nil {
		return FilterState{}, err
	}
	if f.Page, err = parseInt(q, "page"); err != nil {
		return FilterState{}, err
	}
	if f.Limit, err = parseInt(q, "limit"); err != nil {
		return FilterState{}, err
	}
	if err := f.Validate(); err != nil {
		return FilterState{}, err
	}
	return f.Canonical(), nil
}

func normalizeSet(values []string, norm func(string) string) []string {
	var out []string
	for _, v := range values {
		v = norm(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func truncateDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	d := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

func setList(q url.Values, key string, values []string) {
	if len(values) > 0 {
		q.Set(key, strings.Join(values, ","))
	}
}

func getList(q url.Values, key string) []string {
	var out []string
	for _, raw := range q[key] {
		out = append(out, strings.Split(raw, ",")...)
	}
	return out
}

func parseDate(q url.Values, key string) (*time.Time, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, &ValidationError{Field: key, Reason: "must be a YYYY-MM-DD date"}
	}
	return &t, nil
}

func parseAmount(q url.Values, key string) (*decimal.Decimal, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, &ValidationError{Field: key, Reason: "must be a decimal amount"}
	}
	return &d, nil
}

func parseInt(q url.Values, key string) (int, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, &ValidationError{Field: key, Reason: "must be a positive integer"}
	}
	return n, nil
}
