// Package currency converts and formats amounts between the supported
// display currencies using an explicit, EUR-pivoted rate table.
//
// The default table is static configuration. Callers holding live rates
// build their own Table with NewTable or override entries with WithRate.
package currency

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	xcurrency "golang.org/x/text/currency"
	"golang.org/x/text/language"
)

// Code is an ISO 4217 currency code.
type Code string

const (
	EUR Code = "EUR"
	JPY Code = "JPY"
	USD Code = "USD"
	GBP Code = "GBP"
	AUD Code = "AUD"
	CAD Code = "CAD"
	CHF Code = "CHF"
)

// Pivot is the currency all rates are expressed against.
const Pivot = EUR

var (
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrInvalidRate         = errors.New("rate must be positive")
	ErrMissingPivot        = errors.New("rate table must contain EUR at rate 1")
)

// Descriptor holds display metadata for a currency.
type Descriptor struct {
	Symbol      string
	Locale      string // BCP 47 tag, e.g. "de-DE"
	Decimals    int32
	SymbolAfter bool // "1.234,50 €" rather than "€1,234.50"
}

// Entry is one row of a rate table.
type Entry struct {
	Code       Code
	Rate       decimal.Decimal // units of Code per 1 EUR
	Descriptor Descriptor
}

// Table maps currencies to EUR-relative rates and display descriptors.
// A Table is immutable and safe for concurrent use.
type Table struct {
	entries map[Code]Entry
	tags    map[Code]language.Tag
	order   []Code
}

var defaultEntries = []Entry{
	{Code: EUR, Rate: decimal.NewFromInt(1), Descriptor: Descriptor{Symbol: "€", Locale: "de-DE", Decimals: 2, SymbolAfter: true}},
	{Code: JPY, Rate: decimal.RequireFromString("163.5"), Descriptor: Descriptor{Symbol: "¥", Locale: "ja-JP", Decimals: 0}},
	{Code: USD, Rate: decimal.RequireFromString("1.08"), Descriptor: Descriptor{Symbol: "$", Locale: "en-US", Decimals: 2}},
	{Code: GBP, Rate: decimal.RequireFromString("0.85"), Descriptor: Descriptor{Symbol: "£", Locale: "en-GB", Decimals: 2}},
	{Code: AUD, Rate: decimal.RequireFromString("1.65"), Descriptor: Descriptor{Symbol: "A$", Locale: "en-AU", Decimals: 2}},
	{Code: CAD, Rate: decimal.RequireFromString("1.47"), Descriptor: Descriptor{Symbol: "CA$", Locale: "en-CA", Decimals: 2}},
	{Code: CHF, Rate: decimal.RequireFromString("0.95"), Descriptor: Descriptor{Symbol: "CHF", Locale: "de-CH", Decimals: 2}},
}

var builtin = mustTable(defaultEntries)

// DefaultTable returns the built-in rate table. Updating these rates
// requires a redeploy.
func DefaultTable() *Table {
	return builtin
}

func mustTable(entries []Entry) *Table {
	t, err := NewTable(entries)
	if err != nil {
		panic(fmt.Sprintf("currency: invalid default table: %v", err))
	}
	return t
}

// NewTable builds a table from entries. EUR must be present with rate 1 and
// every rate must be positive. Later entries for the same code win.
func NewTable(entries []Entry) (*Table, error) {
	t := &Table{
		entries: make(map[Code]Entry, len(entries)),
		tags:    make(map[Code]language.Tag, len(entries)),
	}
	for _, e := range entries {
		if !e.Rate.IsPositive() {
			return nil, fmt.Errorf("%s: %w", e.Code, ErrInvalidRate)
		}
		tag, err := language.Parse(e.Descriptor.Locale)
		if err != nil {
			return nil, fmt.Errorf("%s: parse locale %q: %w", e.Code, e.Descriptor.Locale, err)
		}
		if _, seen := t.entries[e.Code]; !seen {
			t.order = append(t.order, e.Code)
		}
		t.entries[e.Code] = e
		t.tags[e.Code] = tag
	}
	pivot, ok := t.entries[Pivot]
	if !ok || !pivot.Rate.Equal(decimal.NewFromInt(1)) {
		return nil, ErrMissingPivot
	}
	return t, nil
}

// WithRate returns a copy of the table with the rate of code replaced.
func (t *Table) WithRate(code Code, rate decimal.Decimal) (*Table, error) {
	e, ok := t.entries[code]
	if !ok {
		return nil, fmt.Errorf("%s: %w", code, ErrUnsupportedCurrency)
	}
	entries := t.Entries()
	for i := range entries {
		if entries[i].Code == code {
			e.Rate = rate
			entries[i] = e
		}
	}
	return NewTable(entries)
}

// Entries returns the table rows in insertion order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.order))
	for _, c := range t.order {
		out = append(out, t.entries[c])
	}
	return out
}

// Codes returns the supported codes sorted alphabetically.
func (t *Table) Codes() []Code {
	out := append([]Code(nil), t.order...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Lookup returns the entry for code.
func (t *Table) Lookup(code Code) (Entry, error) {
	e, ok := t.entries[code]
	if !ok {
		return Entry{}, fmt.Errorf("%s: %w", code, ErrUnsupportedCurrency)
	}
	return e, nil
}

// Convert converts amount from one currency to another through EUR.
func (t *Table) Convert(amount decimal.Decimal, from, to Code) (decimal.Decimal, error) {
	src, err := t.Lookup(from)
	if err != nil {
		return decimal.Zero, err
	}
	dst, err := t.Lookup(to)
	if err != nil {
		return decimal.Zero, err
	}
	if from == to {
		return amount, nil
	}

	eur := amount
	if from != Pivot {
		eur = eur.Div(src.Rate)
	}
	if to != Pivot {
		eur = eur.Mul(dst.Rate)
	}
	return eur, nil
}

// Round rounds amount to the display precision of code, half away from zero.
func (t *Table) Round(amount decimal.Decimal, code Code) (decimal.Decimal, error) {
	e, err := t.Lookup(code)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Round(e.Descriptor.Decimals), nil
}

// Parse resolves a user-supplied code, case-insensitively, against the
// currencies of the default table.
func Parse(s string) (Code, error) {
	return DefaultTable().Parse(s)
}

// Parse resolves a user-supplied code against the table.
func (t *Table) Parse(s string) (Code, error) {
	unit, err := xcurrency.ParseISO(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%q: %w", s, ErrUnsupportedCurrency)
	}
	code := Code(unit.String())
	if _, ok := t.entries[code]; !ok {
		return "", fmt.Errorf("%q: %w", s, ErrUnsupportedCurrency)
	}
	return code, nil
}
