package currency

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const nbsp = "\u00a0"

// Format renders amount in the locale convention of code, e.g. "1.234,50 €"
// for EUR or "$1,234.50" for USD. It is meant for headline figures.
func (t *Table) Format(amount decimal.Decimal, code Code) (string, error) {
	e, err := t.Lookup(code)
	if err != nil {
		return "", err
	}
	d := e.Descriptor
	rounded := amount.Round(d.Decimals)

	digits := localeDigits(message.NewPrinter(t.tags[code]), rounded.Abs(), d.Decimals)

	var b strings.Builder
	if rounded.IsNegative() {
		b.WriteString("-")
	}
	switch {
	case d.SymbolAfter:
		b.WriteString(digits + nbsp + d.Symbol)
	case isWord(d.Symbol):
		b.WriteString(d.Symbol + nbsp + digits)
	default:
		b.WriteString(d.Symbol + digits)
	}
	return b.String(), nil
}

// FormatSymbol renders amount as the symbol followed by plain digits with a
// '.' separator and no grouping, e.g. "€1234.50". It is meant for dense
// table cells and uses the same rounding as Format.
func (t *Table) FormatSymbol(amount decimal.Decimal, code Code) (string, error) {
	e, err := t.Lookup(code)
	if err != nil {
		return "", err
	}
	d := e.Descriptor
	rounded := amount.Round(d.Decimals)

	digits := rounded.Abs().StringFixed(d.Decimals)
	if rounded.IsNegative() {
		return "-" + d.Symbol + digits, nil
	}
	return d.Symbol + digits, nil
}

// localeDigits groups the integer part of a non-negative amount with the
// printer's locale and appends the fraction from the decimal itself, so no
// digit goes through float64. Integer parts beyond int64 fall back to float
// formatting.
func localeDigits(p *message.Printer, amount decimal.Decimal, places int32) string {
	whole := amount.Truncate(0)
	bi := whole.BigInt()
	if !bi.IsInt64() {
		f, _ := amount.Float64()
		return p.Sprintf("%v", number.Decimal(f, number.Scale(int(places))))
	}

	digits := p.Sprintf("%v", number.Decimal(bi.Int64()))
	if places <= 0 {
		return digits
	}
	frac := amount.Sub(whole).StringFixed(places) // "0.xx"
	return digits + decimalSeparator(p) + frac[2:]
}

// decimalSeparator returns the locale's separator between "1" and "5" in 1.5.
func decimalSeparator(p *message.Printer) string {
	s := p.Sprintf("%v", number.Decimal(1.5, number.Scale(1)))
	return strings.TrimSuffix(strings.TrimPrefix(s, "1"), "5")
}

func isWord(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
