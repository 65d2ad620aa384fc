// Package splits validates multi-party payout splits and computes what each
// party is owed.
package splits

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"eventfin/internal/core"
)

// Messages reported by Validate.
const (
	MsgNameRequired    = "name required"
	MsgNegativePercent = "percentage cannot be negative"
	MsgNegativeCash    = "cash received cannot be negative"
	MsgTotalExceeds100 = "total exceeds 100%"
)

var hundred = decimal.NewFromInt(100)

// Report is the outcome of Validate.
type Report struct {
	Valid        bool
	TotalPercent decimal.Decimal
	Errors       []string
}

// Validate checks each split and the sum of their percentages. Row errors
// come first, in row order, prefixed with the 1-based row number; the total
// error, if any, comes last. A total of exactly 100 is valid.
func Validate(splits []core.TrainerSplit) Report {
	rep := Report{Errors: []string{}}

	for i, s := range splits {
		row := i + 1
		if strings.TrimSpace(s.Name) == "" {
			rep.Errors = append(rep.Errors, rowError(row, MsgNameRequired))
		}
		if s.Percent.IsNegative() {
			rep.Errors = append(rep.Errors, rowError(row, MsgNegativePercent))
		}
		if s.CashReceived.IsNegative() {
			rep.Errors = append(rep.Errors, rowError(row, MsgNegativeCash))
		}
		rep.TotalPercent = rep.TotalPercent.Add(s.Percent)
	}

	if rep.TotalPercent.GreaterThan(hundred) {
		rep.Errors = append(rep.Errors, MsgTotalExceeds100)
	}

	rep.Valid = len(rep.Errors) == 0
	return rep
}

// Apply returns a copy of splits with TrainerFee = balance*Percent/100 and
// Payable = TrainerFee - CashReceived. It does not check validity.
func Apply(splits []core.TrainerSplit, balance decimal.Decimal) []core.TrainerSplit {
	out := make([]core.TrainerSplit, len(splits))
	for i, s := range splits {
		s.TrainerFee = balance.Mul(s.Percent).Div(hundred)
		s.Payable = s.TrainerFee.Sub(s.CashReceived)
		out[i] = s
	}
	return out
}

// Remaining returns the percentage not yet allocated, never below zero.
func Remaining(rep Report) decimal.Decimal {
	left := hundred.Sub(rep.TotalPercent)
	if left.IsNegative() {
		return decimal.Zero
	}
	return left
}

func rowError(row int, msg string) string {
	return fmt.Sprintf("row %d: %s", row, msg)
}
