package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentCash is the payment method whose line totals count as cash
// collected on site.
const PaymentCash = "Cash"

type (
	// Event is a single trainer-led event owning tickets and splits.
	Event struct {
		ID       int64
		Title    string
		Trainer  string
		Currency string // display currency code, e.g. "EUR"
		StartsAt time.Time
	}

	// Ticket is one sold line item. PaymentMethod and TierLevel are empty
	// when the source row holds NULL.
	Ticket struct {
		Attendance    string
		PaymentMethod string
		TierLevel     string
		UnitPrice     decimal.Decimal
		PriceTotal    decimal.Decimal // already aggregated for the line
		TrainerFeePct decimal.Decimal // fraction 0..1
		Quantity      int64
		Currency      string
	}

	// GroupKey identifies a SummaryRow bucket.
	GroupKey struct {
		Attendance    string
		PaymentMethod string
		TierLevel     string
	}

	// SummaryRow is one aggregation bucket. UnitPrice, PriceTotal and
	// TrainerFeePct come from the first ticket seen for the key.
	SummaryRow struct {
		GroupKey
		UnitPrice     decimal.Decimal
		PriceTotal    decimal.Decimal
		TrainerFeePct decimal.Decimal

		SumQuantity   int64
		SumPriceTotal decimal.Decimal
		SumTrainerFee decimal.Decimal
	}

	// SummaryTotals is the grand total line under a summary table.
	SummaryTotals struct {
		Quantity   int64
		PriceTotal decimal.Decimal
		TrainerFee decimal.Decimal
	}

	// Commission holds the optional per-event commission overrides.
	Commission struct {
		Grace decimal.Decimal
		Nanna decimal.Decimal
	}

	// TrainerSplit is a named share of an event payout.
	TrainerSplit struct {
		ID           int64
		Name         string
		Percent      decimal.Decimal // 0..100
		CashReceived decimal.Decimal

		// Derived by splits.Apply.
		TrainerFee decimal.Decimal
		Payable    decimal.Decimal
	}

	// EventOverview is the derived financial summary of an event.
	EventOverview struct {
		TrainerFee       decimal.Decimal
		CashSales        decimal.Decimal
		Balance          decimal.Decimal
		PayableToTrainer decimal.Decimal
		Commission       Commission
	}
)

var (
	ErrEmptyTitle      = errors.New("empty event title")
	ErrEmptyAttendance = errors.New("empty attendance")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidFeePct   = errors.New("trainer fee percentage must be between 0 and 1")
)

// NormalizeLabel trims a grouping label. NULL columns arrive as "" already,
// so the same rule covers both.
func NormalizeLabel(s string) string {
	return strings.TrimSpace(s)
}

// Key returns the normalized grouping key of the ticket.
func (t Ticket) Key() GroupKey {
	return GroupKey{
		Attendance:    NormalizeLabel(t.Attendance),
		PaymentMethod: NormalizeLabel(t.PaymentMethod),
		TierLevel:     NormalizeLabel(t.TierLevel),
	}
}

// IsCash reports whether the ticket was paid in cash.
func (t Ticket) IsCash() bool {
	return NormalizeLabel(t.PaymentMethod) == PaymentCash
}

// Less orders keys by attendance, then payment method, then tier.
func (k GroupKey) Less(o GroupKey) bool {
	if k.Attendance != o.Attendance {
		return k.Attendance < o.Attendance
	}
	if k.PaymentMethod != o.PaymentMethod {
		return k.PaymentMethod < o.PaymentMethod
	}
	return k.TierLevel < o.TierLevel
}

// Validate checks a ticket read from an untrusted source. The engine itself
// never calls it.
func (t Ticket) Validate() error {
	if NormalizeLabel(t.Attendance) == "" {
		return ErrEmptyAttendance
	}
	if t.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if t.TrainerFeePct.IsNegative() || t.TrainerFeePct.GreaterThan(decimal.NewFromInt(1)) {
		return ErrInvalidFeePct
	}
	return nil
}

func (e Event) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return ErrEmptyTitle
	}
	return nil
}
