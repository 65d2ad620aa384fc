package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// SplitCheck is the outcome of validating the splits of an event.
type SplitCheck struct {
	Valid        bool
	TotalPercent decimal.Decimal
	Errors       []string
}

// EventReport is the computed financial report of one event. All monetary
// fields are expressed in Currency; SourceCurrency is the currency the
// tickets were recorded in.
type EventReport struct {
	Event          Event
	SourceCurrency string
	Currency       string
	Rows           []SummaryRow
	Totals         SummaryTotals
	Overview       EventOverview
	Splits         []TrainerSplit
	SplitCheck     SplitCheck
	GeneratedAt    time.Time
}
