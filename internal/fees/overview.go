// Package fees derives the trainer fee, cash sales and payable balance of an
// event from its tickets.
package fees

import (
	"eventfin/internal/core"
)

// ComputeOverview returns the EventOverview for the given tickets.
//
// The trainer fee here is the per-line amount PriceTotal*TrainerFeePct,
// without the quantity factor used by tickets.Aggregate; the dashboard shows
// both figures side by side. Cash sales sum PriceTotal of cash tickets, also
// without quantity.
//
// The commission is carried on the result but does not affect balance or
// payable. A nil commission is treated as zero.
func ComputeOverview(tickets []core.Ticket, commission *core.Commission) core.EventOverview {
	var ov core.EventOverview
	if commission != nil {
		ov.Commission = *commission
	}

	for _, t := range tickets {
		ov.TrainerFee = ov.TrainerFee.Add(t.PriceTotal.Mul(t.TrainerFeePct))
		if t.IsCash() {
			ov.CashSales = ov.CashSales.Add(t.PriceTotal)
		}
	}

	ov.Balance = ov.TrainerFee.Sub(ov.CashSales)
	// Payable is the balance until commissions are folded in.
	ov.PayableToTrainer = ov.Balance
	return ov
}
