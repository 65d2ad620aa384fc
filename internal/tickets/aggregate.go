// Package tickets pivots raw ticket line items into summary rows.
package tickets

import (
	"sort"

	"github.com/shopspring/decimal"

	"eventfin/internal/core"
)

// Aggregate groups tickets by (attendance, payment method, tier) and returns
// one SummaryRow per group, sorted by the same three fields.
//
// The first ticket of a group provides the representative unit price, price
// total and fee percentage. Every ticket, the first included, adds its
// quantity, PriceTotal*Quantity and PriceTotal*Quantity*TrainerFeePct to the
// group sums. The input is not modified.
func Aggregate(tickets []core.Ticket) []core.SummaryRow {
	if len(tickets) == 0 {
		return []core.SummaryRow{}
	}

	index := make(map[core.GroupKey]int, len(tickets))
	rows := make([]core.SummaryRow, 0)

	for _, t := range tickets {
		key := t.Key()
		i, ok := index[key]
		if !ok {
			rows = append(rows, core.SummaryRow{
				GroupKey:      key,
				UnitPrice:     t.UnitPrice,
				PriceTotal:    t.PriceTotal,
				TrainerFeePct: t.TrainerFeePct,
			})
			i = len(rows) - 1
			index[key] = i
		}

		qty := decimal.NewFromInt(t.Quantity)
		lineTotal := t.PriceTotal.Mul(qty)

		row := &rows[i]
		row.SumQuantity += t.Quantity
		row.SumPriceTotal = row.SumPriceTotal.Add(lineTotal)
		row.SumTrainerFee = row.SumTrainerFee.Add(lineTotal.Mul(t.TrainerFeePct))
	}

	sort.SliceStable(rows, func(a, b int) bool {
		return rows[a].GroupKey.Less(rows[b].GroupKey)
	})
	return rows
}

// Totals sums the accumulated columns of a summary table.
func Totals(rows []core.SummaryRow) core.SummaryTotals {
	var out core.SummaryTotals
	for _, r := range rows {
		out.Quantity += r.SumQuantity
		out.PriceTotal = out.PriceTotal.Add(r.SumPriceTotal)
		out.TrainerFee = out.TrainerFee.Add(r.SumTrainerFee)
	}
	return out
}
