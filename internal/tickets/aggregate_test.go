package tickets

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventfin/internal/core"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestAggregate_Empty(t *testing.T) {
	rows := Aggregate(nil)
	require.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestAggregate_SingleCashTicket(t *testing.T) {
	rows := Aggregate([]core.Ticket{{
		Attendance:    "A",
		PaymentMethod: "Cash",
		UnitPrice:     dec("50"),
		PriceTotal:    dec("100"),
		TrainerFeePct: dec("0.5"),
		Quantity:      2,
	}})

	require.Len(t, rows, 1)
	r := rows[0]
	assert.Equal(t, core.GroupKey{Attendance: "A", PaymentMethod: "Cash"}, r.GroupKey)
	assert.Equal(t, int64(2), r.SumQuantity)
	assert.True(t, r.SumPriceTotal.Equal(dec("200")), "sumPriceTotal=%s", r.SumPriceTotal)
	assert.True(t, r.SumTrainerFee.Equal(dec("100")), "sumTrainerFee=%s", r.SumTrainerFee)
}

func TestAggregate_MergesEqualKeysAndKeepsFirstRepresentative(t *testing.T) {
	in := []core.Ticket{
		{Attendance: "Onsite", PaymentMethod: "Card", TierLevel: "Early", UnitPrice: dec("10"), PriceTotal: dec("10"), TrainerFeePct: dec("0.4"), Quantity: 1},
		{Attendance: "Onsite ", PaymentMethod: "Card", TierLevel: "Early", UnitPrice: dec("12"), PriceTotal: dec("24"), TrainerFeePct: dec("0.5"), Quantity: 2},
	}
	rows := Aggregate(in)

	require.Len(t, rows, 1)
	r := rows[0]
	assert.True(t, r.UnitPrice.Equal(dec("10")))
	assert.True(t, r.PriceTotal.Equal(dec("10")))
	assert.True(t, r.TrainerFeePct.Equal(dec("0.4")))
	assert.Equal(t, int64(3), r.SumQuantity)
	// 10*1 + 24*2
	assert.True(t, r.SumPriceTotal.Equal(dec("58")), "got %s", r.SumPriceTotal)
	// 10*1*0.4 + 24*2*0.5
	assert.True(t, r.SumTrainerFee.Equal(dec("28")), "got %s", r.SumTrainerFee)
}

func TestAggregate_SortOrder(t *testing.T) {
	in := []core.Ticket{
		{Attendance: "Online", PaymentMethod: "Card", Quantity: 1},
		{Attendance: "Onsite", PaymentMethod: "Cash", TierLevel: "B", Quantity: 1},
		{Attendance: "Onsite", PaymentMethod: "", Quantity: 1},
		{Attendance: "Onsite", PaymentMethod: "Cash", TierLevel: "A", Quantity: 1},
		{Attendance: "Online", PaymentMethod: "Card", Quantity: 1},
	}
	rows := Aggregate(in)

	want := []core.GroupKey{
		{Attendance: "Online", PaymentMethod: "Card"},
		{Attendance: "Onsite"},
		{Attendance: "Onsite", PaymentMethod: "Cash", TierLevel: "A"},
		{Attendance: "Onsite", PaymentMethod: "Cash", TierLevel: "B"},
	}
	got := make([]core.GroupKey, len(rows))
	for i, r := range rows {
		got[i] = r.GroupKey
	}
	assert.Equal(t, want, got)
	assert.Equal(t, int64(2), rows[0].SumQuantity)
}

func TestAggregate_DoesNotMutateInput(t *testing.T) {
	in := []core.Ticket{
		{Attendance: " B ", PaymentMethod: " Cash", PriceTotal: dec("5"), Quantity: 3},
		{Attendance: "A", PriceTotal: dec("2"), Quantity: 1},
	}
	before := append([]core.Ticket(nil), in...)
	_ = Aggregate(in)
	assert.Equal(t, before, in)
}

func TestAggregate_QuantityIsConservedAndOrderIndependent(t *testing.T) {
	attendances := []string{"Onsite", "Online", "Replay"}
	methods := []string{"", "Cash", "Card"}
	tiers := []string{"", "Early", "Regular"}

	rng := rand.New(rand.NewSource(42))
	in := make([]core.Ticket, 200)
	var wantQty int64
	for i := range in {
		in[i] = core.Ticket{
			Attendance:    attendances[rng.Intn(len(attendances))],
			PaymentMethod: methods[rng.Intn(len(methods))],
			TierLevel:     tiers[rng.Intn(len(tiers))],
			PriceTotal:    decimal.NewFromInt(int64(rng.Intn(500))),
			TrainerFeePct: decimal.New(int64(rng.Intn(100)), -2),
			Quantity:      int64(1 + rng.Intn(5)),
		}
		wantQty += in[i].Quantity
	}

	rows := Aggregate(in)
	totals := Totals(rows)
	assert.Equal(t, wantQty, totals.Quantity)

	shuffled := append([]core.Ticket(nil), in...)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	other := Totals(Aggregate(shuffled))

	assert.Equal(t, totals.Quantity, other.Quantity)
	assert.True(t, totals.PriceTotal.Equal(other.PriceTotal))
	assert.True(t, totals.TrainerFee.Equal(other.TrainerFee))

	keys := func(rs []core.SummaryRow) []core.GroupKey {
		out := make([]core.GroupKey, len(rs))
		for i, r := range rs {
			out[i] = r.GroupKey
		}
		return out
	}
	assert.Equal(t, keys(rows), keys(Aggregate(shuffled)))
}

func TestTotals(t *testing.T) {
	rows := []core.SummaryRow{
		{SumQuantity: 2, SumPriceTotal: dec("200"), SumTrainerFee: dec("100")},
		{SumQuantity: 1, SumPriceTotal: dec("30.50"), SumTrainerFee: dec("12.20")},
	}
	got := Totals(rows)
	assert.Equal(t, int64(3), got.Quantity)
	assert.True(t, got.PriceTotal.Equal(dec("230.5")))
	assert.True(t, got.TrainerFee.Equal(dec("112.2")))

	zero := Totals(nil)
	assert.True(t, zero.PriceTotal.IsZero())
}
