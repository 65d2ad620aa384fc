package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventfin/internal/core"
	"eventfin/internal/currency"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "nested", "eventfin.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedEvent(t *testing.T, repo *SQLiteRepository, title string, startsAt time.Time) int64 {
	t.Helper()
	id, err := repo.CreateEvent(context.Background(), core.Event{
		Title:    title,
		Trainer:  "Ada",
		StartsAt: startsAt,
	})
	require.NoError(t, err)
	return id
}

func TestNewSQLiteRepository_AppliesMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eventfin.db")
	repo, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	defer repo.Close()

	require.NoError(t, repo.Ping(context.Background()))

	version, dirty, err := SchemaVersion(path)
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(2), version)

	// Re-running is a no-op.
	require.NoError(t, RunMigrations(path))
}

func TestEvents(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	older := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	newer := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	first := seedEvent(t, repo, "Spring workshop", older)
	second := seedEvent(t, repo, "Summer camp", newer)

	e, err := repo.GetEvent(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "Spring workshop", e.Title)
	assert.Equal(t, "Ada", e.Trainer)
	assert.Equal(t, "EUR", e.Currency)
	assert.True(t, older.Equal(e.StartsAt))

	events, err := repo.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, second, events[0].ID)
	assert.Equal(t, first, events[1].ID)

	_, err = repo.GetEvent(ctx, 999)
	assert.True(t, errors.Is(err, ErrEventNotFound))

	_, err = repo.CreateEvent(ctx, core.Event{Title: "  "})
	assert.ErrorIs(t, err, core.ErrEmptyTitle)
}

func TestTickets(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	id := seedEvent(t, repo, "Workshop", time.Now())

	require.NoError(t, repo.AddTicket(ctx, id, core.Ticket{
		Attendance:    "Onsite",
		PaymentMethod: "Cash",
		TierLevel:     "Early",
		UnitPrice:     dec("100"),
		PriceTotal:    dec("100"),
		TrainerFeePct: dec("0.5"),
		Quantity:      2,
	}))
	require.NoError(t, repo.AddTicket(ctx, id, core.Ticket{
		Attendance: "Online",
		PriceTotal: dec("40.25"),
		Quantity:   1,
	}))

	tickets, err := repo.ListTickets(ctx, id)
	require.NoError(t, err)
	require.Len(t, tickets, 2)

	assert.Equal(t, "Cash", tickets[0].PaymentMethod)
	assert.Equal(t, "Early", tickets[0].TierLevel)
	assert.True(t, dec("0.5").Equal(tickets[0].TrainerFeePct))
	assert.Equal(t, int64(2), tickets[0].Quantity)

	assert.Empty(t, tickets[1].PaymentMethod)
	assert.Empty(t, tickets[1].TierLevel)
	assert.True(t, dec("40.25").Equal(tickets[1].PriceTotal))
	assert.True(t, tickets[1].TrainerFeePct.IsZero())
}

func TestAddTicket_RejectsInvalidTickets(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	id := seedEvent(t, repo, "Workshop", time.Now())

	tests := []struct {
		name   string
		ticket core.Ticket
		want   error
	}{
		{"blank attendance", core.Ticket{Attendance: "  ", Quantity: 1}, core.ErrEmptyAttendance},
		{"negative quantity", core.Ticket{Attendance: "Onsite", Quantity: -3}, core.ErrInvalidQuantity},
		{"zero quantity", core.Ticket{Attendance: "Onsite"}, core.ErrInvalidQuantity},
		{"fee above one", core.Ticket{Attendance: "Onsite", Quantity: 1, TrainerFeePct: dec("7")}, core.ErrInvalidFeePct},
		{"negative fee", core.Ticket{Attendance: "Onsite", Quantity: 1, TrainerFeePct: dec("-0.1")}, core.ErrInvalidFeePct},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.AddTicket(ctx, id, tt.ticket)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	tickets, err := repo.ListTickets(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, tickets)
}

func TestTickets_MalformedNumericsBecomeZero(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	id := seedEvent(t, repo, "Workshop", time.Now())

	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO tickets (event_id, attendance, unit_price, price_total, trainer_fee_pct, quantity)
		 VALUES (?, 'Onsite', 'abc', NULL, '', 1)`, id)
	require.NoError(t, err)

	tickets, err := repo.ListTickets(ctx, id)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.True(t, tickets[0].UnitPrice.IsZero())
	assert.True(t, tickets[0].PriceTotal.IsZero())
	assert.True(t, tickets[0].TrainerFeePct.IsZero())
}

func TestSplitsAndCommission(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	id := seedEvent(t, repo, "Workshop", time.Now())

	c, err := repo.GetCommission(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, c)

	require.NoError(t, repo.SetCommission(ctx, id, core.Commission{Grace: dec("0.1"), Nanna: dec("0.05")}))
	require.NoError(t, repo.SetCommission(ctx, id, core.Commission{Grace: dec("0.2"), Nanna: dec("0.05")}))
	c, err = repo.GetCommission(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.True(t, dec("0.2").Equal(c.Grace))

	_, err = repo.AddSplit(ctx, id, core.TrainerSplit{Name: "A", Percent: dec("60"), CashReceived: dec("10")})
	require.NoError(t, err)
	_, err = repo.AddSplit(ctx, id, core.TrainerSplit{Name: "B", Percent: dec("40")})
	require.NoError(t, err)

	splits, err := repo.ListSplits(ctx, id)
	require.NoError(t, err)
	require.Len(t, splits, 2)
	assert.Equal(t, "A", splits[0].Name)
	assert.True(t, dec("10").Equal(splits[0].CashReceived))
	assert.True(t, dec("40").Equal(splits[1].Percent))
}

func TestLoadRates(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	// No stored rates keeps the base table.
	table, err := repo.LoadRates(ctx, currency.DefaultTable())
	require.NoError(t, err)
	e, err := table.Lookup(currency.JPY)
	require.NoError(t, err)
	assert.True(t, dec("163.5").Equal(e.Rate))

	require.NoError(t, repo.UpsertRate(ctx, currency.JPY, dec("170")))
	require.NoError(t, repo.UpsertRate(ctx, currency.Code("XYZ"), dec("2")))
	require.NoError(t, repo.UpsertRate(ctx, currency.EUR, dec("2")))

	table, err = repo.LoadRates(ctx, currency.DefaultTable())
	require.NoError(t, err)

	e, err = table.Lookup(currency.JPY)
	require.NoError(t, err)
	assert.True(t, dec("170").Equal(e.Rate))

	eur, err := table.Lookup(currency.EUR)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1).Equal(eur.Rate))

	// The default table is left untouched.
	e, err = currency.DefaultTable().Lookup(currency.JPY)
	require.NoError(t, err)
	assert.True(t, dec("163.5").Equal(e.Rate))
}

func TestLoadRates_SkipsMalformedRates(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO currency_rates (code, rate) VALUES ('USD', 'abc'), ('GBP', ''), ('JPY', '170')`)
	require.NoError(t, err)

	table, err := repo.LoadRates(ctx, currency.DefaultTable())
	require.NoError(t, err)

	usd, err := table.Lookup(currency.USD)
	require.NoError(t, err)
	assert.True(t, dec("1.08").Equal(usd.Rate))

	gbp, err := table.Lookup(currency.GBP)
	require.NoError(t, err)
	assert.True(t, dec("0.85").Equal(gbp.Rate))

	jpy, err := table.Lookup(currency.JPY)
	require.NoError(t, err)
	assert.True(t, dec("170").Equal(jpy.Rate))
}

func TestReportRequests(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	id := seedEvent(t, repo, "Workshop", time.Now())

	first, err := repo.CreateReportRequest(ctx, id, currency.USD)
	require.NoError(t, err)
	second, err := repo.CreateReportRequest(ctx, id, currency.EUR)
	require.NoError(t, err)

	req, err := repo.GetReportRequest(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, req.Status)
	assert.Equal(t, "USD", req.Currency)
	assert.Equal(t, id, req.EventID)
	assert.False(t, req.RequestedAt.IsZero())
	assert.True(t, req.PublishedAt.IsZero())

	pending, err := repo.ListPendingReportRequests(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first, pending[0].ID)

	require.NoError(t, repo.MarkReportPublished(ctx, first, "2025 Reports!A1:F9"))
	req, err = repo.GetReportRequest(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, StatusPublished, req.Status)
	assert.Equal(t, "2025 Reports!A1:F9", req.SheetsRef)
	assert.Equal(t, int64(1), req.Attempts)
	assert.False(t, req.PublishedAt.IsZero())

	require.NoError(t, repo.MarkReportFailed(ctx, second, 2))
	req, err = repo.GetReportRequest(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, req.Status)
	assert.Equal(t, int64(1), req.Attempts)

	require.NoError(t, repo.MarkReportFailed(ctx, second, 2))
	req, err = repo.GetReportRequest(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, StatusError, req.Status)

	pending, err = repo.ListPendingReportRequests(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = repo.GetReportRequest(ctx, 12345)
	assert.ErrorIs(t, err, ErrRequestNotFound)
}
