package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"eventfin/internal/core"
	"eventfin/internal/currency"
	"eventfin/internal/fees"
	"eventfin/internal/splits"
	"eventfin/internal/tickets"
)

// EventStore is the read side of the repository the engine runs on.
type EventStore interface {
	GetEvent(ctx context.Context, id int64) (core.Event, error)
	ListEvents(ctx context.Context) ([]core.Event, error)
	ListTickets(ctx context.Context, eventID int64) ([]core.Ticket, error)
	ListSplits(ctx context.Context, eventID int64) ([]core.TrainerSplit, error)
	GetCommission(ctx context.Context, eventID int64) (*core.Commission, error)
	LoadRates(ctx context.Context, base *currency.Table) (*currency.Table, error)
}

// RequestStore records report publication requests.
type RequestStore interface {
	CreateReportRequest(ctx context.Context, eventID int64, code currency.Code) (int64, error)
}

// Publisher announces report requests to the worker.
type Publisher interface {
	PublishReportRequest(ctx context.Context, requestID, eventID int64, currency string) error
}

// ReportService loads event rows, runs the aggregation engine and converts
// the result into a display currency.
type ReportService struct {
	events    EventStore
	requests  RequestStore
	publisher Publisher
	now       func() time.Time
}

func NewReportService(events EventStore, requests RequestStore, publisher Publisher) *ReportService {
	return &ReportService{
		events:    events,
		requests:  requests,
		publisher: publisher,
		now:       time.Now,
	}
}

// ListEvents returns all stored events.
func (s *ReportService) ListEvents(ctx context.Context) ([]core.Event, error) {
	events, err := s.events.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// Rates returns the default rate table overlaid with stored rates.
func (s *ReportService) Rates(ctx context.Context) (*currency.Table, error) {
	table, err := s.events.LoadRates(ctx, currency.DefaultTable())
	if err != nil {
		return nil, fmt.Errorf("load rates: %w", err)
	}
	return table, nil
}

// BuildReport computes the report of an event expressed in display. An
// empty display keeps the event currency.
func (s *ReportService) BuildReport(ctx context.Context, eventID int64, display currency.Code) (core.EventReport, error) {
	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return core.EventReport{}, err
	}

	table, err := s.Rates(ctx)
	if err != nil {
		return core.EventReport{}, err
	}

	source, err := table.Parse(event.Currency)
	if err != nil {
		return core.EventReport{}, fmt.Errorf("event %d currency: %w", eventID, err)
	}
	if display == "" {
		display = source
	}
	if _, err := table.Lookup(display); err != nil {
		return core.EventReport{}, err
	}

	rawTickets, err := s.events.ListTickets(ctx, eventID)
	if err != nil {
		return core.EventReport{}, fmt.Errorf("list tickets: %w", err)
	}
	rawSplits, err := s.events.ListSplits(ctx, eventID)
	if err != nil {
		return core.EventReport{}, fmt.Errorf("list splits: %w", err)
	}
	commission, err := s.events.GetCommission(ctx, eventID)
	if err != nil {
		return core.EventReport{}, fmt.Errorf("get commission: %w", err)
	}

	normalized, err := normalizeTickets(table, rawTickets, source)
	if err != nil {
		return core.EventReport{}, fmt.Errorf("event %d tickets: %w", eventID, err)
	}

	rows := tickets.Aggregate(normalized)
	overview := fees.ComputeOverview(normalized, commission)
	check := splits.Validate(rawSplits)
	applied := splits.Apply(rawSplits, overview.Balance)

	report := core.EventReport{
		Event:          event,
		SourceCurrency: string(source),
		Currency:       string(source),
		Rows:           rows,
		Totals:         tickets.Totals(rows),
		Overview:       overview,
		Splits:         applied,
		SplitCheck: core.SplitCheck{
			Valid:        check.Valid,
			TotalPercent: check.TotalPercent,
			Errors:       check.Errors,
		},
		GeneratedAt: s.now().UTC(),
	}

	if display != source {
		report, err = convertReport(table, report, display)
		if err != nil {
			return core.EventReport{}, err
		}
	}

	slog.DebugContext(ctx, "Event report computed",
		"event_id", eventID,
		"currency", report.Currency,
		"tickets", len(rawTickets),
		"summary_rows", len(rows),
		"balance", report.Overview.Balance.String())

	return report, nil
}

// RequestReport records a pending publication and announces it. The request
// is kept even when publishing fails; the worker's pending sweep picks it up.
func (s *ReportService) RequestReport(ctx context.Context, eventID int64, display currency.Code) (int64, error) {
	if s.requests == nil {
		return 0, errors.New("report requests not configured")
	}
	if _, err := s.events.GetEvent(ctx, eventID); err != nil {
		return 0, err
	}
	if _, err := currency.DefaultTable().Lookup(display); err != nil {
		return 0, err
	}

	id, err := s.requests.CreateReportRequest(ctx, eventID, display)
	if err != nil {
		return 0, fmt.Errorf("save report request: %w", err)
	}

	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping report request message",
			"request_id", id)
		return id, nil
	}
	if err := s.publisher.PublishReportRequest(ctx, id, eventID, string(display)); err != nil {
		// Don't fail the request - it is saved locally
		slog.ErrorContext(ctx, "Failed to publish report request message",
			"request_id", id, "event_id", eventID, "error", err)
	}
	return id, nil
}

// normalizeTickets converts tickets recorded in another currency into the
// event currency. Tickets without a currency are taken as-is.
func normalizeTickets(table *currency.Table, in []core.Ticket, to currency.Code) ([]core.Ticket, error) {
	out := make([]core.Ticket, len(in))
	copy(out, in)
	for i := range out {
		if out[i].Currency == "" {
			continue
		}
		from, err := table.Parse(out[i].Currency)
		if err != nil {
			return nil, fmt.Errorf("ticket %d: %w", i+1, err)
		}
		if from == to {
			continue
		}
		if out[i].UnitPrice, err = table.Convert(out[i].UnitPrice, from, to); err != nil {
			return nil, err
		}
		if out[i].PriceTotal, err = table.Convert(out[i].PriceTotal, from, to); err != nil {
			return nil, err
		}
		out[i].Currency = string(to)
	}
	return out, nil
}

// convertReport expresses every monetary field of r in to. Percentages and
// quantities are unchanged.
func convertReport(table *currency.Table, r core.EventReport, to currency.Code) (core.EventReport, error) {
	from := currency.Code(r.Currency)
	var convErr error
	conv := func(d decimal.Decimal) decimal.Decimal {
		if convErr != nil {
			return d
		}
		out, err := table.Convert(d, from, to)
		if err != nil {
			convErr = err
		}
		return out
	}

	rows := make([]core.SummaryRow, len(r.Rows))
	for i, row := range r.Rows {
		row.UnitPrice = conv(row.UnitPrice)
		row.PriceTotal = conv(row.PriceTotal)
		row.SumPriceTotal = conv(row.SumPriceTotal)
		row.SumTrainerFee = conv(row.SumTrainerFee)
		rows[i] = row
	}

	applied := make([]core.TrainerSplit, len(r.Splits))
	for i, s := range r.Splits {
		s.CashReceived = conv(s.CashReceived)
		s.TrainerFee = conv(s.TrainerFee)
		s.Payable = conv(s.Payable)
		applied[i] = s
	}

	r.Rows = rows
	r.Splits = applied
	r.Totals.PriceTotal = conv(r.Totals.PriceTotal)
	r.Totals.TrainerFee = conv(r.Totals.TrainerFee)
	r.Overview.TrainerFee = conv(r.Overview.TrainerFee)
	r.Overview.CashSales = conv(r.Overview.CashSales)
	r.Overview.Balance = conv(r.Overview.Balance)
	r.Overview.PayableToTrainer = conv(r.Overview.PayableToTrainer)
	r.Currency = string(to)

	if convErr != nil {
		return core.EventReport{}, fmt.Errorf("convert report to %s: %w", to, convErr)
	}
	return r, nil
}
