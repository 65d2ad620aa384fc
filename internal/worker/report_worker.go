package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"eventfin/internal/amqp"
	"eventfin/internal/core"
	"eventfin/internal/currency"
	"eventfin/internal/sheets"
	"eventfin/internal/storage"
)

// RequestStore is the report request queue kept in SQLite.
type RequestStore interface {
	GetReportRequest(ctx context.Context, id int64) (storage.ReportRequest, error)
	ListPendingReportRequests(ctx context.Context, limit int) ([]storage.ReportRequest, error)
	MarkReportPublished(ctx context.Context, id int64, ref string) error
	MarkReportFailed(ctx context.Context, id int64, maxAttempts int) error
}

// ReportBuilder computes the report of an event.
type ReportBuilder interface {
	BuildReport(ctx context.Context, eventID int64, display currency.Code) (core.EventReport, error)
}

// Consumer delivers report request messages.
type Consumer interface {
	ConsumeReportRequests(ctx context.Context, concurrency int, handler amqp.ReportRequestHandler) error
}

// Config tunes the worker.
type Config struct {
	// Concurrency bounds how many reports are written at once (default: 4)
	Concurrency int

	// BatchSize is the max number of pending requests per sweep (default: 20)
	BatchSize int

	// MaxAttempts before a request is marked as failed (default: 3)
	MaxAttempts int

	// PollInterval is how often pending requests are swept (default: 1m)
	PollInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Concurrency:  4,
		BatchSize:    20,
		MaxAttempts:  3,
		PollInterval: time.Minute,
	}
}

// ReportWorker publishes computed event reports to a spreadsheet.
type ReportWorker struct {
	requests RequestStore
	builder  ReportBuilder
	sheets   sheets.ReportWriter
	config   Config

	inflightMu sync.Mutex
	inflight   map[int64]struct{}
}

func NewReportWorker(requests RequestStore, builder ReportBuilder, writer sheets.ReportWriter, config Config) *ReportWorker {
	defaults := DefaultConfig()
	if config.Concurrency < 1 {
		config.Concurrency = defaults.Concurrency
	}
	if config.BatchSize < 1 {
		config.BatchSize = defaults.BatchSize
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	return &ReportWorker{
		requests: requests,
		builder:  builder,
		sheets:   writer,
		config:   config,
		inflight: make(map[int64]struct{}),
	}
}

// HandleReportRequest processes a single report request message from AMQP.
func (w *ReportWorker) HandleReportRequest(ctx context.Context, msg *amqp.ReportRequestMessage) error {
	slog.InfoContext(ctx, "Processing report request message",
		"request_id", msg.RequestID,
		"event_id", msg.EventID,
		"currency", msg.Currency)
	return w.publish(ctx, msg.RequestID)
}

// ProcessPendingReports publishes requests still pending in the database.
// This is a backup mechanism in case AMQP messages are lost.
func (w *ReportWorker) ProcessPendingReports(ctx context.Context) error {
	pending, err := w.requests.ListPendingReportRequests(ctx, w.config.BatchSize)
	if err != nil {
		return fmt.Errorf("list pending report requests: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending report requests", "count", len(pending))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.config.Concurrency)
	for _, req := range pending {
		g.Go(func() error {
			if err := w.publish(gctx, req.ID); err != nil {
				slog.ErrorContext(gctx, "Failed to publish pending report",
					"request_id", req.ID, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Run consumes messages and sweeps pending requests until ctx is done.
// consumer may be nil, in which case only the sweep runs.
func (w *ReportWorker) Run(ctx context.Context, consumer Consumer) error {
	g, gctx := errgroup.WithContext(ctx)

	if consumer != nil {
		g.Go(func() error {
			return consumer.ConsumeReportRequests(gctx, w.config.Concurrency, w.HandleReportRequest)
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(w.config.PollInterval)
		defer ticker.Stop()

		// Sweep immediately on startup
		w.sweep(gctx)
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				w.sweep(gctx)
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *ReportWorker) sweep(ctx context.Context) {
	if err := w.ProcessPendingReports(ctx); err != nil && ctx.Err() == nil {
		slog.ErrorContext(ctx, "Periodic report sweep failed", "error", err)
	}
}

// publish builds and writes one request. Requests no longer pending, or
// already being handled by this worker, are skipped.
func (w *ReportWorker) publish(ctx context.Context, requestID int64) error {
	if !w.claim(requestID) {
		slog.DebugContext(ctx, "Report request already in flight", "request_id", requestID)
		return nil
	}
	defer w.release(requestID)

	req, err := w.requests.GetReportRequest(ctx, requestID)
	if errors.Is(err, storage.ErrRequestNotFound) {
		slog.WarnContext(ctx, "Report request not found, dropping", "request_id", requestID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get report request: %w", err)
	}
	if req.Status != storage.StatusPending {
		slog.InfoContext(ctx, "Report request already handled",
			"request_id", req.ID, "status", req.Status)
		return nil
	}

	report, err := w.builder.BuildReport(ctx, req.EventID, currency.Code(req.Currency))
	if err != nil {
		if isPermanent(err) {
			// Retrying cannot fix a missing event or an unknown currency.
			w.markFailed(ctx, req.ID, 1)
			slog.ErrorContext(ctx, "Report request failed permanently",
				"request_id", req.ID, "event_id", req.EventID, "error", err)
			return nil
		}
		w.markFailed(ctx, req.ID, w.config.MaxAttempts)
		return fmt.Errorf("build report for event %d: %w", req.EventID, err)
	}

	ref, err := w.sheets.AppendReport(ctx, report)
	if err != nil {
		w.markFailed(ctx, req.ID, w.config.MaxAttempts)
		return fmt.Errorf("append report to sheets: %w", err)
	}

	if err := w.requests.MarkReportPublished(ctx, req.ID, ref); err != nil {
		// The sheet already holds the rows; a retry would duplicate them.
		slog.ErrorContext(ctx, "Failed to mark report published",
			"request_id", req.ID, "sheets_ref", ref, "error", err)
		return nil
	}

	slog.InfoContext(ctx, "Published event report",
		"request_id", req.ID,
		"event_id", req.EventID,
		"currency", report.Currency,
		"summary_rows", len(report.Rows),
		"sheets_ref", ref)
	return nil
}

func (w *ReportWorker) markFailed(ctx context.Context, id int64, maxAttempts int) {
	if err := w.requests.MarkReportFailed(ctx, id, maxAttempts); err != nil {
		slog.ErrorContext(ctx, "Failed to record report failure", "request_id", id, "error", err)
	}
}

func (w *ReportWorker) claim(id int64) bool {
	w.inflightMu.Lock()
	defer w.inflightMu.Unlock()
	if _, busy := w.inflight[id]; busy {
		return false
	}
	w.inflight[id] = struct{}{}
	return true
}

func (w *ReportWorker) release(id int64) {
	w.inflightMu.Lock()
	delete(w.inflight, id)
	w.inflightMu.Unlock()
}

func isPermanent(err error) bool {
	return errors.Is(err, storage.ErrEventNotFound) || errors.Is(err, currency.ErrUnsupportedCurrency)
}
