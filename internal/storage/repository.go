package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"eventfin/internal/core"
	"eventfin/internal/currency"

	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339

var (
	ErrEventNotFound   = errors.New("event not found")
	ErrRequestNotFound = errors.New("report request not found")
)

// Report request states.
const (
	StatusPending   = "pending"
	StatusPublished = "published"
	StatusError     = "error"
)

type SQLiteRepository struct {
	db *sql.DB
}

// ReportRequest tracks one asked-for report publication.
type ReportRequest struct {
	ID          int64
	EventID     int64
	Currency    string
	Status      string
	SheetsRef   string
	Attempts    int64
	RequestedAt time.Time
	PublishedAt time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations before opening the pool
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CreateEvent inserts an event and returns its id.
func (r *SQLiteRepository) CreateEvent(ctx context.Context, e core.Event) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	cur := e.Currency
	if cur == "" {
		cur = string(currency.EUR)
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO events (title, trainer, currency, starts_at) VALUES (?, ?, ?, ?)`,
		e.Title, e.Trainer, cur, e.StartsAt.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("event id: %w", err)
	}
	slog.InfoContext(ctx, "Event saved to SQLite", "id", id, "title", e.Title)
	return id, nil
}

// AddTicket inserts a ticket line. Empty payment method and tier are stored
// as NULL.
func (r *SQLiteRepository) AddTicket(ctx context.Context, eventID int64, t core.Ticket) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid ticket: %w", err)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tickets (event_id, attendance, payment_method, tier_level, unit_price, price_total, trainer_fee_pct, quantity, currency)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		eventID, t.Attendance, nullString(t.PaymentMethod), nullString(t.TierLevel),
		t.UnitPrice, t.PriceTotal, t.TrainerFeePct, t.Quantity, nullString(t.Currency))
	if err != nil {
		return fmt.Errorf("insert ticket for event %d: %w", eventID, err)
	}
	return nil
}

// AddSplit inserts a trainer split and returns its id.
func (r *SQLiteRepository) AddSplit(ctx context.Context, eventID int64, s core.TrainerSplit) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO trainer_splits (event_id, name, percent, cash_received) VALUES (?, ?, ?, ?)`,
		eventID, s.Name, s.Percent, s.CashReceived)
	if err != nil {
		return 0, fmt.Errorf("insert split for event %d: %w", eventID, err)
	}
	return res.LastInsertId()
}

// SetCommission stores the commission override of an event.
func (r *SQLiteRepository) SetCommission(ctx context.Context, eventID int64, c core.Commission) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO commissions (event_id, grace, nanna) VALUES (?, ?, ?)
		 ON CONFLICT(event_id) DO UPDATE SET grace = excluded.grace, nanna = excluded.nanna`,
		eventID, c.Grace, c.Nanna)
	if err != nil {
		return fmt.Errorf("upsert commission for event %d: %w", eventID, err)
	}
	return nil
}

// UpsertRate stores a live EUR-relative rate.
func (r *SQLiteRepository) UpsertRate(ctx context.Context, code currency.Code, rate decimal.Decimal) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO currency_rates (code, rate, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(code) DO UPDATE SET rate = excluded.rate, updated_at = excluded.updated_at`,
		string(code), rate, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("upsert rate %s: %w", code, err)
	}
	return nil
}

// GetEvent returns the event with the given id or ErrEventNotFound.
func (r *SQLiteRepository) GetEvent(ctx context.Context, id int64) (core.Event, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, title, trainer, currency, starts_at FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Event{}, fmt.Errorf("event %d: %w", id, ErrEventNotFound)
	}
	if err != nil {
		return core.Event{}, fmt.Errorf("get event %d: %w", id, err)
	}
	return e, nil
}

// ListEvents returns all events, most recent first.
func (r *SQLiteRepository) ListEvents(ctx context.Context) ([]core.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, trainer, currency, starts_at FROM events ORDER BY starts_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []core.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListTickets returns the tickets of an event in insertion order. NULL text
// columns become "" and NULL or malformed numeric columns become zero.
func (r *SQLiteRepository) ListTickets(ctx context.Context, eventID int64) ([]core.Ticket, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT attendance, payment_method, tier_level, unit_price, price_total, trainer_fee_pct, quantity, currency
		 FROM tickets WHERE event_id = ? ORDER BY id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list tickets for event %d: %w", eventID, err)
	}
	defer rows.Close()

	var out []core.Ticket
	for rows.Next() {
		var (
			t                 core.Ticket
			method, tier, cur sql.NullString
			unit, total, pct  lenientDecimal
		)
		if err := rows.Scan(&t.Attendance, &method, &tier, &unit, &total, &pct, &t.Quantity, &cur); err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		t.PaymentMethod = method.String
		t.TierLevel = tier.String
		t.Currency = cur.String
		t.UnitPrice = unit.Decimal
		t.PriceTotal = total.Decimal
		t.TrainerFeePct = pct.Decimal
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListSplits returns the trainer splits of an event in insertion order.
func (r *SQLiteRepository) ListSplits(ctx context.Context, eventID int64) ([]core.TrainerSplit, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, percent, cash_received FROM trainer_splits WHERE event_id = ? ORDER BY id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list splits for event %d: %w", eventID, err)
	}
	defer rows.Close()

	var out []core.TrainerSplit
	for rows.Next() {
		var (
			s         core.TrainerSplit
			pct, cash lenientDecimal
		)
		if err := rows.Scan(&s.ID, &s.Name, &pct, &cash); err != nil {
			return nil, fmt.Errorf("scan split: %w", err)
		}
		s.Percent = pct.Decimal
		s.CashReceived = cash.Decimal
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetCommission returns the commission of an event, or nil when none is set.
func (r *SQLiteRepository) GetCommission(ctx context.Context, eventID int64) (*core.Commission, error) {
	var grace, nanna lenientDecimal
	err := r.db.QueryRowContext(ctx,
		`SELECT grace, nanna FROM commissions WHERE event_id = ?`, eventID).Scan(&grace, &nanna)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get commission for event %d: %w", eventID, err)
	}
	return &core.Commission{Grace: grace.Decimal, Nanna: nanna.Decimal}, nil
}

// LoadRates overlays stored rates onto base. Unknown codes and NULL or
// malformed rates are skipped with a warning.
func (r *SQLiteRepository) LoadRates(ctx context.Context, base *currency.Table) (*currency.Table, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT code, rate FROM currency_rates ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list currency rates: %w", err)
	}
	defer rows.Close()

	table := base
	for rows.Next() {
		var (
			code string
			raw  sql.NullString
		)
		if err := rows.Scan(&code, &raw); err != nil {
			return nil, fmt.Errorf("scan currency rate: %w", err)
		}
		rate, err := decimal.NewFromString(raw.String)
		if !raw.Valid || err != nil {
			slog.WarnContext(ctx, "Ignoring malformed currency rate", "code", code, "rate", raw.String, "error", err)
			continue
		}
		next, err := table.WithRate(currency.Code(code), rate)
		if err != nil {
			slog.WarnContext(ctx, "Ignoring stored currency rate", "code", code, "rate", rate.String(), "error", err)
			continue
		}
		table = next
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate currency rates: %w", err)
	}
	return table, nil
}

// CreateReportRequest records a pending report publication.
func (r *SQLiteRepository) CreateReportRequest(ctx context.Context, eventID int64, code currency.Code) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO report_requests (event_id, currency, requested_at) VALUES (?, ?, ?)`,
		eventID, string(code), time.Now().UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("insert report request for event %d: %w", eventID, err)
	}
	return res.LastInsertId()
}

// GetReportRequest returns a report request or ErrRequestNotFound.
func (r *SQLiteRepository) GetReportRequest(ctx context.Context, id int64) (ReportRequest, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, event_id, currency, status, sheets_ref, attempts, requested_at, published_at
		 FROM report_requests WHERE id = ?`, id)
	req, err := scanReportRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ReportRequest{}, fmt.Errorf("report request %d: %w", id, ErrRequestNotFound)
	}
	if err != nil {
		return ReportRequest{}, fmt.Errorf("get report request %d: %w", id, err)
	}
	return req, nil
}

// ListPendingReportRequests returns up to limit pending requests, oldest first.
func (r *SQLiteRepository) ListPendingReportRequests(ctx context.Context, limit int) ([]ReportRequest, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, event_id, currency, status, sheets_ref, attempts, requested_at, published_at
		 FROM report_requests WHERE status = ? ORDER BY requested_at, id LIMIT ?`, StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending report requests: %w", err)
	}
	defer rows.Close()

	var out []ReportRequest
	for rows.Next() {
		req, err := scanReportRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// MarkReportPublished marks a request as written to the sheet.
func (r *SQLiteRepository) MarkReportPublished(ctx context.Context, id int64, ref string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE report_requests SET status = ?, sheets_ref = ?, attempts = attempts + 1, published_at = ? WHERE id = ?`,
		StatusPublished, ref, time.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("mark report request %d published: %w", id, err)
	}
	slog.InfoContext(ctx, "Report request marked as published", "id", id, "sheets_ref", ref)
	return nil
}

// MarkReportFailed records a failed attempt. After maxAttempts the request
// leaves the pending queue.
func (r *SQLiteRepository) MarkReportFailed(ctx context.Context, id int64, maxAttempts int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE report_requests
		 SET attempts = attempts + 1,
		     status = CASE WHEN attempts + 1 >= ? THEN ? ELSE status END
		 WHERE id = ?`, maxAttempts, StatusError, id)
	if err != nil {
		return fmt.Errorf("mark report request %d failed: %w", id, err)
	}
	slog.WarnContext(ctx, "Report request attempt failed", "id", id)
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (core.Event, error) {
	var (
		e        core.Event
		startsAt string
	)
	if err := s.Scan(&e.ID, &e.Title, &e.Trainer, &e.Currency, &startsAt); err != nil {
		return core.Event{}, err
	}
	t, err := time.Parse(timeLayout, startsAt)
	if err != nil {
		return core.Event{}, fmt.Errorf("parse starts_at %q: %w", startsAt, err)
	}
	e.StartsAt = t
	return e, nil
}

func scanReportRequest(s scanner) (ReportRequest, error) {
	var (
		req         ReportRequest
		requestedAt string
		publishedAt sql.NullString
	)
	if err := s.Scan(&req.ID, &req.EventID, &req.Currency, &req.Status, &req.SheetsRef, &req.Attempts, &requestedAt, &publishedAt); err != nil {
		return ReportRequest{}, err
	}
	if t, err := time.Parse(timeLayout, requestedAt); err == nil {
		req.RequestedAt = t
	}
	if publishedAt.Valid {
		if t, err := time.Parse(timeLayout, publishedAt.String); err == nil {
			req.PublishedAt = t
		}
	}
	return req, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// lenientDecimal scans NULL or unparsable numeric columns as zero.
type lenientDecimal struct {
	decimal.Decimal
}

func (d *lenientDecimal) Scan(value any) error {
	var nd decimal.NullDecimal
	if err := nd.Scan(value); err != nil || !nd.Valid {
		d.Decimal = decimal.Zero
		return nil
	}
	d.Decimal = nd.Decimal
	return nil
}
