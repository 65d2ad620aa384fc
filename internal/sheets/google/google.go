package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"eventfin/internal/core"
	"eventfin/internal/currency"
	ports "eventfin/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Report sections written in column C.
const (
	SectionSummary  = "summary"
	SectionOverview = "overview"
	SectionSplit    = "split"
)

var ErrMissingCredentials = errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Base name without year (e.g. "Reports"); the report year is prefixed.
	reportsBase string
}

// Ensure interface conformance
var _ ports.ReportWriter = (*Client)(nil)

// Options configures a Sheets client.
type Options struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, opts Options) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	base := strings.TrimSpace(opts.SheetName)
	if base == "" {
		base = "Reports"
	}

	credentialsJSON, err := loadCredentials(ctx, opts.CredentialsJSON, opts.CredentialsFile)
	if err != nil {
		return nil, err
	}

	svc, err := newSheetsService(ctx, credentialsJSON)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		reportsBase:   base,
	}, nil
}

// loadCredentials prefers inline JSON over a file path.
func loadCredentials(ctx context.Context, inline, file string) ([]byte, error) {
	inline = strings.TrimSpace(inline)
	file = strings.TrimSpace(file)

	slog.InfoContext(ctx, "Checking Service Account credentials",
		"has_json", inline != "",
		"file_path", file)

	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		slog.InfoContext(ctx, "Successfully read credentials file", "size", len(data))
		return data, nil
	default:
		return nil, ErrMissingCredentials
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context, credentialsJSON []byte) (*gsheet.Service, error) {
	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created successfully")
	return service, nil
}

// AppendReport writes the report rows after the last used row of the
// "<year> <base>" sheet.
func (c *Client) AppendReport(ctx context.Context, r core.EventReport) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	sheet := c.reportSheetName(r.GeneratedAt)
	rng := fmt.Sprintf("%s!A:I", sheet)
	vr := &gsheet.ValueRange{Values: ReportRows(r)}

	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append report to sheet %s: %w", sheet, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}

	slog.InfoContext(ctx, "Report appended to Google Sheets",
		"event_id", r.Event.ID,
		"rows", len(vr.Values),
		"sheets_ref", ref)
	return ref, nil
}

func (c *Client) reportSheetName(at time.Time) string {
	if at.IsZero() {
		at = time.Now()
	}
	return yearPrefixedName(c.reportsBase, at.Year())
}

// ReportRows lays out a report as sheet rows:
// Date | Event | Section | Label | Detail | Quantity | Amount | Trainer fee | Currency.
func ReportRows(r core.EventReport) [][]any {
	date := r.GeneratedAt.Format("2006-01-02")
	title := r.Event.Title
	places := decimals(r.Currency)
	amount := func(d decimal.Decimal) string {
		return d.StringFixed(places)
	}

	out := make([][]any, 0, len(r.Rows)+len(r.Splits)+4)
	for _, row := range r.Rows {
		out = append(out, []any{
			date, title, SectionSummary,
			row.Attendance,
			joinNonEmpty(" / ", row.PaymentMethod, row.TierLevel),
			row.SumQuantity,
			amount(row.SumPriceTotal),
			amount(row.SumTrainerFee),
			r.Currency,
		})
	}

	ov := r.Overview
	for _, line := range []struct {
		label string
		value decimal.Decimal
	}{
		{"Trainer fee", ov.TrainerFee},
		{"Cash sales", ov.CashSales},
		{"Balance", ov.Balance},
		{"Payable to trainer", ov.PayableToTrainer},
	} {
		out = append(out, []any{date, title, SectionOverview, line.label, "", "", amount(line.value), "", r.Currency})
	}

	for _, s := range r.Splits {
		out = append(out, []any{
			date, title, SectionSplit,
			s.Name,
			s.Percent.String() + "%",
			"",
			amount(s.Payable),
			amount(s.TrainerFee),
			r.Currency,
		})
	}
	return out
}

func decimals(code string) int32 {
	e, err := currency.DefaultTable().Lookup(currency.Code(code))
	if err != nil {
		return 2
	}
	return e.Descriptor.Decimals
}

func joinNonEmpty(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
