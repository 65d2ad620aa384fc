package http

import (
	"context"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"eventfin/internal/core"
	"eventfin/internal/currency"
	applog "eventfin/internal/log"
	"eventfin/internal/splits"
)

type indexData struct {
	Events []core.Event
	Error  string
}

type eventData struct {
	Report     core.EventReport
	Currencies []currency.Code
	Selected   currency.Code
	SplitsView splitsData
}

type splitsData struct {
	EventID   int64
	Currency  string
	Check     core.SplitCheck
	Splits    []core.TrainerSplit
	Remaining decimal.Decimal
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)

	cctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	data := indexData{}
	events, err := s.reports.ListEvents(cctx)
	if err != nil {
		logger.ErrorContext(ctx, "List events error", applog.NewFields().WithError(err).WithOperation(applog.OpList).ToSlice()...)
		data.Error = "Could not load events"
	}
	data.Events = events

	s.render(w, r, http.StatusOK, "index.html", data)
}

func (s *Server) handleEventReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)

	eventID, ok := parseEventID(w, r)
	if !ok {
		return
	}
	code, err := s.parseCurrency(r)
	if err != nil {
		s.renderError(w, r, http.StatusBadRequest, "Unsupported currency")
		return
	}

	report, err := s.getReport(ctx, eventID, code)
	if err != nil {
		status := statusFor(err)
		logger.Log(ctx, levelFor(status), "Event report error",
			applog.NewFields().WithError(err).WithEvent(eventID, string(code)).WithOperation(applog.OpCompute).ToSlice()...)
		s.renderError(w, r, status, messageFor(status))
		return
	}

	s.render(w, r, http.StatusOK, "event.html", eventData{
		Report:     report,
		Currencies: s.formatter.Codes(),
		Selected:   code,
		SplitsView: newSplitsData(eventID, report),
	})
}

// handleSplitsCheck renders the split validation partial.
func (s *Server) handleSplitsCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)

	eventID, ok := parseEventID(w, r)
	if !ok {
		return
	}
	code, err := s.parseCurrency(r)
	if err != nil {
		writeFragment(w, http.StatusBadRequest, `<section id="splits-check" class="splits-check"><div class="placeholder">Unsupported currency</div></section>`)
		return
	}

	report, err := s.getReport(ctx, eventID, code)
	if err != nil {
		status := statusFor(err)
		logger.Log(ctx, levelFor(status), "Splits check error",
			applog.NewFields().WithError(err).WithEvent(eventID, string(code)).ToSlice()...)
		writeFragment(w, status, `<section id="splits-check" class="splits-check"><div class="placeholder">`+
			template.HTMLEscapeString(messageFor(status))+`</div></section>`)
		return
	}

	s.render(w, r, http.StatusOK, "splits_check.html", newSplitsData(eventID, report))
}

func newSplitsData(eventID int64, report core.EventReport) splitsData {
	return splitsData{
		EventID:   eventID,
		Currency:  report.Currency,
		Check:     report.SplitCheck,
		Splits:    report.Splits,
		Remaining: splits.Remaining(splits.Report{TotalPercent: report.SplitCheck.TotalPercent}),
	}
}

func (s *Server) handleRequestReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)

	eventID, ok := parseEventID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	code, err := s.parseCurrency(r)
	if err != nil {
		http.Error(w, "unsupported currency", http.StatusBadRequest)
		return
	}

	cctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	id, err := s.reports.RequestReport(cctx, eventID, code)
	if err != nil {
		status := statusFor(err)
		logger.Log(ctx, levelFor(status), "Report request error",
			applog.NewFields().WithError(err).WithEvent(eventID, string(code)).WithOperation(applog.OpPublish).ToSlice()...)
		writeFragment(w, status, `<div class="error">`+template.HTMLEscapeString(messageFor(status))+`</div>`)
		return
	}

	// A published report should reflect the latest rows.
	s.invalidateEvent(eventID)

	logger.InfoContext(ctx, "Report requested", "request_id", id, applog.FieldEventID, eventID, applog.FieldCurrency, code)
	writeFragment(w, http.StatusAccepted, `<div class="success">Report #`+strconv.FormatInt(id, 10)+` queued (`+
		template.HTMLEscapeString(string(code))+`)</div>`)
}

func writeFragment(w http.ResponseWriter, status int, html string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(html))
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	ctx := r.Context()
	if s.templates == nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Templates not loaded", "url", r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	var buf strings.Builder
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Template execution failed", "error", err, "template", name)
		http.Error(w, "rendering failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(buf.String()))
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.render(w, r, status, "error.html", struct {
		Status  int
		Message string
	}{status, msg})
}

// parseEventID reads the {id} path value, writing 404 when it is malformed.
func parseEventID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return 0, false
	}
	return id, true
}

// parseCurrency reads ?currency= (or the form field), defaulting to the
// configured display currency.
func (s *Server) parseCurrency(r *http.Request) (currency.Code, error) {
	v := strings.TrimSpace(r.FormValue("currency"))
	if v == "" {
		return s.display, nil
	}
	return s.formatter.Parse(v)
}

func levelFor(status int) slog.Level {
	if status >= 500 {
		return slog.LevelError
	}
	return slog.LevelWarn
}

func messageFor(status int) string {
	switch status {
	case http.StatusNotFound:
		return "Event not found"
	case http.StatusBadRequest:
		return "Unsupported currency"
	case http.StatusGatewayTimeout:
		return "The report took too long to compute"
	default:
		return "Error loading report"
	}
}

func (s *Server) templateFuncs() template.FuncMap {
	return template.FuncMap{
		// money renders the locale-styled amount.
		"money": func(d decimal.Decimal, code string) string {
			out, err := s.formatter.Format(d, currency.Code(code))
			if err != nil {
				return d.String()
			}
			return out
		},
		// cell renders the compact symbol-prefixed amount.
		"cell": func(d decimal.Decimal, code string) string {
			out, err := s.formatter.FormatSymbol(d, currency.Code(code))
			if err != nil {
				return d.String()
			}
			return out
		},
		"fraction": func(d decimal.Decimal) string {
			return d.Mul(decimal.NewFromInt(100)).String() + "%"
		},
		"percent": func(d decimal.Decimal) string {
			return d.String() + "%"
		},
		"negative": func(d decimal.Decimal) bool {
			return d.IsNegative()
		},
		"date": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("2006-01-02")
		},
		"label": func(s string) string {
			if s == "" {
				return "(none)"
			}
			return s
		},
	}
}
