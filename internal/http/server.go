package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"eventfin/internal/cache"
	"eventfin/internal/core"
	"eventfin/internal/currency"
	applog "eventfin/internal/log"
	"eventfin/internal/middleware/ratelimit"
	"eventfin/internal/middleware/security"
	"eventfin/internal/storage"
	appweb "eventfin/web"
)

// ReportProvider is the report service as seen by the dashboard.
type ReportProvider interface {
	ListEvents(ctx context.Context) ([]core.Event, error)
	BuildReport(ctx context.Context, eventID int64, display currency.Code) (core.EventReport, error)
	RequestReport(ctx context.Context, eventID int64, display currency.Code) (int64, error)
}

// Pinger checks a backing store for readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the server.
type Deps struct {
	Reports         ReportProvider
	Store           Pinger
	Logger          *applog.Logger
	DisplayCurrency currency.Code
	// CacheTTL of zero disables report caching.
	CacheTTL time.Duration
	// ReportRequestsPerMinute limits POST /events/{id}/report per client.
	ReportRequestsPerMinute int
}

type Server struct {
	http.Server
	templates *template.Template
	reports   ReportProvider
	store     Pinger
	logger    *applog.Logger
	display   currency.Code
	formatter *currency.Table

	reportCache *cache.LRUCache[core.EventReport]
	cacheMgr    *cache.Manager
	limiter     *ratelimit.Limiter

	shutdownOnce sync.Once
}

const requestTimeout = 7 * time.Second

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	display := deps.DisplayCurrency
	if display == "" {
		display = currency.EUR
	}

	s := &Server{
		reports:   deps.Reports,
		store:     deps.Store,
		logger:    logger.WithComponent(applog.ComponentHTTP),
		display:   display,
		formatter: currency.DefaultTable(),
		cacheMgr:  cache.NewManager(),
		limiter:   ratelimit.NewLimiter(ratelimit.Config{Requests: deps.ReportRequestsPerMinute, Window: time.Minute}),
	}

	if deps.CacheTTL > 0 {
		s.reportCache = cache.NewLRUCache[core.EventReport](200, deps.CacheTTL)
		s.cacheMgr.Register(s.reportCache)
		s.cacheMgr.StartCleanup(10 * time.Minute)
	}

	// Parse embedded templates at startup.
	t, err := template.New("").Funcs(s.templateFuncs()).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.Warn("Failed parsing templates", "error", err)
	}
	s.templates = t

	mux := http.NewServeMux()

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", "error", err)
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /events/{id}", s.handleEventReport)
	mux.HandleFunc("GET /events/{id}/splits/check", s.handleSplitsCheck)
	mux.Handle("POST /events/{id}/report",
		s.limiter.Middleware(applog.ClientIP)(http.HandlerFunc(s.handleRequestReport)))

	var handler http.Handler = mux
	handler = security.Headers(security.DefaultHeadersConfig())(handler)
	handler = applog.Middleware(logger)(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheMgr.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func reportCacheKey(eventID int64, code currency.Code) string {
	return fmt.Sprintf("event:%d:%s", eventID, code)
}

// getReport returns a cached report or computes and caches it.
func (s *Server) getReport(ctx context.Context, eventID int64, code currency.Code) (core.EventReport, error) {
	key := reportCacheKey(eventID, code)
	if s.reportCache != nil {
		if r, ok := s.reportCache.Get(key); ok {
			applog.FromContext(ctx).DebugContext(ctx, "Report cache hit", applog.FieldEventID, eventID, applog.FieldCurrency, code)
			return r, nil
		}
	}

	cctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	r, err := s.reports.BuildReport(cctx, eventID, code)
	if err != nil {
		return core.EventReport{}, fmt.Errorf("build report (event=%d, currency=%s): %w", eventID, code, err)
	}

	if s.reportCache != nil {
		s.reportCache.Set(key, r)
	}
	return r, nil
}

// invalidateEvent drops every cached currency variant of an event.
func (s *Server) invalidateEvent(eventID int64) {
	if s.reportCache != nil {
		s.reportCache.DeletePrefix(fmt.Sprintf("event:%d:", eventID))
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			applog.FromContext(r.Context()).ErrorContext(r.Context(), "Readiness check failed", "error", err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrEventNotFound):
		return http.StatusNotFound
	case errors.Is(err, currency.ErrUnsupportedCurrency):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
