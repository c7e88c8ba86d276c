package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"conti/internal/analytics"
	applog "conti/internal/log"
	"conti/internal/middleware/ratelimit"
	"conti/internal/middleware/security"
	"conti/internal/middleware/trace"
	"conti/internal/services"
)

// QueryAnswerer answers free-text analytics queries.
type QueryAnswerer interface {
	Ask(ctx context.Context, query string, now time.Time) (analytics.Answer, error)
}

// Pinger reports whether the ledger store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles what the handlers call into.
type Services struct {
	Engine  QueryAnswerer
	Ledger  *services.LedgerService
	Budgets *services.BudgetService
	Balance *services.CarryforwardService
	Store   Pinger
}

// Options tunes the server. Zero values select defaults.
type Options struct {
	RateLimitPerMinute int
	Location           *time.Location
	Logger             *applog.Logger
	// Now overrides the clock used for relative query phrases.
	Now func() time.Time
}

type Server struct {
	http.Server
	svc    Services
	loc    *time.Location
	now    func() time.Time
	logger *applog.Logger
	events *applog.StructuredLogger

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	appMetrics       *appMetrics

	shutdownOnce sync.Once
}

// appMetrics holds counters exposed on /metrics.
type appMetrics struct {
	uptime        time.Time
	queries       int64
	queryErrors   int64
	writes        int64
	carryforwards int64
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc Services, opts Options) *Server {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.Config{Handler: slog.Default().Handler(), Component: applog.ComponentHTTP})
	}

	s := &Server{
		svc:              svc,
		loc:              opts.Location,
		now:              opts.Now,
		logger:           opts.Logger.WithComponent(applog.ComponentHTTP),
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		securityDetector: security.NewDetector(),
		appMetrics:       &appMetrics{uptime: time.Now()},
	}
	s.events = applog.NewStructuredLogger(opts.Logger)
	s.traceMiddleware = trace.NewMiddleware(s.securityDetector.ExtractClientIP, s.events)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /analytics/query", s.handleQuery)

	mux.HandleFunc("GET /categories", s.handleCategories)
	mux.HandleFunc("GET /account-types", s.handleAccountTypes)
	mux.HandleFunc("POST /expenses", s.handleCreateExpense)
	mux.HandleFunc("POST /income", s.handleCreateIncome)

	mux.HandleFunc("GET /budgets", s.handleListBudgets)
	mux.HandleFunc("POST /budgets", s.handleCreateBudget)
	mux.HandleFunc("GET /budgets/usage", s.handleListBudgetUsage)
	mux.HandleFunc("GET /budgets/{id}/usage", s.handleBudgetUsage)

	mux.HandleFunc("GET /balance/monthly-summary", s.handleMonthlySummary)
	mux.HandleFunc("POST /balance/carryforward", s.handleCarryforward)
	mux.HandleFunc("POST /balance/carryforward/auto", s.handleAutoCarryforward)

	// Outermost first: trace, request logger, security, rate limit.
	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.onRateLimited, http.MethodPost)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.securityDetector.Middleware(handler)
	handler = applog.RequestIDMiddleware(trace.RequestIDFromRequest)(handler)
	handler = applog.Middleware(opts.Logger)(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().
		Status(http.StatusTooManyRequests).
		Body(errorEnvelope{Error: errorBody{Reason: "rate_limited", Message: "rate limit exceeded, try again later"}}).
		Write(w)
}

// clock returns now in the configured location.
func (s *Server) clock() time.Time {
	return s.now().In(s.loc)
}
