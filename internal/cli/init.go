// Package cli provides common CLI initialization utilities.
// It consolidates the startup sequence shared by cmd/conti,
// cmd/carryforward-worker, cmd/conti-worker and cmd/mcp-server.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"conti/internal/analytics"
	"conti/internal/backend"
	"conti/internal/cache"
	"conti/internal/config"
	applog "conti/internal/log"
	"conti/internal/services"
)

const cacheCleanupInterval = 5 * time.Minute

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from the LOG_LEVEL and LOG_FORMAT
// settings and installs it as the default logger.
func SetupLogger(cfg *config.Config, component string) *applog.Logger {
	return applog.Setup(cfg.LogLevel, cfg.LogFormat, component)
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig() *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		// The logger is not configured yet
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return cfg
}

// InitSentry enables error reporting when dsn is set. The returned func
// flushes buffered events and is safe to call either way.
func InitSentry(logger *applog.Logger, dsn, release string) func() {
	if dsn == "" {
		logger.Info("Sentry disabled - no SENTRY_DSN provided")
		return func() {}
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:     dsn,
		Release: release,
	})
	if err != nil {
		logger.Warn("Failed to initialize Sentry, continuing without error reporting", applog.FieldError, err)
		return func() {}
	}
	logger.Info("Sentry initialized", "release", release)
	return func() { sentry.Flush(2 * time.Second) }
}

// App is the fully wired service graph shared by the binaries.
type App struct {
	Config  *config.Config
	Backend *backend.BackendResult

	// Executor reads the ledger directly; Cached memoizes it for queries.
	Executor *analytics.Executor
	Cached   *analytics.CachedExecutor
	Caches   *cache.Manager

	Engine  *analytics.Engine
	Ledger  *services.LedgerService
	Budgets *services.BudgetService
	Balance *services.CarryforwardService
}

// NewApp opens the configured backend and wires the analytics engine and
// services on top of it.
func NewApp(ctx context.Context, cfg *config.Config, logger *applog.Logger) (*App, error) {
	policy, err := services.ParseNegativePolicy(cfg.CarryforwardNegativePolicy)
	if err != nil {
		return nil, err
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger).
		CreateBackend(ctx, backendCfg)
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}
	store := res.Store

	executor := analytics.NewExecutor(store)
	cached, lru := analytics.NewCachedExecutor(executor, cfg.CacheSize, cfg.CacheTTL)
	caches := cache.NewManager()
	caches.Register(lru)
	caches.StartCleanup(cacheCleanupInterval)

	loc := cfg.Location()
	opts := []services.CarryforwardOption{
		services.WithCachePurger(cached),
		services.WithClock(func() time.Time { return time.Now().In(loc) }),
	}
	if res.Publisher != nil {
		opts = append(opts, services.WithPublisher(res.Publisher))
	}

	app := &App{
		Config:   cfg,
		Backend:  res,
		Executor: executor,
		Cached:   cached,
		Caches:   caches,
		Engine: analytics.NewEngine(store, cached,
			analytics.WithFuzzyEntities(cfg.FuzzyEntityMatch),
			analytics.WithRenderer(analytics.NewRenderer(cfg.CurrencySymbol))),
		Ledger:  services.NewLedgerService(store, store, cached),
		Budgets: services.NewBudgetService(store, store, cached),
		Balance: services.NewCarryforwardService(store, executor, services.CarryforwardPolicy{
			Negative:             policy,
			RequireCompleteMonth: cfg.CarryforwardRequireCompleteMonth,
		}, opts...),
	}

	logger.InfoContext(ctx, "Application wired",
		"backend", cfg.DataBackend,
		"cache_size", cfg.CacheSize,
		"cache_ttl", cfg.CacheTTL,
		"fuzzy_entities", cfg.FuzzyEntityMatch,
		"negative_policy", policy,
		"events", res.Publisher != nil)
	return app, nil
}

// Close stops cache maintenance and releases the backend.
func (a *App) Close() error {
	a.Caches.Stop()
	if a.Backend.Cleanup == nil {
		return nil
	}
	return a.Backend.Cleanup()
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *applog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// GracefulShutdown runs cleanup with a deadline once ctx is done. It
// reports a timeout as an error so callers can exit non-zero.
func GracefulShutdown(ctx context.Context, logger *applog.Logger, timeout time.Duration, cleanup func(context.Context) error) error {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		if cleanup == nil {
			done <- nil
			return
		}
		done <- cleanup(shutdownCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("Shutdown cleanup failed", applog.FieldError, err)
			return err
		}
		logger.Info("Shutdown complete")
		return nil
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timeout reached")
		return errors.New("shutdown timed out")
	}
}
