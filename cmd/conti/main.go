package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"conti/internal/cli"
	apphttp "conti/internal/http"
	applog "conti/internal/log"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentApp)

	flush := cli.InitSentry(logger, cfg.SentryDSN, "conti@"+version)
	defer flush()

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize application", applog.FieldError, err)
		os.Exit(1)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("Failed to release backend", applog.FieldError, err)
		}
	}()

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Services{
		Engine:  app.Engine,
		Ledger:  app.Ledger,
		Budgets: app.Budgets,
		Balance: app.Balance,
		Store:   app.Backend.Store,
	}, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Location:           cfg.Location(),
		Logger:             logger.WithComponent(applog.ComponentHTTP),
	})

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 15 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting conti server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"timezone", cfg.Timezone,
			"version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
			cancel()
			return
		}
	case <-ctx.Done():
	}

	err = cli.GracefulShutdown(ctx, logger, 30*time.Second, func(shutdownCtx context.Context) error {
		return srv.Shutdown(shutdownCtx)
	})
	if err != nil {
		logger.Warn("Server did not stop cleanly", applog.FieldError, err)
		return
	}
	logger.Info("Server stopped gracefully")
}
