package main

import (
	"context"
	"errors"
	"os"
	"time"

	"conti/internal/cli"
	applog "conti/internal/log"
	"conti/internal/worker"
)

var version = "dev"

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentCarryforward)

	logger.Info("Starting carryforward-worker",
		"interval", cfg.CarryforwardInterval,
		"negative_policy", cfg.CarryforwardNegativePolicy,
		"require_complete_month", cfg.CarryforwardRequireCompleteMonth)

	flush := cli.InitSentry(logger, cfg.SentryDSN, "carryforward-worker@"+version)
	defer flush()

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize application", applog.FieldError, err)
		os.Exit(1)
	}
	defer app.Close()

	if app.Backend.Publisher == nil {
		logger.Info("AMQP disabled - postings will not reach the report")
	}

	scheduler := worker.NewCarryforwardScheduler(app.Balance, cfg.CarryforwardInterval)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Carryforward scheduler failed", applog.FieldError, err)
			cancel()
		}
	}()

	err = cli.GracefulShutdown(ctx, logger, 30*time.Second, func(context.Context) error {
		<-stopped
		return nil
	})
	if err != nil {
		logger.Warn("Carryforward-worker did not stop cleanly", applog.FieldError, err)
	}
}
