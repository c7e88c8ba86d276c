package main

import (
	"context"
	"errors"
	"os"
	"time"

	"conti/internal/amqp"
	"conti/internal/backend"
	"conti/internal/cli"
	applog "conti/internal/log"
	"conti/internal/sheets"
	gsheet "conti/internal/sheets/google"
	memreport "conti/internal/sheets/memory"
	"conti/internal/worker"
)

// backfillMonths is how many past source months are re-checked on startup.
const backfillMonths = 3

var version = "dev"

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentWorker)

	logger.Info("Starting conti-worker")

	flush := cli.InitSentry(logger, cfg.SentryDSN, "conti-worker@"+version)
	defer flush()

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	var report sheets.Report
	if cfg.GoogleSpreadsheetID != "" {
		if err := cfg.ValidateReport(); err != nil {
			logger.Error("Report configuration validation failed", applog.FieldError, err)
			os.Exit(1)
		}
		client, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleReportSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
			RetryMax:        cfg.SheetsRetryMax,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
			os.Exit(1)
		}
		report = client
		logger.Info("Google Sheets report initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		report = memreport.New()
		logger.Warn("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, report rows stay in memory")
	}

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the report worker")
		os.Exit(1)
	}

	// The worker consumes with its own client, so the backend skips AMQP
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	backendCfg.AMQPURL = ""
	res, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err)
		os.Exit(1)
	}
	defer res.Cleanup()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	reportWorker := worker.NewReportWorker(res.Store, report)

	// Recover postings whose messages were lost while the worker was down
	if err := reportWorker.StartupBackfill(ctx, time.Now().In(cfg.Location()), backfillMonths); err != nil {
		logger.Error("Startup backfill failed", applog.FieldError, err)
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		err := amqpClient.ConsumeCarryforwardPosted(ctx, reportWorker.HandleCarryforwardPosted)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", applog.FieldError, err)
			cancel()
		}
	}()

	err = cli.GracefulShutdown(ctx, logger, 30*time.Second, func(context.Context) error {
		<-stopped
		return nil
	})
	if err != nil {
		logger.Warn("Worker did not stop cleanly", applog.FieldError, err)
	}
}
