package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"conti/internal/cli"
	applog "conti/internal/log"
)

var version = "dev"

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	// stdout carries the protocol, so logs go to stderr
	logger := applog.New(applog.Config{
		Level:     parseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: applog.ComponentMCP,
		Output:    os.Stderr,
	})
	applog.SetDefault(logger)

	flush := cli.InitSentry(logger, cfg.SentryDSN, "conti-mcp@"+version)
	defer flush()

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize application", applog.FieldError, err)
		os.Exit(1)
	}
	defer app.Close()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "conti",
		Version: version,
	}, nil)

	registerTools(server, &contiTools{
		engine:   app.Engine,
		budgets:  app.Budgets,
		balance:  app.Balance,
		now:      time.Now,
		location: cfg.Location(),
	})

	logger.Info("Starting MCP server over stdio", "backend", cfg.DataBackend)
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		logger.Error("MCP server error", applog.FieldError, err)
	}
}

func parseLevel(s string) slog.Level {
	lvl, _ := applog.ParseLevel(s)
	return lvl
}

func registerTools(server *mcp.Server, tools *contiTools) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_ledger",
		Description: "Answer a free-text question about the ledger, such as totals, category breakdowns, monthly trends or period comparisons. Returns a one-line summary, an optional breakdown and the totals behind them.",
	}, tools.AskLedger)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "budget_usage",
		Description: "Report how much of a budget has been spent. Returns limit, spent, remaining and percentage used for one budget, or for every budget when no ID is given.",
	}, tools.BudgetUsage)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "monthly_balance",
		Description: "Summarize income, expenses and net balance for a calendar month, and whether it has been carried forward.",
	}, tools.MonthlyBalance)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "carryforward",
		Description: "Carry a completed month's net balance into the next month as income. Repeating the call for the same month is a no-op that returns the existing posting.",
	}, tools.Carryforward)
}
