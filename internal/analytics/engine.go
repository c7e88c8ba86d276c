package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"conti/internal/core"
	"conti/internal/ledger"
)

// Engine answers free-text questions about the ledger.
type Engine struct {
	registry ledger.Registry
	runner   Runner
	renderer Renderer
	entities EntityOptions
}

type Option func(*Engine)

// WithFuzzyEntities enables edit-distance matching of misspelled names.
func WithFuzzyEntities(enabled bool) Option {
	return func(e *Engine) { e.entities.Fuzzy = enabled }
}

func WithRenderer(r Renderer) Option {
	return func(e *Engine) { e.renderer = r }
}

func NewEngine(registry ledger.Registry, runner Runner, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		runner:   runner,
		renderer: NewRenderer("$"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ask resolves, plans, executes and renders query. now anchors relative
// phrases such as "last month".
func (e *Engine) Ask(ctx context.Context, query string, now time.Time) (Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Answer{}, core.NewQueryError(core.ErrUnparseableQuery, query, "empty query")
	}
	plan, err := e.Plan(ctx, query, now)
	if err != nil {
		slog.InfoContext(ctx, "Analytics query rejected", "query", query, "reason", core.ReasonCode(err), "error", err)
		return Answer{}, err
	}

	start := time.Now()
	res, err := e.runner.Execute(ctx, plan)
	if err != nil {
		slog.ErrorContext(ctx, "Analytics query failed", "query", query, "mode", plan.Mode, "error", err)
		return Answer{}, fmt.Errorf("execute plan: %w", err)
	}
	slog.InfoContext(ctx, "Analytics query answered",
		"query", query,
		"mode", plan.Mode,
		"intent", plan.Intent,
		"range", plan.Range.String(),
		"expense_count", res.ExpenseCount,
		"income_count", res.IncomeCount,
		"duration_ms", time.Since(start).Milliseconds())
	return e.renderer.Render(query, plan, res), nil
}

// Plan runs only the resolution stages. Time and entity resolution are
// independent and run concurrently over registry snapshots taken for
// this call.
func (e *Engine) Plan(ctx context.Context, query string, now time.Time) (QueryPlan, error) {
	var (
		categories []core.Category
		accounts   []core.AccountType
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		categories, err = e.registry.ListCategories(gctx, "")
		if err != nil {
			return fmt.Errorf("list categories: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		accounts, err = e.registry.ListAccountTypes(gctx)
		if err != nil {
			return fmt.Errorf("list account types: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return QueryPlan{}, err
	}

	var (
		tr   TimeResolution
		ents Entities
	)
	g = new(errgroup.Group)
	g.Go(func() error {
		var err error
		tr, err = ResolveRange(query, now)
		return err
	})
	g.Go(func() error {
		ents = ResolveEntities(query, categories, accounts, e.entities)
		return nil
	})
	if err := g.Wait(); err != nil {
		return QueryPlan{}, err
	}
	return Plan(query, tr, ents)
}
