package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"conti/internal/analytics"
	"conti/internal/core"
	"conti/internal/ledger"
)

// usageConcurrency bounds parallel usage computations in ListUsage.
const usageConcurrency = 4

// BudgetInput is a budget as entered by a user, naming its category.
type BudgetInput struct {
	Category    string
	AmountLimit core.Money
	StartDate   core.Date
	EndDate     core.Date // zero means end of the start date's month
}

// BudgetService creates budgets and computes their usage through the
// aggregation executor.
type BudgetService struct {
	budgets  ledger.BudgetStore
	registry ledger.Registry
	runner   analytics.Runner
}

func NewBudgetService(budgets ledger.BudgetStore, registry ledger.Registry, runner analytics.Runner) *BudgetService {
	return &BudgetService{budgets: budgets, registry: registry, runner: runner}
}

func (s *BudgetService) Create(ctx context.Context, in BudgetInput) (core.Budget, error) {
	cat, err := findCategory(ctx, s.registry, in.Category, core.KindExpense)
	if err != nil {
		return core.Budget{}, err
	}
	b, err := core.NewBudget(cat.ID, in.AmountLimit, in.StartDate, in.EndDate)
	if err != nil {
		return core.Budget{}, err
	}
	b, err = s.budgets.CreateBudget(ctx, b)
	if err != nil {
		return core.Budget{}, fmt.Errorf("create budget: %w", err)
	}
	slog.InfoContext(ctx, "Budget created",
		"id", b.ID,
		"category", b.Category,
		"limit_cents", b.AmountLimit.Cents,
		"start", b.StartDate.String(),
		"end", b.EndDate.String())
	return b, nil
}

func (s *BudgetService) Get(ctx context.Context, id int64) (core.Budget, error) {
	return s.budgets.GetBudget(ctx, id)
}

func (s *BudgetService) List(ctx context.Context) ([]core.Budget, error) {
	return s.budgets.ListBudgets(ctx)
}

// Usage loads a budget and computes how much of it has been spent.
func (s *BudgetService) Usage(ctx context.Context, id int64) (core.BudgetUsage, error) {
	b, err := s.budgets.GetBudget(ctx, id)
	if err != nil {
		return core.BudgetUsage{}, err
	}
	return s.UsageOf(ctx, b)
}

// UsageOf runs a Total plan over the budget's category and inclusive
// date span.
func (s *BudgetService) UsageOf(ctx context.Context, b core.Budget) (core.BudgetUsage, error) {
	plan := analytics.QueryPlan{
		Range: b.Range(),
		EntityGroup: analytics.EntityGroup{
			Categories: []analytics.EntityRef{{ID: b.CategoryID, Name: b.Category, Kind: core.KindExpense}},
		},
		Mode:   analytics.ModeTotal,
		Intent: analytics.IntentExpense,
	}
	res, err := s.runner.Execute(ctx, plan)
	if err != nil {
		return core.BudgetUsage{}, fmt.Errorf("budget %d usage: %w", b.ID, err)
	}
	return core.NewBudgetUsage(b, res.TotalExpenses), nil
}

// ListUsage computes usage for every budget, preserving list order.
func (s *BudgetService) ListUsage(ctx context.Context) ([]core.BudgetUsage, error) {
	budgets, err := s.budgets.ListBudgets(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.BudgetUsage, len(budgets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(usageConcurrency)
	for i, b := range budgets {
		g.Go(func() error {
			u, err := s.UsageOf(gctx, b)
			if err != nil {
				return err
			}
			out[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// findCategory resolves a category name case-insensitively within kind.
func findCategory(ctx context.Context, registry ledger.Registry, name string, kind core.CategoryKind) (core.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Category{}, fmt.Errorf("%w: category is required", core.ErrUnknownCategory)
	}
	cats, err := registry.ListCategories(ctx, kind)
	if err != nil {
		return core.Category{}, fmt.Errorf("list categories: %w", err)
	}
	for _, c := range cats {
		if strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}
	return core.Category{}, fmt.Errorf("%w: %q", core.ErrUnknownCategory, name)
}

func findAccount(ctx context.Context, registry ledger.Registry, name string) (core.AccountType, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.AccountType{}, fmt.Errorf("%w: account type is required", core.ErrUnknownAccount)
	}
	accs, err := registry.ListAccountTypes(ctx)
	if err != nil {
		return core.AccountType{}, fmt.Errorf("list account types: %w", err)
	}
	for _, a := range accs {
		if strings.EqualFold(a.Name, name) {
			return a, nil
		}
	}
	return core.AccountType{}, fmt.Errorf("%w: %q", core.ErrUnknownAccount, name)
}
