package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/analytics"
	"conti/internal/core"
)

func date(t *testing.T, s string) core.Date {
	t.Helper()
	d, err := core.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestBudgetService_Usage(t *testing.T) {
	store, ledgerSvc := newLedger(t)
	svc := NewBudgetService(store, store, analytics.NewExecutor(store))

	b, err := svc.Create(context.Background(), BudgetInput{
		Category:    "food",
		AmountLimit: core.Money{Cents: 50000},
		StartDate:   date(t, "2026-02-01"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Food", b.Category)
	assert.Equal(t, "2026-02-28", b.EndDate.String())

	u, err := svc.Usage(context.Background(), b.ID)
	require.NoError(t, err)
	assert.True(t, u.AmountSpent.IsZero())
	assert.True(t, u.PercentageUsed.IsZero())
	assert.False(t, u.IsOverBudget)

	mustExpense(t, ledgerSvc, "2026-02-10", "100.50", "Food")
	mustExpense(t, ledgerSvc, "2026-02-28", "50.00", "Food")
	mustExpense(t, ledgerSvc, "2026-03-01", "999.00", "Food")
	mustExpense(t, ledgerSvc, "2026-02-11", "999.00", "Travel")

	u, err = svc.Usage(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, "150.50", u.AmountSpent.String())
	assert.Equal(t, "30.1", u.PercentageUsed.String())
	assert.Equal(t, "349.50", u.Remaining.String())
	assert.False(t, u.IsOverBudget)
}

func TestBudgetService_OverBudgetBoundary(t *testing.T) {
	store, ledgerSvc := newLedger(t)
	svc := NewBudgetService(store, store, analytics.NewExecutor(store))

	b, err := svc.Create(context.Background(), BudgetInput{
		Category:    "Travel",
		AmountLimit: core.Money{Cents: 10000},
		StartDate:   date(t, "2026-02-01"),
		EndDate:     date(t, "2026-02-14"),
	})
	require.NoError(t, err)

	mustExpense(t, ledgerSvc, "2026-02-14", "100.00", "Travel")
	u, err := svc.Usage(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, "100", u.PercentageUsed.String())
	assert.False(t, u.IsOverBudget, "spending exactly the limit is not over budget")

	mustExpense(t, ledgerSvc, "2026-02-01", "0.01", "Travel")
	u, err = svc.Usage(context.Background(), b.ID)
	require.NoError(t, err)
	assert.True(t, u.IsOverBudget)

	all, err := svc.ListUsage(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "100.01", all[0].AmountSpent.String())
}

func TestBudgetService_CreateValidation(t *testing.T) {
	store, _ := newLedger(t)
	svc := NewBudgetService(store, store, analytics.NewExecutor(store))

	_, err := svc.Create(context.Background(), BudgetInput{Category: "Food", AmountLimit: core.Money{}, StartDate: date(t, "2026-02-01")})
	assert.ErrorIs(t, err, core.ErrBudgetInvariant)

	_, err = svc.Create(context.Background(), BudgetInput{
		Category:    "Food",
		AmountLimit: core.Money{Cents: 100},
		StartDate:   date(t, "2026-02-10"),
		EndDate:     date(t, "2026-02-01"),
	})
	assert.ErrorIs(t, err, core.ErrBudgetInvariant)

	_, err = svc.Create(context.Background(), BudgetInput{Category: "Salary", AmountLimit: core.Money{Cents: 100}, StartDate: date(t, "2026-02-01")})
	assert.ErrorIs(t, err, core.ErrUnknownCategory, "income categories cannot be budgeted")

	_, err = svc.Usage(context.Background(), 4242)
	assert.ErrorIs(t, err, core.ErrNotFound)
}
