package analytics

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/core"
	"conti/internal/ledger"
	"conti/internal/ledger/memory"
)

type fixture struct {
	t     *testing.T
	store *memory.Store
	cats  map[string]core.Category
	accs  map[string]core.AccountType
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{t: t, store: memory.New(), cats: map[string]core.Category{}, accs: map[string]core.AccountType{}}
	cats, accs := registries(t, f.store)
	for _, c := range cats {
		f.cats[c.Name] = c
	}
	for _, a := range accs {
		f.accs[a.Name] = a
	}
	return f
}

func (f *fixture) expense(category, account, date, amount string) {
	f.t.Helper()
	cents, err := core.ParseDecimalToCents(amount)
	require.NoError(f.t, err)
	_, err = f.store.InsertExpense(context.Background(), core.Transaction{
		Date:       day(date),
		Amount:     core.Money{Cents: cents},
		CategoryID: f.cats[category].ID,
		AccountID:  f.accs[account].ID,
	})
	require.NoError(f.t, err)
}

func (f *fixture) income(category, date, amount string) {
	f.t.Helper()
	cents, err := core.ParseDecimalToCents(amount)
	require.NoError(f.t, err)
	_, err = f.store.InsertIncome(context.Background(), core.Transaction{
		Date:       day(date),
		Amount:     core.Money{Cents: cents},
		CategoryID: f.cats[category].ID,
	})
	require.NoError(f.t, err)
}

func (f *fixture) ref(name string) EntityRef {
	c := f.cats[name]
	return EntityRef{ID: c.ID, Name: c.Name, Kind: c.Kind}
}

func (f *fixture) account(name string) EntityRef {
	a := f.accs[name]
	return EntityRef{ID: a.ID, Name: a.Name}
}

func february2026() core.DateRange {
	return core.Month{Year: 2026, Month: time.February}.Range()
}

func TestExecute_TotalEmptyLedger(t *testing.T) {
	f := newFixture(t)
	res, err := NewExecutor(f.store).Execute(context.Background(), QueryPlan{Range: february2026(), Mode: ModeTotal, Intent: IntentBoth})
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.Zero(t, res.TotalExpenses.Cents)
	assert.Zero(t, res.TotalIncome.Cents)
	assert.Zero(t, res.Net.Cents)
}

func TestExecute_TotalRespectsHalfOpenRange(t *testing.T) {
	f := newFixture(t)
	f.expense("Food", "Card", "2026-01-31", "1.00")
	f.expense("Food", "Card", "2026-02-01", "10.00")
	f.expense("Food", "Card", "2026-02-28", "20.00")
	f.expense("Food", "Card", "2026-03-01", "100.00")

	res, err := NewExecutor(f.store).Execute(context.Background(), QueryPlan{Range: february2026(), Mode: ModeTotal, Intent: IntentExpense})
	require.NoError(t, err)
	assert.Equal(t, int64(3000), res.TotalExpenses.Cents)
	assert.Equal(t, 2, res.ExpenseCount)
	assert.Zero(t, res.IncomeCount, "income is not fetched for expense intent")
}

func TestExecute_DecimalSumsAreExact(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 10; i++ {
		f.expense("Food", "Cash", "2026-02-10", "0.10")
	}
	f.expense("Food", "Cash", "2026-02-11", "0.20")

	res, err := NewExecutor(f.store).Execute(context.Background(), QueryPlan{Range: february2026(), Mode: ModeTotal, Intent: IntentExpense})
	require.NoError(t, err)
	assert.Equal(t, "1.20", res.TotalExpenses.String())
}

func TestExecute_ByCategorySortedAndSumsToTotal(t *testing.T) {
	f := newFixture(t)
	f.expense("Travel", "Card", "2026-02-02", "30.00")
	f.expense("Food", "Card", "2026-02-03", "30.00")
	f.expense("Shopping", "UPI", "2026-02-04", "40.00")
	f.expense("Food", "Cash", "2026-02-05", "0.50")
	f.expense("Groceries", "Cash", "2026-02-06", "30.50")

	exec := NewExecutor(f.store)
	res, err := exec.Execute(context.Background(), QueryPlan{Range: february2026(), Mode: ModeByCategory, Intent: IntentExpense})
	require.NoError(t, err)

	var names []string
	var sum core.Money
	for _, g := range res.ExpenseGroups {
		names = append(names, g.Name)
		sum = sum.Add(g.Amount)
	}
	// Food and Groceries tie at 30.50 and sort by name.
	assert.Equal(t, []string{"Shopping", "Food", "Groceries", "Travel"}, names)
	assert.Equal(t, res.TotalExpenses, sum)

	total, err := exec.Execute(context.Background(), QueryPlan{Range: february2026(), Mode: ModeTotal, Intent: IntentExpense})
	require.NoError(t, err)
	assert.Equal(t, total.TotalExpenses, sum)

	assert.Equal(t, "30.53", res.ExpenseGroups[0].Percentage.String())
	assert.Equal(t, 2, res.ExpenseGroups[1].Count)
}

func TestExecute_ByAccount(t *testing.T) {
	f := newFixture(t)
	f.expense("Food", "Card", "2026-02-02", "25.00")
	f.expense("Travel", "Card", "2026-02-03", "25.00")
	f.expense("Food", "UPI", "2026-02-04", "50.00")

	res, err := NewExecutor(f.store).Execute(context.Background(), QueryPlan{Range: february2026(), Mode: ModeByAccount, Intent: IntentExpense})
	require.NoError(t, err)
	require.Len(t, res.ExpenseGroups, 2)
	assert.Equal(t, "Card", res.ExpenseGroups[0].Name)
	assert.Equal(t, "UPI", res.ExpenseGroups[1].Name)
	assert.Equal(t, "50", res.ExpenseGroups[0].Percentage.String())
}

func TestExecute_ByMonthZeroFillsGaps(t *testing.T) {
	f := newFixture(t)
	f.expense("Food", "Card", "2024-01-10", "100.00")
	f.expense("Travel", "Card", "2024-03-05", "50.00")
	f.income("Salary", "2024-03-01", "500.00")

	year := core.DateRange{Start: day("2024-01-01"), End: day("2025-01-01")}
	res, err := NewExecutor(f.store).Execute(context.Background(), QueryPlan{Range: year, Mode: ModeByMonth, Intent: IntentExpense})
	require.NoError(t, err)

	require.Len(t, res.Buckets, 12)
	assert.Equal(t, "2024-01", res.Buckets[0].Label)
	assert.Equal(t, "2024-02", res.Buckets[1].Label)
	assert.Equal(t, "2024-03", res.Buckets[2].Label)
	assert.Equal(t, "2024-12", res.Buckets[11].Label)
	assert.Equal(t, "100.00", res.Buckets[0].Expenses.String())
	assert.Equal(t, "0.00", res.Buckets[1].Expenses.String())
	assert.Equal(t, "50.00", res.Buckets[2].Expenses.String())
	// Months after the last activity are still in range.
	for _, b := range res.Buckets[3:] {
		assert.True(t, b.Expenses.IsZero(), b.Label)
	}

	var sum core.Money
	for _, b := range res.Buckets {
		sum = sum.Add(b.Expenses)
	}
	assert.Equal(t, res.TotalExpenses, sum)

	both, err := NewExecutor(f.store).Execute(context.Background(), QueryPlan{Range: year, Mode: ModeByMonth, Intent: IntentBoth})
	require.NoError(t, err)
	assert.Equal(t, "450.00", both.Buckets[2].Net.String())
	assert.Equal(t, "-100.00", both.Buckets[0].Net.String())
}

func TestExecute_ByWeekAndByDay(t *testing.T) {
	f := newFixture(t)
	f.expense("Food", "Card", "2026-02-10", "10.00") // Tuesday, W07
	f.expense("Food", "Card", "2026-02-23", "5.00")  // Monday, W09

	exec := NewExecutor(f.store)
	weeks, err := exec.Execute(context.Background(), QueryPlan{Range: february2026(), Mode: ModeByWeek, Intent: IntentExpense})
	require.NoError(t, err)
	// February 1st is a Sunday, so the first week starts in January.
	require.Len(t, weeks.Buckets, 5)
	assert.Equal(t, "2026-W05", weeks.Buckets[0].Label)
	assert.Equal(t, "2026-01-26", weeks.Buckets[0].Start.String())
	assert.Equal(t, "2026-W07", weeks.Buckets[2].Label)
	assert.Equal(t, "10.00", weeks.Buckets[2].Expenses.String())
	assert.True(t, weeks.Buckets[3].Expenses.IsZero())
	assert.Equal(t, "2026-W09", weeks.Buckets[4].Label)
	assert.Equal(t, "5.00", weeks.Buckets[4].Expenses.String())

	days, err := exec.Execute(context.Background(), QueryPlan{Range: february2026(), Mode: ModeByDay, Intent: IntentExpense})
	require.NoError(t, err)
	require.Len(t, days.Buckets, 28)
	assert.Equal(t, "2026-02-01", days.Buckets[0].Label)
	assert.Equal(t, "10.00", days.Buckets[9].Expenses.String())
	assert.Equal(t, "2026-02-28", days.Buckets[27].Label)
}

func TestExecute_SeriesBounds(t *testing.T) {
	f := newFixture(t)
	f.expense("Food", "Card", "2025-11-03", "20.00")
	f.expense("Food", "Card", "2026-01-15", "10.00")
	exec := NewExecutor(f.store)

	// Open start falls back to the first active month.
	open, err := exec.Execute(context.Background(), QueryPlan{
		Range: core.DateRange{End: day("2026-03-01")}, Mode: ModeByMonth, Intent: IntentExpense,
	})
	require.NoError(t, err)
	require.Len(t, open.Buckets, 4)
	assert.Equal(t, "2025-11", open.Buckets[0].Label)
	assert.Equal(t, "2026-02", open.Buckets[3].Label)

	all, err := exec.Execute(context.Background(), QueryPlan{Range: core.AllTime, Mode: ModeByMonth, Intent: IntentExpense})
	require.NoError(t, err)
	require.Len(t, all.Buckets, 3)
	assert.Equal(t, "2026-01", all.Buckets[2].Label)

	// A bounded range with no activity still yields zero buckets.
	quiet, err := exec.Execute(context.Background(), QueryPlan{Range: february2026(), Mode: ModeByMonth, Intent: IntentExpense})
	require.NoError(t, err)
	require.Len(t, quiet.Buckets, 1)
	assert.True(t, quiet.Buckets[0].Expenses.IsZero())

	_, err = exec.Execute(context.Background(), QueryPlan{
		Range: core.DateRange{Start: day("1900-01-01"), End: day("2026-03-01")}, Mode: ModeByDay, Intent: IntentExpense,
	})
	assert.ErrorIs(t, err, core.ErrInvalidRange)
}

func TestExecute_FiltersByKindAndAccount(t *testing.T) {
	f := newFixture(t)
	f.expense("Food", "Card", "2026-02-02", "10.00")
	f.expense("Food", "Cash", "2026-02-03", "20.00")
	f.expense("Travel", "Cash", "2026-02-04", "40.00")
	f.income("Salary", "2026-02-01", "1000.00")
	f.income("Cash", "2026-02-05", "50.00")

	exec := NewExecutor(f.store)
	res, err := exec.Execute(context.Background(), QueryPlan{
		Range:       february2026(),
		EntityGroup: EntityGroup{Categories: []EntityRef{f.ref("Food")}, Accounts: []EntityRef{f.account("Cash")}},
		Mode:        ModeTotal,
		Intent:      IntentExpense,
	})
	require.NoError(t, err)
	assert.Equal(t, "20.00", res.TotalExpenses.String())

	// An expense category does not restrict income, and vice versa.
	res, err = exec.Execute(context.Background(), QueryPlan{
		Range:       february2026(),
		EntityGroup: EntityGroup{Categories: []EntityRef{f.ref("Food"), f.ref("Salary")}},
		Mode:        ModeTotal,
		Intent:      IntentBoth,
	})
	require.NoError(t, err)
	assert.Equal(t, "30.00", res.TotalExpenses.String())
	assert.Equal(t, "1000.00", res.TotalIncome.String())
	assert.Equal(t, "970.00", res.Net.String())
}

func TestExecute_ExcludeCarryforward(t *testing.T) {
	f := newFixture(t)
	f.income("Salary", "2026-02-01", "100.00")
	_, err := f.store.InsertCarryforward(context.Background(),
		core.NewCarryforwardPosting(core.Month{Year: 2026, Month: time.January}, core.Money{Cents: 2500}))
	require.NoError(t, err)

	exec := NewExecutor(f.store)
	plan := QueryPlan{Range: february2026(), Mode: ModeTotal, Intent: IntentIncome}
	res, err := exec.Execute(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, "125.00", res.TotalIncome.String())

	plan.ExcludeCarryforward = true
	res, err = exec.Execute(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, "100.00", res.TotalIncome.String())
}

func TestExecute_Comparison(t *testing.T) {
	f := newFixture(t)
	f.expense("Food", "Card", "2026-02-02", "80.00")
	f.expense("Travel", "Card", "2026-02-03", "120.00")
	f.expense("Shopping", "Card", "2026-02-04", "5.00")
	f.income("Salary", "2026-02-01", "900.00")

	res, err := NewExecutor(f.store).Execute(context.Background(), QueryPlan{
		Range:  february2026(),
		Mode:   ModeComparison,
		Intent: IntentExpense,
		Comparison: []EntityGroup{
			{Categories: []EntityRef{f.ref("Food")}},
			{Categories: []EntityRef{f.ref("Travel")}},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Comparison, 2)
	assert.Equal(t, "Food", res.Comparison[0].Label)
	assert.Equal(t, "80.00", res.Comparison[0].Amount().String())
	assert.Equal(t, "Travel", res.Comparison[1].Label)
	assert.Equal(t, "120.00", res.Comparison[1].Amount().String())
	assert.Equal(t, "200.00", res.TotalExpenses.String())

	// An income-only side reports income even under expense intent.
	res, err = NewExecutor(f.store).Execute(context.Background(), QueryPlan{
		Range:  february2026(),
		Mode:   ModeComparison,
		Intent: IntentExpense,
		Comparison: []EntityGroup{
			{Categories: []EntityRef{f.ref("Salary")}},
			{Categories: []EntityRef{f.ref("Food")}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, IntentIncome, res.Comparison[0].Intent)
	assert.Equal(t, "900.00", res.Comparison[0].Amount().String())
}

func TestExecute_InvalidRange(t *testing.T) {
	f := newFixture(t)
	_, err := NewExecutor(f.store).Execute(context.Background(), QueryPlan{
		Range: core.DateRange{Start: day("2026-03-01"), End: day("2026-02-01")},
		Mode:  ModeTotal,
	})
	assert.ErrorIs(t, err, core.ErrInvalidRange)
}

type failingLedger struct{ err error }

func (l failingLedger) FetchExpenses(context.Context, ledger.ExpenseFilter) ([]core.Transaction, error) {
	return nil, l.err
}

func (l failingLedger) FetchIncome(context.Context, ledger.IncomeFilter) ([]core.Transaction, error) {
	return nil, l.err
}

func TestExecute_PropagatesLedgerErrors(t *testing.T) {
	boom := errors.New("disk on fire")
	_, err := NewExecutor(failingLedger{err: boom}).Execute(context.Background(), QueryPlan{Mode: ModeTotal, Intent: IntentBoth})
	assert.ErrorIs(t, err, boom)
}

type countingRunner struct {
	calls int32
	next  Runner
}

func (c *countingRunner) Execute(ctx context.Context, plan QueryPlan) (Result, error) {
	atomic.AddInt32(&c.calls, 1)
	return c.next.Execute(ctx, plan)
}

func TestCachedExecutor(t *testing.T) {
	f := newFixture(t)
	f.expense("Food", "Card", "2026-02-02", "80.00")

	counting := &countingRunner{next: NewExecutor(f.store)}
	cached, _ := NewCachedExecutor(counting, 16, time.Minute)
	plan := QueryPlan{Range: february2026(), Mode: ModeTotal, Intent: IntentExpense}

	for i := 0; i < 3; i++ {
		res, err := cached.Execute(context.Background(), plan)
		require.NoError(t, err)
		assert.Equal(t, "80.00", res.TotalExpenses.String())
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&counting.calls))

	f.expense("Food", "Card", "2026-02-03", "20.00")
	cached.Purge()
	res, err := cached.Execute(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, "100.00", res.TotalExpenses.String())
	assert.Equal(t, int32(2), atomic.LoadInt32(&counting.calls))
}

func TestCachedExecutor_Invalidate(t *testing.T) {
	f := newFixture(t)
	f.expense("Food", "Card", "2026-02-02", "80.00")

	counting := &countingRunner{next: NewExecutor(f.store)}
	cached, _ := NewCachedExecutor(counting, 16, time.Minute)
	total := QueryPlan{Range: february2026(), Mode: ModeTotal, Intent: IntentExpense}
	byCat := QueryPlan{Range: february2026(), Mode: ModeByCategory, Intent: IntentExpense}

	for _, p := range []QueryPlan{total, byCat} {
		_, err := cached.Execute(context.Background(), p)
		require.NoError(t, err)
	}
	cached.Invalidate(total.Key())
	for _, p := range []QueryPlan{total, byCat} {
		_, err := cached.Execute(context.Background(), p)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&counting.calls))
}
