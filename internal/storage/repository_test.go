package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/core"
	"conti/internal/ledger"
)

func newRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "conti.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func categoryID(t *testing.T, repo *SQLiteRepository, name string) int64 {
	t.Helper()
	cats, err := repo.ListCategories(context.Background(), "")
	require.NoError(t, err)
	for _, c := range cats {
		if c.Name == name {
			return c.ID
		}
	}
	t.Fatalf("category %q not seeded", name)
	return 0
}

func accountID(t *testing.T, repo *SQLiteRepository, name string) int64 {
	t.Helper()
	accs, err := repo.ListAccountTypes(context.Background())
	require.NoError(t, err)
	for _, a := range accs {
		if a.Name == name {
			return a.ID
		}
	}
	t.Fatalf("account %q not seeded", name)
	return 0
}

func mustDate(t *testing.T, s string) core.Date {
	t.Helper()
	d, err := core.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestMigrationsSeedDefaults(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	expense, err := repo.ListCategories(ctx, core.KindExpense)
	require.NoError(t, err)
	income, err := repo.ListCategories(ctx, core.KindIncome)
	require.NoError(t, err)
	accounts, err := repo.ListAccountTypes(ctx)
	require.NoError(t, err)

	assert.Len(t, expense, 5)
	assert.Len(t, income, 4)
	assert.Len(t, accounts, 3)
	for _, c := range append(expense, income...) {
		assert.True(t, c.IsDefault, c.Name)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conti.db")
	require.NoError(t, RunMigrations(DSN(path)))
	require.NoError(t, RunMigrations(DSN(path)))

	repo, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	defer repo.Close()

	cats, err := repo.ListCategories(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, cats, 9)
}

func TestInsertAndFetchExpenses(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	food := categoryID(t, repo, "Food")
	travel := categoryID(t, repo, "Travel")
	card := accountID(t, repo, "Card")
	upi := accountID(t, repo, "UPI")

	for _, e := range []core.Transaction{
		{Date: mustDate(t, "2026-01-31"), Amount: core.Money{Cents: 1000}, CategoryID: food, AccountID: card},
		{Date: mustDate(t, "2026-02-01"), Amount: core.Money{Cents: 2000}, CategoryID: food, AccountID: upi, Notes: "lunch"},
		{Date: mustDate(t, "2026-02-28"), Amount: core.Money{Cents: 3000}, CategoryID: travel, AccountID: card},
		{Date: mustDate(t, "2026-03-01"), Amount: core.Money{Cents: 4000}, CategoryID: food, AccountID: card},
	} {
		_, err := repo.InsertExpense(ctx, e)
		require.NoError(t, err)
	}

	feb := core.Month{Year: 2026, Month: 2}.Range()
	got, err := repo.FetchExpenses(ctx, ledger.ExpenseFilter{Range: feb})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2026-02-01", got[0].Date.String())
	assert.Equal(t, "Food", got[0].Category)
	assert.Equal(t, "UPI", got[0].Account)
	assert.Equal(t, "lunch", got[0].Notes)
	assert.Equal(t, "2026-02-28", got[1].Date.String())

	got, err = repo.FetchExpenses(ctx, ledger.ExpenseFilter{Range: feb, CategoryIDs: []int64{food}})
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = repo.FetchExpenses(ctx, ledger.ExpenseFilter{AccountIDs: []int64{card}})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = repo.FetchExpenses(ctx, ledger.ExpenseFilter{Range: core.AllTime, CategoryIDs: []int64{food, travel}, AccountIDs: []int64{upi}})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestInsertExpense_RejectsUnknownReferences(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	food := categoryID(t, repo, "Food")
	salary := categoryID(t, repo, "Salary")
	card := accountID(t, repo, "Card")
	d := mustDate(t, "2026-02-01")

	_, err := repo.InsertExpense(ctx, core.Transaction{Date: d, Amount: core.Money{Cents: 1}, CategoryID: 999, AccountID: card})
	assert.ErrorIs(t, err, core.ErrUnknownCategory)

	_, err = repo.InsertExpense(ctx, core.Transaction{Date: d, Amount: core.Money{Cents: 1}, CategoryID: salary, AccountID: card})
	assert.ErrorIs(t, err, core.ErrUnknownCategory)

	_, err = repo.InsertExpense(ctx, core.Transaction{Date: d, Amount: core.Money{Cents: 1}, CategoryID: food, AccountID: 999})
	assert.ErrorIs(t, err, core.ErrUnknownAccount)

	_, err = repo.InsertExpense(ctx, core.Transaction{Date: d, Amount: core.Money{Cents: 0}, CategoryID: food, AccountID: card})
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
}

func TestInsertIncome_RejectsCarryforwardCategory(t *testing.T) {
	repo := newRepo(t)
	_, err := repo.InsertIncome(context.Background(), core.Transaction{
		Date:       mustDate(t, "2026-02-01"),
		Amount:     core.Money{Cents: 100},
		CategoryID: categoryID(t, repo, core.CarryforwardCategory),
	})
	assert.ErrorIs(t, err, core.ErrUnknownCategory)
}

func TestBudgets(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	food := categoryID(t, repo, "Food")

	b, err := core.NewBudget(food, core.Money{Cents: 50000}, mustDate(t, "2026-02-01"), core.Date{})
	require.NoError(t, err)
	created, err := repo.CreateBudget(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, "Food", created.Category)

	got, err := repo.GetBudget(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-02-28", got.EndDate.String())
	assert.Equal(t, int64(50000), got.AmountLimit.Cents)

	all, err := repo.ListBudgets(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = repo.GetBudget(ctx, created.ID+1)
	assert.ErrorIs(t, err, core.ErrNotFound)

	b.CategoryID = categoryID(t, repo, "Salary")
	_, err = repo.CreateBudget(ctx, b)
	assert.ErrorIs(t, err, core.ErrUnknownCategory)
}

func TestCarryforward_InsertOnce(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	feb := core.Month{Year: 2026, Month: 2}

	p, err := repo.InsertCarryforward(ctx, core.NewCarryforwardPosting(feb, core.Money{Cents: -2500}))
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01", p.Date.String())
	assert.Equal(t, "2026-03", p.TargetMonth.String())
	assert.Equal(t, int64(-2500), p.Amount.Cents)
	assert.False(t, p.CreatedAt.IsZero())

	_, err = repo.InsertCarryforward(ctx, core.NewCarryforwardPosting(feb, core.Money{Cents: 999}))
	assert.ErrorIs(t, err, core.ErrAlreadyCarried)

	found, ok, err := repo.FindCarryforward(ctx, feb)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, p.ID, found.ID)

	byID, err := repo.GetCarryforward(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.IdempotencyKey, byID.IdempotencyKey)

	_, ok, err = repo.FindCarryforward(ctx, feb.Next())
	require.NoError(t, err)
	assert.False(t, ok)

	income, err := repo.FetchIncome(ctx, ledger.IncomeFilter{Range: feb.Next().Range()})
	require.NoError(t, err)
	require.Len(t, income, 1)
	assert.True(t, income[0].Carryforward)
	assert.Equal(t, core.CarryforwardCategory, income[0].Category)

	income, err = repo.FetchIncome(ctx, ledger.IncomeFilter{Range: feb.Next().Range(), ExcludeCarryforward: true})
	require.NoError(t, err)
	assert.Empty(t, income)
}

func TestCarryforward_ConcurrentWritersPostOnce(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	jan := core.Month{Year: 2026, Month: 1}

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := range writers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = repo.InsertCarryforward(ctx, core.NewCarryforwardPosting(jan, core.Money{Cents: 100}))
		}(i)
	}
	wg.Wait()

	var ok, carried int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, core.ErrAlreadyCarried):
			carried++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, writers-1, carried)

	income, err := repo.FetchIncome(ctx, ledger.IncomeFilter{Range: jan.Next().Range()})
	require.NoError(t, err)
	assert.Len(t, income, 1)
}

func TestGetCarryforward_IgnoresRegularIncome(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	in, err := repo.InsertIncome(ctx, core.Transaction{
		Date:       mustDate(t, "2026-02-01"),
		Amount:     core.Money{Cents: 100},
		CategoryID: categoryID(t, repo, "Salary"),
	})
	require.NoError(t, err)

	_, err = repo.GetCarryforward(ctx, in.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	require.NoError(t, repo.Ping(ctx))
}
