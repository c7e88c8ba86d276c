package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/core"
	"conti/internal/ledger/memory"
)

func TestLedgerService_CreateExpenseResolvesNames(t *testing.T) {
	store := memory.New()
	purger := &purgeCounter{}
	svc := NewLedgerService(store, store, purger)

	tx, err := svc.CreateExpense(context.Background(), ExpenseInput{
		Date:     date(t, "2026-02-17"),
		Amount:   core.Money{Cents: 5000},
		Category: " FOOD ",
		Account:  "upi",
		Notes:    "  lunch ",
	})
	require.NoError(t, err)
	assert.Equal(t, "Food", tx.Category)
	assert.Equal(t, "UPI", tx.Account)
	assert.Equal(t, "lunch", tx.Notes)
	assert.Equal(t, 1, purger.count)
}

func TestLedgerService_Rejections(t *testing.T) {
	store := memory.New()
	svc := NewLedgerService(store, store, nil)
	ctx := context.Background()

	_, err := svc.CreateExpense(ctx, ExpenseInput{Date: date(t, "2026-02-17"), Amount: core.Money{Cents: 1}, Category: "Salary", Account: "Card"})
	assert.ErrorIs(t, err, core.ErrUnknownCategory)

	_, err = svc.CreateExpense(ctx, ExpenseInput{Date: date(t, "2026-02-17"), Amount: core.Money{Cents: 1}, Category: "Food", Account: "Wallet"})
	assert.ErrorIs(t, err, core.ErrUnknownAccount)

	_, err = svc.CreateExpense(ctx, ExpenseInput{Date: date(t, "2026-02-17"), Amount: core.Money{}, Category: "Food", Account: "Card"})
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	_, err = svc.CreateIncome(ctx, IncomeInput{Date: date(t, "2026-02-17"), Amount: core.Money{Cents: 1}, Category: "carryforward"})
	assert.ErrorIs(t, err, core.ErrUnknownCategory)

	_, err = svc.Categories(ctx, "savings")
	assert.ErrorIs(t, err, core.ErrUnknownCategory)
}

func TestLedgerService_Registries(t *testing.T) {
	store := memory.New()
	svc := NewLedgerService(store, store, nil)

	income, err := svc.Categories(context.Background(), core.KindIncome)
	require.NoError(t, err)
	var names []string
	for _, c := range income {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "Salary")
	assert.Contains(t, names, core.CarryforwardCategory)
	assert.NotContains(t, names, "Food")

	accs, err := svc.AccountTypes(context.Background())
	require.NoError(t, err)
	assert.Len(t, accs, 3)
}
