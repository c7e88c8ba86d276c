// Package ledger declares the store-facing ports consumed by the
// analytics engine and the budget and carryforward services.
package ledger

import (
	"context"

	"conti/internal/core"
)

// ExpenseFilter narrows an expense fetch. Empty ID slices mean no
// restriction on that dimension.
type ExpenseFilter struct {
	Range       core.DateRange
	CategoryIDs []int64
	AccountIDs  []int64
}

// IncomeFilter narrows an income fetch.
type IncomeFilter struct {
	Range               core.DateRange
	CategoryIDs         []int64
	ExcludeCarryforward bool
}

// Ports for the ledger store.
type (
	// Accessor is the read surface the aggregation executor runs against.
	// It always returns the full filtered set for the range.
	Accessor interface {
		FetchExpenses(ctx context.Context, f ExpenseFilter) ([]core.Transaction, error)
		FetchIncome(ctx context.Context, f IncomeFilter) ([]core.Transaction, error)
	}

	// Registry lists known categories and account types. An empty kind
	// lists every category.
	Registry interface {
		ListCategories(ctx context.Context, kind core.CategoryKind) ([]core.Category, error)
		ListAccountTypes(ctx context.Context) ([]core.AccountType, error)
	}

	Writer interface {
		InsertExpense(ctx context.Context, t core.Transaction) (core.Transaction, error)
		InsertIncome(ctx context.Context, t core.Transaction) (core.Transaction, error)
	}

	BudgetStore interface {
		CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error)
		GetBudget(ctx context.Context, id int64) (core.Budget, error)
		ListBudgets(ctx context.Context) ([]core.Budget, error)
	}

	// CarryforwardStore persists carryforward postings. InsertCarryforward
	// must be a single conditional write: when a posting with the same
	// idempotency key exists it fails with core.ErrAlreadyCarried and
	// leaves the ledger untouched.
	CarryforwardStore interface {
		InsertCarryforward(ctx context.Context, p core.CarryforwardPosting) (core.CarryforwardPosting, error)
		FindCarryforward(ctx context.Context, source core.Month) (core.CarryforwardPosting, bool, error)
		GetCarryforward(ctx context.Context, id int64) (core.CarryforwardPosting, error)
	}

	// Store is everything a backend provides.
	Store interface {
		Accessor
		Registry
		Writer
		BudgetStore
		CarryforwardStore
		Ping(ctx context.Context) error
		Close() error
	}
)
