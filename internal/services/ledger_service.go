package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"conti/internal/cache"
	"conti/internal/core"
	"conti/internal/ledger"
)

// ExpenseInput is an expense as entered by a user, naming its category
// and account type.
type ExpenseInput struct {
	Date     core.Date
	Amount   core.Money
	Category string
	Account  string
	Notes    string
}

type IncomeInput struct {
	Date     core.Date
	Amount   core.Money
	Category string
	Notes    string
}

// LedgerService records transactions and invalidates cached analytics
// after every write.
type LedgerService struct {
	registry ledger.Registry
	writer   ledger.Writer
	purger   cache.Purger
}

// NewLedgerService wires the registry and writer. purger may be nil.
func NewLedgerService(registry ledger.Registry, writer ledger.Writer, purger cache.Purger) *LedgerService {
	return &LedgerService{registry: registry, writer: writer, purger: purger}
}

func (s *LedgerService) CreateExpense(ctx context.Context, in ExpenseInput) (core.Transaction, error) {
	cat, err := findCategory(ctx, s.registry, in.Category, core.KindExpense)
	if err != nil {
		return core.Transaction{}, err
	}
	acc, err := findAccount(ctx, s.registry, in.Account)
	if err != nil {
		return core.Transaction{}, err
	}
	t := core.Transaction{
		Kind:       core.KindExpense,
		Date:       in.Date,
		Amount:     in.Amount,
		CategoryID: cat.ID,
		AccountID:  acc.ID,
		Notes:      strings.TrimSpace(in.Notes),
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	t, err = s.writer.InsertExpense(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save expense: %w", err)
	}
	s.invalidate()
	slog.InfoContext(ctx, "Expense recorded",
		"id", t.ID,
		"date", t.Date.String(),
		"amount_cents", t.Amount.Cents,
		"category", cat.Name,
		"account", acc.Name)
	return t, nil
}

// CreateIncome rejects the reserved carryforward category, which only the
// carryforward engine may post to.
func (s *LedgerService) CreateIncome(ctx context.Context, in IncomeInput) (core.Transaction, error) {
	if strings.EqualFold(strings.TrimSpace(in.Category), core.CarryforwardCategory) {
		return core.Transaction{}, fmt.Errorf("%w: %q is reserved", core.ErrUnknownCategory, core.CarryforwardCategory)
	}
	cat, err := findCategory(ctx, s.registry, in.Category, core.KindIncome)
	if err != nil {
		return core.Transaction{}, err
	}
	t := core.Transaction{
		Kind:       core.KindIncome,
		Date:       in.Date,
		Amount:     in.Amount,
		CategoryID: cat.ID,
		Notes:      strings.TrimSpace(in.Notes),
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	t, err = s.writer.InsertIncome(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save income: %w", err)
	}
	s.invalidate()
	slog.InfoContext(ctx, "Income recorded",
		"id", t.ID,
		"date", t.Date.String(),
		"amount_cents", t.Amount.Cents,
		"category", cat.Name)
	return t, nil
}

func (s *LedgerService) Categories(ctx context.Context, kind core.CategoryKind) ([]core.Category, error) {
	if kind != "" && !kind.Valid() {
		return nil, fmt.Errorf("%w: invalid kind %q", core.ErrUnknownCategory, kind)
	}
	return s.registry.ListCategories(ctx, kind)
}

func (s *LedgerService) AccountTypes(ctx context.Context) ([]core.AccountType, error) {
	return s.registry.ListAccountTypes(ctx)
}

func (s *LedgerService) invalidate() {
	if s.purger != nil {
		s.purger.Purge()
	}
}
