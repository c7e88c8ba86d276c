// Package memory is an in-process ledger.Store used by tests and by the
// memory backend.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"conti/internal/core"
	"conti/internal/ledger"
)

var _ ledger.Store = (*Store)(nil)

var (
	defaultExpenseCategories = []string{"Food", "Travel", "Groceries", "Shopping", "Other"}
	defaultIncomeCategories  = []string{"Salary", "Cash", "Other Income", core.CarryforwardCategory}
	defaultAccounts          = []string{"Cash", "Card", "UPI"}
)

type Store struct {
	mu         sync.Mutex
	nextID     int64
	categories []core.Category
	accounts   []core.AccountType
	expenses   []core.Transaction
	income     []core.Transaction
	budgets    []core.Budget
	postings   map[string]core.CarryforwardPosting
}

// New returns a store seeded with the default registries.
func New() *Store {
	s := &Store{postings: make(map[string]core.CarryforwardPosting)}
	for _, name := range defaultExpenseCategories {
		s.addCategory(name, core.KindExpense, true)
	}
	for _, name := range defaultIncomeCategories {
		s.addCategory(name, core.KindIncome, true)
	}
	for _, name := range defaultAccounts {
		s.addAccount(name, true)
	}
	return s
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) addCategory(name string, kind core.CategoryKind, isDefault bool) core.Category {
	c := core.Category{ID: s.id(), Name: name, Kind: kind, IsDefault: isDefault}
	s.categories = append(s.categories, c)
	return c
}

// AddCategory registers a non-default category. Names are unique
// case-insensitively.
func (s *Store) AddCategory(name string, kind core.CategoryKind) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categoryByName(name); ok {
		return core.Category{}, fmt.Errorf("category %q already exists", name)
	}
	return s.addCategory(name, kind, false), nil
}

// AddAccountType registers a non-default account type.
func (s *Store) AddAccountType(name string) core.AccountType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addAccount(name, false)
}

func (s *Store) addAccount(name string, isDefault bool) core.AccountType {
	a := core.AccountType{ID: s.id(), Name: name, IsDefault: isDefault}
	s.accounts = append(s.accounts, a)
	return a
}

func (s *Store) categoryByName(name string) (core.Category, bool) {
	for _, c := range s.categories {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return core.Category{}, false
}

func (s *Store) category(id int64) (core.Category, bool) {
	for _, c := range s.categories {
		if c.ID == id {
			return c, true
		}
	}
	return core.Category{}, false
}

func (s *Store) account(id int64) (core.AccountType, bool) {
	for _, a := range s.accounts {
		if a.ID == id {
			return a, true
		}
	}
	return core.AccountType{}, false
}

func (s *Store) FetchExpenses(_ context.Context, f ledger.ExpenseFilter) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, t := range s.expenses {
		if !f.Range.Contains(t.Date) {
			continue
		}
		if len(f.CategoryIDs) > 0 && !slices.Contains(f.CategoryIDs, t.CategoryID) {
			continue
		}
		if len(f.AccountIDs) > 0 && !slices.Contains(f.AccountIDs, t.AccountID) {
			continue
		}
		out = append(out, t)
	}
	sortByDate(out)
	return out, nil
}

func (s *Store) FetchIncome(_ context.Context, f ledger.IncomeFilter) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, t := range s.income {
		if !f.Range.Contains(t.Date) {
			continue
		}
		if len(f.CategoryIDs) > 0 && !slices.Contains(f.CategoryIDs, t.CategoryID) {
			continue
		}
		if f.ExcludeCarryforward && t.Carryforward {
			continue
		}
		out = append(out, t)
	}
	sortByDate(out)
	return out, nil
}

func sortByDate(ts []core.Transaction) {
	sort.SliceStable(ts, func(i, j int) bool {
		if !ts[i].Date.Equal(ts[j].Date.Time) {
			return ts[i].Date.Before(ts[j].Date.Time)
		}
		return ts[i].ID < ts[j].ID
	})
}

func (s *Store) ListCategories(_ context.Context, kind core.CategoryKind) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Category
	for _, c := range s.categories {
		if kind == "" || c.Kind == kind {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) ListAccountTypes(_ context.Context) ([]core.AccountType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.accounts), nil
}

func (s *Store) InsertExpense(_ context.Context, t core.Transaction) (core.Transaction, error) {
	t.Kind = core.KindExpense
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.category(t.CategoryID)
	if !ok || c.Kind != core.KindExpense {
		return core.Transaction{}, core.ErrUnknownCategory
	}
	a, ok := s.account(t.AccountID)
	if !ok {
		return core.Transaction{}, core.ErrUnknownAccount
	}
	t.ID = s.id()
	t.Category = c.Name
	t.Account = a.Name
	s.expenses = append(s.expenses, t)
	return t, nil
}

func (s *Store) InsertIncome(_ context.Context, t core.Transaction) (core.Transaction, error) {
	t.Kind = core.KindIncome
	t.AccountID = 0
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.category(t.CategoryID)
	if !ok || c.Kind != core.KindIncome || c.Name == core.CarryforwardCategory {
		return core.Transaction{}, core.ErrUnknownCategory
	}
	t.ID = s.id()
	t.Category = c.Name
	s.income = append(s.income, t)
	return t, nil
}

func (s *Store) CreateBudget(_ context.Context, b core.Budget) (core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.category(b.CategoryID)
	if !ok || c.Kind != core.KindExpense {
		return core.Budget{}, core.ErrUnknownCategory
	}
	b.ID = s.id()
	b.Category = c.Name
	s.budgets = append(s.budgets, b)
	return b, nil
}

func (s *Store) GetBudget(_ context.Context, id int64) (core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.budgets {
		if b.ID == id {
			return b, nil
		}
	}
	return core.Budget{}, fmt.Errorf("budget %d: %w", id, core.ErrNotFound)
}

func (s *Store) ListBudgets(_ context.Context) ([]core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.budgets), nil
}

// InsertCarryforward checks and inserts under one lock, which is the
// in-memory equivalent of the SQLite conditional insert.
func (s *Store) InsertCarryforward(_ context.Context, p core.CarryforwardPosting) (core.CarryforwardPosting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.postings[p.IdempotencyKey]; exists {
		return core.CarryforwardPosting{}, core.ErrAlreadyCarried
	}
	c, ok := s.categoryByName(core.CarryforwardCategory)
	if !ok {
		return core.CarryforwardPosting{}, fmt.Errorf("reserved category %q missing", core.CarryforwardCategory)
	}
	p.ID = s.id()
	p.CreatedAt = time.Now().UTC()
	s.postings[p.IdempotencyKey] = p
	s.income = append(s.income, core.Transaction{
		ID:           p.ID,
		Kind:         core.KindIncome,
		Date:         p.Date,
		Amount:       p.Amount,
		CategoryID:   c.ID,
		Category:     c.Name,
		Notes:        p.Notes,
		Carryforward: true,
	})
	return p, nil
}

func (s *Store) FindCarryforward(_ context.Context, source core.Month) (core.CarryforwardPosting, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.postings[core.CarryforwardKey(source)]
	return p, ok, nil
}

func (s *Store) GetCarryforward(_ context.Context, id int64) (core.CarryforwardPosting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.postings {
		if p.ID == id {
			return p, nil
		}
	}
	return core.CarryforwardPosting{}, fmt.Errorf("carryforward %d: %w", id, core.ErrNotFound)
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
