package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"conti/internal/core"
	"conti/internal/ledger"

	_ "modernc.org/sqlite"
)

var _ ledger.Store = (*SQLiteRepository)(nil)

const timestampLayout = "2006-01-02 15:04:05"

const (
	selectExpenses = `
SELECT e.id, e.date, e.amount_cents, e.category_id, c.name, e.account_type_id, a.name, e.notes
FROM expenses e
JOIN categories c ON c.id = e.category_id
JOIN account_types a ON a.id = e.account_type_id
WHERE 1 = 1`

	selectIncome = `
SELECT i.id, i.date, i.amount_cents, i.category_id, c.name, i.notes, i.idempotency_key IS NOT NULL
FROM income i
JOIN categories c ON c.id = i.category_id
WHERE 1 = 1`

	selectBudgets = `
SELECT b.id, b.category_id, c.name, b.amount_limit_cents, b.start_date, b.end_date
FROM budgets b
JOIN categories c ON c.id = b.category_id`

	selectCarryforward = `
SELECT id, source_month, amount_cents, date, notes, idempotency_key, created_at
FROM income
WHERE idempotency_key IS NOT NULL`

	// The WHERE clause on the SELECT is required by SQLite to parse the
	// upsert clause of an INSERT ... SELECT.
	insertCarryforward = `
INSERT INTO income (date, amount_cents, category_id, notes, source_month, idempotency_key)
SELECT ?, ?, id, ?, ?, ? FROM categories WHERE name = ? AND kind = 'income'
ON CONFLICT(idempotency_key) DO NOTHING`
)

// SQLiteRepository is the durable ledger.Store. Dates are stored as
// YYYY-MM-DD text and amounts as integer cents.
type SQLiteRepository struct {
	db *sql.DB
}

// DSN builds the modernc connection string for a database file with
// foreign keys enforced and a busy timeout for concurrent writers.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("SQLite repository ready", "path", dbPath)
	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// where accumulates AND clauses and their arguments.
type where struct {
	sb   strings.Builder
	args []any
}

func (w *where) add(clause string, args ...any) {
	w.sb.WriteString(" AND ")
	w.sb.WriteString(clause)
	w.args = append(w.args, args...)
}

func (w *where) dateRange(col string, rng core.DateRange) {
	if !rng.Start.IsZero() {
		w.add(col+" >= ?", rng.Start.String())
	}
	if !rng.End.IsZero() {
		w.add(col+" < ?", rng.End.String())
	}
}

func (w *where) in(col string, ids []int64) {
	if len(ids) == 0 {
		return
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	w.add(col+" IN ("+marks+")", args...)
}

func (r *SQLiteRepository) FetchExpenses(ctx context.Context, f ledger.ExpenseFilter) ([]core.Transaction, error) {
	var w where
	w.dateRange("e.date", f.Range)
	w.in("e.category_id", f.CategoryIDs)
	w.in("e.account_type_id", f.AccountIDs)

	rows, err := r.db.QueryContext(ctx, selectExpenses+w.sb.String()+" ORDER BY e.date, e.id", w.args...)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t := core.Transaction{Kind: core.KindExpense}
		var date string
		if err := rows.Scan(&t.ID, &date, &t.Amount.Cents, &t.CategoryID, &t.Category, &t.AccountID, &t.Account, &t.Notes); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		if t.Date, err = core.ParseDate(date); err != nil {
			return nil, fmt.Errorf("expense %d: %w", t.ID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) FetchIncome(ctx context.Context, f ledger.IncomeFilter) ([]core.Transaction, error) {
	var w where
	w.dateRange("i.date", f.Range)
	w.in("i.category_id", f.CategoryIDs)
	if f.ExcludeCarryforward {
		w.add("i.idempotency_key IS NULL")
	}

	rows, err := r.db.QueryContext(ctx, selectIncome+w.sb.String()+" ORDER BY i.date, i.id", w.args...)
	if err != nil {
		return nil, fmt.Errorf("query income: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t := core.Transaction{Kind: core.KindIncome}
		var date string
		if err := rows.Scan(&t.ID, &date, &t.Amount.Cents, &t.CategoryID, &t.Category, &t.Notes, &t.Carryforward); err != nil {
			return nil, fmt.Errorf("scan income: %w", err)
		}
		if t.Date, err = core.ParseDate(date); err != nil {
			return nil, fmt.Errorf("income %d: %w", t.ID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, kind core.CategoryKind) ([]core.Category, error) {
	query := "SELECT id, name, kind, is_default FROM categories"
	var args []any
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, string(kind))
	}
	rows, err := r.db.QueryContext(ctx, query+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		var k string
		if err := rows.Scan(&c.ID, &c.Name, &k, &c.IsDefault); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Kind = core.CategoryKind(k)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ListAccountTypes(ctx context.Context) ([]core.AccountType, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, name, is_default FROM account_types ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query account types: %w", err)
	}
	defer rows.Close()

	var out []core.AccountType
	for rows.Next() {
		var a core.AccountType
		if err := rows.Scan(&a.ID, &a.Name, &a.IsDefault); err != nil {
			return nil, fmt.Errorf("scan account type: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) category(ctx context.Context, id int64) (core.Category, error) {
	var c core.Category
	var k string
	err := r.db.QueryRowContext(ctx, "SELECT id, name, kind, is_default FROM categories WHERE id = ?", id).
		Scan(&c.ID, &c.Name, &k, &c.IsDefault)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, fmt.Errorf("category %d: %w", id, core.ErrUnknownCategory)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("lookup category: %w", err)
	}
	c.Kind = core.CategoryKind(k)
	return c, nil
}

func (r *SQLiteRepository) accountName(ctx context.Context, id int64) (string, error) {
	var name string
	err := r.db.QueryRowContext(ctx, "SELECT name FROM account_types WHERE id = ?", id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("account type %d: %w", id, core.ErrUnknownAccount)
	}
	if err != nil {
		return "", fmt.Errorf("lookup account type: %w", err)
	}
	return name, nil
}

func (r *SQLiteRepository) InsertExpense(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	t.Kind = core.KindExpense
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	c, err := r.category(ctx, t.CategoryID)
	if err != nil {
		return core.Transaction{}, err
	}
	if c.Kind != core.KindExpense {
		return core.Transaction{}, fmt.Errorf("%q is an income category: %w", c.Name, core.ErrUnknownCategory)
	}
	if t.Account, err = r.accountName(ctx, t.AccountID); err != nil {
		return core.Transaction{}, err
	}

	res, err := r.db.ExecContext(ctx,
		"INSERT INTO expenses (date, amount_cents, category_id, account_type_id, notes) VALUES (?, ?, ?, ?, ?)",
		t.Date.String(), t.Amount.Cents, t.CategoryID, t.AccountID, t.Notes)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert expense: %w", err)
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return core.Transaction{}, fmt.Errorf("expense id: %w", err)
	}
	t.Category = c.Name

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", t.ID,
		"date", t.Date.String(),
		"amount_cents", t.Amount.Cents,
		"category", t.Category,
		"account", t.Account)
	return t, nil
}

func (r *SQLiteRepository) InsertIncome(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	t.Kind = core.KindIncome
	t.AccountID = 0
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	c, err := r.category(ctx, t.CategoryID)
	if err != nil {
		return core.Transaction{}, err
	}
	if c.Kind != core.KindIncome || c.Name == core.CarryforwardCategory {
		return core.Transaction{}, fmt.Errorf("%q cannot receive income: %w", c.Name, core.ErrUnknownCategory)
	}

	res, err := r.db.ExecContext(ctx,
		"INSERT INTO income (date, amount_cents, category_id, notes) VALUES (?, ?, ?, ?)",
		t.Date.String(), t.Amount.Cents, t.CategoryID, t.Notes)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert income: %w", err)
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return core.Transaction{}, fmt.Errorf("income id: %w", err)
	}
	t.Category = c.Name

	slog.InfoContext(ctx, "Income saved to SQLite",
		"id", t.ID,
		"date", t.Date.String(),
		"amount_cents", t.Amount.Cents,
		"category", t.Category)
	return t, nil
}

func (r *SQLiteRepository) CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	c, err := r.category(ctx, b.CategoryID)
	if err != nil {
		return core.Budget{}, err
	}
	if c.Kind != core.KindExpense {
		return core.Budget{}, fmt.Errorf("%q is an income category: %w", c.Name, core.ErrUnknownCategory)
	}

	res, err := r.db.ExecContext(ctx,
		"INSERT INTO budgets (category_id, amount_limit_cents, start_date, end_date) VALUES (?, ?, ?, ?)",
		b.CategoryID, b.AmountLimit.Cents, b.StartDate.String(), b.EndDate.String())
	if err != nil {
		return core.Budget{}, fmt.Errorf("insert budget: %w", err)
	}
	if b.ID, err = res.LastInsertId(); err != nil {
		return core.Budget{}, fmt.Errorf("budget id: %w", err)
	}
	b.Category = c.Name
	return b, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBudget(s scanner) (core.Budget, error) {
	var b core.Budget
	var start, end string
	if err := s.Scan(&b.ID, &b.CategoryID, &b.Category, &b.AmountLimit.Cents, &start, &end); err != nil {
		return core.Budget{}, err
	}
	var err error
	if b.StartDate, err = core.ParseDate(start); err != nil {
		return core.Budget{}, err
	}
	if b.EndDate, err = core.ParseDate(end); err != nil {
		return core.Budget{}, err
	}
	return b, nil
}

func (r *SQLiteRepository) GetBudget(ctx context.Context, id int64) (core.Budget, error) {
	b, err := scanBudget(r.db.QueryRowContext(ctx, selectBudgets+" WHERE b.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Budget{}, fmt.Errorf("budget %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Budget{}, fmt.Errorf("get budget: %w", err)
	}
	return b, nil
}

func (r *SQLiteRepository) ListBudgets(ctx context.Context) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx, selectBudgets+" ORDER BY b.id")
	if err != nil {
		return nil, fmt.Errorf("query budgets: %w", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// InsertCarryforward writes the posting with a single conditional insert
// keyed on the idempotency key. A concurrent second writer affects no
// rows and gets core.ErrAlreadyCarried.
func (r *SQLiteRepository) InsertCarryforward(ctx context.Context, p core.CarryforwardPosting) (core.CarryforwardPosting, error) {
	res, err := r.db.ExecContext(ctx, insertCarryforward,
		p.Date.String(), p.Amount.Cents, p.Notes, p.SourceMonth.String(), p.IdempotencyKey, core.CarryforwardCategory)
	if err != nil {
		return core.CarryforwardPosting{}, fmt.Errorf("insert carryforward: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.CarryforwardPosting{}, fmt.Errorf("carryforward rows affected: %w", err)
	}
	if n == 0 {
		if _, found, ferr := r.FindCarryforward(ctx, p.SourceMonth); ferr == nil && !found {
			return core.CarryforwardPosting{}, fmt.Errorf("reserved category %q missing", core.CarryforwardCategory)
		}
		return core.CarryforwardPosting{}, core.ErrAlreadyCarried
	}

	stored, found, err := r.FindCarryforward(ctx, p.SourceMonth)
	if err != nil {
		return core.CarryforwardPosting{}, err
	}
	if !found {
		return core.CarryforwardPosting{}, fmt.Errorf("carryforward %s vanished after insert", p.IdempotencyKey)
	}

	slog.InfoContext(ctx, "Carryforward saved to SQLite",
		"id", stored.ID,
		"source_month", stored.SourceMonth.String(),
		"amount_cents", stored.Amount.Cents)
	return stored, nil
}

func scanCarryforward(s scanner) (core.CarryforwardPosting, error) {
	var p core.CarryforwardPosting
	var source, date, created string
	if err := s.Scan(&p.ID, &source, &p.Amount.Cents, &date, &p.Notes, &p.IdempotencyKey, &created); err != nil {
		return core.CarryforwardPosting{}, err
	}
	var err error
	if p.SourceMonth, err = core.ParseMonth(source); err != nil {
		return core.CarryforwardPosting{}, err
	}
	p.TargetMonth = p.SourceMonth.Next()
	if p.Date, err = core.ParseDate(date); err != nil {
		return core.CarryforwardPosting{}, err
	}
	if p.CreatedAt, err = time.Parse(timestampLayout, created); err != nil {
		return core.CarryforwardPosting{}, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	return p, nil
}

func (r *SQLiteRepository) FindCarryforward(ctx context.Context, source core.Month) (core.CarryforwardPosting, bool, error) {
	p, err := scanCarryforward(r.db.QueryRowContext(ctx,
		selectCarryforward+" AND idempotency_key = ?", core.CarryforwardKey(source)))
	if errors.Is(err, sql.ErrNoRows) {
		return core.CarryforwardPosting{}, false, nil
	}
	if err != nil {
		return core.CarryforwardPosting{}, false, fmt.Errorf("find carryforward: %w", err)
	}
	return p, true, nil
}

func (r *SQLiteRepository) GetCarryforward(ctx context.Context, id int64) (core.CarryforwardPosting, error) {
	p, err := scanCarryforward(r.db.QueryRowContext(ctx, selectCarryforward+" AND id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.CarryforwardPosting{}, fmt.Errorf("carryforward %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.CarryforwardPosting{}, fmt.Errorf("get carryforward: %w", err)
	}
	return p, nil
}
