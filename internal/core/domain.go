package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	KindExpense CategoryKind = "expense"
	KindIncome  CategoryKind = "income"
)

// CarryforwardCategory is the reserved income category that tags
// synthetic carryforward postings.
const CarryforwardCategory = "Carryforward"

const dateLayout = "2006-01-02"

type (
	CategoryKind string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Transaction is a single ledger entry. Expenses carry an account,
	// income does not.
	Transaction struct {
		ID           int64
		Kind         CategoryKind
		Date         Date
		Amount       Money
		CategoryID   int64
		Category     string
		AccountID    int64
		Account      string
		Notes        string
		Carryforward bool // synthetic income posted by the carryforward engine
	}

	Category struct {
		ID        int64
		Name      string
		Kind      CategoryKind
		IsDefault bool
	}

	AccountType struct {
		ID        int64
		Name      string
		IsDefault bool
	}

	// Budget caps spending in one category over an inclusive date span.
	Budget struct {
		ID          int64
		CategoryID  int64
		Category    string
		AmountLimit Money
		StartDate   Date
		EndDate     Date
	}
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's own location and
// returns it as a UTC date.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidDate)
	}
	return nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// AddDays returns the date n days later.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.AddDate(0, 0, n)}
}

// CalendarMonth returns the month containing d.
func (d Date) CalendarMonth() Month {
	return Month{Year: d.Year(), Month: d.Time.Month()}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (k CategoryKind) Valid() bool {
	return k == KindExpense || k == KindIncome
}

// Validate checks a user-entered transaction before it is stored.
func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if !t.Kind.Valid() {
		return fmt.Errorf("invalid transaction kind %q", t.Kind)
	}
	if t.CategoryID <= 0 {
		return ErrUnknownCategory
	}
	if t.Kind == KindExpense && t.AccountID <= 0 {
		return ErrUnknownAccount
	}
	if len(t.Notes) > 500 {
		return fmt.Errorf("notes too long (max 500 characters)")
	}
	return nil
}

// NewBudget validates the limit and the date span. A zero end date
// defaults to the last day of the start date's month.
func NewBudget(categoryID int64, limit Money, start, end Date) (Budget, error) {
	if limit.Cents <= 0 {
		return Budget{}, fmt.Errorf("%w: amount limit must be positive", ErrBudgetInvariant)
	}
	if start.IsZero() {
		return Budget{}, fmt.Errorf("%w: start date is required", ErrBudgetInvariant)
	}
	if end.IsZero() {
		end = start.CalendarMonth().LastDay()
	}
	if start.After(end.Time) {
		return Budget{}, fmt.Errorf("%w: start date %s is after end date %s", ErrBudgetInvariant, start, end)
	}
	return Budget{
		CategoryID:  categoryID,
		AmountLimit: limit,
		StartDate:   start,
		EndDate:     end,
	}, nil
}

// Range converts the inclusive budget span to a half-open range.
func (b Budget) Range() DateRange {
	return DateRange{Start: b.StartDate, End: b.EndDate.AddDays(1)}
}
