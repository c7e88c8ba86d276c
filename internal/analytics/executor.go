package analytics

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"conti/internal/core"
	"conti/internal/ledger"
)

// maxBuckets bounds zero-filled time series.
const maxBuckets = 5000

// GroupTotal is one row of a by-category or by-account breakdown.
type GroupTotal struct {
	Name       string       `json:"name"`
	Amount     core.Money   `json:"amount"`
	Count      int          `json:"count"`
	Percentage core.Percent `json:"percentage"`
}

// Bucket is one period of a time series.
type Bucket struct {
	Label    string     `json:"label"`
	Start    core.Date  `json:"start"`
	Expenses core.Money `json:"expenses"`
	Income   core.Money `json:"income"`
	Net      core.Money `json:"net"`
}

// SideTotal is one entity group of a comparison.
type SideTotal struct {
	Label        string     `json:"label"`
	Intent       Intent     `json:"intent"`
	Categories   []string   `json:"categories,omitempty"`
	Accounts     []string   `json:"accounts,omitempty"`
	Expenses     core.Money `json:"total_expenses"`
	Income       core.Money `json:"total_income"`
	ExpenseCount int        `json:"expense_count"`
	IncomeCount  int        `json:"income_count"`
}

// Amount is the side's headline figure for its intent.
func (s SideTotal) Amount() core.Money {
	if s.Intent == IntentIncome {
		return s.Income
	}
	if s.Intent == IntentBoth {
		return s.Income.Sub(s.Expenses)
	}
	return s.Expenses
}

// Result holds the numbers produced for a plan. Totals are always
// filled; the other sections depend on the mode.
type Result struct {
	Mode          Mode         `json:"mode"`
	Intent        Intent       `json:"intent"`
	TotalExpenses core.Money   `json:"total_expenses"`
	TotalIncome   core.Money   `json:"total_income"`
	Net           core.Money   `json:"net"`
	ExpenseCount  int          `json:"expense_count"`
	IncomeCount   int          `json:"income_count"`
	ExpenseGroups []GroupTotal `json:"expense_groups,omitempty"`
	IncomeGroups  []GroupTotal `json:"income_groups,omitempty"`
	Buckets       []Bucket     `json:"buckets,omitempty"`
	Comparison    []SideTotal  `json:"comparison,omitempty"`
}

// Empty reports whether no transaction matched.
func (r Result) Empty() bool {
	if r.Mode == ModeComparison {
		for _, s := range r.Comparison {
			if s.ExpenseCount+s.IncomeCount > 0 {
				return false
			}
		}
		return true
	}
	return r.ExpenseCount+r.IncomeCount == 0
}

// Executor runs plans against the ledger. Sums are accumulated in
// integer cents.
type Executor struct {
	ledger ledger.Accessor
}

var _ Runner = (*Executor)(nil)

func NewExecutor(accessor ledger.Accessor) *Executor {
	return &Executor{ledger: accessor}
}

func (e *Executor) Execute(ctx context.Context, plan QueryPlan) (Result, error) {
	if err := plan.Range.Validate(); err != nil {
		return Result{}, err
	}
	res := Result{Mode: plan.Mode, Intent: plan.Intent}

	if plan.Mode == ModeComparison {
		return e.compare(ctx, plan, res)
	}

	expenses, income, err := e.fetch(ctx, plan.Range, plan.EntityGroup, plan.Intent, plan.ExcludeCarryforward)
	if err != nil {
		return Result{}, err
	}
	res.TotalExpenses, res.ExpenseCount = sum(expenses)
	res.TotalIncome, res.IncomeCount = sum(income)
	res.Net = res.TotalIncome.Sub(res.TotalExpenses)

	switch plan.Mode {
	case ModeByCategory:
		res.ExpenseGroups = groupBy(expenses, res.TotalExpenses, func(t core.Transaction) string { return t.Category })
		res.IncomeGroups = groupBy(income, res.TotalIncome, func(t core.Transaction) string { return t.Category })
	case ModeByAccount:
		res.ExpenseGroups = groupBy(expenses, res.TotalExpenses, func(t core.Transaction) string { return t.Account })
	case ModeByMonth, ModeByWeek, ModeByDay:
		res.Buckets, err = bucketize(plan.Mode, plan.Range, expenses, income)
		if err != nil {
			return Result{}, err
		}
	}
	return res, nil
}

// fetch loads both sides of the ledger concurrently. A side outside the
// intent is skipped.
func (e *Executor) fetch(ctx context.Context, r core.DateRange, g EntityGroup, intent Intent, excludeCF bool) (expenses, income []core.Transaction, err error) {
	eg, ctx := errgroup.WithContext(ctx)
	if intent.Expenses() {
		eg.Go(func() error {
			var err error
			expenses, err = e.ledger.FetchExpenses(ctx, ledger.ExpenseFilter{
				Range:       r,
				CategoryIDs: g.categoryIDs(core.KindExpense),
				AccountIDs:  g.accountIDs(),
			})
			if err != nil {
				return fmt.Errorf("fetch expenses: %w", err)
			}
			return nil
		})
	}
	if intent.Income() {
		eg.Go(func() error {
			var err error
			income, err = e.ledger.FetchIncome(ctx, ledger.IncomeFilter{
				Range:               r,
				CategoryIDs:         g.categoryIDs(core.KindIncome),
				ExcludeCarryforward: excludeCF,
			})
			if err != nil {
				return fmt.Errorf("fetch income: %w", err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}
	return expenses, income, nil
}

// compare runs one Total per entity group.
func (e *Executor) compare(ctx context.Context, plan QueryPlan, res Result) (Result, error) {
	sides := make([]SideTotal, len(plan.Comparison))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, g := range plan.Comparison {
		intent := plan.Intent
		if g.IncomeOnly() {
			intent = IntentIncome
		}
		eg.Go(func() error {
			expenses, income, err := e.fetch(egCtx, plan.Range, g, intent, plan.ExcludeCarryforward)
			if err != nil {
				return err
			}
			side := SideTotal{
				Label:      g.Label(),
				Intent:     intent,
				Categories: refNames(g.Categories),
				Accounts:   refNames(g.Accounts),
			}
			side.Expenses, side.ExpenseCount = sum(expenses)
			side.Income, side.IncomeCount = sum(income)
			sides[i] = side
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Result{}, err
	}
	for _, s := range sides {
		res.TotalExpenses = res.TotalExpenses.Add(s.Expenses)
		res.TotalIncome = res.TotalIncome.Add(s.Income)
		res.ExpenseCount += s.ExpenseCount
		res.IncomeCount += s.IncomeCount
	}
	res.Net = res.TotalIncome.Sub(res.TotalExpenses)
	res.Comparison = sides
	return res, nil
}

func sum(ts []core.Transaction) (core.Money, int) {
	var total core.Money
	for _, t := range ts {
		total = total.Add(t.Amount)
	}
	return total, len(ts)
}

// groupBy sums per name, sorted by amount descending with ties broken
// alphabetically.
func groupBy(ts []core.Transaction, total core.Money, name func(core.Transaction) string) []GroupTotal {
	if len(ts) == 0 {
		return nil
	}
	index := map[string]int{}
	var groups []GroupTotal
	for _, t := range ts {
		n := name(t)
		i, ok := index[n]
		if !ok {
			i = len(groups)
			index[n] = i
			groups = append(groups, GroupTotal{Name: n})
		}
		groups[i].Amount = groups[i].Amount.Add(t.Amount)
		groups[i].Count++
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Amount.Cents != groups[j].Amount.Cents {
			return groups[i].Amount.Cents > groups[j].Amount.Cents
		}
		return groups[i].Name < groups[j].Name
	})
	for i := range groups {
		groups[i].Percentage = groups[i].Amount.PercentOf(total)
	}
	return groups
}

// period describes how a time-series mode slices the calendar.
type period struct {
	floor func(core.Date) core.Date
	next  func(core.Date) core.Date
	label func(core.Date) string
}

var periods = map[Mode]period{
	ModeByMonth: {
		floor: func(d core.Date) core.Date { return d.CalendarMonth().FirstDay() },
		next:  func(d core.Date) core.Date { return d.CalendarMonth().Next().FirstDay() },
		label: func(d core.Date) string { return d.CalendarMonth().String() },
	},
	ModeByWeek: {
		floor: func(d core.Date) core.Date { return d.AddDays(-((int(d.Weekday()) + 6) % 7)) },
		next:  func(d core.Date) core.Date { return d.AddDays(7) },
		label: func(d core.Date) string {
			y, w := d.ISOWeek()
			return fmt.Sprintf("%04d-W%02d", y, w)
		},
	},
	ModeByDay: {
		floor: func(d core.Date) core.Date { return d },
		next:  func(d core.Date) core.Date { return d.AddDays(1) },
		label: func(d core.Date) string { return d.String() },
	},
}

// bucketize builds a series covering the resolved range, zero-filling
// periods without transactions. An unbounded side of the range falls back
// to the first or last period with activity.
func bucketize(mode Mode, r core.DateRange, expenses, income []core.Transaction) ([]Bucket, error) {
	p := periods[mode]
	first, last, ok := dataBounds(expenses, income)
	if !ok && (r.Start.IsZero() || r.End.IsZero()) {
		return nil, nil
	}
	from := first
	if !r.Start.IsZero() {
		from = r.Start
	}
	// end is exclusive.
	end := p.next(p.floor(last))
	if !r.End.IsZero() {
		end = r.End
	}

	var buckets []Bucket
	index := map[string]int{}
	for start := p.floor(from); start.Before(end.Time); start = p.next(start) {
		if len(buckets) >= maxBuckets {
			return nil, fmt.Errorf("%w: more than %d %s buckets", core.ErrInvalidRange, maxBuckets, mode)
		}
		index[p.label(start)] = len(buckets)
		buckets = append(buckets, Bucket{Label: p.label(start), Start: start})
	}
	for _, t := range expenses {
		if i, ok := index[p.label(t.Date)]; ok {
			buckets[i].Expenses = buckets[i].Expenses.Add(t.Amount)
		}
	}
	for _, t := range income {
		if i, ok := index[p.label(t.Date)]; ok {
			buckets[i].Income = buckets[i].Income.Add(t.Amount)
		}
	}
	for i := range buckets {
		buckets[i].Net = buckets[i].Income.Sub(buckets[i].Expenses)
	}
	return buckets, nil
}

func dataBounds(sets ...[]core.Transaction) (lo, hi core.Date, ok bool) {
	for _, ts := range sets {
		for _, t := range ts {
			if !ok || t.Date.Before(lo.Time) {
				lo = t.Date
			}
			if !ok || t.Date.After(hi.Time) {
				hi = t.Date
			}
			ok = true
		}
	}
	return lo, hi, ok
}
