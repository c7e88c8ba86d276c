// Package analytics turns free-text ledger questions into query plans,
// runs them against the ledger and renders the answers.
package analytics

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"conti/internal/core"
)

// Mode is the grouping strategy applied to a plan's results.
type Mode string

const (
	ModeTotal      Mode = "total"
	ModeByCategory Mode = "by_category"
	ModeByAccount  Mode = "by_account"
	ModeByMonth    Mode = "by_month"
	ModeByWeek     Mode = "by_week"
	ModeByDay      Mode = "by_day"
	ModeComparison Mode = "comparison"
)

// Intent selects which side of the ledger a plan reports on.
type Intent string

const (
	IntentExpense Intent = "expense"
	IntentIncome  Intent = "income"
	IntentBoth    Intent = "both"
)

func (i Intent) Expenses() bool { return i != IntentIncome }

func (i Intent) Income() bool { return i != IntentExpense }

// EntityRef points at a registry entry. Kind is set for categories and
// empty for account types.
type EntityRef struct {
	ID   int64             `json:"id"`
	Name string            `json:"name"`
	Kind core.CategoryKind `json:"kind,omitempty"`
}

// EntityGroup is a set of categories and accounts that filter together.
type EntityGroup struct {
	Categories []EntityRef `json:"categories,omitempty"`
	Accounts   []EntityRef `json:"accounts,omitempty"`
}

func (g EntityGroup) Empty() bool {
	return len(g.Categories) == 0 && len(g.Accounts) == 0
}

// Label joins the group's names for display.
func (g EntityGroup) Label() string {
	var names []string
	seen := map[string]bool{}
	for _, n := range append(refNames(g.Categories), refNames(g.Accounts)...) {
		if !seen[strings.ToLower(n)] {
			seen[strings.ToLower(n)] = true
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return "Everything"
	}
	return strings.Join(names, " + ")
}

// IncomeOnly reports whether the group names only income categories.
func (g EntityGroup) IncomeOnly() bool {
	if len(g.Categories) == 0 || len(g.Accounts) > 0 {
		return false
	}
	for _, c := range g.Categories {
		if c.Kind != core.KindIncome {
			return false
		}
	}
	return true
}

// categoryIDs returns the IDs of the group's categories of the given
// kind. A group naming no category of that kind does not restrict it.
func (g EntityGroup) categoryIDs(kind core.CategoryKind) []int64 {
	var ids []int64
	for _, c := range g.Categories {
		if c.Kind == kind {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

func (g EntityGroup) accountIDs() []int64 {
	ids := make([]int64, 0, len(g.Accounts))
	for _, a := range g.Accounts {
		ids = append(ids, a.ID)
	}
	return ids
}

func (g EntityGroup) key() string {
	return "c" + joinIDs(sortedIDs(g.Categories)) + "a" + joinIDs(sortedIDs(g.Accounts))
}

func (g EntityGroup) equal(o EntityGroup) bool {
	return g.key() == o.key()
}

// QueryPlan is the resolved form of an analytics request.
type QueryPlan struct {
	Range core.DateRange
	EntityGroup
	Mode       Mode
	Intent     Intent
	Comparison []EntityGroup

	// ExcludeCarryforward drops synthetic carryforward income.
	ExcludeCarryforward bool
}

// Key normalizes the plan into a cache key. Entity order does not
// matter.
func (p QueryPlan) Key() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s|%s|%s", p.Mode, p.Intent, p.Range.Start, p.Range.End, p.EntityGroup.key())
	for _, g := range p.Comparison {
		b.WriteString("|" + g.key())
	}
	if p.ExcludeCarryforward {
		b.WriteString("|xcf")
	}
	return b.String()
}

// Runner executes plans. Executor and CachedExecutor implement it.
type Runner interface {
	Execute(ctx context.Context, plan QueryPlan) (Result, error)
}

func refNames(refs []EntityRef) []string {
	names := make([]string, 0, len(refs))
	for _, r := range refs {
		names = append(names, r.Name)
	}
	return names
}

func sortedIDs(refs []EntityRef) []int64 {
	ids := make([]int64, 0, len(refs))
	for _, r := range refs {
		ids = append(ids, r.ID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ",")
}
