package analytics

import (
	"fmt"
	"strings"

	"conti/internal/core"
)

const noTransactions = "No transactions found for the specified criteria."

// Answer is the rendered reply to an analytics query.
type Answer struct {
	Query     string     `json:"query"`
	Summary   string     `json:"summary"`
	Breakdown string     `json:"breakdown,omitempty"`
	Data      AnswerData `json:"data"`
}

// AnswerData is the raw result plus the resolved plan, for callers that
// want numbers rather than prose.
type AnswerData struct {
	Mode          Mode         `json:"mode"`
	Intent        Intent       `json:"intent"`
	Range         RangeData    `json:"range"`
	Categories    []string     `json:"categories"`
	Accounts      []string     `json:"accounts"`
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

// RangeData is the half-open resolved range. Empty strings mean
// unbounded.
type RangeData struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Label string `json:"label"`
}

// Renderer formats results as text. It holds no state besides its
// settings, so rendering is deterministic.
type Renderer struct {
	Currency string
}

func NewRenderer(currency string) Renderer {
	if currency == "" {
		currency = "$"
	}
	return Renderer{Currency: currency}
}

func (r Renderer) Render(query string, plan QueryPlan, res Result) Answer {
	ans := Answer{
		Query: query,
		Data: AnswerData{
			Mode:          res.Mode,
			Intent:        res.Intent,
			Range:         RangeData{Start: plan.Range.Start.String(), End: plan.Range.End.String(), Label: rangeLabel(plan.Range)},
			Categories:    refNames(plan.Categories),
			Accounts:      refNames(plan.Accounts),
			TotalExpenses: res.TotalExpenses,
			TotalIncome:   res.TotalIncome,
			Net:           res.Net,
			ExpenseCount:  res.ExpenseCount,
			IncomeCount:   res.IncomeCount,
			ExpenseGroups: res.ExpenseGroups,
			IncomeGroups:  res.IncomeGroups,
			Buckets:       res.Buckets,
			Comparison:    res.Comparison,
		},
	}

	if res.Empty() {
		ans.Summary = fmt.Sprintf("No transactions found%s %s.", subject(plan.EntityGroup), rangeLabel(plan.Range))
		if res.Mode != ModeTotal {
			ans.Breakdown = noTransactions
		}
		return ans
	}

	switch res.Mode {
	case ModeByCategory:
		ans.Summary, ans.Breakdown = r.grouped(plan, res, "categories")
	case ModeByAccount:
		ans.Summary, ans.Breakdown = r.grouped(plan, res, "accounts")
	case ModeByMonth, ModeByWeek, ModeByDay:
		ans.Summary, ans.Breakdown = r.series(plan, res)
	case ModeComparison:
		ans.Summary, ans.Breakdown = r.comparison(plan, res)
	default:
		ans.Summary = r.total(plan, res)
	}
	return ans
}

func (r Renderer) money(m core.Money) string {
	return m.Format(r.Currency)
}

func (r Renderer) total(plan QueryPlan, res Result) string {
	where := subject(plan.EntityGroup) + " " + rangeLabel(plan.Range)
	switch res.Intent {
	case IntentIncome:
		return fmt.Sprintf("Total income%s: %s (%s).", where, r.money(res.TotalIncome), countLabel(res.IncomeCount, "transaction"))
	case IntentBoth:
		return fmt.Sprintf("Net %s%s: %s (income %s over %s, expenses %s over %s).",
			netWord(res.Net), where, r.money(abs(res.Net)),
			r.money(res.TotalIncome), countLabel(res.IncomeCount, "transaction"),
			r.money(res.TotalExpenses), countLabel(res.ExpenseCount, "transaction"))
	default:
		return fmt.Sprintf("Total expenses%s: %s (%s).", where, r.money(res.TotalExpenses), countLabel(res.ExpenseCount, "transaction"))
	}
}

func (r Renderer) grouped(plan QueryPlan, res Result, noun string) (string, string) {
	where := subject(plan.EntityGroup) + " " + rangeLabel(plan.Range)
	var parts []string
	if res.Intent.Expenses() && res.ExpenseCount > 0 {
		parts = append(parts, fmt.Sprintf("expenses %s across %s", r.money(res.TotalExpenses), countLabel(len(res.ExpenseGroups), singular(noun))))
	}
	if res.Intent.Income() && res.IncomeCount > 0 {
		parts = append(parts, fmt.Sprintf("income %s across %s", r.money(res.TotalIncome), countLabel(len(res.IncomeGroups), singular(noun))))
	}
	summary := fmt.Sprintf("Total %s%s.", strings.Join(parts, " and "), where)

	var lines []string
	sections := 0
	if len(res.ExpenseGroups) > 0 {
		sections++
	}
	if len(res.IncomeGroups) > 0 {
		sections++
	}
	write := func(title string, groups []GroupTotal) {
		if len(groups) == 0 {
			return
		}
		if sections > 1 {
			if len(lines) > 0 {
				lines = append(lines, "")
			}
			lines = append(lines, title+":")
		}
		for _, g := range groups {
			lines = append(lines, fmt.Sprintf("%s: %s (%s%%)", g.Name, r.money(g.Amount), g.Percentage.StringFixed(1)))
		}
	}
	write("Expenses", res.ExpenseGroups)
	write("Income", res.IncomeGroups)
	return summary, strings.Join(lines, "\n")
}

func (r Renderer) series(plan QueryPlan, res Result) (string, string) {
	where := subject(plan.EntityGroup) + " " + rangeLabel(plan.Range)
	unit := map[Mode]string{ModeByMonth: "month", ModeByWeek: "week", ModeByDay: "day"}[res.Mode]
	span := countLabel(len(res.Buckets), unit)

	var summary string
	switch res.Intent {
	case IntentIncome:
		summary = fmt.Sprintf("Total income%s: %s over %s.", where, r.money(res.TotalIncome), span)
	case IntentBoth:
		summary = fmt.Sprintf("Net %s%s: %s over %s (income %s, expenses %s).",
			netWord(res.Net), where, r.money(abs(res.Net)), span, r.money(res.TotalIncome), r.money(res.TotalExpenses))
	default:
		summary = fmt.Sprintf("Total expenses%s: %s over %s.", where, r.money(res.TotalExpenses), span)
	}

	lines := make([]string, 0, len(res.Buckets))
	for _, b := range res.Buckets {
		switch res.Intent {
		case IntentIncome:
			lines = append(lines, fmt.Sprintf("%s: %s", b.Label, r.money(b.Income)))
		case IntentBoth:
			lines = append(lines, fmt.Sprintf("%s: expenses %s, income %s, net %s",
				b.Label, r.money(b.Expenses), r.money(b.Income), r.money(b.Net)))
		default:
			lines = append(lines, fmt.Sprintf("%s: %s", b.Label, r.money(b.Expenses)))
		}
	}
	return summary, strings.Join(lines, "\n")
}

func (r Renderer) comparison(plan QueryPlan, res Result) (string, string) {
	parts := make([]string, 0, len(res.Comparison))
	lines := make([]string, 0, len(res.Comparison)+1)
	for _, s := range res.Comparison {
		parts = append(parts, fmt.Sprintf("%s %s", s.Label, r.money(s.Amount())))
		count := s.ExpenseCount
		if s.Intent == IntentIncome {
			count = s.IncomeCount
		} else if s.Intent == IntentBoth {
			count += s.IncomeCount
		}
		lines = append(lines, fmt.Sprintf("%s: %s (%s)", s.Label, r.money(s.Amount()), countLabel(count, "transaction")))
	}
	if len(res.Comparison) == 2 {
		diff := res.Comparison[0].Amount().Sub(res.Comparison[1].Amount())
		lines = append(lines, fmt.Sprintf("Difference: %s", r.money(abs(diff))))
	}
	summary := fmt.Sprintf("Comparison %s: %s.", rangeLabel(plan.Range), strings.Join(parts, " vs "))
	return summary, strings.Join(lines, "\n")
}

// rangeLabel names a range in prose: whole months and years by name,
// anything else by its inclusive bounds.
func rangeLabel(r core.DateRange) string {
	switch {
	case r.IsAllTime():
		return "across all time"
	case r.Start.IsZero():
		return "until " + r.LastDay().String()
	case r.End.IsZero():
		return "since " + r.Start.String()
	}
	last := r.LastDay()
	m := r.Start.CalendarMonth()
	switch {
	case r.Equal(m.Range()):
		return "in " + r.Start.Format("January 2006")
	case r.Start.Month() == 1 && r.Start.Day() == 1 && r.End.Equal(core.NewDate(r.Start.Year()+1, 1, 1).Time):
		return fmt.Sprintf("in %d", r.Start.Year())
	case r.Start.Equal(last.Time):
		return "on " + r.Start.String()
	}
	return fmt.Sprintf("from %s to %s", r.Start, last)
}

// subject names the filter, e.g. " for Food + Card".
func subject(g EntityGroup) string {
	if g.Empty() {
		return ""
	}
	return " for " + g.Label()
}

func countLabel(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	if strings.HasSuffix(unit, "y") && !strings.HasSuffix(unit, "ay") {
		return fmt.Sprintf("%d %sies", n, strings.TrimSuffix(unit, "y"))
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func singular(noun string) string {
	switch noun {
	case "categories":
		return "category"
	case "accounts":
		return "account"
	}
	return noun
}

func netWord(m core.Money) string {
	if m.IsNegative() {
		return "deficit"
	}
	return "surplus"
}

func abs(m core.Money) core.Money {
	if m.IsNegative() {
		return core.Money{Cents: -m.Cents}
	}
	return m
}
