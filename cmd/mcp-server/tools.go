package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"conti/internal/analytics"
	"conti/internal/core"
)

type answerer interface {
	Ask(ctx context.Context, query string, now time.Time) (analytics.Answer, error)
}

type budgetReader interface {
	Usage(ctx context.Context, id int64) (core.BudgetUsage, error)
	ListUsage(ctx context.Context) ([]core.BudgetUsage, error)
}

type balanceService interface {
	MonthlyBalance(ctx context.Context, month core.Month) (core.MonthlyBalance, error)
	Carryforward(ctx context.Context, source core.Month) (core.CarryforwardPosting, error)
}

// contiTools implements the tool handlers on top of the ledger services.
type contiTools struct {
	engine   answerer
	budgets  budgetReader
	balance  balanceService
	now      func() time.Time
	location *time.Location
}

func (t *contiTools) clock() time.Time {
	return t.now().In(t.location)
}

// ask_ledger

type AskLedgerInput struct {
	Query string `json:"query" jsonschema:"Free-text question about spending or income (e.g. spending by category last month)"`
	Now   string `json:"now,omitempty" jsonschema:"Reference date for relative phrases in YYYY-MM-DD format (optional, defaults to today)"`
}

type GroupEntry struct {
	Name   string `json:"name" jsonschema:"Category or account name"`
	Amount string `json:"amount" jsonschema:"Total amount"`
	Count  int    `json:"count" jsonschema:"Number of transactions"`
}

type AskLedgerOutput struct {
	Summary       string       `json:"summary" jsonschema:"One-line answer"`
	Breakdown     string       `json:"breakdown,omitempty" jsonschema:"Multi-line breakdown when the query asks for one"`
	Mode          string       `json:"mode" jsonschema:"Shape of the answer: total, by_category, by_account, by_month, by_week, by_day or comparison"`
	Intent        string       `json:"intent" jsonschema:"Which transactions were considered: expense, income or both"`
	RangeStart    string       `json:"rangeStart,omitempty" jsonschema:"Inclusive start date, empty when unbounded"`
	RangeEnd      string       `json:"rangeEnd,omitempty" jsonschema:"Exclusive end date, empty when unbounded"`
	RangeLabel    string       `json:"rangeLabel" jsonschema:"Human readable period"`
	TotalExpenses string       `json:"totalExpenses" jsonschema:"Sum of matching expenses"`
	TotalIncome   string       `json:"totalIncome" jsonschema:"Sum of matching income"`
	Net           string       `json:"net" jsonschema:"Income minus expenses"`
	ExpenseGroups []GroupEntry `json:"expenseGroups,omitempty" jsonschema:"Expense totals per group"`
	IncomeGroups  []GroupEntry `json:"incomeGroups,omitempty" jsonschema:"Income totals per group"`
}

func (t *contiTools) AskLedger(ctx context.Context, req *mcp.CallToolRequest, input AskLedgerInput) (*mcp.CallToolResult, AskLedgerOutput, error) {
	now := t.clock()
	if input.Now != "" {
		d, err := time.ParseInLocation("2006-01-02", input.Now, t.location)
		if err != nil {
			return nil, AskLedgerOutput{}, fmt.Errorf("invalid now format (expected YYYY-MM-DD): %w", err)
		}
		now = d
	}

	ans, err := t.engine.Ask(ctx, input.Query, now)
	if err != nil {
		return nil, AskLedgerOutput{}, fmt.Errorf("%s: %w", core.ReasonCode(err), err)
	}

	d := ans.Data
	return nil, AskLedgerOutput{
		Summary:       ans.Summary,
		Breakdown:     ans.Breakdown,
		Mode:          string(d.Mode),
		Intent:        string(d.Intent),
		RangeStart:    d.Range.Start,
		RangeEnd:      d.Range.End,
		RangeLabel:    d.Range.Label,
		TotalExpenses: d.TotalExpenses.String(),
		TotalIncome:   d.TotalIncome.String(),
		Net:           d.Net.String(),
		ExpenseGroups: toGroupEntries(d.ExpenseGroups),
		IncomeGroups:  toGroupEntries(d.IncomeGroups),
	}, nil
}

func toGroupEntries(groups []analytics.GroupTotal) []GroupEntry {
	var out []GroupEntry
	for _, g := range groups {
		out = append(out, GroupEntry{Name: g.Name, Amount: g.Amount.String(), Count: g.Count})
	}
	return out
}

// budget_usage

type BudgetUsageInput struct {
	BudgetID int64 `json:"budgetId,omitempty" jsonschema:"Budget ID (optional, all budgets when omitted)"`
}

type BudgetUsageEntry struct {
	BudgetID       int64  `json:"budgetId" jsonschema:"Budget ID"`
	Category       string `json:"category" jsonschema:"Expense category the budget limits"`
	StartDate      string `json:"startDate" jsonschema:"First day of the budget period"`
	EndDate        string `json:"endDate" jsonschema:"Last day of the budget period, inclusive"`
	Limit          string `json:"limit" jsonschema:"Budgeted amount"`
	Spent          string `json:"spent" jsonschema:"Amount spent in the period"`
	Remaining      string `json:"remaining" jsonschema:"Limit minus spent, negative when over budget"`
	PercentageUsed string `json:"percentageUsed" jsonschema:"Spent as a percentage of the limit"`
	IsOverBudget   bool   `json:"isOverBudget" jsonschema:"Whether spending exceeds the limit"`
}

type BudgetUsageOutput struct {
	Budgets []BudgetUsageEntry `json:"budgets" jsonschema:"Usage for each requested budget"`
}

func (t *contiTools) BudgetUsage(ctx context.Context, req *mcp.CallToolRequest, input BudgetUsageInput) (*mcp.CallToolResult, BudgetUsageOutput, error) {
	var usages []core.BudgetUsage
	if input.BudgetID != 0 {
		u, err := t.budgets.Usage(ctx, input.BudgetID)
		if err != nil {
			return nil, BudgetUsageOutput{}, fmt.Errorf("failed to compute budget usage: %w", err)
		}
		usages = append(usages, u)
	} else {
		all, err := t.budgets.ListUsage(ctx)
		if err != nil {
			return nil, BudgetUsageOutput{}, fmt.Errorf("failed to compute budget usage: %w", err)
		}
		usages = all
	}

	out := BudgetUsageOutput{Budgets: make([]BudgetUsageEntry, 0, len(usages))}
	for _, u := range usages {
		out.Budgets = append(out.Budgets, BudgetUsageEntry{
			BudgetID:       u.Budget.ID,
			Category:       u.Budget.Category,
			StartDate:      u.Budget.StartDate.String(),
			EndDate:        u.Budget.EndDate.String(),
			Limit:          u.Budget.AmountLimit.String(),
			Spent:          u.AmountSpent.String(),
			Remaining:      u.Remaining.String(),
			PercentageUsed: u.PercentageUsed.String(),
			IsOverBudget:   u.IsOverBudget,
		})
	}
	return nil, out, nil
}

// monthly_balance and carryforward

type MonthInput struct {
	Year  int `json:"year" jsonschema:"Four digit year (e.g. 2026)"`
	Month int `json:"month" jsonschema:"Month number from 1 to 12"`
}

type PostingEntry struct {
	ID             int64  `json:"id" jsonschema:"Posting ID"`
	SourceMonth    string `json:"sourceMonth" jsonschema:"Month whose balance was carried, YYYY-MM"`
	TargetMonth    string `json:"targetMonth" jsonschema:"Month that received the balance, YYYY-MM"`
	Amount         string `json:"amount" jsonschema:"Carried amount"`
	Date           string `json:"date" jsonschema:"Posting date, the first day of the target month"`
	IdempotencyKey string `json:"idempotencyKey" jsonschema:"Key that makes the posting unique per source month"`
}

type MonthlyBalanceOutput struct {
	Month                 string        `json:"month" jsonschema:"Summarized month, YYYY-MM"`
	TotalIncome           string        `json:"totalIncome" jsonschema:"Income excluding carried balances"`
	TotalExpenses         string        `json:"totalExpenses" jsonschema:"Expenses in the month"`
	Net                   string        `json:"net" jsonschema:"Income minus expenses"`
	IncomeCount           int           `json:"incomeCount" jsonschema:"Number of income transactions"`
	ExpenseCount          int           `json:"expenseCount" jsonschema:"Number of expense transactions"`
	AlreadyCarriedForward bool          `json:"alreadyCarriedForward" jsonschema:"Whether the month has been carried forward"`
	CanCarryforward       bool          `json:"canCarryforward" jsonschema:"Whether a carryforward would be accepted now"`
	Posting               *PostingEntry `json:"posting,omitempty" jsonschema:"Existing carryforward posting, if any"`
}

type CarryforwardOutput struct {
	NoOp    bool         `json:"noOp" jsonschema:"True when the month had already been carried and nothing was posted"`
	Posting PostingEntry `json:"posting" jsonschema:"The new or existing posting"`
}

func (in MonthInput) month() (core.Month, error) {
	m, err := core.NewMonth(in.Year, in.Month)
	if err != nil {
		return core.Month{}, fmt.Errorf("invalid month: %w", err)
	}
	return m, nil
}

func (t *contiTools) MonthlyBalance(ctx context.Context, req *mcp.CallToolRequest, input MonthInput) (*mcp.CallToolResult, MonthlyBalanceOutput, error) {
	m, err := input.month()
	if err != nil {
		return nil, MonthlyBalanceOutput{}, err
	}
	b, err := t.balance.MonthlyBalance(ctx, m)
	if err != nil {
		return nil, MonthlyBalanceOutput{}, fmt.Errorf("failed to summarize %s: %w", m, err)
	}

	out := MonthlyBalanceOutput{
		Month:                 b.Month.String(),
		TotalIncome:           b.TotalIncome.String(),
		TotalExpenses:         b.TotalExpenses.String(),
		Net:                   b.Net.String(),
		IncomeCount:           b.IncomeCount,
		ExpenseCount:          b.ExpenseCount,
		AlreadyCarriedForward: b.AlreadyCarriedForward,
		CanCarryforward:       b.CanCarryforward,
	}
	if b.Posting != nil {
		p := toPostingEntry(*b.Posting)
		out.Posting = &p
	}
	return nil, out, nil
}

func (t *contiTools) Carryforward(ctx context.Context, req *mcp.CallToolRequest, input MonthInput) (*mcp.CallToolResult, CarryforwardOutput, error) {
	m, err := input.month()
	if err != nil {
		return nil, CarryforwardOutput{}, err
	}
	p, err := t.balance.Carryforward(ctx, m)
	if errors.Is(err, core.ErrAlreadyCarried) {
		return nil, CarryforwardOutput{NoOp: true, Posting: toPostingEntry(p)}, nil
	}
	if err != nil {
		return nil, CarryforwardOutput{}, fmt.Errorf("%s: %w", core.ReasonCode(err), err)
	}
	return nil, CarryforwardOutput{Posting: toPostingEntry(p)}, nil
}

func toPostingEntry(p core.CarryforwardPosting) PostingEntry {
	return PostingEntry{
		ID:             p.ID,
		SourceMonth:    p.SourceMonth.String(),
		TargetMonth:    p.TargetMonth.String(),
		Amount:         p.Amount.String(),
		Date:           p.Date.String(),
		IdempotencyKey: p.IdempotencyKey,
	}
}
