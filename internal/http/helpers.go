package http

import (
	"time"

	"conti/internal/core"
)

// Wire shapes of the API. Domain types stay free of JSON tags.

type transactionResponse struct {
	ID       int64      `json:"id"`
	Kind     string     `json:"kind"`
	Date     core.Date  `json:"date"`
	Amount   core.Money `json:"amount"`
	Category string     `json:"category"`
	Account  string     `json:"account,omitempty"`
	Notes    string     `json:"notes,omitempty"`
}

type categoryResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	IsDefault bool   `json:"is_default"`
}

type accountTypeResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
}

type budgetResponse struct {
	ID          int64      `json:"id"`
	Category    string     `json:"category"`
	AmountLimit core.Money `json:"amount_limit"`
	StartDate   core.Date  `json:"start_date"`
	EndDate     core.Date  `json:"end_date"`
}

type budgetUsageResponse struct {
	Budget         budgetResponse `json:"budget"`
	AmountSpent    core.Money     `json:"amount_spent"`
	PercentageUsed core.Percent   `json:"percentage_used"`
	Remaining      core.Money     `json:"remaining"`
	IsOverBudget   bool           `json:"is_over_budget"`
}

type postingResponse struct {
	ID             int64      `json:"id"`
	SourceMonth    string     `json:"source_month"`
	TargetMonth    string     `json:"target_month"`
	Amount         core.Money `json:"amount"`
	Date           core.Date  `json:"date"`
	Notes          string     `json:"notes"`
	IdempotencyKey string     `json:"idempotency_key"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
}

type monthlyBalanceResponse struct {
	Month                 string           `json:"month"`
	TotalIncome           core.Money       `json:"total_income"`
	TotalExpenses         core.Money       `json:"total_expenses"`
	Net                   core.Money       `json:"net"`
	IncomeCount           int              `json:"income_count"`
	ExpenseCount          int              `json:"expense_count"`
	AlreadyCarriedForward bool             `json:"already_carried_forward"`
	CanCarryforward       bool             `json:"can_carryforward"`
	Posting               *postingResponse `json:"posting,omitempty"`
}

func toTransaction(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:       t.ID,
		Kind:     string(t.Kind),
		Date:     t.Date,
		Amount:   t.Amount,
		Category: t.Category,
		Account:  t.Account,
		Notes:    t.Notes,
	}
}

func toCategories(cats []core.Category) []categoryResponse {
	out := make([]categoryResponse, 0, len(cats))
	for _, c := range cats {
		out = append(out, categoryResponse{ID: c.ID, Name: c.Name, Kind: string(c.Kind), IsDefault: c.IsDefault})
	}
	return out
}

func toAccountTypes(accs []core.AccountType) []accountTypeResponse {
	out := make([]accountTypeResponse, 0, len(accs))
	for _, a := range accs {
		out = append(out, accountTypeResponse{ID: a.ID, Name: a.Name, IsDefault: a.IsDefault})
	}
	return out
}

func toBudget(b core.Budget) budgetResponse {
	return budgetResponse{
		ID:          b.ID,
		Category:    b.Category,
		AmountLimit: b.AmountLimit,
		StartDate:   b.StartDate,
		EndDate:     b.EndDate,
	}
}

func toBudgetUsage(u core.BudgetUsage) budgetUsageResponse {
	return budgetUsageResponse{
		Budget:         toBudget(u.Budget),
		AmountSpent:    u.AmountSpent,
		PercentageUsed: u.PercentageUsed,
		Remaining:      u.Remaining,
		IsOverBudget:   u.IsOverBudget,
	}
}

func toPosting(p core.CarryforwardPosting) *postingResponse {
	out := &postingResponse{
		ID:             p.ID,
		SourceMonth:    p.SourceMonth.String(),
		TargetMonth:    p.TargetMonth.String(),
		Amount:         p.Amount,
		Date:           p.Date,
		Notes:          p.Notes,
		IdempotencyKey: p.IdempotencyKey,
	}
	if !p.CreatedAt.IsZero() {
		created := p.CreatedAt.UTC()
		out.CreatedAt = &created
	}
	return out
}

func toMonthlyBalance(b core.MonthlyBalance) monthlyBalanceResponse {
	out := monthlyBalanceResponse{
		Month:                 b.Month.String(),
		TotalIncome:           b.TotalIncome,
		TotalExpenses:         b.TotalExpenses,
		Net:                   b.Net,
		IncomeCount:           b.IncomeCount,
		ExpenseCount:          b.ExpenseCount,
		AlreadyCarriedForward: b.AlreadyCarriedForward,
		CanCarryforward:       b.CanCarryforward,
	}
	if b.Posting != nil {
		out.Posting = toPosting(*b.Posting)
	}
	return out
}
