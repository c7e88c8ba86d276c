package core

import (
	"fmt"
	"time"
)

// CarryforwardPosting is the synthetic income entry that moves a month's
// net balance into the following month.
type CarryforwardPosting struct {
	ID             int64
	SourceMonth    Month
	TargetMonth    Month
	Amount         Money // may be negative or zero depending on policy
	Date           Date  // first day of TargetMonth
	Notes          string
	IdempotencyKey string
	CreatedAt      time.Time
}

// NewCarryforwardPosting derives target month, posting date, notes and
// idempotency key from the source month.
func NewCarryforwardPosting(source Month, amount Money) CarryforwardPosting {
	target := source.Next()
	return CarryforwardPosting{
		SourceMonth:    source,
		TargetMonth:    target,
		Amount:         amount,
		Date:           target.FirstDay(),
		Notes:          fmt.Sprintf("Carryforward from %s", source),
		IdempotencyKey: CarryforwardKey(source),
	}
}

// CarryforwardKey is unique per (target, source) pair. Since the target
// is always source+1 it is unique per target month as well.
func CarryforwardKey(source Month) string {
	return fmt.Sprintf("carryforward:%s>%s", source, source.Next())
}

// BudgetUsage is derived on demand and never stored.
type BudgetUsage struct {
	Budget         Budget
	AmountSpent    Money
	PercentageUsed Percent
	Remaining      Money
	IsOverBudget   bool
}

// NewBudgetUsage derives percentage and over-budget flag. Spending
// exactly the limit is not over budget.
func NewBudgetUsage(b Budget, spent Money) BudgetUsage {
	return BudgetUsage{
		Budget:         b,
		AmountSpent:    spent,
		PercentageUsed: spent.PercentOf(b.AmountLimit),
		Remaining:      b.AmountLimit.Sub(spent),
		IsOverBudget:   spent.Cents > b.AmountLimit.Cents,
	}
}

// MonthlyBalance summarizes one month for carryforward decisions.
// Income excludes carryforward postings.
type MonthlyBalance struct {
	Month                 Month
	TotalIncome           Money
	TotalExpenses         Money
	Net                   Money
	IncomeCount           int
	ExpenseCount          int
	AlreadyCarriedForward bool
	CanCarryforward       bool
	Posting               *CarryforwardPosting
}
