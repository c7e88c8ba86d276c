package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/core"
	"conti/internal/ledger/memory"
)

func planFor(t *testing.T, query string) (QueryPlan, error) {
	t.Helper()
	cats, accs := registries(t, memory.New())
	tr, err := ResolveRange(query, testNow)
	require.NoError(t, err)
	return Plan(query, tr, ResolveEntities(query, cats, accs, EntityOptions{}))
}

func TestPlan_Modes(t *testing.T) {
	tests := []struct {
		query string
		mode  Mode
	}{
		{"What are my total expenses for February 2026", ModeTotal},
		{"how much did I spend on food", ModeTotal},
		{"Show me monthly spending breakdown for 2024", ModeByMonth},
		{"spending trend this year", ModeByMonth},
		{"weekly spending last month", ModeByWeek},
		{"spending per day this month", ModeByDay},
		{"spending by category last month", ModeByCategory},
		{"which categories did I spend most on", ModeByCategory},
		{"expenses by account in 2025", ModeByAccount},
		{"compare food vs travel in February 2026", ModeComparison},
		{"Food versus Travel", ModeComparison},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			plan, err := planFor(t, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.mode, plan.Mode)
		})
	}
}

func TestPlan_RulePriority(t *testing.T) {
	tests := []struct {
		query string
		mode  Mode
	}{
		// Comparison beats every grouping keyword.
		{"compare food vs travel monthly", ModeComparison},
		// ByMonth beats ByCategory.
		{"monthly spending by category", ModeByMonth},
		// ByCategory beats ByAccount.
		{"spending by category and by account", ModeByCategory},
		// A comparison keyword without two groups falls through.
		{"compare food by category", ModeByCategory},
		{"compare my food spending", ModeTotal},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			plan, err := planFor(t, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.mode, plan.Mode)
		})
	}
}

func TestModeRulesAreOrdered(t *testing.T) {
	var got []Mode
	for _, r := range modeRules {
		got = append(got, r.mode)
	}
	assert.Equal(t, []Mode{ModeComparison, ModeByMonth, ModeByWeek, ModeByDay, ModeByCategory, ModeByAccount}, got)
}

func TestPlan_ComparisonGroups(t *testing.T) {
	plan, err := planFor(t, "Food and Travel vs Shopping in February 2026")
	require.NoError(t, err)
	require.Equal(t, ModeComparison, plan.Mode)
	require.Len(t, plan.Comparison, 2)
	assert.Equal(t, "Food + Travel", plan.Comparison[0].Label())
	assert.Equal(t, "Shopping", plan.Comparison[1].Label())

	plan, err = planFor(t, "compare card and upi spending")
	require.NoError(t, err)
	require.Equal(t, ModeComparison, plan.Mode)
	assert.Equal(t, "Card", plan.Comparison[0].Label())
	assert.Equal(t, "UPI", plan.Comparison[1].Label())

	// The same entity on both sides is not a comparison.
	plan, err = planFor(t, "compare food vs foods")
	require.NoError(t, err)
	assert.Equal(t, ModeTotal, plan.Mode)
}

func TestPlan_Intent(t *testing.T) {
	tests := []struct {
		query  string
		intent Intent
	}{
		{"total spending last month", IntentExpense},
		{"how much income did I get in 2025", IntentIncome},
		{"salary in 2025", IntentIncome},
		{"income and expenses this year", IntentBoth},
		{"net balance this year", IntentBoth},
		{"show food last month", IntentExpense},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			plan, err := planFor(t, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.intent, plan.Intent)
		})
	}
}

func TestPlan_Unparseable(t *testing.T) {
	for _, q := range []string{"February 2026", "Food", "hello there", "???"} {
		t.Run(q, func(t *testing.T) {
			_, err := planFor(t, q)
			require.ErrorIs(t, err, core.ErrUnparseableQuery)

			var qe *core.QueryError
			require.ErrorAs(t, err, &qe)
			assert.Equal(t, q, qe.Query)
		})
	}
}

func TestPlan_KeyIgnoresEntityOrder(t *testing.T) {
	a, err := planFor(t, "food and travel last month")
	require.NoError(t, err)
	b, err := planFor(t, "travel and food last month")
	require.NoError(t, err)
	assert.Equal(t, a.Key(), b.Key())

	c, err := planFor(t, "food and travel this month")
	require.NoError(t, err)
	assert.NotEqual(t, a.Key(), c.Key())
}
