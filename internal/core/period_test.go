package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonth_Range(t *testing.T) {
	tests := []struct {
		month Month
		days  int
		end   Date
	}{
		{Month{2026, time.February}, 28, NewDate(2026, 3, 1)},
		{Month{2024, time.February}, 29, NewDate(2024, 3, 1)},
		{Month{2026, time.April}, 30, NewDate(2026, 5, 1)},
		{Month{2025, time.December}, 31, NewDate(2026, 1, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.month.String(), func(t *testing.T) {
			r := tt.month.Range()
			assert.Equal(t, tt.month.FirstDay(), r.Start)
			assert.Equal(t, tt.end, r.End)
			assert.Equal(t, tt.days, tt.month.Days())
			assert.Equal(t, tt.days, int(r.End.Sub(r.Start.Time).Hours()/24))
		})
	}
}

func TestMonth_NextPrev(t *testing.T) {
	dec := Month{2025, time.December}
	assert.Equal(t, Month{2026, time.January}, dec.Next())
	assert.Equal(t, Month{2025, time.November}, dec.Prev())
	assert.Equal(t, Month{2025, time.December}, Month{2026, time.January}.Prev())
	assert.Equal(t, "2025-12", dec.String())
}

func TestParseMonth(t *testing.T) {
	m, err := ParseMonth("2026-02")
	require.NoError(t, err)
	assert.Equal(t, Month{2026, time.February}, m)

	_, err = ParseMonth("2026-13")
	assert.True(t, errors.Is(err, ErrInvalidDate))

	_, err = NewMonth(2026, 0)
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestDateRange_Contains(t *testing.T) {
	feb := Month{2026, time.February}.Range()
	assert.True(t, feb.Contains(NewDate(2026, 2, 1)))
	assert.True(t, feb.Contains(NewDate(2026, 2, 28)))
	assert.False(t, feb.Contains(NewDate(2026, 3, 1)))
	assert.False(t, feb.Contains(NewDate(2026, 1, 31)))
	assert.True(t, AllTime.Contains(NewDate(1999, 1, 1)))
	assert.True(t, AllTime.IsAllTime())
}

func TestDateRange_Validate(t *testing.T) {
	assert.NoError(t, DateRange{Start: NewDate(2026, 1, 1), End: NewDate(2026, 1, 1)}.Validate())
	assert.ErrorIs(t, DateRange{Start: NewDate(2026, 2, 1), End: NewDate(2026, 1, 1)}.Validate(), ErrInvalidRange)
}

func TestQueryError(t *testing.T) {
	err := NewQueryError(ErrAmbiguousRange, "january vs 2024", "2 distinct ranges")
	assert.ErrorIs(t, err, ErrAmbiguousRange)
	assert.Contains(t, err.Error(), "january vs 2024")
	assert.Equal(t, "ambiguous_range", ReasonCode(err))
	assert.Equal(t, "already_carried", ReasonCode(ErrAlreadyCarried))
	assert.Equal(t, "internal_error", ReasonCode(errors.New("boom")))
}

func TestNewCarryforwardPosting(t *testing.T) {
	p := NewCarryforwardPosting(Month{2026, time.February}, Money{Cents: 20000})
	assert.Equal(t, Month{2026, time.March}, p.TargetMonth)
	assert.Equal(t, NewDate(2026, 3, 1), p.Date)
	assert.Equal(t, "Carryforward from 2026-02", p.Notes)
	assert.Equal(t, "carryforward:2026-02>2026-03", p.IdempotencyKey)

	dec := NewCarryforwardPosting(Month{2025, time.December}, Money{Cents: 1})
	assert.Equal(t, NewDate(2026, 1, 1), dec.Date)
}

func TestNewBudgetUsage(t *testing.T) {
	b, err := NewBudget(1, Money{Cents: 50000}, NewDate(2026, 2, 1), Date{})
	require.NoError(t, err)

	u := NewBudgetUsage(b, Money{Cents: 15050})
	assert.Equal(t, "30.1", u.PercentageUsed.String())
	assert.False(t, u.IsOverBudget)
	assert.Equal(t, int64(34950), u.Remaining.Cents)

	assert.False(t, NewBudgetUsage(b, Money{Cents: 50000}).IsOverBudget)
	assert.True(t, NewBudgetUsage(b, Money{Cents: 50001}).IsOverBudget)
	assert.True(t, NewBudgetUsage(b, Money{}).PercentageUsed.IsZero())
}
