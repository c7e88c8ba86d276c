package core

import (
	"fmt"
	"time"
)

// Month identifies a calendar month.
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf returns the month containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// ParseMonth parses a YYYY-MM string.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, fmt.Errorf("%w: month %q", ErrInvalidDate, s)
	}
	return MonthOf(t), nil
}

// NewMonth validates year and month numbers.
func NewMonth(year, month int) (Month, error) {
	if month < 1 || month > 12 {
		return Month{}, fmt.Errorf("%w: month %d", ErrInvalidDate, month)
	}
	if year < 1900 || year > 9999 {
		return Month{}, fmt.Errorf("%w: year %d", ErrInvalidDate, year)
	}
	return Month{Year: year, Month: time.Month(month)}, nil
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

func (m Month) FirstDay() Date {
	return NewDate(m.Year, int(m.Month), 1)
}

func (m Month) LastDay() Date {
	return m.Next().FirstDay().AddDays(-1)
}

func (m Month) Next() Month {
	return MonthOf(m.FirstDay().AddDate(0, 1, 0))
}

func (m Month) Prev() Month {
	return MonthOf(m.FirstDay().AddDate(0, -1, 0))
}

// Range is the half-open interval covering the whole month.
func (m Month) Range() DateRange {
	return DateRange{Start: m.FirstDay(), End: m.Next().FirstDay()}
}

// Days returns the number of calendar days in the month.
func (m Month) Days() int {
	return m.LastDay().Day()
}

// DateRange is the half-open interval [Start, End). A zero Start or End
// leaves that side unbounded; both zero means all time.
type DateRange struct {
	Start Date
	End   Date
}

// AllTime is the unbounded range.
var AllTime = DateRange{}

func (r DateRange) IsAllTime() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Contains reports whether d falls inside the range.
func (r DateRange) Contains(d Date) bool {
	if !r.Start.IsZero() && d.Before(r.Start.Time) {
		return false
	}
	if !r.End.IsZero() && !d.Before(r.End.Time) {
		return false
	}
	return true
}

// Validate enforces Start <= End when both sides are bounded.
func (r DateRange) Validate() error {
	if !r.Start.IsZero() && !r.End.IsZero() && r.Start.After(r.End.Time) {
		return fmt.Errorf("%w: %s is after %s", ErrInvalidRange, r.Start, r.End)
	}
	return nil
}

// Equal compares both bounds by calendar day.
func (r DateRange) Equal(o DateRange) bool {
	return r.Start.Equal(o.Start.Time) && r.End.Equal(o.End.Time)
}

// LastDay returns the inclusive end of a bounded range.
func (r DateRange) LastDay() Date {
	if r.End.IsZero() {
		return Date{}
	}
	return r.End.AddDays(-1)
}

func (r DateRange) String() string {
	if r.IsAllTime() {
		return "all time"
	}
	return fmt.Sprintf("[%s, %s)", r.Start, r.End)
}
