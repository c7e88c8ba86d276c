package analytics

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"conti/internal/core"
)

// Span is a byte range in the query text.
type Span struct {
	Start int
	End   int
}

func (s Span) overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// RangeMatch is one date phrase found in a query.
type RangeMatch struct {
	Phrase string
	Span   Span
	Range  core.DateRange
}

// TimeResolution is the outcome of time-range resolution. With no
// matches the range is all time.
type TimeResolution struct {
	Range   core.DateRange
	Matches []RangeMatch
}

func (t TimeResolution) Found() bool { return len(t.Matches) > 0 }

// rangeRule resolves one phrase shape. resolve returns ok=false to
// decline a match that looked plausible but is not a date phrase.
type rangeRule struct {
	name    string
	re      *regexp.Regexp
	resolve func(text string, loc []int, today core.Date) (r core.DateRange, ok bool, err error)
}

const monthNames = `jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?`

var monthByPrefix = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

// "may" is only a month when introduced by a preposition.
var mayPrefix = regexp.MustCompile(`(?i)\b(?:in|for|during|of|since|until|from)\s+$`)

// rangeRules are evaluated in priority order. A later rule never matches
// text already claimed by an earlier one.
var rangeRules = []rangeRule{
	{
		name: "explicit_range",
		re:   regexp.MustCompile(`(?i)\b(\d{4}-\d{2}-\d{2})\s*(?:to|through|until|till|and|-|–)\s*(\d{4}-\d{2}-\d{2})\b`),
		resolve: func(text string, loc []int, _ core.Date) (core.DateRange, bool, error) {
			start, err := core.ParseDate(text[loc[2]:loc[3]])
			if err != nil {
				return core.DateRange{}, false, err
			}
			end, err := core.ParseDate(text[loc[4]:loc[5]])
			if err != nil {
				return core.DateRange{}, false, err
			}
			r := core.DateRange{Start: start, End: end.AddDays(1)}
			return r, true, r.Validate()
		},
	},
	{
		name: "single_date",
		re:   regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`),
		resolve: func(text string, loc []int, _ core.Date) (core.DateRange, bool, error) {
			d, err := core.ParseDate(text[loc[2]:loc[3]])
			if err != nil {
				return core.DateRange{}, false, err
			}
			return core.DateRange{Start: d, End: d.AddDays(1)}, true, nil
		},
	},
	{
		name: "last_n_days",
		re:   regexp.MustCompile(`(?i)\b(?:last|past)\s+(\d{1,4})\s+days?\b`),
		resolve: func(text string, loc []int, today core.Date) (core.DateRange, bool, error) {
			n, _ := strconv.Atoi(text[loc[2]:loc[3]])
			return core.DateRange{Start: today.AddDays(-n), End: today.AddDays(1)}, true, nil
		},
	},
	{
		name: "last_n_months",
		re:   regexp.MustCompile(`(?i)\b(?:last|past)\s+(\d{1,3})\s+months?\b`),
		resolve: func(text string, loc []int, today core.Date) (core.DateRange, bool, error) {
			n, _ := strconv.Atoi(text[loc[2]:loc[3]])
			return core.DateRange{Start: monthsBefore(today, n), End: today.AddDays(1)}, true, nil
		},
	},
	{
		name: "month_year",
		re:   regexp.MustCompile(`(?i)\b(` + monthNames + `)\.?,?\s+(\d{4})\b`),
		resolve: func(text string, loc []int, _ core.Date) (core.DateRange, bool, error) {
			year, _ := strconv.Atoi(text[loc[4]:loc[5]])
			m := core.Month{Year: year, Month: parseMonthName(text[loc[2]:loc[3]])}
			return m.Range(), true, nil
		},
	},
	{
		name: "bare_month",
		re:   regexp.MustCompile(`(?i)\b(` + monthNames + `)\b`),
		resolve: func(text string, loc []int, today core.Date) (core.DateRange, bool, error) {
			name := strings.ToLower(text[loc[2]:loc[3]])
			if name == "may" && !mayPrefix.MatchString(text[:loc[0]]) {
				return core.DateRange{}, false, nil
			}
			month := parseMonthName(name)
			year := today.Year()
			if month > today.Time.Month() {
				year--
			}
			return core.Month{Year: year, Month: month}.Range(), true, nil
		},
	},
	{
		name: "bare_year",
		re:   regexp.MustCompile(`\b((?:19|20|21)\d{2})\b`),
		resolve: func(text string, loc []int, _ core.Date) (core.DateRange, bool, error) {
			year, _ := strconv.Atoi(text[loc[2]:loc[3]])
			return yearRange(year), true, nil
		},
	},
	{
		name: "today",
		re:   regexp.MustCompile(`(?i)\btoday\b`),
		resolve: func(_ string, _ []int, today core.Date) (core.DateRange, bool, error) {
			return core.DateRange{Start: today, End: today.AddDays(1)}, true, nil
		},
	},
	{
		name: "yesterday",
		re:   regexp.MustCompile(`(?i)\byesterday\b`),
		resolve: func(_ string, _ []int, today core.Date) (core.DateRange, bool, error) {
			return core.DateRange{Start: today.AddDays(-1), End: today}, true, nil
		},
	},
	{
		name: "this_month",
		re:   regexp.MustCompile(`(?i)\b(?:this|current)\s+month\b`),
		resolve: func(_ string, _ []int, today core.Date) (core.DateRange, bool, error) {
			return core.DateRange{Start: today.CalendarMonth().FirstDay(), End: today.AddDays(1)}, true, nil
		},
	},
	{
		name: "last_month",
		re:   regexp.MustCompile(`(?i)\b(?:last|previous|prior)\s+month\b`),
		resolve: func(_ string, _ []int, today core.Date) (core.DateRange, bool, error) {
			return today.CalendarMonth().Prev().Range(), true, nil
		},
	},
	{
		name: "this_year",
		re:   regexp.MustCompile(`(?i)\b(?:this|current)\s+year\b`),
		resolve: func(_ string, _ []int, today core.Date) (core.DateRange, bool, error) {
			return core.DateRange{Start: core.NewDate(today.Year(), 1, 1), End: today.AddDays(1)}, true, nil
		},
	},
	{
		name: "last_year",
		re:   regexp.MustCompile(`(?i)\b(?:last|previous|prior)\s+year\b`),
		resolve: func(_ string, _ []int, today core.Date) (core.DateRange, bool, error) {
			return yearRange(today.Year() - 1), true, nil
		},
	},
}

// ResolveRange finds the date phrase in text and turns it into a
// half-open range relative to now. Repeating the same range is fine,
// two different ranges fail with core.ErrAmbiguousRange.
func ResolveRange(text string, now time.Time) (TimeResolution, error) {
	today := core.DateOf(now)
	var (
		claimed []Span
		matches []RangeMatch
	)
	for _, rule := range rangeRules {
		for _, loc := range rule.re.FindAllStringSubmatchIndex(text, -1) {
			span := Span{Start: loc[0], End: loc[1]}
			if overlapsAny(span, claimed) {
				continue
			}
			r, ok, err := rule.resolve(text, loc, today)
			if err != nil {
				return TimeResolution{}, core.NewQueryError(core.ErrInvalidRange, text, err.Error())
			}
			if !ok {
				continue
			}
			claimed = append(claimed, span)
			matches = append(matches, RangeMatch{Phrase: text[span.Start:span.End], Span: span, Range: r})
		}
	}
	if len(matches) == 0 {
		return TimeResolution{Range: core.AllTime}, nil
	}
	first := matches[0]
	for _, m := range matches[1:] {
		if !m.Range.Equal(first.Range) {
			return TimeResolution{}, core.NewQueryError(core.ErrAmbiguousRange, text,
				fmt.Sprintf("%q and %q resolve to different ranges", first.Phrase, m.Phrase))
		}
	}
	return TimeResolution{Range: first.Range, Matches: matches}, nil
}

func parseMonthName(s string) time.Month {
	return monthByPrefix[strings.ToLower(s)[:3]]
}

// monthsBefore steps back n calendar months, clamping the day to the
// length of the target month.
func monthsBefore(d core.Date, n int) core.Date {
	m := core.MonthOf(d.CalendarMonth().FirstDay().AddDate(0, -n, 0))
	return core.NewDate(m.Year, int(m.Month), min(d.Day(), m.Days()))
}

func yearRange(year int) core.DateRange {
	return core.DateRange{Start: core.NewDate(year, 1, 1), End: core.NewDate(year+1, 1, 1)}
}

func overlapsAny(s Span, spans []Span) bool {
	for _, o := range spans {
		if s.overlaps(o) {
			return true
		}
	}
	return false
}
