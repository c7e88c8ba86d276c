package analytics

import (
	"regexp"
	"strings"

	"conti/internal/core"
)

// modeRule maps a keyword class to an aggregation mode. match receives
// the lower-cased residual text and the plan being built; it may fill
// in mode-specific fields such as comparison groups.
type modeRule struct {
	mode  Mode
	match func(residual string, in planInput, plan *QueryPlan) bool
}

type planInput struct {
	query    string
	time     TimeResolution
	entities Entities
}

var (
	comparisonWords = regexp.MustCompile(`\b(?:vs\.?|versus|compare|compared|comparing|comparison|against)\b`)
	// Strong separators are tried before weak ones, so "Food and Travel
	// vs Shopping" splits at "vs".
	groupSeparators = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:vs\.?|versus|against)(?:\W|$)`),
		regexp.MustCompile(`(?i)\b(?:and|or|with|to)\b|[,/&]`),
	}
	byMonthWords    = regexp.MustCompile(`\b(?:monthly|trends?|by\s+month|per\s+month|each\s+month|month\s+by\s+month|month-?wise)\b`)
	byWeekWords     = regexp.MustCompile(`\b(?:weekly|by\s+week|per\s+week|each\s+week|week-?wise)\b`)
	byDayWords      = regexp.MustCompile(`\b(?:daily|by\s+day|per\s+day|each\s+day|day-?wise)\b`)
	byCategoryWords = regexp.MustCompile(`\b(?:by\s+categor(?:y|ies)|per\s+category|each\s+category|categories|category-?wise)\b`)
	byAccountWords  = regexp.MustCompile(`\b(?:by\s+account|per\s+account|each\s+account|accounts|account-?wise)\b`)

	expenseWords = regexp.MustCompile(`\b(?:spend|spent|spending|spendings|expenses?|paid|pay|purchases?|purchased|costs?|debits?|bills?)\b`)
	incomeWords  = regexp.MustCompile(`\b(?:income|incomes|earn|earned|earning|earnings|salary|credits?|credited|received|revenue)\b`)
	netWords     = regexp.MustCompile(`\b(?:net|balance|surplus|deficit|savings|saved|cash\s*flow|overall)\b`)
	wordChar     = regexp.MustCompile(`[\pL\pN]`)
)

func keywordRule(mode Mode, re *regexp.Regexp) modeRule {
	return modeRule{mode: mode, match: func(residual string, _ planInput, _ *QueryPlan) bool {
		return re.MatchString(residual)
	}}
}

// modeRules are evaluated in priority order; the first match wins and
// Total is the fallback.
var modeRules = []modeRule{
	{mode: ModeComparison, match: matchComparison},
	keywordRule(ModeByMonth, byMonthWords),
	keywordRule(ModeByWeek, byWeekWords),
	keywordRule(ModeByDay, byDayWords),
	keywordRule(ModeByCategory, byCategoryWords),
	keywordRule(ModeByAccount, byAccountWords),
}

// Plan combines a time resolution and resolved entities with the mode
// inferred from the query's residual text.
func Plan(query string, tr TimeResolution, ents Entities) (QueryPlan, error) {
	in := planInput{query: query, time: tr, entities: ents}
	residual := residualText(query, tr, ents)
	if !wordChar.MatchString(residual) {
		return QueryPlan{}, core.NewQueryError(core.ErrUnparseableQuery, query, "nothing left to interpret")
	}

	plan := QueryPlan{
		Range:       tr.Range,
		EntityGroup: ents.EntityGroup,
		Mode:        ModeTotal,
		Intent:      inferIntent(residual, ents.EntityGroup),
	}
	matched := false
	for _, rule := range modeRules {
		if rule.match(residual, in, &plan) {
			plan.Mode = rule.mode
			matched = true
			break
		}
	}

	hasIntentWords := expenseWords.MatchString(residual) || incomeWords.MatchString(residual) || netWords.MatchString(residual)
	if !matched && !hasIntentWords && !tr.Found() && ents.Empty() {
		return QueryPlan{}, core.NewQueryError(core.ErrUnparseableQuery, query, "no recognizable aggregation intent")
	}
	return plan, nil
}

// residualText blanks out date phrases and entity names and lower-cases
// what is left.
func residualText(query string, tr TimeResolution, ents Entities) string {
	b := []byte(query)
	blank := func(s Span) {
		for i := s.Start; i < s.End && i < len(b); i++ {
			b[i] = ' '
		}
	}
	for _, m := range tr.Matches {
		blank(m.Span)
	}
	for _, m := range ents.Matches {
		blank(m.Span)
	}
	return strings.ToLower(string(b))
}

func inferIntent(residual string, g EntityGroup) Intent {
	expense := expenseWords.MatchString(residual)
	income := incomeWords.MatchString(residual)
	switch {
	case expense && income:
		return IntentBoth
	case income:
		return IntentIncome
	case expense:
		return IntentExpense
	case g.IncomeOnly():
		return IntentIncome
	case netWords.MatchString(residual):
		return IntentBoth
	default:
		return IntentExpense
	}
}

// matchComparison needs a comparison keyword and two distinct entity
// groups separated by a connective such as "vs" or "and".
func matchComparison(residual string, in planInput, plan *QueryPlan) bool {
	if !comparisonWords.MatchString(residual) {
		return false
	}
	left, right, ok := splitGroups(in.query, in.entities.Matches)
	if !ok || left.equal(right) {
		return false
	}
	plan.Comparison = []EntityGroup{left, right}
	return true
}

// splitGroups partitions entity matches at the first connective that
// has at least one match on each side.
func splitGroups(query string, matches []EntityMatch) (EntityGroup, EntityGroup, bool) {
	if len(matches) < 2 {
		return EntityGroup{}, EntityGroup{}, false
	}
	for _, sep := range groupSeparators {
		for _, loc := range sep.FindAllStringIndex(query, -1) {
			if insideAny(loc[0], matches) {
				continue
			}
			var left, right Entities
			for _, m := range matches {
				if m.Span.End <= loc[0] {
					left.add(m)
				} else if m.Span.Start >= loc[1] {
					right.add(m)
				}
			}
			if !left.Empty() && !right.Empty() {
				return left.EntityGroup, right.EntityGroup, true
			}
		}
	}
	return EntityGroup{}, EntityGroup{}, false
}

func insideAny(pos int, matches []EntityMatch) bool {
	for _, m := range matches {
		if pos >= m.Span.Start && pos < m.Span.End {
			return true
		}
	}
	return false
}
