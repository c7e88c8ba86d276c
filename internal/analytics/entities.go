package analytics

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"conti/internal/core"
)

// EntityMatch is one registry name found in a query.
type EntityMatch struct {
	Ref     EntityRef
	Account bool
	Span    Span
}

// Entities is the outcome of entity resolution. Empty sets mean the
// query does not restrict that dimension.
type Entities struct {
	EntityGroup
	Matches []EntityMatch
}

// EntityOptions tunes entity resolution.
type EntityOptions struct {
	// Fuzzy lets a misspelled token match a single-word name at edit
	// distance one.
	Fuzzy bool
}

// A token needs fuzzyMinLen runes to be corrected and a name needs
// fuzzyMinNameLen runes to be a correction target. Short names sit one
// edit away from too many everyday words ("other" and "mother").
const (
	fuzzyMinLen     = 5
	fuzzyMinNameLen = 6
)

// Tokens that carry intent or mode, and everyday words close to a
// name, must never fuzzy-match.
var fuzzyStopwords = map[string]bool{
	"spend": true, "spent": true, "spending": true, "expense": true, "expenses": true,
	"income": true, "earned": true, "total": true, "totals": true, "monthly": true,
	"weekly": true, "daily": true, "trend": true, "trends": true, "compare": true,
	"versus": true, "breakdown": true, "category": true, "categories": true,
	"account": true, "accounts": true, "month": true, "months": true, "today": true,
	"where": true, "which": true, "there": true, "their": true, "these": true,
	"mother": true, "father": true, "brother": true, "sister": true, "others": true,
	"another": true, "rather": true, "either": true, "whether": true,
	"family": true, "friend": true, "friends": true,
}

type nameCandidate struct {
	lower string
	refs  []EntityMatch
	re    *regexp.Regexp
}

// ResolveEntities matches category and account names in text,
// case-insensitively and longest name first, so "Other Income" wins
// over "Other". Simple plurals are tolerated. A name registered both as
// a category and as an account matches both.
func ResolveEntities(text string, categories []core.Category, accounts []core.AccountType, opts EntityOptions) Entities {
	candidates := buildCandidates(categories, accounts)

	var (
		claimed []Span
		out     Entities
	)
	for _, c := range candidates {
		for _, span := range findName(c.re, text) {
			if overlapsAny(span, claimed) {
				continue
			}
			claimed = append(claimed, span)
			for _, m := range c.refs {
				m.Span = span
				out.add(m)
			}
		}
	}

	if opts.Fuzzy {
		for _, tok := range wordTokens(text) {
			if overlapsAny(tok.span, claimed) {
				continue
			}
			if c, ok := closestCandidate(tok.lower, candidates); ok {
				claimed = append(claimed, tok.span)
				for _, m := range c.refs {
					m.Span = tok.span
					out.add(m)
				}
			}
		}
	}

	sort.SliceStable(out.Matches, func(i, j int) bool {
		return out.Matches[i].Span.Start < out.Matches[j].Span.Start
	})
	return out
}

func (e *Entities) add(m EntityMatch) {
	e.Matches = append(e.Matches, m)
	if m.Account {
		if !containsRef(e.Accounts, m.Ref.ID) {
			e.Accounts = append(e.Accounts, m.Ref)
		}
		return
	}
	if !containsRef(e.Categories, m.Ref.ID) {
		e.Categories = append(e.Categories, m.Ref)
	}
}

func containsRef(refs []EntityRef, id int64) bool {
	for _, r := range refs {
		if r.ID == id {
			return true
		}
	}
	return false
}

func buildCandidates(categories []core.Category, accounts []core.AccountType) []*nameCandidate {
	byName := map[string]*nameCandidate{}
	get := func(name string) *nameCandidate {
		lower := strings.ToLower(strings.TrimSpace(name))
		c, ok := byName[lower]
		if !ok {
			c = &nameCandidate{lower: lower}
			byName[lower] = c
		}
		return c
	}
	for _, cat := range categories {
		c := get(cat.Name)
		c.refs = append(c.refs, EntityMatch{Ref: EntityRef{ID: cat.ID, Name: cat.Name, Kind: cat.Kind}})
	}
	for _, acc := range accounts {
		c := get(acc.Name)
		c.refs = append(c.refs, EntityMatch{Ref: EntityRef{ID: acc.ID, Name: acc.Name}, Account: true})
	}

	out := make([]*nameCandidate, 0, len(byName))
	for lower, c := range byName {
		if lower == "" {
			continue
		}
		c.re = namePattern(lower)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(out[i].lower), utf8.RuneCountInString(out[j].lower)
		if li != lj {
			return li > lj
		}
		return out[i].lower < out[j].lower
	})
	return out
}

// namePattern matches the name, its singular stem and a plural suffix,
// bounded by non-alphanumerics. Group 1 is the name itself.
func namePattern(lower string) *regexp.Regexp {
	forms := []string{lower}
	switch {
	case strings.HasSuffix(lower, "ies") && len(lower) > 3:
		forms = append(forms, strings.TrimSuffix(lower, "ies")+"y")
	case strings.HasSuffix(lower, "s") && !strings.HasSuffix(lower, "ss") && len(lower) > 1:
		forms = append(forms, strings.TrimSuffix(lower, "s"))
	}
	alts := make([]string, len(forms))
	for i, f := range forms {
		alts[i] = strings.Join(strings.Fields(regexp.QuoteMeta(f)), `\s+`)
	}
	return regexp.MustCompile(`(?i)(?:^|[^\pL\pN])((?:` + strings.Join(alts, "|") + `)(?:e?s)?)(?:$|[^\pL\pN])`)
}

// findName scans text for every non-overlapping occurrence. Scanning
// restarts at the end of the name so that a separator between two
// occurrences is not consumed twice.
func findName(re *regexp.Regexp, text string) []Span {
	var spans []Span
	pos := 0
	for pos < len(text) {
		loc := re.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		span := Span{Start: pos + loc[2], End: pos + loc[3]}
		spans = append(spans, span)
		pos = span.End
	}
	return spans
}

type token struct {
	lower string
	span  Span
}

func wordTokens(text string) []token {
	var (
		out   []token
		start = -1
	)
	flush := func(end int) {
		if start >= 0 {
			out = append(out, token{lower: strings.ToLower(text[start:end]), span: Span{Start: start, End: end}})
			start = -1
		}
	}
	for i, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(text))
	return out
}

func closestCandidate(tok string, candidates []*nameCandidate) (*nameCandidate, bool) {
	if utf8.RuneCountInString(tok) < fuzzyMinLen || fuzzyStopwords[tok] {
		return nil, false
	}
	var best *nameCandidate
	for _, c := range candidates {
		if strings.ContainsAny(c.lower, " \t") || utf8.RuneCountInString(c.lower) < fuzzyMinNameLen {
			continue
		}
		if levenshtein.ComputeDistance(tok, c.lower) <= 1 {
			if best == nil {
				best = c
			}
		}
	}
	return best, best != nil
}
