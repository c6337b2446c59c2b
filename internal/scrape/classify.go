package scrape

import (
	"sort"
	"strconv"
	"strings"
)

// DefaultCategory is assigned when no rule fires.
const DefaultCategory = "무관"

// resultKeywords mark outcome-announcement notices ("선정 결과" and the
// like). The pass that uses them is independent of category assignment.
var resultKeywords = []string{"결과"}

// KeywordWeight is one parsed "keyword*weight" entry.
type KeywordWeight struct {
	Word   string
	Weight int
}

// CategoryRule is one weighted classification rule, already parsed from
// its stored form.
type CategoryRule struct {
	Category   string
	Keywords   []KeywordWeight
	Exclusions []string
	MinPoint   int
	Priority   int
}

// ParseKeywords parses a stored keyword list: entries separated by commas
// or "|", each "keyword" or "keyword*weight". A missing or unparsable
// weight counts as 1.
func ParseKeywords(s string) []KeywordWeight {
	var out []KeywordWeight
	for _, entry := range splitList(s) {
		word, weight := entry, 1
		if i := strings.LastIndex(entry, "*"); i > 0 {
			if w, err := strconv.Atoi(strings.TrimSpace(entry[i+1:])); err == nil {
				word, weight = strings.TrimSpace(entry[:i]), w
			}
		}
		word = strings.TrimSpace(word)
		if word == "" {
			continue
		}
		out = append(out, KeywordWeight{Word: word, Weight: weight})
	}
	return out
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '|'
	})
}

// NewCategoryRule builds a parsed rule from its stored form.
func NewCategoryRule(category, keywords, exclusions string, minPoint, priority int) CategoryRule {
	var excl []string
	for _, e := range splitList(exclusions) {
		if e = strings.TrimSpace(e); e != "" {
			excl = append(excl, e)
		}
	}
	return CategoryRule{
		Category:   category,
		Keywords:   ParseKeywords(keywords),
		Exclusions: excl,
		MinPoint:   minPoint,
		Priority:   priority,
	}
}

// Score sums the weights of every keyword present in text, matched
// case-insensitively. An exclusion substring vetoes this rule only: the
// score is zero regardless of keyword hits, and other rules are
// unaffected.
func (r CategoryRule) Score(text string) int {
	lower := strings.ToLower(text)
	for _, e := range r.Exclusions {
		if strings.Contains(lower, strings.ToLower(e)) {
			return 0
		}
	}
	score := 0
	for _, kw := range r.Keywords {
		if strings.Contains(lower, strings.ToLower(kw.Word)) {
			score += kw.Weight
		}
	}
	return score
}

// Fires reports whether the rule's score reaches its threshold.
func (r CategoryRule) Fires(text string) bool {
	s := r.Score(text)
	return s > 0 && s >= r.MinPoint
}

// Classify evaluates the rules in ascending priority order and returns the
// category of the last rule that fires. Later rules are strictly more
// specific by construction, so a higher-priority match overwrites an
// earlier assignment. Returns (DefaultCategory, false) when nothing fires.
func Classify(text string, rules []CategoryRule) (string, bool) {
	ordered := make([]CategoryRule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	category, matched := DefaultCategory, false
	for _, rule := range ordered {
		if rule.Fires(text) {
			category, matched = rule.Category, true
		}
	}
	return category, matched
}

// IsResultNotice reports whether a title announces an outcome rather than
// an open bid.
func IsResultNotice(title string) bool {
	for _, kw := range resultKeywords {
		if strings.Contains(title, kw) {
			return true
		}
	}
	return false
}
