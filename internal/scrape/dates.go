package scrape

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Upstream sites print posted dates a dozen different ways. The store only
// ever sees the ISO form.
const dateLayout = "2006-01-02"

var (
	// 2024-08-23, 2024.08.23, 2024/08/23, 2024년 08월 23일, with 1-2 digit
	// month/day
	sepDateRe = regexp.MustCompile(`(\d{4})\s*[.\-/년]\s*(\d{1,2})\s*[.\-/월]\s*(\d{1,2})`)
	// bare 8-digit run: 20240823
	compactDateRe = regexp.MustCompile(`(\d{4})(\d{2})(\d{2})`)
)

// NormalizeDate converts a scraped posted-date string to YYYY-MM-DD.
// Range values ("2024-08-23 ~ 2024-09-03") normalize to their start date.
// Future dates are clamped to today: sites occasionally publish deadline
// columns where the posting date belongs, and a future posted_date breaks
// the oldest-first ordering downstream.
func NormalizeDate(raw string, now time.Time) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("empty date")
	}

	// A range keeps only its head.
	if i := strings.IndexAny(s, "~"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}

	var y, mo, d string
	if m := sepDateRe.FindStringSubmatch(s); m != nil {
		y, mo, d = m[1], m[2], m[3]
	} else if m := compactDateRe.FindStringSubmatch(s); m != nil {
		y, mo, d = m[1], m[2], m[3]
	} else {
		return "", fmt.Errorf("unrecognized date: %q", raw)
	}

	parsed, err := time.Parse(dateLayout, fmt.Sprintf("%s-%s-%s", y, pad2(mo), pad2(d)))
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", raw, err)
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if parsed.After(today) {
		parsed = today
	}
	return parsed.Format(dateLayout), nil
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
