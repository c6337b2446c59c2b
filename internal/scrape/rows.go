package scrape

import (
	"fmt"
	"strings"
	"time"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// RawRecord is one extracted, not-yet-deduplicated row or detail result.
type RawRecord struct {
	OrgName   string
	Fields    map[string]string
	ScrapedAt time.Time
	ErrCode   int
	ErrMsg    string
}

func (r *RawRecord) Get(key string) string { return r.Fields[key] }

func (r *RawRecord) Title() string     { return r.Fields["title"] }
func (r *RawRecord) DetailURL() string { return r.Fields["detail_url"] }

// RowFunc inspects one extracted record. Returning false drops the record;
// the callback may also rewrite fields in place.
type RowFunc func(rec *RawRecord) bool

// BatchFunc post-processes a whole page's records at once.
type BatchFunc func(recs []*RawRecord) []*RawRecord

// ExtractRows applies the config's field rules across every row matched by
// the root row locator in one parsed page. Rows matching the exception
// locator (pinned/banner rows) are skipped. detail_url values are resolved
// against pageURL.
func ExtractRows(doc *html.Node, cfg *ScrapeConfig, pageURL string, onRow RowFunc, onBatch BatchFunc) ([]*RawRecord, error) {
	rows, err := htmlquery.QueryAll(doc, cfg.RowLocator)
	if err != nil {
		return nil, fmt.Errorf("row locator %q: %w", cfg.RowLocator, err)
	}

	now := time.Now()
	records := make([]*RawRecord, 0, len(rows))
	for _, row := range rows {
		if cfg.ExceptionRow != "" {
			if hit, err := htmlquery.QueryAll(row, cfg.ExceptionRow); err == nil && len(hit) > 0 {
				continue
			}
		}

		rec := &RawRecord{
			OrgName:   cfg.OrgName,
			Fields:    make(map[string]string, len(cfg.Fields)),
			ScrapedAt: now,
		}
		for _, rule := range cfg.Fields {
			// A rule with an empty locator is declared but inactive.
			if strings.TrimSpace(rule.Locator) == "" {
				continue
			}
			rec.Fields[rule.Key] = Evaluate(row, rule)
		}
		if u := rec.DetailURL(); u != "" {
			rec.Fields["detail_url"] = absoluteURL(pageURL, u)
		}

		if onRow != nil && !onRow(rec) {
			continue
		}
		records = append(records, rec)
	}

	if onBatch != nil {
		records = onBatch(records)
	}
	return records, nil
}

// ExtractFields evaluates detail-page rules against the document root and
// returns the field map. A rule whose locator matches nothing yields an
// empty string; a rule with no locator at all is inactive and contributes
// no key.
func ExtractFields(doc *html.Node, fields []FieldRule) map[string]string {
	out := make(map[string]string, len(fields))
	for _, rule := range fields {
		if strings.TrimSpace(rule.Locator) == "" {
			continue
		}
		out[rule.Key] = Evaluate(doc, rule)
	}
	return out
}
