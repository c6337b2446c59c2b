package scrape

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/antchfx/htmlquery"
)

// minFieldRunes is the plausibility floor for a required detail field. A
// shorter value usually means the static fetch got a script shell instead
// of the real page.
const minFieldRunes = 4

// DetailResult is one detail page's extracted field map plus the usual
// error code envelope.
type DetailResult struct {
	OrgName string
	URL     string
	ErrCode int
	ErrMsg  string
	Fields  map[string]string
}

func (r DetailResult) OK() bool { return r.ErrCode == ErrNone }

// DetailScraper fetches single notice detail pages with the same two-tier
// strategy as the list scraper. The tier is invisible to callers: they see
// only the returned field map.
type DetailScraper struct {
	Static   PageFetcher
	Rendered PageFetcher
}

func NewDetailScraper() *DetailScraper {
	return &DetailScraper{
		Static:   GlobalFetcherFactory.fetchers["static"],
		Rendered: GlobalFetcherFactory.fetchers["rendered"],
	}
}

// DefaultRequiredFields is used when the caller does not name any.
var DefaultRequiredFields = []string{"title"}

// ScrapeDetail fetches one detail page and extracts the configured fields.
// If any required field comes back missing or implausibly short, the
// static result is discarded and the page is refetched on the rendered
// tier, waiting for the first required field's locator.
func (s *DetailScraper) ScrapeDetail(ctx context.Context, cfg *DetailConfig, detailURL string, required []string) DetailResult {
	res := DetailResult{URL: detailURL}
	if cfg == nil || len(cfg.Fields) == 0 {
		res.ErrCode, res.ErrMsg = ErrConfigNotFound, "no detail config"
		return res
	}
	res.OrgName = cfg.OrgName
	if len(required) == 0 {
		required = DefaultRequiredFields
	}

	fields, err := s.fetchAndExtract(ctx, s.Static, FetchRequest{URL: detailURL, Referer: originOf(detailURL)}, cfg.Fields)
	if err != nil {
		fields = nil // force the rendered attempt
	}

	if missing := incompleteFields(fields, required); len(missing) > 0 {
		wait := s.waitLocatorFor(cfg, required[0])
		log.Printf("[%s] detail fields %v incomplete for %s, retrying rendered", cfg.OrgName, missing, detailURL)
		rendered, rerr := s.fetchAndExtract(ctx, s.Rendered, FetchRequest{
			URL:         detailURL,
			Referer:     originOf(detailURL),
			WaitLocator: wait,
		}, cfg.Fields)
		if rerr != nil {
			if err != nil {
				res.ErrCode, res.ErrMsg = ErrPageAccess, err.Error()
			} else {
				res.ErrCode, res.ErrMsg = ErrRenderEngine, rerr.Error()
			}
			return res
		}
		fields = rendered
		if missing := incompleteFields(fields, required); len(missing) > 0 {
			res.ErrCode = ErrDataProcessing
			res.ErrMsg = fmt.Sprintf("required fields still missing: %s", strings.Join(missing, ","))
			res.Fields = fields
			return res
		}
	}

	if raw, ok := fields["file_url"]; ok && raw != "" {
		fields["file_url"] = EncodeAttachmentURL(cfg.Encoder, raw)
	}

	res.Fields = fields
	return res
}

func (s *DetailScraper) fetchAndExtract(ctx context.Context, fetcher PageFetcher, req FetchRequest, rules []FieldRule) (map[string]string, error) {
	fetched, err := fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	doc, err := htmlquery.Parse(strings.NewReader(fetched.HTML))
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return ExtractFields(doc, rules), nil
}

// waitLocatorFor picks the rendered-tier wait condition: the primary
// locator of the first required field.
func (s *DetailScraper) waitLocatorFor(cfg *DetailConfig, firstRequired string) string {
	for _, rule := range cfg.Fields {
		if rule.Key == firstRequired && strings.TrimSpace(rule.Locator) != "" {
			return rule.Locator
		}
	}
	return ""
}

// incompleteFields lists the required keys that are absent or shorter than
// the plausibility floor.
func incompleteFields(fields map[string]string, required []string) []string {
	var missing []string
	for _, key := range required {
		if utf8.RuneCountInString(strings.TrimSpace(fields[key])) < minFieldRunes {
			missing = append(missing, key)
		}
	}
	return missing
}
