package scrape

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// pageWorkers caps concurrent static page fetches within one organization.
const pageWorkers = 4

// minUsableRows is the organization-level floor: fewer usable rows than
// this after both fetch tiers is reported as an error, not an empty run.
const minUsableRows = 2

// ListResult is what one organization's list scrape returns. Errors travel
// as codes so the orchestrator can always write a run log.
type ListResult struct {
	OrgName string
	ErrCode int
	ErrMsg  string
	Rows    []*RawRecord
}

func (r ListResult) OK() bool { return r.ErrCode == ErrNone }

// ListScraper drives the two fetch tiers across a configured page range
// and turns pages into validated, oldest-first RawRecords.
type ListScraper struct {
	Static   PageFetcher
	Rendered PageFetcher
	Now      func() time.Time
}

func NewListScraper() *ListScraper {
	return &ListScraper{
		Static:   GlobalFetcherFactory.fetchers["static"],
		Rendered: GlobalFetcherFactory.fetchers["rendered"],
		Now:      time.Now,
	}
}

// ScrapeOrganization fetches and extracts every configured list page for
// one organization. Static pages are fetched with bounded parallelism;
// when the combined static row count is insufficient the whole range is
// redone sequentially on the rendered tier, and the rendered result
// replaces the static partial entirely.
func (s *ListScraper) ScrapeOrganization(ctx context.Context, cfg *ScrapeConfig) ListResult {
	if cfg == nil {
		return ListResult{ErrCode: ErrConfigNotFound, ErrMsg: "nil config"}
	}
	res := ListResult{OrgName: cfg.OrgName}
	if err := cfg.Validate(); err != nil {
		res.ErrCode, res.ErrMsg = ErrConfigNotFound, err.Error()
		return res
	}

	pageURLs, code, err := s.pageURLs(ctx, cfg)
	if err != nil {
		res.ErrCode, res.ErrMsg = code, err.Error()
		return res
	}

	rows, failedPages := s.fetchStaticPages(ctx, cfg, pageURLs)

	if needsFallback(len(rows), nil) {
		log.Printf("[%s] static tier yielded %d rows from %d pages (%d failed), retrying rendered",
			cfg.OrgName, len(rows), len(pageURLs), failedPages)
		rendered, rerr := s.fetchRenderedPages(ctx, cfg, pageURLs)
		if rerr != nil && len(rows) == 0 {
			res.ErrCode, res.ErrMsg = ErrRenderEngine, rerr.Error()
			return res
		}
		if rerr == nil && (len(rendered) > 0 || len(rows) == 0) {
			// The rendered result wins outright; the static partial is
			// discarded, not merged.
			rows = rendered
		}
	}

	rows = s.finalize(cfg, rows)
	if len(rows) < minUsableRows {
		res.ErrCode = ErrRowParsing
		res.ErrMsg = fmt.Sprintf("only %d usable rows", len(rows))
		res.Rows = rows
		return res
	}

	res.Rows = rows
	return res
}

// pageURLs expands the configured page range into concrete URLs, either by
// template substitution or by following the paging locator from the first
// page.
func (s *ListScraper) pageURLs(ctx context.Context, cfg *ScrapeConfig) ([]string, int, error) {
	if strings.Contains(cfg.URL, PagePlaceholder) {
		var urls []string
		for i := cfg.StartPage; i <= cfg.EndPage; i++ {
			urls = append(urls, strings.ReplaceAll(cfg.URL, PagePlaceholder, strconv.Itoa(i)))
		}
		return urls, ErrNone, nil
	}

	if cfg.PagingLocator == "" || cfg.StartPage == cfg.EndPage {
		return []string{cfg.URL}, ErrNone, nil
	}

	// No placeholder: walk the paging locator from the first page.
	urls := []string{cfg.URL}
	first, err := s.Static.Fetch(ctx, FetchRequest{URL: cfg.URL, Referer: cfg.Referer})
	if err != nil {
		return nil, ErrPageAccess, fmt.Errorf("first page: %w", err)
	}
	doc, err := htmlquery.Parse(strings.NewReader(first.HTML))
	if err != nil {
		return nil, ErrRowParsing, fmt.Errorf("parse first page: %w", err)
	}
	nodes, err := htmlquery.QueryAll(doc, cfg.PagingLocator)
	if err != nil {
		return nil, ErrPagination, fmt.Errorf("paging locator: %w", err)
	}
	for _, n := range nodes {
		target := pagingTarget(n)
		if target == "" {
			continue
		}
		urls = appendUnique(urls, absoluteURL(cfg.URL, target))
		if len(urls) >= cfg.EndPage-cfg.StartPage+1 {
			break
		}
	}
	if len(urls) == 1 && cfg.EndPage > cfg.StartPage {
		return urls, ErrNone, nil // single-page site; not an error
	}
	return urls, ErrNone, nil
}

// pagingTarget resolves one paging element to a URL, preferring href and
// falling back to the location.href idiom inside onclick handlers.
func pagingTarget(n *html.Node) string {
	if href := strings.TrimSpace(htmlquery.SelectAttr(n, "href")); href != "" && !strings.HasPrefix(href, "javascript:") && href != "#" {
		return href
	}
	onclick := htmlquery.SelectAttr(n, "onclick")
	if onclick == "" {
		if href := htmlquery.SelectAttr(n, "href"); strings.HasPrefix(href, "javascript:") {
			onclick = href
		}
	}
	if onclick == "" {
		return ""
	}
	if m := onclickHrefRe.FindStringSubmatch(onclick); m != nil {
		return m[1]
	}
	return ""
}

type pageRows struct {
	index int
	rows  []*RawRecord
	err   error
}

// fetchStaticPages fetches all pages with a bounded worker pool and keeps
// the rows in page order. A failed page contributes nothing and does not
// cancel its siblings.
func (s *ListScraper) fetchStaticPages(ctx context.Context, cfg *ScrapeConfig, pageURLs []string) ([]*RawRecord, int) {
	results := make([]pageRows, len(pageURLs))
	sem := make(chan struct{}, pageWorkers)
	var wg sync.WaitGroup

	for i, pageURL := range pageURLs {
		wg.Add(1)
		go func(idx int, u string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			rows, err := s.scrapeOnePage(ctx, cfg, s.Static, u)
			results[idx] = pageRows{index: idx, rows: rows, err: err}
		}(i, pageURL)
	}
	wg.Wait()

	var all []*RawRecord
	failed := 0
	for _, pr := range results {
		if pr.err != nil {
			failed++
			log.Printf("[%s] page %d failed: %v", cfg.OrgName, pr.index+cfg.StartPage, pr.err)
			continue
		}
		all = append(all, pr.rows...)
	}
	return all, failed
}

// fetchRenderedPages redoes the full page range on the rendered tier,
// sequentially: each render needs a dedicated browser page.
func (s *ListScraper) fetchRenderedPages(ctx context.Context, cfg *ScrapeConfig, pageURLs []string) ([]*RawRecord, error) {
	wait := cfg.Render.WaitLocator
	if wait == "" {
		wait = cfg.RowLocator
	}

	var all []*RawRecord
	var lastErr error
	for i, pageURL := range pageURLs {
		rows, err := s.scrapeOnePageWith(ctx, cfg, s.Rendered, FetchRequest{
			URL:         pageURL,
			Referer:     cfg.Referer,
			WaitLocator: wait,
			Scroll:      cfg.Render.Scroll,
		})
		if err != nil {
			lastErr = err
			log.Printf("[%s] rendered page %d failed: %v", cfg.OrgName, i+cfg.StartPage, err)
			continue
		}
		all = append(all, rows...)
	}
	if len(all) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return all, nil
}

func (s *ListScraper) scrapeOnePage(ctx context.Context, cfg *ScrapeConfig, fetcher PageFetcher, pageURL string) ([]*RawRecord, error) {
	return s.scrapeOnePageWith(ctx, cfg, fetcher, FetchRequest{URL: pageURL, Referer: cfg.Referer, Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second})
}

func (s *ListScraper) scrapeOnePageWith(ctx context.Context, cfg *ScrapeConfig, fetcher PageFetcher, req FetchRequest) ([]*RawRecord, error) {
	fetched, err := fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	doc, err := htmlquery.Parse(strings.NewReader(fetched.HTML))
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return ExtractRows(doc, cfg, req.URL, nil, nil)
}

// finalize reverses rows to oldest-first, drops rows without a title or
// detail URL, and normalizes posted dates. Row-level problems stay on the
// row (or drop it); they never become organization errors.
func (s *ListScraper) finalize(cfg *ScrapeConfig, rows []*RawRecord) []*RawRecord {
	now := s.Now()

	// Sites list newest first; sequence numbers are assigned oldest first.
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}

	out := rows[:0]
	for _, rec := range rows {
		if strings.TrimSpace(rec.Title()) == "" {
			continue // pinned banners and ad rows; dropped silently
		}
		if strings.TrimSpace(rec.DetailURL()) == "" {
			rec.ErrCode, rec.ErrMsg = ErrMissingURL, "row has no detail url"
			continue
		}
		rec.Fields["title"] = cleanText(rec.Title())

		if raw, ok := rec.Fields["posted_date"]; ok && raw != "" {
			if normalized, err := NormalizeDate(raw, now); err == nil {
				rec.Fields["posted_date"] = normalized
			} else {
				// "상시모집" and friends: keep the row but store today's
				// date so only normalized dates ever reach the database.
				rec.Fields["posted_date"] = now.Format(dateLayout)
				rec.ErrCode, rec.ErrMsg = ErrDateParse, err.Error()
			}
		}
		out = append(out, rec)
	}
	return out
}
