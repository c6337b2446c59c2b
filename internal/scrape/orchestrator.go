package scrape

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/junho/bid-finder/internal/models"
)

// orgBatchSize bounds how many organizations are in flight at once. Two is
// enough to keep the network busy without piling up browser contexts.
const orgBatchSize = 2

// interBatchDelay spaces organization batches out so upstream sites see a
// trickle, not a burst.
const interBatchDelay = 2 * time.Second

// Store is what the orchestrator needs from persistence. *db.Store
// implements it; tests substitute a fake.
type Store interface {
	LoadScrapeConfigs(ctx context.Context) ([]ScrapeConfig, error)
	LoadDetailConfigs(ctx context.Context) ([]DetailConfig, error)
	RecentDetailURLs(ctx context.Context, orgName string, limit int) (map[string]struct{}, error)
	MaxSequence(ctx context.Context, orgName string) (int64, error)
	InsertNotices(ctx context.Context, notices []models.Notice) (int, error)
	InsertRunLog(ctx context.Context, rl models.RunLog) error
	CategoryRules(ctx context.Context) ([]models.CategoryRule, error)
	UnclassifiedNotices(ctx context.Context, limit int) ([]models.Notice, error)
	SetNoticeCategory(ctx context.Context, nid int64, category string) error
	MarkResultNotices(ctx context.Context, keywords []string) (int64, error)
	NoticesMissingDetail(ctx context.Context, orgName string, limit int) ([]models.Notice, error)
	UpsertNoticeDetail(ctx context.Context, d models.NoticeDetail) error
}

// RunSummary aggregates one whole scrape run.
type RunSummary struct {
	RunID     string          `json:"run_id"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   time.Time       `json:"ended_at"`
	Logs      []models.RunLog `json:"logs"`
	ErrorOrgs []string        `json:"error_orgs"`
	Inserted  int             `json:"inserted"`
}

// Orchestrator owns a run end to end: it borrows the store, drives the
// list scraper per organization in batches, assigns sequence numbers,
// classifies new rows and writes exactly one run log per organization.
type Orchestrator struct {
	StoreDB  Store
	Registry *Registry
	Lists    *ListScraper
	Details  *DetailScraper

	sanitizer *bluemonday.Policy
}

func NewOrchestrator(store Store, reg *Registry) *Orchestrator {
	return &Orchestrator{
		StoreDB:   store,
		Registry:  reg,
		Lists:     NewListScraper(),
		Details:   NewDetailScraper(),
		sanitizer: bluemonday.UGCPolicy(),
	}
}

// Run scrapes the named organizations (all enabled ones when names is
// empty) in batches of two. A failing organization is recorded and skipped;
// it never aborts the batch.
func (o *Orchestrator) Run(ctx context.Context, names []string) (*RunSummary, error) {
	summary := &RunSummary{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
	}

	configs := o.scrapeConfigs(ctx, names)
	rules := o.categoryRules(ctx)
	log.Printf("[run %s] %d organizations, %d category rules", summary.RunID, len(configs), len(rules))

	var mu sync.Mutex
	for start := 0; start < len(configs); start += orgBatchSize {
		end := start + orgBatchSize
		if end > len(configs) {
			end = len(configs)
		}

		var wg sync.WaitGroup
		for _, cfg := range configs[start:end] {
			wg.Add(1)
			go func(cfg ScrapeConfig) {
				defer wg.Done()
				rl := o.processOrg(ctx, &cfg, rules, summary.RunID)

				mu.Lock()
				summary.Logs = append(summary.Logs, rl)
				summary.Inserted += rl.InsertedCount
				if rl.ErrorCode != nil {
					summary.ErrorOrgs = append(summary.ErrorOrgs, rl.OrgName)
				}
				mu.Unlock()
			}(cfg)
		}
		wg.Wait()

		if end < len(configs) {
			select {
			case <-ctx.Done():
				summary.EndedAt = time.Now()
				return summary, ctx.Err()
			case <-time.After(interBatchDelay):
			}
		}
	}

	if n, err := o.StoreDB.MarkResultNotices(ctx, resultKeywords); err != nil {
		log.Printf("[run %s] result-notice pass failed: %v", summary.RunID, err)
	} else if n > 0 {
		log.Printf("[run %s] %d notices moved to result-notified", summary.RunID, n)
	}

	summary.EndedAt = time.Now()
	if len(summary.ErrorOrgs) > 0 {
		log.Printf("[run %s] finished with %d error organizations: %s",
			summary.RunID, len(summary.ErrorOrgs), strings.Join(summary.ErrorOrgs, ", "))
	}
	return summary, nil
}

// processOrg runs one organization start to finish and always returns a
// run log, whatever stage failed.
func (o *Orchestrator) processOrg(ctx context.Context, cfg *ScrapeConfig, rules []CategoryRule, runID string) models.RunLog {
	rl := models.RunLog{RunID: runID, OrgName: cfg.OrgName, Time: time.Now()}
	defer func() {
		rl.Time = time.Now()
		if err := o.StoreDB.InsertRunLog(ctx, rl); err != nil {
			log.Printf("[%s] run log write failed: %v", cfg.OrgName, err)
		}
	}()

	result := o.Lists.ScrapeOrganization(ctx, cfg)
	rl.ScrapedCount = len(result.Rows)
	if !result.OK() {
		code, msg := result.ErrCode, result.ErrMsg
		rl.ErrorCode, rl.ErrorMessage = &code, &msg
		log.Printf("[%s] scrape failed: %s (%s)", cfg.OrgName, ErrorName(code), msg)
		return rl
	}

	// The recent window is read before any upsert for this organization so
	// a concurrent identical run cannot make rows look new twice.
	recent, err := o.StoreDB.RecentDetailURLs(ctx, cfg.OrgName, WindowSize(len(result.Rows)))
	if err != nil {
		return failLog(rl, ErrUnknown, err)
	}
	fresh := PartitionNew(result.Rows, recent)
	rl.NewCount = len(fresh)
	if len(fresh) == 0 {
		log.Printf("[%s] %d rows scraped, nothing new", cfg.OrgName, rl.ScrapedCount)
		return rl
	}

	lastSN, err := o.StoreDB.MaxSequence(ctx, cfg.OrgName)
	if err != nil {
		return failLog(rl, ErrUnknown, err)
	}

	notices := make([]models.Notice, 0, len(fresh))
	for i, rec := range fresh {
		n := models.Notice{
			SN:         lastSN + int64(i) + 1,
			OrgName:    cfg.OrgName,
			Title:      rec.Title(),
			DetailURL:  rec.DetailURL(),
			PostedDate: rec.Get("posted_date"),
			PostedBy:   rec.Get("posted_by"),
			IsSelected: models.SelectedNew,
			ScrapedAt:  rec.ScrapedAt,
		}
		if category, ok := Classify(n.Title, rules); ok {
			n.Category = &category
		}
		notices = append(notices, n)
	}

	inserted, err := o.StoreDB.InsertNotices(ctx, notices)
	rl.InsertedCount = inserted
	if err != nil {
		return failLog(rl, ErrDataProcessing, err)
	}

	log.Printf("[%s] scraped=%d new=%d inserted=%d", cfg.OrgName, rl.ScrapedCount, rl.NewCount, rl.InsertedCount)
	return rl
}

func failLog(rl models.RunLog, code int, err error) models.RunLog {
	msg := err.Error()
	rl.ErrorCode, rl.ErrorMessage = &code, &msg
	return rl
}

// ClassifyBatch assigns categories to notices that have none yet. Returns
// how many were processed. Classification is deterministic: repeated runs
// over the same rules and titles assign the same categories.
func (o *Orchestrator) ClassifyBatch(ctx context.Context, limit int) (int, error) {
	rules := o.categoryRules(ctx)
	notices, err := o.StoreDB.UnclassifiedNotices(ctx, limit)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, n := range notices {
		category, _ := Classify(n.Title, rules)
		if err := o.StoreDB.SetNoticeCategory(ctx, n.NID, category); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

// ScrapeDetails walks notices that have no detail row yet and collects
// their detail pages. Body HTML is sanitized before storage.
func (o *Orchestrator) ScrapeDetails(ctx context.Context, orgName string, limit int) (int, error) {
	detailConfigs := o.detailConfigs(ctx)

	notices, err := o.StoreDB.NoticesMissingDetail(ctx, orgName, limit)
	if err != nil {
		return 0, err
	}

	collected := 0
	for _, n := range notices {
		cfg, ok := detailConfigs[n.OrgName]
		if !ok {
			continue
		}
		result := o.Details.ScrapeDetail(ctx, cfg, n.DetailURL, nil)
		if !result.OK() {
			log.Printf("[%s] detail scrape failed for nid=%d: %s (%s)", n.OrgName, n.NID, ErrorName(result.ErrCode), result.ErrMsg)
			continue
		}

		d := models.NoticeDetail{
			NID:       n.NID,
			Title:     result.Fields["title"],
			BodyHTML:  o.sanitizer.Sanitize(result.Fields["body_html"]),
			FileName:  result.Fields["file_name"],
			FileURL:   result.Fields["file_url"],
			NoticeDiv: result.Fields["notice_div"],
			NoticeNum: result.Fields["notice_num"],
			OrgDept:   result.Fields["org_dept"],
			OrgMan:    result.Fields["org_man"],
			OrgTel:    result.Fields["org_tel"],
		}
		if err := o.StoreDB.UpsertNoticeDetail(ctx, d); err != nil {
			return collected, err
		}
		collected++
	}
	return collected, nil
}

// scrapeConfigs resolves which organizations to run: persisted configs
// first, the YAML registry as fallback, narrowed to names when given.
func (o *Orchestrator) scrapeConfigs(ctx context.Context, names []string) []ScrapeConfig {
	configs, err := o.StoreDB.LoadScrapeConfigs(ctx)
	if err != nil || len(configs) == 0 {
		if err != nil {
			log.Printf("persisted scrape configs unavailable, using registry: %v", err)
		}
		if o.Registry != nil {
			configs = o.Registry.Orgs
		}
	}

	var out []ScrapeConfig
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		if len(names) > 0 && !containsString(names, cfg.OrgName) {
			continue
		}
		out = append(out, cfg)
	}
	return out
}

func (o *Orchestrator) detailConfigs(ctx context.Context) map[string]*DetailConfig {
	configs, err := o.StoreDB.LoadDetailConfigs(ctx)
	if err != nil || len(configs) == 0 {
		if o.Registry != nil {
			configs = o.Registry.Details
		}
	}
	byName := make(map[string]*DetailConfig, len(configs))
	for i := range configs {
		byName[configs[i].OrgName] = &configs[i]
	}
	return byName
}

func (o *Orchestrator) categoryRules(ctx context.Context) []CategoryRule {
	var rules []CategoryRule
	stored, err := o.StoreDB.CategoryRules(ctx)
	if err == nil && len(stored) > 0 {
		for _, r := range stored {
			rules = append(rules, NewCategoryRule(r.Category, r.Keywords, r.Exclusions, r.MinPoint, r.Priority))
		}
		return rules
	}
	if err != nil {
		log.Printf("stored category rules unavailable, using registry: %v", err)
	}
	if o.Registry == nil {
		return rules
	}
	for _, c := range o.Registry.Categories {
		rules = append(rules, NewCategoryRule(c.Category, c.Keywords, c.Exclusions, c.MinPoint, c.Priority))
	}
	return rules
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
