package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/junho/bid-finder/internal/models"
	"github.com/junho/bid-finder/internal/scrape"
)

// Store wraps the pool with the queries the scraper, classifier and API
// need. All notice writes are upserts scoped to (org_name, detail_url) or
// a single nid, so concurrent runs of different organizations never
// conflict.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// InsertNotices upserts a batch of notices. A conflicting (org_name,
// detail_url) insert folds into a no-op; the returned count is the number
// of rows actually inserted.
func (s *Store) InsertNotices(ctx context.Context, notices []models.Notice) (int, error) {
	inserted := 0
	for _, n := range notices {
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO notices (sn, org_name, title, detail_url, posted_date, posted_by, category, is_selected, scraped_at)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9)
			ON CONFLICT (org_name, detail_url) DO NOTHING
		`, n.SN, n.OrgName, n.Title, n.DetailURL, n.PostedDate, n.PostedBy, n.Category, n.IsSelected, n.ScrapedAt)
		if err != nil {
			return inserted, fmt.Errorf("insert notice %s/%s: %w", n.OrgName, n.DetailURL, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// RecentDetailURLs loads the most recent limit detail URLs for one
// organization, ordered by descending sequence. The caller must read this
// window before any upsert of the same organization's batch.
func (s *Store) RecentDetailURLs(ctx context.Context, orgName string, limit int) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT detail_url FROM notices
		WHERE org_name = $1
		ORDER BY sn DESC
		LIMIT $2
	`, orgName, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	urls := make(map[string]struct{}, limit)
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		urls[u] = struct{}{}
	}
	return urls, rows.Err()
}

// MaxSequence returns the organization's current highest sn, 0 when the
// organization has no notices yet.
func (s *Store) MaxSequence(ctx context.Context, orgName string) (int64, error) {
	var max int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(sn), 0) FROM notices WHERE org_name = $1`, orgName).Scan(&max)
	return max, err
}

// NoticeFilter narrows ListNotices. Zero values mean "no constraint".
type NoticeFilter struct {
	OrgName    string
	Category   string
	IsSelected *int
	Limit      int
	Offset     int
}

// buildNoticeFilter renders the WHERE clause and argument list for a
// filter, with placeholders numbered from 1.
func buildNoticeFilter(f NoticeFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	argIdx := 1
	if f.OrgName != "" {
		conds = append(conds, fmt.Sprintf("org_name = $%d", argIdx))
		args = append(args, f.OrgName)
		argIdx++
	}
	if f.Category != "" {
		conds = append(conds, fmt.Sprintf("category = $%d", argIdx))
		args = append(args, f.Category)
		argIdx++
	}
	if f.IsSelected != nil {
		conds = append(conds, fmt.Sprintf("is_selected = $%d", argIdx))
		args = append(args, *f.IsSelected)
		argIdx++
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	return where, args
}

const noticeColumns = `nid, sn, org_name, title, detail_url, COALESCE(posted_date, ''), COALESCE(posted_by, ''), category, is_selected, scraped_at, created_at`

func scanNotice(row interface{ Scan(...any) error }) (models.Notice, error) {
	var n models.Notice
	err := row.Scan(&n.NID, &n.SN, &n.OrgName, &n.Title, &n.DetailURL, &n.PostedDate, &n.PostedBy, &n.Category, &n.IsSelected, &n.ScrapedAt, &n.CreatedAt)
	return n, err
}

// ListNotices returns notices matching the filter, newest first.
func (s *Store) ListNotices(ctx context.Context, f NoticeFilter) ([]models.Notice, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	where, args := buildNoticeFilter(f)
	query := fmt.Sprintf(`
		SELECT %s FROM notices %s
		ORDER BY nid DESC
		LIMIT %d OFFSET %d
	`, noticeColumns, where, f.Limit, f.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notices []models.Notice
	for rows.Next() {
		n, err := scanNotice(rows)
		if err != nil {
			return nil, err
		}
		notices = append(notices, n)
	}
	return notices, rows.Err()
}

// GetNotice fetches one notice by surrogate key.
func (s *Store) GetNotice(ctx context.Context, nid int64) (models.Notice, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM notices WHERE nid = $1`, noticeColumns), nid)
	return scanNotice(row)
}

// SetNoticeCategory assigns a category to one notice.
func (s *Store) SetNoticeCategory(ctx context.Context, nid int64, category string) error {
	_, err := s.pool.Exec(ctx, `UPDATE notices SET category = $1 WHERE nid = $2`, category, nid)
	return err
}

// SetNoticeSelected moves one notice to a workflow state.
func (s *Store) SetNoticeSelected(ctx context.Context, nid int64, status int) error {
	_, err := s.pool.Exec(ctx, `UPDATE notices SET is_selected = $1 WHERE nid = $2`, status, nid)
	return err
}

// UnclassifiedNotices returns notices that have no category yet, oldest
// first so backfills proceed in insertion order.
func (s *Store) UnclassifiedNotices(ctx context.Context, limit int) ([]models.Notice, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM notices WHERE category IS NULL ORDER BY nid ASC LIMIT $1
	`, noticeColumns), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notices []models.Notice
	for rows.Next() {
		n, err := scanNotice(rows)
		if err != nil {
			return nil, err
		}
		notices = append(notices, n)
	}
	return notices, rows.Err()
}

// MarkResultNotices moves notices whose title contains any of the given
// keywords to the result-notified state. Returns the number updated.
func (s *Store) MarkResultNotices(ctx context.Context, keywords []string) (int64, error) {
	if len(keywords) == 0 {
		return 0, nil
	}
	var (
		conds []string
		args  []any
	)
	for i, kw := range keywords {
		conds = append(conds, fmt.Sprintf("title LIKE $%d", i+1))
		args = append(args, "%"+kw+"%")
	}
	query := fmt.Sprintf(`
		UPDATE notices SET is_selected = %d
		WHERE is_selected <> %d AND (%s)
	`, models.SelectedResultNotified, models.SelectedResultNotified, strings.Join(conds, " OR "))

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// UpsertNoticeDetail stores or refreshes one notice's detail fields.
func (s *Store) UpsertNoticeDetail(ctx context.Context, d models.NoticeDetail) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notice_details (nid, title, body_html, file_name, file_url, notice_div, notice_num, org_dept, org_man, org_tel, collected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (nid) DO UPDATE SET
			title      = COALESCE(NULLIF(EXCLUDED.title, ''), notice_details.title),
			body_html  = COALESCE(NULLIF(EXCLUDED.body_html, ''), notice_details.body_html),
			file_name  = COALESCE(NULLIF(EXCLUDED.file_name, ''), notice_details.file_name),
			file_url   = COALESCE(NULLIF(EXCLUDED.file_url, ''), notice_details.file_url),
			notice_div = COALESCE(NULLIF(EXCLUDED.notice_div, ''), notice_details.notice_div),
			notice_num = COALESCE(NULLIF(EXCLUDED.notice_num, ''), notice_details.notice_num),
			org_dept   = COALESCE(NULLIF(EXCLUDED.org_dept, ''), notice_details.org_dept),
			org_man    = COALESCE(NULLIF(EXCLUDED.org_man, ''), notice_details.org_man),
			org_tel    = COALESCE(NULLIF(EXCLUDED.org_tel, ''), notice_details.org_tel),
			collected_at = NOW()
	`, d.NID, d.Title, d.BodyHTML, d.FileName, d.FileURL, d.NoticeDiv, d.NoticeNum, d.OrgDept, d.OrgMan, d.OrgTel)
	return err
}

// NoticesMissingDetail lists notices that have no detail row yet, for one
// organization (or all when orgName is empty), oldest first.
func (s *Store) NoticesMissingDetail(ctx context.Context, orgName string, limit int) ([]models.Notice, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT %s FROM notices n
		WHERE NOT EXISTS (SELECT 1 FROM notice_details d WHERE d.nid = n.nid)
	`, noticeColumns)
	var args []any
	if orgName != "" {
		query += " AND n.org_name = $1"
		args = append(args, orgName)
	}
	query += fmt.Sprintf(" ORDER BY n.nid ASC LIMIT %d", limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notices []models.Notice
	for rows.Next() {
		n, err := scanNotice(rows)
		if err != nil {
			return nil, err
		}
		notices = append(notices, n)
	}
	return notices, rows.Err()
}

// InsertRunLog writes one organization's audit record. Run logs are
// append-only.
func (s *Store) InsertRunLog(ctx context.Context, rl models.RunLog) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO run_logs (run_id, org_name, scraped_count, new_count, inserted_count, error_code, error_message, time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rl.RunID, rl.OrgName, rl.ScrapedCount, rl.NewCount, rl.InsertedCount, rl.ErrorCode, rl.ErrorMessage, rl.Time)
	return err
}

// ListRunLogs returns the latest run logs, newest first.
func (s *Store) ListRunLogs(ctx context.Context, limit int) ([]models.RunLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, org_name, scraped_count, new_count, inserted_count, error_code, error_message, time
		FROM run_logs ORDER BY time DESC, id DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.RunLog
	for rows.Next() {
		var rl models.RunLog
		if err := rows.Scan(&rl.ID, &rl.RunID, &rl.OrgName, &rl.ScrapedCount, &rl.NewCount, &rl.InsertedCount, &rl.ErrorCode, &rl.ErrorMessage, &rl.Time); err != nil {
			return nil, err
		}
		logs = append(logs, rl)
	}
	return logs, rows.Err()
}

// CategoryRules loads the stored classification rules in ascending
// priority order.
func (s *Store) CategoryRules(ctx context.Context) ([]models.CategoryRule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, category, keywords, exclusions, min_point, priority
		FROM category_rules ORDER BY priority ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []models.CategoryRule
	for rows.Next() {
		var r models.CategoryRule
		if err := rows.Scan(&r.ID, &r.Category, &r.Keywords, &r.Exclusions, &r.MinPoint, &r.Priority); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// scrapeConfigColumns is the full persisted shape of one list config.
// Load and seed share it so no knob can silently stop round-tripping.
const scrapeConfigColumns = `org_name, url, paging, rows_locator, exception_row, start_page, end_page, enabled, referer, timeout_seconds, render_wait, render_scroll, field_rules`

// LoadScrapeConfigs reads the persisted per-organization list configs.
func (s *Store) LoadScrapeConfigs(ctx context.Context) ([]scrape.ScrapeConfig, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+scrapeConfigColumns+` FROM scrape_configs ORDER BY org_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []scrape.ScrapeConfig
	for rows.Next() {
		var (
			cfg       scrape.ScrapeConfig
			rulesJSON []byte
		)
		if err := rows.Scan(&cfg.OrgName, &cfg.URL, &cfg.PagingLocator, &cfg.RowLocator, &cfg.ExceptionRow, &cfg.StartPage, &cfg.EndPage, &cfg.Enabled, &cfg.Referer, &cfg.TimeoutSeconds, &cfg.Render.WaitLocator, &cfg.Render.Scroll, &rulesJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(rulesJSON, &cfg.Fields); err != nil {
			return nil, fmt.Errorf("field rules for %s: %w", cfg.OrgName, err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// LoadDetailConfigs reads the persisted per-organization detail configs.
func (s *Store) LoadDetailConfigs(ctx context.Context) ([]scrape.DetailConfig, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT org_name, sample_url, encoder, field_rules
		FROM detail_configs ORDER BY org_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []scrape.DetailConfig
	for rows.Next() {
		var (
			cfg       scrape.DetailConfig
			rulesJSON []byte
		)
		if err := rows.Scan(&cfg.OrgName, &cfg.SampleURL, &cfg.Encoder, &rulesJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(rulesJSON, &cfg.Fields); err != nil {
			return nil, fmt.Errorf("field rules for %s: %w", cfg.OrgName, err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// SeedFromRegistry mirrors the YAML registry into the config tables.
// Existing rows win: seeding never overwrites operator edits.
func (s *Store) SeedFromRegistry(ctx context.Context, reg *scrape.Registry) error {
	for i := range reg.Orgs {
		cfg := &reg.Orgs[i]
		rulesJSON, err := json.Marshal(cfg.Fields)
		if err != nil {
			return fmt.Errorf("marshal field rules for %s: %w", cfg.OrgName, err)
		}
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO scrape_configs (`+scrapeConfigColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (org_name) DO NOTHING`,
			cfg.OrgName, cfg.URL, cfg.PagingLocator, cfg.RowLocator, cfg.ExceptionRow, cfg.StartPage, cfg.EndPage, cfg.Enabled, cfg.Referer, cfg.TimeoutSeconds, cfg.Render.WaitLocator, cfg.Render.Scroll, rulesJSON); err != nil {
			return fmt.Errorf("seed scrape config %s: %w", cfg.OrgName, err)
		}
	}

	for i := range reg.Details {
		cfg := &reg.Details[i]
		rulesJSON, err := json.Marshal(cfg.Fields)
		if err != nil {
			return fmt.Errorf("marshal detail rules for %s: %w", cfg.OrgName, err)
		}
		if _, err := s.pool.Exec(ctx, `
			INSERT INTO detail_configs (org_name, sample_url, encoder, field_rules)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (org_name) DO NOTHING
		`, cfg.OrgName, cfg.SampleURL, cfg.Encoder, rulesJSON); err != nil {
			return fmt.Errorf("seed detail config %s: %w", cfg.OrgName, err)
		}
	}

	for _, c := range reg.Categories {
		if _, err := s.pool.Exec(ctx, `
			INSERT INTO category_rules (category, keywords, exclusions, min_point, priority)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (category) DO NOTHING
		`, c.Category, c.Keywords, c.Exclusions, c.MinPoint, c.Priority); err != nil {
			return fmt.Errorf("seed category rule %s: %w", c.Category, err)
		}
	}

	return nil
}
