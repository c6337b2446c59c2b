package scrape

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/junho/bid-finder/internal/models"
)

type fakeStore struct {
	mu sync.Mutex

	configs []ScrapeConfig
	details []DetailConfig
	rules   []models.CategoryRule

	recent        map[string]map[string]struct{}
	maxSN         map[string]int64
	inserted      []models.Notice
	runLogs       []models.RunLog
	unclassified  []models.Notice
	categories    map[int64]string
	markedWith    []string
	missingDetail []models.Notice
	upserted      []models.NoticeDetail
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		recent:     make(map[string]map[string]struct{}),
		maxSN:      make(map[string]int64),
		categories: make(map[int64]string),
	}
}

func (f *fakeStore) LoadScrapeConfigs(context.Context) ([]ScrapeConfig, error) {
	return f.configs, nil
}

func (f *fakeStore) LoadDetailConfigs(context.Context) ([]DetailConfig, error) {
	return f.details, nil
}

func (f *fakeStore) RecentDetailURLs(_ context.Context, orgName string, _ int) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]struct{})
	for u := range f.recent[orgName] {
		out[u] = struct{}{}
	}
	return out, nil
}

func (f *fakeStore) MaxSequence(_ context.Context, orgName string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxSN[orgName], nil
}

func (f *fakeStore) InsertNotices(_ context.Context, notices []models.Notice) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, notices...)
	return len(notices), nil
}

func (f *fakeStore) InsertRunLog(_ context.Context, rl models.RunLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runLogs = append(f.runLogs, rl)
	return nil
}

func (f *fakeStore) CategoryRules(context.Context) ([]models.CategoryRule, error) {
	return f.rules, nil
}

func (f *fakeStore) UnclassifiedNotices(_ context.Context, limit int) ([]models.Notice, error) {
	if limit < len(f.unclassified) {
		return f.unclassified[:limit], nil
	}
	return f.unclassified, nil
}

func (f *fakeStore) SetNoticeCategory(_ context.Context, nid int64, category string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.categories[nid] = category
	return nil
}

func (f *fakeStore) MarkResultNotices(_ context.Context, keywords []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedWith = append(f.markedWith, keywords...)
	return 0, nil
}

func (f *fakeStore) NoticesMissingDetail(_ context.Context, orgName string, _ int) ([]models.Notice, error) {
	var out []models.Notice
	for _, n := range f.missingDetail {
		if orgName == "" || n.OrgName == orgName {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertNoticeDetail(_ context.Context, d models.NoticeDetail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, d)
	return nil
}

func testOrchestrator(store Store, reg *Registry, static, rendered PageFetcher) *Orchestrator {
	o := NewOrchestrator(store, reg)
	o.Lists = &ListScraper{Static: static, Rendered: rendered, Now: fixedNow}
	o.Details = &DetailScraper{Static: static, Rendered: rendered}
	return o
}

func TestRunAssignsSequencesAndLogs(t *testing.T) {
	reg := &Registry{
		Orgs: []ScrapeConfig{
			{OrgName: "기관A", URL: "https://a.example/list", Enabled: true,
				RowLocator: "//table[@class='list']//tbody/tr", Fields: boardConfig().Fields},
			{OrgName: "기관B", URL: "https://b.example/list", Enabled: true,
				RowLocator: "//table[@class='list']//tbody/tr", Fields: boardConfig().Fields},
		},
	}
	static := &stubFetcher{pages: map[string]string{
		"https://a.example/list": listPage(6, 1),
		"https://b.example/list": listPage(8, 1),
	}}
	store := newFakeStore()
	store.maxSN["기관A"] = 40
	store.rules = []models.CategoryRule{{Category: "입찰", Keywords: "공고*2", MinPoint: 1, Priority: 1}}

	o := testOrchestrator(store, reg, static, &stubFetcher{})
	summary, err := o.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.runLogs) != 2 {
		t.Fatalf("got %d run logs, want exactly one per organization", len(store.runLogs))
	}
	for _, rl := range store.runLogs {
		if rl.RunID != summary.RunID {
			t.Errorf("run log carries run id %q, want %q", rl.RunID, summary.RunID)
		}
		if rl.ErrorCode != nil {
			t.Errorf("[%s] unexpected error code %d", rl.OrgName, *rl.ErrorCode)
		}
	}
	if len(summary.ErrorOrgs) != 0 {
		t.Errorf("error orgs = %v, want none", summary.ErrorOrgs)
	}
	if summary.Inserted != 14 {
		t.Errorf("inserted = %d, want 14", summary.Inserted)
	}

	// Sequence numbers continue from the stored maximum, gap free, oldest
	// row first.
	var orgA []models.Notice
	for _, n := range store.inserted {
		if n.OrgName == "기관A" {
			orgA = append(orgA, n)
		}
	}
	if len(orgA) != 6 {
		t.Fatalf("org A inserted %d notices, want 6", len(orgA))
	}
	for i, n := range orgA {
		if want := int64(41 + i); n.SN != want {
			t.Errorf("org A notice %d has sn %d, want %d", i, n.SN, want)
		}
		if n.Category == nil || *n.Category != "입찰" {
			t.Errorf("org A notice %d not classified", i)
		}
		if n.IsSelected != models.SelectedNew {
			t.Errorf("org A notice %d is_selected = %d", i, n.IsSelected)
		}
	}
	if orgA[0].Title != "공고 1호" {
		t.Errorf("first inserted title = %q, want the oldest row", orgA[0].Title)
	}

	if len(store.markedWith) == 0 {
		t.Error("result-notice pass did not run")
	}
}

func TestRunRecordsFailingOrganization(t *testing.T) {
	reg := &Registry{
		Orgs: []ScrapeConfig{
			{OrgName: "고장기관", URL: "https://down.example/list", Enabled: true,
				RowLocator: "//tr", Fields: boardConfig().Fields},
		},
	}
	// Neither tier has the page.
	o := testOrchestrator(newFakeStore(), reg, &stubFetcher{}, &stubFetcher{})
	store := o.StoreDB.(*fakeStore)

	summary, err := o.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summary.ErrorOrgs) != 1 || summary.ErrorOrgs[0] != "고장기관" {
		t.Fatalf("error orgs = %v", summary.ErrorOrgs)
	}
	if len(store.runLogs) != 1 {
		t.Fatalf("got %d run logs, want 1", len(store.runLogs))
	}
	if store.runLogs[0].ErrorCode == nil {
		t.Fatal("failing organization's run log has no error code")
	}
	if len(store.inserted) != 0 {
		t.Errorf("%d notices inserted for a failed scrape", len(store.inserted))
	}
}

func TestRunIsIdempotentAgainstRecentWindow(t *testing.T) {
	reg := &Registry{
		Orgs: []ScrapeConfig{
			{OrgName: "기관A", URL: "https://a.example/list", Enabled: true,
				RowLocator: "//table[@class='list']//tbody/tr", Fields: boardConfig().Fields},
		},
	}
	static := &stubFetcher{pages: map[string]string{
		"https://a.example/list": listPage(6, 1),
	}}
	store := newFakeStore()
	store.recent["기관A"] = map[string]struct{}{}
	for i := 1; i <= 6; i++ {
		store.recent["기관A"][fmt.Sprintf("https://a.example/view?id=%d", i)] = struct{}{}
	}

	o := testOrchestrator(store, reg, static, &stubFetcher{})
	summary, err := o.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Inserted != 0 {
		t.Errorf("inserted = %d on a rerun, want 0", summary.Inserted)
	}
	if len(store.runLogs) != 1 || store.runLogs[0].NewCount != 0 {
		t.Errorf("run log should report zero new rows: %+v", store.runLogs)
	}
	if store.runLogs[0].ScrapedCount != 6 {
		t.Errorf("scraped count = %d, want 6", store.runLogs[0].ScrapedCount)
	}
}

func TestRunFiltersByName(t *testing.T) {
	reg := &Registry{
		Orgs: []ScrapeConfig{
			{OrgName: "기관A", URL: "https://a.example/list", Enabled: true,
				RowLocator: "//table[@class='list']//tbody/tr", Fields: boardConfig().Fields},
			{OrgName: "기관B", URL: "https://b.example/list", Enabled: true,
				RowLocator: "//table[@class='list']//tbody/tr", Fields: boardConfig().Fields},
			{OrgName: "꺼진기관", URL: "https://c.example/list", Enabled: false,
				RowLocator: "//tr", Fields: boardConfig().Fields},
		},
	}
	static := &stubFetcher{pages: map[string]string{
		"https://b.example/list": listPage(6, 1),
	}}
	store := newFakeStore()

	o := testOrchestrator(store, reg, static, &stubFetcher{})
	if _, err := o.Run(context.Background(), []string{"기관B"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.runLogs) != 1 || store.runLogs[0].OrgName != "기관B" {
		t.Fatalf("run logs = %+v, want only 기관B", store.runLogs)
	}
}

func TestClassifyBatch(t *testing.T) {
	store := newFakeStore()
	store.rules = []models.CategoryRule{
		{Category: "보안", Keywords: "보안*3", MinPoint: 3, Priority: 1},
	}
	store.unclassified = []models.Notice{
		{NID: 1, Title: "정보보안 시스템 구축"},
		{NID: 2, Title: "구내식당 위탁 운영"},
	}

	o := testOrchestrator(store, nil, &stubFetcher{}, &stubFetcher{})
	processed, err := o.ClassifyBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 2 {
		t.Fatalf("processed = %d, want 2", processed)
	}
	if store.categories[1] != "보안" {
		t.Errorf("nid 1 category = %q", store.categories[1])
	}
	if store.categories[2] != DefaultCategory {
		t.Errorf("nid 2 category = %q, want %q", store.categories[2], DefaultCategory)
	}
}

func TestScrapeDetailsPersistsSanitizedBody(t *testing.T) {
	url := "https://board.example/view?id=105"
	store := newFakeStore()
	store.details = []DetailConfig{*detailConfig()}
	store.missingDetail = []models.Notice{
		{NID: 9, OrgName: "테스트기관", DetailURL: url},
		{NID: 10, OrgName: "설정없는기관", DetailURL: "https://other.example/view?id=1"},
	}

	dirty := `<html><body>
	  <div class="view"><h3>입찰 공고 제2024-105호</h3></div>
	  <div class="content"><p>과업 내용</p><script>steal()</script></div>
	</body></html>`
	static := &stubFetcher{pages: map[string]string{url: dirty}}

	o := testOrchestrator(store, nil, static, &stubFetcher{})
	collected, err := o.ScrapeDetails(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if collected != 1 {
		t.Fatalf("collected = %d, want 1 (no config means skip)", collected)
	}
	d := store.upserted[0]
	if d.NID != 9 {
		t.Errorf("nid = %d", d.NID)
	}
	if d.Title != "입찰 공고 제2024-105호" {
		t.Errorf("title = %q", d.Title)
	}
	if !strings.Contains(d.BodyHTML, "과업 내용") {
		t.Errorf("body lost its content: %q", d.BodyHTML)
	}
	if strings.Contains(d.BodyHTML, "script") {
		t.Errorf("script survived sanitization: %q", d.BodyHTML)
	}
}
