package scrape

import "testing"

const boardFixture = `
<html><body><table class="list"><tbody>
  <tr><td class="notice">공지</td><td class="subject"><a href="/view?id=99">상시 안내</a></td><td>2024-01-01</td></tr>
  <tr><td>3</td><td class="subject"><a href="/view?id=3">세번째 공고</a></td><td>2024-08-25</td></tr>
  <tr><td>2</td><td class="subject"><a href="/view?id=2">두번째 공고</a></td><td>2024-08-24</td></tr>
  <tr><td>1</td><td class="subject"><a href="/view?id=1">첫번째 공고</a></td><td>2024-08-23</td></tr>
</tbody></table></body></html>`

func boardConfig() *ScrapeConfig {
	return &ScrapeConfig{
		OrgName:      "테스트기관",
		URL:          "https://board.example/list",
		RowLocator:   "//table[@class='list']//tbody/tr",
		ExceptionRow: ".//td[@class='notice']",
		Fields: []FieldRule{
			{Key: "title", Locator: ".//td[@class='subject']/a", Target: TargetText},
			{Key: "detail_url", Locator: ".//td[@class='subject']/a", Target: "attr:href"},
			{Key: "posted_date", Locator: ".//td[3]", Target: TargetFirst},
		},
	}
}

func TestExtractRows(t *testing.T) {
	doc := parseHTML(t, boardFixture)
	cfg := boardConfig()

	rows, err := ExtractRows(doc, cfg, "https://board.example/list", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3 (exception row excluded)", len(rows))
	}
	for _, rec := range rows {
		if rec.Title() == "상시 안내" {
			t.Error("exception row leaked into results")
		}
		if rec.OrgName != "테스트기관" {
			t.Errorf("org name = %q", rec.OrgName)
		}
	}
	if got := rows[0].DetailURL(); got != "https://board.example/view?id=3" {
		t.Errorf("detail_url not resolved: %q", got)
	}
	if got := rows[0].Get("posted_date"); got != "2024-08-25" {
		t.Errorf("posted_date = %q", got)
	}
}

func TestExtractRowsCallbacks(t *testing.T) {
	doc := parseHTML(t, boardFixture)
	cfg := boardConfig()

	onRow := func(rec *RawRecord) bool {
		return rec.DetailURL() != "https://board.example/view?id=2"
	}
	onBatch := func(recs []*RawRecord) []*RawRecord {
		for _, rec := range recs {
			rec.Fields["batch"] = "seen"
		}
		return recs
	}

	rows, err := ExtractRows(doc, cfg, "https://board.example/list", onRow, onBatch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2 after row filter", len(rows))
	}
	for _, rec := range rows {
		if rec.Get("batch") != "seen" {
			t.Error("batch callback did not run")
		}
	}
}

func TestExtractRowsSkipsEmptyLocators(t *testing.T) {
	doc := parseHTML(t, boardFixture)
	cfg := boardConfig()
	cfg.Fields = append(cfg.Fields, FieldRule{Key: "posted_by", Locator: ""})

	rows, err := ExtractRows(doc, cfg, "https://board.example/list", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := rows[0].Fields["posted_by"]; ok {
		t.Error("inactive rule produced a field")
	}
}

func TestExtractFieldsKeyPresence(t *testing.T) {
	doc := parseHTML(t, boardFixture)

	fields := ExtractFields(doc, []FieldRule{
		{Key: "title", Locator: "//td[@class='subject']/a", Target: TargetFirst},
		{Key: "attachment", Locator: "//a[@class='file']", Target: "attr:href"},
		{Key: "posted_by", Locator: " "},
	})

	if got := fields["title"]; got == "" {
		t.Error("matched rule yielded no value")
	}
	if v, ok := fields["attachment"]; !ok || v != "" {
		t.Errorf("unmatched rule = (%q, %v), want an empty string under its key", v, ok)
	}
	if _, ok := fields["posted_by"]; ok {
		t.Error("rule without a locator contributed a key")
	}
}

func TestExtractRowsBadRowLocator(t *testing.T) {
	doc := parseHTML(t, boardFixture)
	cfg := boardConfig()
	cfg.RowLocator = "//tr["

	if _, err := ExtractRows(doc, cfg, "https://board.example/list", nil, nil); err == nil {
		t.Fatal("expected error for invalid row locator")
	}
}
