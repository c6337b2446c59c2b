// check_configs exercises every detail configuration against its sample
// URL and reports which fields come back populated. Run it after editing
// sources.yaml and before deploying.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/junho/bid-finder/internal/scrape"
)

func main() {
	orgFlag := flag.String("org", "", "check a single organization")
	flag.Parse()

	reg, err := scrape.LoadRegistry(os.Getenv("SOURCES_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load source registry: %v", err)
	}

	fetcher := scrape.NewStaticFetcher()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Organization", "Field", "Status", "Preview"})

	for i := range reg.Details {
		cfg := &reg.Details[i]
		if *orgFlag != "" && cfg.OrgName != *orgFlag {
			continue
		}
		if cfg.SampleURL == "" {
			t.AppendRow(table.Row{cfg.OrgName, "-", "NO SAMPLE URL", ""})
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		res, err := fetcher.Fetch(ctx, scrape.FetchRequest{URL: cfg.SampleURL})
		cancel()
		if err != nil {
			t.AppendRow(table.Row{cfg.OrgName, "-", "FETCH FAILED", err.Error()})
			continue
		}

		doc, err := htmlquery.Parse(strings.NewReader(res.HTML))
		if err != nil {
			t.AppendRow(table.Row{cfg.OrgName, "-", "PARSE FAILED", err.Error()})
			continue
		}

		pageTitle := ""
		if gq, err := goquery.NewDocumentFromReader(strings.NewReader(res.HTML)); err == nil {
			pageTitle = strings.TrimSpace(gq.Find("title").First().Text())
		}
		log.Printf("[%s] %s (%s)", cfg.OrgName, cfg.SampleURL, pageTitle)

		fields := scrape.ExtractFields(doc, cfg.Fields)
		for _, rule := range cfg.Fields {
			value := fields[rule.Key]
			status := "OK"
			if value == "" {
				status = "EMPTY"
			}
			t.AppendRow(table.Row{cfg.OrgName, rule.Key, status, preview(value)})
		}
		t.AppendSeparator()
	}
	t.Render()
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) > 50 {
		return string(runes[:50]) + "..."
	}
	return s
}
