package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/junho/bid-finder/internal/db"
	"github.com/junho/bid-finder/internal/scrape"
)

func main() {
	var (
		orgsFlag     = flag.String("orgs", "", "comma-separated organization names (default: all enabled)")
		classifyFlag = flag.Int("classify", 0, "classify up to N unclassified notices and exit")
		detailsFlag  = flag.Int("details", 0, "collect up to N missing detail pages and exit")
		detailOrg    = flag.String("detail-org", "", "restrict -details to one organization")
	)
	flag.Parse()

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	reg, err := scrape.LoadRegistry(os.Getenv("SOURCES_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load source registry: %v", err)
	}

	store := db.NewStore(pool)
	if err := store.SeedFromRegistry(ctx, reg); err != nil {
		log.Fatalf("Failed to seed configuration: %v", err)
	}
	orch := scrape.NewOrchestrator(store, reg)

	switch {
	case *classifyFlag > 0:
		processed, err := orch.ClassifyBatch(ctx, *classifyFlag)
		if err != nil {
			log.Fatalf("Classification failed after %d notices: %v", processed, err)
		}
		log.Printf("Classified %d notices", processed)

	case *detailsFlag > 0:
		collected, err := orch.ScrapeDetails(ctx, *detailOrg, *detailsFlag)
		if err != nil {
			log.Fatalf("Detail collection failed after %d pages: %v", collected, err)
		}
		log.Printf("Collected %d detail pages", collected)

	default:
		var names []string
		if *orgsFlag != "" {
			for _, name := range strings.Split(*orgsFlag, ",") {
				if name = strings.TrimSpace(name); name != "" {
					names = append(names, name)
				}
			}
		}
		summary, err := orch.Run(ctx, names)
		if err != nil {
			log.Fatalf("Run failed: %v", err)
		}
		log.Printf("Run %s finished: %d organizations, %d inserted, %d errors",
			summary.RunID, len(summary.Logs), summary.Inserted, len(summary.ErrorOrgs))
		if len(summary.ErrorOrgs) > 0 {
			log.Printf("Error organizations: %s", strings.Join(summary.ErrorOrgs, ", "))
			os.Exit(1)
		}
	}
}
