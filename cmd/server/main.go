package main

import (
	"context"
	"log"
	"os"

	"github.com/robfig/cron/v3"

	"github.com/junho/bid-finder/internal/api"
	"github.com/junho/bid-finder/internal/db"
	"github.com/junho/bid-finder/internal/scrape"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

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

	srv := api.NewServer(pool, reg)

	// SCRAPE_CRON schedules full runs in-process, e.g. "0 6 * * *".
	if spec := os.Getenv("SCRAPE_CRON"); spec != "" {
		orch := scrape.NewOrchestrator(store, reg)
		c := cron.New()
		if _, err := c.AddFunc(spec, func() {
			summary, err := orch.Run(context.Background(), nil)
			if err != nil {
				log.Printf("scheduled run failed: %v", err)
				return
			}
			log.Printf("scheduled run %s inserted %d notices (%d error orgs)",
				summary.RunID, summary.Inserted, len(summary.ErrorOrgs))
		}); err != nil {
			log.Fatalf("Invalid SCRAPE_CRON %q: %v", spec, err)
		}
		c.Start()
		defer c.Stop()
		log.Printf("Scrape schedule active: %s", spec)
	}

	log.Printf("Server starting on port %s...", port)
	if err := srv.Start(port); err != nil {
		log.Fatal(err)
	}
}
