package main

import (
	"context"
	"fmt"
	"log"

	"github.com/junho/bid-finder/internal/db"
)

func main() {
	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	var notices, orgs, classified, details, runs int
	err = pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM notices),
			(SELECT count(DISTINCT org_name) FROM notices),
			(SELECT count(*) FROM notices WHERE category IS NOT NULL),
			(SELECT count(*) FROM notice_details),
			(SELECT count(*) FROM run_logs)
	`).Scan(&notices, &orgs, &classified, &details, &runs)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}

	fmt.Printf("Notices: %d\n", notices)
	fmt.Printf("Organizations: %d\n", orgs)
	fmt.Printf("Classified: %d\n", classified)
	fmt.Printf("With detail page: %d\n", details)
	fmt.Printf("Run logs: %d\n", runs)
}
