package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/junho/bid-finder/internal/db"
	"github.com/junho/bid-finder/internal/scrape"
)

func main() {
	limit := flag.Int("limit", 20, "how many run logs to show")
	flag.Parse()

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, `
		SELECT org_name, scraped_count, new_count, inserted_count, error_code, error_message, time
		FROM run_logs ORDER BY time DESC LIMIT $1`, *limit)
	if err != nil {
		log.Fatal(err)
	}
	defer rows.Close()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Organization", "Scraped", "New", "Inserted", "Error", "Time"})

	for rows.Next() {
		var orgName string
		var scraped, newCount, inserted int
		var errCode *int
		var errMsg *string
		var at time.Time

		if err := rows.Scan(&orgName, &scraped, &newCount, &inserted, &errCode, &errMsg, &at); err != nil {
			log.Printf("Scan error: %v", err)
			continue
		}

		errCol := ""
		if errCode != nil {
			errCol = scrape.ErrorName(*errCode)
			if errMsg != nil && *errMsg != "" {
				msg := *errMsg
				if len(msg) > 40 {
					msg = msg[:40] + "..."
				}
				errCol += ": " + msg
			}
		}
		t.AppendRow(table.Row{orgName, scraped, newCount, inserted, errCol, at.Format("01-02 15:04:05")})
	}
	t.Render()
}
