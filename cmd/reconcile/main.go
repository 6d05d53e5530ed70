package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/civil"

	infraBQ "github.com/jihokoo/gift-ledger/internal/infra/bigquery"
	"github.com/jihokoo/gift-ledger/internal/logger"
	"github.com/jihokoo/gift-ledger/internal/rawstore"
	"github.com/jihokoo/gift-ledger/internal/reconcile"
)

// One-shot reconciliation of a single scrape account from a raw provider
// payload file. Useful for backfills and for replaying archived payloads.
func main() {
	// Initialize structured logger
	log := logger.New()

	// Parse CLI flags
	project := flag.String("project", os.Getenv("GOOGLE_CLOUD_PROJECT"), "GCP project ID (required)")
	dataset := flag.String("dataset", "guestbook", "BigQuery dataset ID")
	bucket := flag.String("bucket", os.Getenv("GCS_BUCKET"), "GCS bucket for raw payload archives (optional)")
	eventID := flag.String("event-id", "", "Event ID (required)")
	accountID := flag.String("account-id", "", "Scrape account ID (required)")
	userID := flag.String("user-id", "", "User ID to reconcile as (required)")
	startDateStr := flag.String("start-date", "", "Start date in YYYY-MM-DD format (required)")
	endDateStr := flag.String("end-date", "", "End date in YYYY-MM-DD format (required)")
	payloadPath := flag.String("payload", "", "Path to a raw provider payload JSON file (optional)")
	flag.Parse()

	// Validate required flags
	if *project == "" {
		log.Fatal().Msg("Error: --project is required (or set GOOGLE_CLOUD_PROJECT)")
	}
	if *eventID == "" || *accountID == "" || *userID == "" {
		log.Fatal().Msg("Error: --event-id, --account-id and --user-id are required")
	}

	startDate, err := civil.ParseDate(*startDateStr)
	if err != nil {
		log.Fatal().Err(err).Str("start_date", *startDateStr).Msg("Error: invalid start-date format, expected YYYY-MM-DD")
	}
	endDate, err := civil.ParseDate(*endDateStr)
	if err != nil {
		log.Fatal().Err(err).Str("end_date", *endDateStr).Msg("Error: invalid end-date format, expected YYYY-MM-DD")
	}

	var raw map[string]interface{}
	if *payloadPath != "" {
		data, err := os.ReadFile(*payloadPath)
		if err != nil {
			log.Fatal().Err(err).Str("payload", *payloadPath).Msg("Failed to read payload file")
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			log.Fatal().Err(err).Str("payload", *payloadPath).Msg("Payload file is not a JSON object")
		}
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// Add logger to context
	ctx = logger.WithContext(ctx, log)

	// Initialize BigQuery repository
	repo, err := infraBQ.NewLedgerRepository(ctx, *project, *dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize BigQuery repository")
	}
	defer repo.Close()

	// Initialize raw payload archive
	var archive reconcile.RawArchive
	if *bucket != "" {
		gcsArchive, err := rawstore.NewGCSArchive(ctx, *bucket)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create raw payload archive")
		}
		defer gcsArchive.Close()
		archive = gcsArchive
	}

	svc := reconcile.NewService(repo, archive, log)

	res, err := svc.Reconcile(ctx, *userID, &reconcile.Request{
		EventID:         *eventID,
		ScrapeAccountID: *accountID,
		StartDate:       startDate,
		EndDate:         endDate,
		Raw:             raw,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Reconciliation failed")
	}

	out, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(out))
}
