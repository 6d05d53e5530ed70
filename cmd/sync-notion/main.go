package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jihokoo/gift-ledger/internal/infra/bigquery"
	"github.com/jihokoo/gift-ledger/internal/logger"
	"github.com/jihokoo/gift-ledger/internal/notionsync"
)

func main() {
	// Initialize structured logger
	log := logger.New()

	// Parse CLI flags
	eventID := flag.String("event-id", "", "Event ID whose ledger to sync (required)")
	project := flag.String("project", os.Getenv("GOOGLE_CLOUD_PROJECT"), "GCP project ID (required)")
	dataset := flag.String("dataset", "guestbook", "BigQuery dataset ID")
	notionToken := flag.String("notion-token", "", "Notion API token (required)")
	notionDBID := flag.String("notion-db-id", "", "Notion database ID (required)")
	dryRun := flag.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	flag.Parse()

	// Validate required flags
	if *eventID == "" {
		log.Fatal().Msg("Error: --event-id is required")
	}
	if *project == "" {
		log.Fatal().Msg("Error: --project is required (or set GOOGLE_CLOUD_PROJECT)")
	}
	if *notionToken == "" {
		log.Fatal().Msg("Error: --notion-token is required")
	}
	if *notionDBID == "" {
		log.Fatal().Msg("Error: --notion-db-id is required")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	// Add logger to context
	ctx = logger.WithContext(ctx, log)

	log.Info().
		Str("event_id", *eventID).
		Bool("dry_run", *dryRun).
		Msg("Starting Notion sync")

	// Initialize BigQuery repository
	repo, err := bigquery.NewLedgerRepository(ctx, *project, *dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize BigQuery repository")
	}
	defer repo.Close()

	// Initialize Notion client
	notionClient := notionsync.NewNotionClient(*notionToken)

	// Sync the event's ledger
	if err := notionsync.SyncLedger(ctx, repo, notionClient, *notionDBID, *eventID, *dryRun); err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Println("Sync completed successfully.")
}
