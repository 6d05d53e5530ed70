package notionsync

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"

	bq "github.com/jihokoo/gift-ledger/internal/bigquery"
	"github.com/jihokoo/gift-ledger/internal/logger"
)

const (
	// BatchSize defines the number of ledger entries to process in a single batch
	BatchSize = 100
)

// SyncLedger mirrors an event's gift ledger into a Notion database. The
// Entry ID property is the sync key: the ledger store is the source of
// truth, so pages whose entry no longer exists are archived and entries
// without a page are created. Existing pages are left untouched since
// ledger entries are immutable once written.
func SyncLedger(ctx context.Context, repo bq.LedgerRepository, notionClient NotionService, notionDBID, eventID string, dryRun bool) error {
	log := logger.FromContext(ctx)

	log.Info().
		Str("event_id", eventID).
		Bool("dry_run", dryRun).
		Msg("Starting ledger sync to Notion")

	entries, err := repo.ListLedgerEntries(ctx, eventID)
	if err != nil {
		return fmt.Errorf("failed to list ledger entries: %w", err)
	}

	log.Info().Int("entry_count", len(entries)).Msg("Retrieved ledger entries")

	// Build set of valid entry IDs from the ledger store
	validEntryIDs := make(map[string]bool)
	for _, entry := range entries {
		validEntryIDs[entry.EntryID] = true
	}

	// Query all existing pages from Notion
	log.Info().Msg("Querying existing ledger pages from Notion")
	notionPages, err := queryAllNotionPages(ctx, notionClient, notionDBID)
	if err != nil {
		return fmt.Errorf("failed to query Notion pages: %w", err)
	}

	log.Info().Int("notion_page_count", len(notionPages)).Msg("Retrieved existing Notion pages")

	// Build map of entry IDs already present in Notion
	existingEntryIDs := make(map[string]bool)
	for _, page := range notionPages {
		entryID := extractEntryID(page)
		if entryID != "" {
			existingEntryIDs[entryID] = true
		}
	}

	// Archive stale pages (entries deleted from the ledger, or pages with no
	// Entry ID from a manual edit)
	var deleted int
	for _, page := range notionPages {
		entryID := extractEntryID(page)
		if entryID != "" && validEntryIDs[entryID] {
			continue
		}

		if dryRun {
			log.Info().
				Str("entry_id", entryID).
				Str("page_id", string(page.ID)).
				Msg("[DRY RUN] Would archive stale Notion page")
			deleted++
			continue
		}

		if err := notionClient.DeletePage(ctx, string(page.ID)); err != nil {
			log.Warn().
				Err(err).
				Str("entry_id", entryID).
				Str("page_id", string(page.ID)).
				Msg("Failed to archive stale Notion page")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		log.Info().Int("deleted", deleted).Msg("Archived stale ledger pages in Notion")
	}

	// Create missing pages in batches
	var created, skipped int
	for i := 0; i < len(entries); i += BatchSize {
		end := i + BatchSize
		if end > len(entries) {
			end = len(entries)
		}

		for _, entry := range entries[i:end] {
			if existingEntryIDs[entry.EntryID] {
				skipped++
				continue
			}

			if dryRun {
				log.Info().
					Str("entry_id", entry.EntryID).
					Str("guest", entry.GuestName.StringVal).
					Msg("[DRY RUN] Would create Notion page")
				created++
				continue
			}

			props := LedgerEntryToNotionProperties(entry)
			if _, err := notionClient.CreatePage(ctx, notionDBID, props); err != nil {
				log.Warn().
					Err(err).
					Str("entry_id", entry.EntryID).
					Msg("Failed to create Notion page")
				continue
			}
			created++
		}
	}

	log.Info().
		Int("created", created).
		Int("deleted", deleted).
		Int("skipped", skipped).
		Int("total", len(entries)).
		Msg("Ledger sync completed")

	return nil
}

// queryAllNotionPages queries all pages from a Notion database and returns them.
// Handles pagination automatically.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: 100,
		}

		// Only set StartCursor if we have a cursor value
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}

// extractEntryID extracts the ledger entry ID from a Notion page's
// properties. Returns empty string if not found.
func extractEntryID(page notionapi.Page) string {
	if prop, ok := page.Properties["Entry ID"]; ok {
		if richText, ok := prop.(*notionapi.RichTextProperty); ok {
			if len(richText.RichText) > 0 {
				return richText.RichText[0].PlainText
			}
		}
	}
	return ""
}
