package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	bq "github.com/jihokoo/gift-ledger/internal/bigquery"
	"google.golang.org/api/iterator"
)

// GetScrapeAccount retrieves a linked bank account by ID, or nil.
func (r *BigQueryLedgerRepository) GetScrapeAccount(ctx context.Context, accountID string) (*ScrapeAccountRow, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT
			account_id,
			event_id,
			member_id,
			provider,
			bank_code,
			bank_name,
			account_no_masked,
			status,
			last_scraped_ts,
			created_ts
		FROM %s
		WHERE account_id = @account_id
		LIMIT 1
	`, r.table(scrapeAccountsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: accountID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetScrapeAccount: reading query: %w", err)
	}

	var row ScrapeAccountRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetScrapeAccount: iterating: %w", err)
	}

	return &row, nil
}

// TouchScrapeAccount records a successful reconciliation by updating the
// account's last-scraped timestamp and flipping its status to CONNECTED.
func (r *BigQueryLedgerRepository) TouchScrapeAccount(ctx context.Context, accountID string, ts time.Time) error {
	q := r.client.Query(fmt.Sprintf(`
		UPDATE %s
		SET last_scraped_ts = @ts,
		    status = @status
		WHERE account_id = @account_id
	`, r.table(scrapeAccountsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "ts", Value: ts},
		{Name: "status", Value: bq.ScrapeStatusConnected},
		{Name: "account_id", Value: accountID},
	}

	if _, err := r.runDML(ctx, q); err != nil {
		return fmt.Errorf("TouchScrapeAccount: %w", err)
	}
	return nil
}
