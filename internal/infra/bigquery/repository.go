package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	bq "github.com/jihokoo/gift-ledger/internal/bigquery"
)

// Re-export interfaces and rows from the shared package for convenience.
type LedgerRepository = bq.LedgerRepository
type EventRow = bq.EventRow
type MemberRow = bq.MemberRow
type ScrapeAccountRow = bq.ScrapeAccountRow
type GiftTransactionRow = bq.GiftTransactionRow
type LedgerEntryRow = bq.LedgerEntryRow

const (
	eventsTable          = "events"
	membersTable         = "members"
	scrapeAccountsTable  = "scrape_accounts"
	transactionsTable    = "gift_transactions"
	ledgerEntriesTable   = "ledger_entries"
	reflectUpdateChunk   = 200
	ledgerInsertBatchCap = 500
)

// BigQueryLedgerRepository is the concrete implementation of
// LedgerRepository. It holds a shared BigQuery client to avoid creating a
// new connection for each operation.
type BigQueryLedgerRepository struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

var _ bq.LedgerRepository = (*BigQueryLedgerRepository)(nil)

// NewLedgerRepository creates a repository with a shared BigQuery client.
func NewLedgerRepository(ctx context.Context, projectID, datasetID string) (*BigQueryLedgerRepository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewLedgerRepository: creating client: %w", err)
	}
	return &BigQueryLedgerRepository{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
	}, nil
}

// Close closes the BigQuery client connection. This should be called when
// the repository is no longer needed to release resources.
func (r *BigQueryLedgerRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// table returns the fully qualified backquoted table name.
func (r *BigQueryLedgerRepository) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", r.projectID, r.datasetID, name)
}

// runDML runs a DML query and returns the number of rows it inserted.
func (r *BigQueryLedgerRepository) runDML(ctx context.Context, q *bigquery.Query) (int64, error) {
	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("job error: %w", err)
	}

	if qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok && qs.DMLStats != nil {
		return qs.DMLStats.InsertedRowCount, nil
	}
	return 0, nil
}
