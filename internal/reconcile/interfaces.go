package reconcile

import (
	"context"

	bq "github.com/jihokoo/gift-ledger/internal/bigquery"
)

// Repository is the storage surface the reconciler needs. Satisfied by
// infra/bigquery.BigQueryLedgerRepository.
type Repository = bq.LedgerRepository

// RawArchive persists the raw provider payload before normalization, so a
// normalizer bug can be diagnosed and replayed after the fact. Archival is
// best-effort: a failure is logged, never surfaced to the caller.
type RawArchive interface {
	ArchivePayload(ctx context.Context, accountID string, payload map[string]interface{}) (string, error)
}
