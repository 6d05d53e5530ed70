package bigquery

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	bq "github.com/jihokoo/gift-ledger/internal/bigquery"
	"google.golang.org/api/iterator"
)

// ledgerEntryParam mirrors LedgerEntryRow as a BigQuery STRUCT parameter for
// the batched MERGE. OriginFingerprint is a plain string because every row
// going through this path is machine-reconciled and always carries one.
type ledgerEntryParam struct {
	EntryID           string
	EventID           string
	MemberID          string
	Side              string
	GuestName         bigquery.NullString
	Amount            *big.Rat
	Method            string
	GiftTS            time.Time
	Memo              bigquery.NullString
	AccountLabel      bigquery.NullString
	Source            string
	OriginFingerprint string
	CreatedTS         time.Time
}

// InsertLedgerEntries persists reconciled ledger entries in batches. Each
// batch is a single MERGE keyed on (member_id, origin_fingerprint): an entry
// already present is left untouched, so a lost reconciliation race degrades
// to "already reflected" instead of a duplicate row. Returns the count of
// newly inserted entries.
func (r *BigQueryLedgerRepository) InsertLedgerEntries(ctx context.Context, rows []*LedgerEntryRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	merge := fmt.Sprintf(`
		MERGE %s l
		USING UNNEST(@entries) e
		ON l.member_id = e.MemberID
		   AND l.origin_fingerprint = e.OriginFingerprint
		WHEN NOT MATCHED THEN
			INSERT (
				entry_id, event_id, member_id, side, guest_name,
				amount, method, gift_ts, memo, account_label,
				source, origin_fingerprint, created_ts
			)
			VALUES (
				e.EntryID, e.EventID, e.MemberID, e.Side, e.GuestName,
				e.Amount, e.Method, e.GiftTS, e.Memo, e.AccountLabel,
				e.Source, e.OriginFingerprint, e.CreatedTS
			)
	`, r.table(ledgerEntriesTable))

	inserted := 0
	for start := 0; start < len(rows); start += ledgerInsertBatchCap {
		end := start + ledgerInsertBatchCap
		if end > len(rows) {
			end = len(rows)
		}

		entries := make([]ledgerEntryParam, 0, end-start)
		for _, row := range rows[start:end] {
			entries = append(entries, ledgerEntryParam{
				EntryID:           row.EntryID,
				EventID:           row.EventID,
				MemberID:          row.MemberID,
				Side:              row.Side,
				GuestName:         row.GuestName,
				Amount:            row.Amount,
				Method:            row.Method,
				GiftTS:            row.GiftTS,
				Memo:              row.Memo,
				AccountLabel:      row.AccountLabel,
				Source:            row.Source,
				OriginFingerprint: row.OriginFingerprint.StringVal,
				CreatedTS:         row.CreatedTS,
			})
		}

		q := r.client.Query(merge)
		q.Parameters = []bigquery.QueryParameter{
			{Name: "entries", Value: entries},
		}

		n, err := r.runDML(ctx, q)
		if err != nil {
			return inserted, fmt.Errorf("InsertLedgerEntries: batch at %d: %w", start, err)
		}
		inserted += int(n)
	}

	return inserted, nil
}

// ListReflectedFingerprints returns the set of transaction fingerprints
// already carried by reconciled ledger entries of the given member.
func (r *BigQueryLedgerRepository) ListReflectedFingerprints(ctx context.Context, memberID string) (map[string]bool, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT origin_fingerprint
		FROM %s
		WHERE member_id = @member_id
		  AND source = @source
		  AND origin_fingerprint IS NOT NULL
	`, r.table(ledgerEntriesTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "member_id", Value: memberID},
		{Name: "source", Value: bq.LedgerSourceReconciled},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListReflectedFingerprints: reading query: %w", err)
	}

	reflected := make(map[string]bool)
	for {
		var row struct {
			OriginFingerprint string `bigquery:"origin_fingerprint"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListReflectedFingerprints: iterating: %w", err)
		}
		reflected[row.OriginFingerprint] = true
	}

	return reflected, nil
}

// ListLedgerEntries returns all ledger entries of an event, newest first.
func (r *BigQueryLedgerRepository) ListLedgerEntries(ctx context.Context, eventID string) ([]*LedgerEntryRow, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT
			entry_id,
			event_id,
			member_id,
			side,
			guest_name,
			amount,
			method,
			gift_ts,
			memo,
			account_label,
			source,
			origin_fingerprint,
			created_ts
		FROM %s
		WHERE event_id = @event_id
		ORDER BY gift_ts DESC, created_ts DESC
	`, r.table(ledgerEntriesTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "event_id", Value: eventID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListLedgerEntries: reading query: %w", err)
	}

	var rows []*LedgerEntryRow
	for {
		var row LedgerEntryRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListLedgerEntries: iterating: %w", err)
		}
		rows = append(rows, &row)
	}

	return rows, nil
}
