package bigquery

import (
	"context"
	"fmt"
	"math/big"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"
)

// InsertTransactions persists a batch of GiftTransactionRow, inserting rows
// whose (account_id, fingerprint) is unseen and silently skipping the rest.
// First write wins; re-submitting an overlapping statement period is a no-op.
// Returns the count of newly inserted rows.
func (r *BigQueryLedgerRepository) InsertTransactions(ctx context.Context, rows []*GiftTransactionRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	merge := fmt.Sprintf(`
		MERGE %s t
		USING (SELECT @account_id AS account_id, @fingerprint AS fingerprint) s
		ON t.account_id = s.account_id AND t.fingerprint = s.fingerprint
		WHEN NOT MATCHED THEN
			INSERT (
				transaction_id, account_id, fingerprint,
				transaction_date, transaction_time,
				direction, amount, balance,
				memo, counterparty, counterparty_account,
				raw_json, is_reflected, created_ts
			)
			VALUES (
				@transaction_id, @account_id, @fingerprint,
				@transaction_date, @transaction_time,
				@direction, @amount, CAST(NULLIF(@balance, '') AS NUMERIC),
				@memo, @counterparty, @counterparty_account,
				@raw_json, FALSE, @created_ts
			)
	`, r.table(transactionsTable))

	inserted := 0
	for _, row := range rows {
		q := r.client.Query(merge)
		q.Parameters = []bigquery.QueryParameter{
			{Name: "transaction_id", Value: row.TransactionID},
			{Name: "account_id", Value: row.AccountID},
			{Name: "fingerprint", Value: row.Fingerprint},
			{Name: "transaction_date", Value: row.TransactionDate},
			{Name: "transaction_time", Value: row.TransactionTime},
			{Name: "direction", Value: row.Direction},
			{Name: "amount", Value: row.Amount},
			{Name: "balance", Value: numericString(row.Balance)},
			{Name: "memo", Value: row.Memo},
			{Name: "counterparty", Value: row.Counterparty},
			{Name: "counterparty_account", Value: row.CounterpartyAccount},
			{Name: "raw_json", Value: row.RawJSON},
			{Name: "created_ts", Value: row.CreatedTS},
		}

		n, err := r.runDML(ctx, q)
		if err != nil {
			return inserted, fmt.Errorf("InsertTransactions: fingerprint %s: %w", row.Fingerprint, err)
		}
		inserted += int(n)
	}

	return inserted, nil
}

// numericString renders an optional NUMERIC value for parameter binding;
// nil becomes the empty string, turned into NULL by the query.
func numericString(r *big.Rat) string {
	if r == nil {
		return ""
	}
	return bigquery.NumericString(r)
}

// QueryTransactions returns all stored transactions for an account within
// the date range, inclusive on both ends, oldest first.
func (r *BigQueryLedgerRepository) QueryTransactions(ctx context.Context, accountID string, start, end civil.Date) ([]*GiftTransactionRow, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT
			transaction_id,
			account_id,
			fingerprint,
			transaction_date,
			transaction_time,
			direction,
			amount,
			balance,
			memo,
			counterparty,
			counterparty_account,
			raw_json,
			is_reflected,
			created_ts
		FROM %s
		WHERE account_id = @account_id
		  AND transaction_date >= @start_date
		  AND transaction_date <= @end_date
		ORDER BY transaction_date, created_ts
	`, r.table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: accountID},
		{Name: "start_date", Value: start},
		{Name: "end_date", Value: end},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryTransactions: reading query: %w", err)
	}

	var rows []*GiftTransactionRow
	for {
		var row GiftTransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryTransactions: iterating: %w", err)
		}
		rows = append(rows, &row)
	}

	return rows, nil
}

// MarkTransactionsReflected flags the given fingerprints of an account as
// reflected, chunking the IN list to bound query size.
func (r *BigQueryLedgerRepository) MarkTransactionsReflected(ctx context.Context, accountID string, fingerprints []string) error {
	for start := 0; start < len(fingerprints); start += reflectUpdateChunk {
		end := start + reflectUpdateChunk
		if end > len(fingerprints) {
			end = len(fingerprints)
		}

		q := r.client.Query(fmt.Sprintf(`
			UPDATE %s
			SET is_reflected = TRUE
			WHERE account_id = @account_id
			  AND fingerprint IN UNNEST(@fingerprints)
		`, r.table(transactionsTable)))
		q.Parameters = []bigquery.QueryParameter{
			{Name: "account_id", Value: accountID},
			{Name: "fingerprints", Value: fingerprints[start:end]},
		}

		if _, err := r.runDML(ctx, q); err != nil {
			return fmt.Errorf("MarkTransactionsReflected: chunk at %d: %w", start, err)
		}
	}
	return nil
}
