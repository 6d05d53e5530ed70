// Package reconcile implements the gift-ledger reconciliation pipeline:
// authorize the caller, guard the ceremony-end cutoff, normalize the
// provider payload, dedup transactions by fingerprint, and fold inbound
// transfers into the event's ledger exactly once.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	bq "github.com/jihokoo/gift-ledger/internal/bigquery"
	"github.com/jihokoo/gift-ledger/internal/domain"
)

// Request describes one reconciliation run over a single scrape account.
// Exactly one data source may be set: a pre-normalized transaction list or
// a raw provider payload. Both empty is valid and reconciles stored rows
// only.
type Request struct {
	EventID         string
	ScrapeAccountID string

	StartDate civil.Date
	EndDate   civil.Date

	Transactions []*domain.Transaction
	Raw          map[string]interface{}
}

// Result summarizes what one reconciliation run did.
type Result struct {
	// Seen is the number of transactions that survived normalization.
	Seen int `json:"seen"`
	// Skipped counts raw payload rows dropped by the normalizer.
	Skipped int `json:"skipped"`
	// InsertedTransactions is the count of rows new to the store.
	InsertedTransactions int `json:"insertedTransactions"`
	// NewLedgerEntries is the count of ledger entries created this run.
	NewLedgerEntries int `json:"newLedgerEntries"`
	// ReflectedTotal is the count of inbound stored transactions in range
	// that are reflected in the ledger after this run.
	ReflectedTotal int `json:"reflectedTotal"`
}

// Service runs the reconciliation pipeline against a ledger repository.
type Service struct {
	repo    Repository
	archive RawArchive
	locks   *accountLocks
	log     zerolog.Logger

	now func() time.Time
}

// NewService creates a reconciliation service. archive may be nil, in which
// case raw payloads are not persisted.
func NewService(repo Repository, archive RawArchive, log zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		archive: archive,
		locks:   newAccountLocks(),
		log:     log,
		now:     time.Now,
	}
}

// Reconcile runs the full pipeline for one account. It is idempotent: a
// repeat run over the same data inserts nothing and creates no entries, and
// any partial failure leaves the store in a state a later run completes
// from.
func (s *Service) Reconcile(ctx context.Context, userID string, req *Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	member, account, err := s.authorize(ctx, userID, req.EventID, req.ScrapeAccountID)
	if err != nil {
		return nil, err
	}

	event, err := s.repo.GetEvent(ctx, req.EventID)
	if err != nil {
		return nil, fmt.Errorf("getting event: %w", err)
	}
	if event == nil {
		return nil, fmt.Errorf("%w: event %s not found", ErrInvalidRequest, req.EventID)
	}
	if err := checkCutoff(event, s.now()); err != nil {
		return nil, err
	}

	unlock := s.locks.acquire(account.AccountID)
	defer unlock()

	txs, skipped := Normalize(req)
	s.archiveRaw(ctx, account.AccountID, req.Raw)

	res := &Result{Seen: len(txs), Skipped: skipped}

	if len(txs) > 0 {
		rows := s.transactionRows(account.AccountID, txs)
		inserted, err := s.repo.InsertTransactions(ctx, rows)
		if err != nil {
			return nil, fmt.Errorf("inserting transactions: %w", err)
		}
		res.InsertedTransactions = inserted
	}

	stored, err := s.repo.QueryTransactions(ctx, account.AccountID, req.StartDate, req.EndDate)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}

	candidates := ledgerCandidates(stored)
	res.ReflectedTotal = len(candidates)

	if len(candidates) > 0 {
		reflected, err := s.repo.ListReflectedFingerprints(ctx, member.MemberID)
		if err != nil {
			return nil, fmt.Errorf("listing reflected fingerprints: %w", err)
		}

		var entries []*bq.LedgerEntryRow
		var unmarked []string
		for _, row := range candidates {
			if !reflected[row.Fingerprint] {
				entries = append(entries, s.ledgerEntry(member, account, row))
			}
			if !row.IsReflected {
				unmarked = append(unmarked, row.Fingerprint)
			}
		}

		if len(entries) > 0 {
			created, err := s.repo.InsertLedgerEntries(ctx, entries)
			if err != nil {
				return nil, fmt.Errorf("inserting ledger entries: %w", err)
			}
			res.NewLedgerEntries = created
		}

		if len(unmarked) > 0 {
			if err := s.repo.MarkTransactionsReflected(ctx, account.AccountID, unmarked); err != nil {
				return nil, fmt.Errorf("marking transactions reflected: %w", err)
			}
		}
	}

	if err := s.repo.TouchScrapeAccount(ctx, account.AccountID, s.now()); err != nil {
		// The run already succeeded; a stale last-scraped timestamp is not
		// worth failing it over.
		s.log.Warn().Err(err).Str("account_id", account.AccountID).
			Msg("failed to touch scrape account")
	}

	s.log.Info().
		Str("event_id", req.EventID).
		Str("account_id", account.AccountID).
		Int("seen", res.Seen).
		Int("skipped", res.Skipped).
		Int("inserted", res.InsertedTransactions).
		Int("new_entries", res.NewLedgerEntries).
		Int("reflected_total", res.ReflectedTotal).
		Msg("reconciliation complete")

	return res, nil
}

func validate(req *Request) error {
	if req == nil {
		return ErrInvalidRequest
	}
	if req.EventID == "" || req.ScrapeAccountID == "" {
		return fmt.Errorf("%w: event and account are required", ErrInvalidRequest)
	}
	if !req.StartDate.IsValid() || !req.EndDate.IsValid() {
		return fmt.Errorf("%w: start and end dates are required", ErrInvalidRequest)
	}
	if req.EndDate.Before(req.StartDate) {
		return fmt.Errorf("%w: end date precedes start date", ErrInvalidRequest)
	}
	if len(req.Transactions) > 0 && req.Raw != nil {
		return fmt.Errorf("%w: provide either transactions or a raw payload, not both", ErrInvalidRequest)
	}
	return nil
}

// archiveRaw persists the raw payload for later replay. Best-effort; an
// archive outage must not block reconciliation.
func (s *Service) archiveRaw(ctx context.Context, accountID string, raw map[string]interface{}) {
	if raw == nil || s.archive == nil {
		return
	}
	uri, err := s.archive.ArchivePayload(ctx, accountID, raw)
	if err != nil {
		s.log.Warn().Err(err).Str("account_id", accountID).
			Msg("failed to archive raw payload")
		return
	}
	s.log.Debug().Str("account_id", accountID).Str("uri", uri).
		Msg("archived raw payload")
}

func (s *Service) transactionRows(accountID string, txs []*domain.Transaction) []*bq.GiftTransactionRow {
	now := s.now()
	rows := make([]*bq.GiftTransactionRow, 0, len(txs))
	for _, tx := range txs {
		tx.Fingerprint = Fingerprint(accountID, tx)

		row := &bq.GiftTransactionRow{
			TransactionID:       uuid.NewString(),
			AccountID:           accountID,
			Fingerprint:         tx.Fingerprint,
			TransactionDate:     tx.Date,
			Direction:           string(tx.Direction),
			Amount:              tx.Amount.Rat(),
			Memo:                nullString(tx.Memo),
			Counterparty:        nullString(tx.Counterparty),
			CounterpartyAccount: nullString(tx.CounterpartyAccount),
			CreatedTS:           now,
		}
		if tx.Time != nil {
			row.TransactionTime = bigquery.NullTime{Time: *tx.Time, Valid: true}
		}
		if tx.Balance != nil {
			row.Balance = tx.Balance.Rat()
		}
		if tx.Raw != nil {
			if data, err := json.Marshal(tx.Raw); err == nil {
				row.RawJSON = bigquery.NullJSON{JSONVal: string(data), Valid: true}
			} else {
				s.log.Warn().Err(err).Str("fingerprint", tx.Fingerprint).
					Msg("failed to encode raw row for audit")
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// ledgerCandidates filters stored transactions down to the ones that belong
// in the gift ledger: inbound with a positive amount. Outbound and
// non-positive rows stay stored but never produce entries.
func ledgerCandidates(stored []*bq.GiftTransactionRow) []*bq.GiftTransactionRow {
	var out []*bq.GiftTransactionRow
	for _, row := range stored {
		if row.Direction != string(domain.DirectionIn) {
			continue
		}
		if row.Amount == nil || row.Amount.Sign() <= 0 {
			continue
		}
		out = append(out, row)
	}
	return out
}

func (s *Service) ledgerEntry(member *bq.MemberRow, account *bq.ScrapeAccountRow, row *bq.GiftTransactionRow) *bq.LedgerEntryRow {
	memo := bq.FingerprintMemoPrefix + row.Fingerprint
	if row.Memo.Valid && row.Memo.StringVal != "" {
		memo += " " + row.Memo.StringVal
	}

	label := strings.TrimSpace(account.BankName + " " + account.AccountNoMasked)

	return &bq.LedgerEntryRow{
		EntryID:           uuid.NewString(),
		EventID:           account.EventID,
		MemberID:          member.MemberID,
		Side:              member.Side,
		GuestName:         row.Counterparty,
		Amount:            row.Amount,
		Method:            "TRANSFER",
		GiftTS:            giftInstant(row),
		Memo:              nullString(memo),
		AccountLabel:      nullString(label),
		Source:            bq.LedgerSourceReconciled,
		OriginFingerprint: nullString(row.Fingerprint),
		CreatedTS:         s.now(),
	}
}

// giftInstant places the transaction's date and time of day on the ceremony
// timeline, defaulting a missing time to midnight.
func giftInstant(row *bq.GiftTransactionRow) time.Time {
	var tod civil.Time
	if row.TransactionTime.Valid {
		tod = row.TransactionTime.Time
	}
	d := row.TransactionDate
	return time.Date(d.Year, d.Month, d.Day, tod.Hour, tod.Minute, tod.Second, 0, ceremonyZone)
}

func nullString(s string) bigquery.NullString {
	if s == "" {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: s, Valid: true}
}
