package bigquery

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
)

// LedgerRepository provides the database operations used by the
// reconciliation pipeline. The concrete implementation lives in
// internal/infra/bigquery; tests substitute function-field mocks.
type LedgerRepository interface {
	// GetEvent retrieves an event by ID, or nil if it does not exist.
	GetEvent(ctx context.Context, eventID string) (*EventRow, error)

	// FindMember resolves the membership record linking a user to an event.
	// Returns nil (not an error) when the user is not a member.
	FindMember(ctx context.Context, userID, eventID string) (*MemberRow, error)

	// GetScrapeAccount retrieves a linked bank account by ID, or nil.
	GetScrapeAccount(ctx context.Context, accountID string) (*ScrapeAccountRow, error)

	// InsertTransactions persists a batch of transactions keyed by
	// (account_id, fingerprint), skipping rows whose key already exists.
	// Returns the count of newly inserted rows.
	InsertTransactions(ctx context.Context, rows []*GiftTransactionRow) (int, error)

	// QueryTransactions returns all stored transactions for an account
	// within the date range, inclusive on both ends.
	QueryTransactions(ctx context.Context, accountID string, start, end civil.Date) ([]*GiftTransactionRow, error)

	// ListReflectedFingerprints returns the set of transaction fingerprints
	// already carried by reconciled ledger entries of the given member.
	ListReflectedFingerprints(ctx context.Context, memberID string) (map[string]bool, error)

	// InsertLedgerEntries persists reconciled ledger entries, skipping any
	// whose (member_id, origin_fingerprint) already exists. Returns the
	// count of newly inserted entries.
	InsertLedgerEntries(ctx context.Context, rows []*LedgerEntryRow) (int, error)

	// MarkTransactionsReflected flags the given fingerprints of an account
	// as reflected in the ledger.
	MarkTransactionsReflected(ctx context.Context, accountID string, fingerprints []string) error

	// TouchScrapeAccount updates the account's last-scraped timestamp.
	TouchScrapeAccount(ctx context.Context, accountID string, ts time.Time) error

	// ListLedgerEntries returns all ledger entries of an event, newest first.
	ListLedgerEntries(ctx context.Context, eventID string) ([]*LedgerEntryRow, error)
}

// EventRow represents a wedding event record in BigQuery. Ceremony date and
// end time are kept as free strings because the CRUD surface writes them
// unvalidated; the cutoff guard treats malformed values as "no cutoff".
type EventRow struct {
	EventID string `bigquery:"event_id" json:"event_id"`
	Title   string `bigquery:"title" json:"title"`

	CeremonyDate    bigquery.NullString `bigquery:"ceremony_date" json:"ceremony_date,omitempty"`
	CeremonyEndTime bigquery.NullString `bigquery:"ceremony_end_time" json:"ceremony_end_time,omitempty"`

	CreatedTS time.Time `bigquery:"created_ts" json:"created_ts"`
}

// MemberRow links a platform user to one side of an event's guest list.
type MemberRow struct {
	MemberID string `bigquery:"member_id" json:"member_id"`
	EventID  string `bigquery:"event_id" json:"event_id"`
	UserID   string `bigquery:"user_id" json:"user_id"`

	Side        string `bigquery:"side" json:"side"` // GROOM or BRIDE
	DisplayName string `bigquery:"display_name" json:"display_name"`

	CreatedTS time.Time `bigquery:"created_ts" json:"created_ts"`
}

// Scrape account connection states.
const (
	ScrapeStatusPending   = "PENDING"
	ScrapeStatusConnected = "CONNECTED"
	ScrapeStatusFailed    = "FAILED"
)

// ScrapeAccountRow represents one linked bank account for one event member.
type ScrapeAccountRow struct {
	AccountID string `bigquery:"account_id" json:"account_id"`
	EventID   string `bigquery:"event_id" json:"event_id"`
	MemberID  string `bigquery:"member_id" json:"member_id"`

	Provider        string `bigquery:"provider" json:"provider"`
	BankCode        string `bigquery:"bank_code" json:"bank_code"`
	BankName        string `bigquery:"bank_name" json:"bank_name"`
	AccountNoMasked string `bigquery:"account_no_masked" json:"account_no_masked"`

	Status        string                 `bigquery:"status" json:"status"`
	LastScrapedTS bigquery.NullTimestamp `bigquery:"last_scraped_ts" json:"last_scraped_ts,omitempty"`

	CreatedTS time.Time `bigquery:"created_ts" json:"created_ts"`
}

// GiftTransactionRow represents a normalized bank transaction in BigQuery.
// Unique on (account_id, fingerprint); append-only except for is_reflected.
type GiftTransactionRow struct {
	TransactionID string `bigquery:"transaction_id" json:"transaction_id"`
	AccountID     string `bigquery:"account_id" json:"account_id"`
	Fingerprint   string `bigquery:"fingerprint" json:"fingerprint"`

	TransactionDate civil.Date        `bigquery:"transaction_date" json:"transaction_date"`
	TransactionTime bigquery.NullTime `bigquery:"transaction_time" json:"transaction_time,omitempty"`

	Direction string   `bigquery:"direction" json:"direction"`
	Amount    *big.Rat `bigquery:"amount" json:"amount"`
	Balance   *big.Rat `bigquery:"balance" json:"balance,omitempty"`

	Memo                bigquery.NullString `bigquery:"memo" json:"memo,omitempty"`
	Counterparty        bigquery.NullString `bigquery:"counterparty" json:"counterparty,omitempty"`
	CounterpartyAccount bigquery.NullString `bigquery:"counterparty_account" json:"counterparty_account,omitempty"`

	RawJSON bigquery.NullJSON `bigquery:"raw_json" json:"-"`

	IsReflected bool `bigquery:"is_reflected" json:"is_reflected"`

	CreatedTS time.Time `bigquery:"created_ts" json:"created_ts"`
}

// MarshalJSON renders NUMERIC amounts as fixed decimal strings.
func (t GiftTransactionRow) MarshalJSON() ([]byte, error) {
	type Alias GiftTransactionRow
	return json.Marshal(&struct {
		Amount  string  `json:"amount"`
		Balance *string `json:"balance,omitempty"`
		*Alias
	}{
		Amount:  ratString(t.Amount),
		Balance: ratStringPtr(t.Balance),
		Alias:   (*Alias)(&t),
	})
}

// Ledger entry creation sources.
const (
	LedgerSourceManual     = "MANUAL"
	LedgerSourceReconciled = "RECONCILED"
)

// FingerprintMemoPrefix is the legacy provenance marker written at the head
// of reconciled entries' memos, kept so exports stay greppable. Lookups use
// the origin_fingerprint column, not the memo.
const FingerprintMemoPrefix = "fp:"

// LedgerEntryRow represents one line of the event's gift/attendance ledger.
// Reconciled entries are unique on (member_id, origin_fingerprint); manual
// entries have a NULL origin_fingerprint and are not subject to that rule.
type LedgerEntryRow struct {
	EntryID  string `bigquery:"entry_id" json:"entry_id"`
	EventID  string `bigquery:"event_id" json:"event_id"`
	MemberID string `bigquery:"member_id" json:"member_id"`

	Side      string              `bigquery:"side" json:"side"`
	GuestName bigquery.NullString `bigquery:"guest_name" json:"guest_name,omitempty"`

	Amount *big.Rat  `bigquery:"amount" json:"amount"`
	Method string    `bigquery:"method" json:"method"`
	GiftTS time.Time `bigquery:"gift_ts" json:"gift_ts"`

	Memo         bigquery.NullString `bigquery:"memo" json:"memo,omitempty"`
	AccountLabel bigquery.NullString `bigquery:"account_label" json:"account_label,omitempty"`

	Source            string              `bigquery:"source" json:"source"`
	OriginFingerprint bigquery.NullString `bigquery:"origin_fingerprint" json:"origin_fingerprint,omitempty"`

	CreatedTS time.Time `bigquery:"created_ts" json:"created_ts"`
}

// MarshalJSON renders the NUMERIC gift amount as a fixed decimal string.
func (e LedgerEntryRow) MarshalJSON() ([]byte, error) {
	type Alias LedgerEntryRow
	return json.Marshal(&struct {
		Amount string `json:"amount"`
		*Alias
	}{
		Amount: ratString(e.Amount),
		Alias:  (*Alias)(&e),
	})
}

func ratString(r *big.Rat) string {
	if r == nil {
		return "0"
	}
	f, _ := r.Float64()
	return fmt.Sprintf("%.2f", f)
}

func ratStringPtr(r *big.Rat) *string {
	if r == nil {
		return nil
	}
	s := ratString(r)
	return &s
}
