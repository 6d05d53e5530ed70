package domain

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Direction distinguishes money coming into the linked account from money
// leaving it. Only inbound transactions are ever folded into the gift ledger.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// Transaction is one normalized bank-statement line for a scrape account.
// This is a domain struct, not a BigQuery row; the reconciler maps it into
// the guestbook.gift_transactions table schema.
type Transaction struct {
	Date      civil.Date      // calendar day of the transfer
	Time      *civil.Time     // time of day, nil when the provider omits it
	Direction Direction       // IN or OUT
	Amount    decimal.Decimal // non-negative magnitude
	Balance   *decimal.Decimal

	Memo                string
	Counterparty        string
	CounterpartyAccount string

	// Fingerprint is the dedup key, filled in by the fingerprinter.
	Fingerprint string

	// Raw keeps the original provider row for audit. Never used for logic.
	Raw map[string]interface{}
}
