package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/jihokoo/gift-ledger/internal/domain"
)

// Fingerprint derives the dedup key for a transaction: a SHA-256 digest over
// the scrape-account ID and the transaction's defining fields, concatenated
// in fixed order with explicit separators and rendered as lowercase hex.
// Identical field tuples always produce identical fingerprints; any field
// difference, including presence/absence of an optional field, produces a
// different one.
func Fingerprint(accountID string, tx *domain.Transaction) string {
	timeStr := ""
	if tx.Time != nil {
		timeStr = tx.Time.String()
	}
	balanceStr := ""
	if tx.Balance != nil {
		balanceStr = tx.Balance.String()
	}

	parts := []string{
		accountID,
		tx.Date.String(),
		timeStr,
		string(tx.Direction),
		tx.Amount.String(),
		balanceStr,
		strings.TrimSpace(tx.Memo),
		strings.TrimSpace(tx.Counterparty),
		strings.TrimSpace(tx.CounterpartyAccount),
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
