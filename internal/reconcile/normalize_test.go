package reconcile

import (
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/jihokoo/gift-ledger/internal/domain"
)

func TestNormalizePassthrough(t *testing.T) {
	req := &Request{
		Transactions: []*domain.Transaction{
			{
				Date:      civil.Date{Year: 2026, Month: 5, Day: 16},
				Direction: domain.DirectionOut,
				Amount:    decimal.NewFromInt(-50000),
			},
			{
				Date:   civil.Date{Year: 2026, Month: 5, Day: 16},
				Amount: decimal.NewFromInt(100000),
			},
		},
	}

	txs, skipped := Normalize(req)
	if skipped != 0 {
		t.Errorf("skipped = %d, want 0", skipped)
	}
	if len(txs) != 2 {
		t.Fatalf("got %d transactions, want 2", len(txs))
	}
	if txs[0].Amount.String() != "50000" {
		t.Errorf("amount not clamped to magnitude: %s", txs[0].Amount)
	}
	if txs[1].Direction != domain.DirectionIn {
		t.Errorf("missing direction not defaulted to IN: %s", txs[1].Direction)
	}
	// The caller's list must not be mutated.
	if req.Transactions[0].Amount.String() != "-50000" {
		t.Errorf("caller transaction mutated: %s", req.Transactions[0].Amount)
	}
}

func TestNormalizeRawPayload(t *testing.T) {
	raw := map[string]interface{}{
		"resList": []interface{}{
			map[string]interface{}{
				"trDate":   "20260516",
				"trTime":   "131500",
				"inAmount": "1,000,000",
				"balance":  "5,000,000",
				"적요":       "축하합니다",
				"보낸분":      "김철수",
			},
			map[string]interface{}{
				"거래일자": "2026-05-16",
				"출금액":  "30000",
			},
			map[string]interface{}{
				// JSON numbers decode as float64
				"date": "20260517",
				"in":   float64(70000),
			},
			map[string]interface{}{
				// no usable date
				"inAmount": "50000",
			},
			map[string]interface{}{
				// neither side has a positive amount
				"trDate":   "20260517",
				"inAmount": "0",
			},
			"not even an object",
		},
	}

	txs, skipped := Normalize(&Request{Raw: raw})
	if skipped != 3 {
		t.Errorf("skipped = %d, want 3", skipped)
	}
	if len(txs) != 3 {
		t.Fatalf("got %d transactions, want 3", len(txs))
	}

	first := txs[0]
	if first.Direction != domain.DirectionIn || first.Amount.String() != "1000000" {
		t.Errorf("first row: direction=%s amount=%s", first.Direction, first.Amount)
	}
	if first.Time == nil || first.Time.String() != "13:15:00" {
		t.Errorf("first row time = %v, want 13:15:00", first.Time)
	}
	if first.Balance == nil || first.Balance.String() != "5000000" {
		t.Errorf("first row balance = %v", first.Balance)
	}
	if first.Memo != "축하합니다" || first.Counterparty != "김철수" {
		t.Errorf("korean field variants not extracted: memo=%q counterparty=%q", first.Memo, first.Counterparty)
	}

	second := txs[1]
	if second.Direction != domain.DirectionOut || second.Amount.String() != "30000" {
		t.Errorf("second row: direction=%s amount=%s", second.Direction, second.Amount)
	}
	if second.Date.String() != "2026-05-16" {
		t.Errorf("separator-tolerant date parse failed: %s", second.Date)
	}
	if second.Time != nil {
		t.Errorf("missing time should stay nil, got %v", second.Time)
	}

	third := txs[2]
	if third.Amount.String() != "70000" {
		t.Errorf("numeric amount parse failed: %s", third.Amount)
	}
}

func TestNormalizeInboundWinsTie(t *testing.T) {
	raw := map[string]interface{}{
		"transactions": []interface{}{
			map[string]interface{}{
				"trDate":    "20260516",
				"inAmount":  "100000",
				"outAmount": "100000",
			},
		},
	}

	txs, _ := Normalize(&Request{Raw: raw})
	if len(txs) != 1 {
		t.Fatalf("got %d transactions, want 1", len(txs))
	}
	if txs[0].Direction != domain.DirectionIn {
		t.Errorf("direction = %s, want IN when both sides are set", txs[0].Direction)
	}
}

func TestNormalizeEmptySources(t *testing.T) {
	txs, skipped := Normalize(&Request{})
	if len(txs) != 0 || skipped != 0 {
		t.Errorf("empty request: got %d transactions, %d skipped", len(txs), skipped)
	}

	// A raw payload with no recognizable list is zero rows, not an error.
	txs, skipped = Normalize(&Request{Raw: map[string]interface{}{"status": "OK"}})
	if len(txs) != 0 || skipped != 0 {
		t.Errorf("listless payload: got %d transactions, %d skipped", len(txs), skipped)
	}
}

func TestNormalizeZeroBalancePresence(t *testing.T) {
	// "0" and "0.00" are the same present value; only an absent or
	// unparseable field leaves the balance nil.
	tests := []struct {
		name    string
		balance interface{}
		want    bool
	}{
		{"plain zero", "0", true},
		{"decimal zero", "0.00", true},
		{"absent", nil, false},
		{"unparseable", "n/a", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := map[string]interface{}{
				"trDate":   "20260516",
				"inAmount": "100000",
			}
			if tt.balance != nil {
				row["balance"] = tt.balance
			}

			tx, ok := normalizeRow(row)
			if !ok {
				t.Fatal("row unexpectedly dropped")
			}
			if (tx.Balance != nil) != tt.want {
				t.Errorf("balance = %v, want present=%v", tx.Balance, tt.want)
			}
			if tx.Balance != nil && !tx.Balance.IsZero() {
				t.Errorf("balance = %s, want zero", tx.Balance)
			}
		})
	}
}

func TestParseRawDate(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"20260516", "2026-05-16", true},
		{"2026-05-16", "2026-05-16", true},
		{"2026.05.16", "2026-05-16", true},
		{"20261341", "", false},
		{"260516", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := parseRawDate(tt.input)
			if ok != tt.ok {
				t.Fatalf("parseRawDate(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if ok && got.String() != tt.want {
				t.Errorf("parseRawDate(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}
