package reconcile

import (
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/jihokoo/gift-ledger/internal/domain"
)

// Provider payloads are not schema-stable: the same logical field shows up
// under different key names depending on provider and scraper version. Each
// field is extracted by probing an ordered list of known variants, first
// match wins. Extending support for a new provider means appending keys
// here, nothing else.
type fieldExtractor struct {
	name string
	keys []string
}

var (
	listExtractor = fieldExtractor{name: "transaction list", keys: []string{
		"transactions", "list", "resList", "tranList", "items",
	}}

	dateExtractor = fieldExtractor{name: "date", keys: []string{
		"trDate", "tranDate", "date", "거래일자",
	}}
	timeExtractor = fieldExtractor{name: "time", keys: []string{
		"trTime", "tranTime", "time", "거래시간",
	}}
	inboundExtractor = fieldExtractor{name: "inbound amount", keys: []string{
		"inAmount", "depositAmt", "in", "입금액",
	}}
	outboundExtractor = fieldExtractor{name: "outbound amount", keys: []string{
		"outAmount", "withdrawAmt", "out", "출금액",
	}}
	balanceExtractor = fieldExtractor{name: "balance", keys: []string{
		"balance", "balanceAmt", "잔액",
	}}
	memoExtractor = fieldExtractor{name: "memo", keys: []string{
		"memo", "note", "desc", "적요",
	}}
	counterpartyExtractor = fieldExtractor{name: "counterparty", keys: []string{
		"counterparty", "remitter", "name", "거래처", "보낸분",
	}}
	counterpartyAccountExtractor = fieldExtractor{name: "counterparty account", keys: []string{
		"counterpartyAccount", "accountNo", "상대계좌",
	}}
)

// stringValue probes the extractor's key variants in order and returns the
// first present value rendered as a trimmed string. Numbers are rendered
// without an exponent so amount fields survive JSON's float decoding.
func (e fieldExtractor) stringValue(row map[string]interface{}) string {
	for _, key := range e.keys {
		v, ok := row[key]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			if s := strings.TrimSpace(val); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(val, 'f', -1, 64)
		}
	}
	return ""
}

// listValue probes the extractor's key variants for an array value.
func (e fieldExtractor) listValue(row map[string]interface{}) []interface{} {
	for _, key := range e.keys {
		if v, ok := row[key].([]interface{}); ok {
			return v
		}
	}
	return nil
}

// Normalize converts the request's data source into canonical transactions.
// A pre-normalized list passes through with the amount clamped to its
// magnitude and a missing direction defaulted to inbound. A raw provider
// payload is parsed best-effort: rows that fail to yield a valid date or a
// positive amount are dropped and counted, never reported as errors. With
// neither source the result is empty, which is still a valid reconciliation
// of zero new transactions.
func Normalize(req *Request) ([]*domain.Transaction, int) {
	if len(req.Transactions) > 0 {
		out := make([]*domain.Transaction, 0, len(req.Transactions))
		for _, in := range req.Transactions {
			tx := *in
			tx.Amount = tx.Amount.Abs()
			if tx.Direction == "" {
				tx.Direction = domain.DirectionIn
			}
			out = append(out, &tx)
		}
		return out, 0
	}

	if req.Raw != nil {
		return normalizeRaw(req.Raw)
	}

	return nil, 0
}

func normalizeRaw(raw map[string]interface{}) ([]*domain.Transaction, int) {
	rows := listExtractor.listValue(raw)

	var out []*domain.Transaction
	skipped := 0

	for _, item := range rows {
		row, ok := item.(map[string]interface{})
		if !ok {
			skipped++
			continue
		}

		tx, ok := normalizeRow(row)
		if !ok {
			skipped++
			continue
		}
		out = append(out, tx)
	}

	return out, skipped
}

func normalizeRow(row map[string]interface{}) (*domain.Transaction, bool) {
	date, ok := parseRawDate(dateExtractor.stringValue(row))
	if !ok {
		return nil, false
	}

	inbound, _ := parseAmount(inboundExtractor.stringValue(row))
	outbound, _ := parseAmount(outboundExtractor.stringValue(row))

	// When a row somehow carries both sides, inbound wins. Inherited
	// upstream behavior, see the normalizer tests.
	var direction domain.Direction
	var amount decimal.Decimal
	switch {
	case inbound.IsPositive():
		direction, amount = domain.DirectionIn, inbound
	case outbound.IsPositive():
		direction, amount = domain.DirectionOut, outbound
	default:
		return nil, false
	}

	tx := &domain.Transaction{
		Date:                date,
		Time:                parseRawTime(timeExtractor.stringValue(row)),
		Direction:           direction,
		Amount:              amount,
		Memo:                memoExtractor.stringValue(row),
		Counterparty:        counterpartyExtractor.stringValue(row),
		CounterpartyAccount: counterpartyAccountExtractor.stringValue(row),
		Raw:                 row,
	}

	if balance, ok := parseAmount(balanceExtractor.stringValue(row)); ok {
		tx.Balance = &balance
	}

	return tx, true
}

// parseRawDate parses the provider's 8-digit date (with separators
// tolerated) into a calendar date.
func parseRawDate(s string) (civil.Date, bool) {
	digits := stripNonDigits(s)
	if len(digits) != 8 {
		return civil.Date{}, false
	}
	t, err := time.Parse("20060102", digits)
	if err != nil {
		return civil.Date{}, false
	}
	return civil.DateOf(t), true
}

// parseRawTime parses the provider's optional 6-digit time of day. Anything
// else yields nil, which downstream treats as midnight.
func parseRawTime(s string) *civil.Time {
	digits := stripNonDigits(s)
	if len(digits) != 6 {
		return nil
	}
	t, err := time.Parse("150405", digits)
	if err != nil {
		return nil
	}
	tod := civil.TimeOf(t)
	return &tod
}

// parseAmount parses a provider amount, stripping thousands separators and
// whitespace. The second return reports whether a value was present and
// parseable, so a genuine zero ("0", "0.00") stays distinguishable from an
// absent field.
func parseAmount(s string) (decimal.Decimal, bool) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ',', ' ':
			return -1
		}
		return r
	}, s)
	if cleaned == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func stripNonDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r < '0' || r > '9' {
			return -1
		}
		return r
	}, s)
}
