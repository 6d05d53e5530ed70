package reconcile

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	bq "github.com/jihokoo/gift-ledger/internal/bigquery"
	"github.com/jihokoo/gift-ledger/internal/domain"
)

// fakeRepo is an in-memory LedgerRepository that mimics the storage-layer
// uniqueness rules: transactions on (account_id, fingerprint), reconciled
// entries on (member_id, origin_fingerprint).
type fakeRepo struct {
	event   *bq.EventRow
	member  *bq.MemberRow
	account *bq.ScrapeAccountRow

	transactions map[string]*bq.GiftTransactionRow
	entries      map[string]*bq.LedgerEntryRow
	touched      int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		event:  &bq.EventRow{EventID: "evt-1", Title: "철수 ♥ 영희"},
		member: &bq.MemberRow{MemberID: "mem-1", EventID: "evt-1", UserID: "user-1", Side: "GROOM"},
		account: &bq.ScrapeAccountRow{
			AccountID: "acct-1", EventID: "evt-1", MemberID: "mem-1",
			BankName: "국민은행", AccountNoMasked: "****1234", Status: bq.ScrapeStatusConnected,
		},
		transactions: make(map[string]*bq.GiftTransactionRow),
		entries:      make(map[string]*bq.LedgerEntryRow),
	}
}

func (f *fakeRepo) GetEvent(_ context.Context, eventID string) (*bq.EventRow, error) {
	if f.event != nil && f.event.EventID == eventID {
		return f.event, nil
	}
	return nil, nil
}

func (f *fakeRepo) FindMember(_ context.Context, userID, eventID string) (*bq.MemberRow, error) {
	if f.member != nil && f.member.UserID == userID && f.member.EventID == eventID {
		return f.member, nil
	}
	return nil, nil
}

func (f *fakeRepo) GetScrapeAccount(_ context.Context, accountID string) (*bq.ScrapeAccountRow, error) {
	if f.account != nil && f.account.AccountID == accountID {
		return f.account, nil
	}
	return nil, nil
}

func (f *fakeRepo) InsertTransactions(_ context.Context, rows []*bq.GiftTransactionRow) (int, error) {
	inserted := 0
	for _, row := range rows {
		key := row.AccountID + "|" + row.Fingerprint
		if _, exists := f.transactions[key]; exists {
			continue
		}
		f.transactions[key] = row
		inserted++
	}
	return inserted, nil
}

func (f *fakeRepo) QueryTransactions(_ context.Context, accountID string, start, end civil.Date) ([]*bq.GiftTransactionRow, error) {
	var out []*bq.GiftTransactionRow
	for _, row := range f.transactions {
		if row.AccountID != accountID {
			continue
		}
		if row.TransactionDate.Before(start) || row.TransactionDate.After(end) {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (f *fakeRepo) ListReflectedFingerprints(_ context.Context, memberID string) (map[string]bool, error) {
	out := make(map[string]bool)
	for _, e := range f.entries {
		if e.MemberID == memberID && e.Source == bq.LedgerSourceReconciled && e.OriginFingerprint.Valid {
			out[e.OriginFingerprint.StringVal] = true
		}
	}
	return out, nil
}

func (f *fakeRepo) InsertLedgerEntries(_ context.Context, rows []*bq.LedgerEntryRow) (int, error) {
	inserted := 0
	for _, row := range rows {
		key := row.MemberID + "|" + row.OriginFingerprint.StringVal
		if _, exists := f.entries[key]; exists {
			continue
		}
		f.entries[key] = row
		inserted++
	}
	return inserted, nil
}

func (f *fakeRepo) MarkTransactionsReflected(_ context.Context, accountID string, fingerprints []string) error {
	for _, fp := range fingerprints {
		if row, ok := f.transactions[accountID+"|"+fp]; ok {
			row.IsReflected = true
		}
	}
	return nil
}

func (f *fakeRepo) TouchScrapeAccount(_ context.Context, _ string, _ time.Time) error {
	f.touched++
	return nil
}

func (f *fakeRepo) ListLedgerEntries(_ context.Context, eventID string) ([]*bq.LedgerEntryRow, error) {
	var out []*bq.LedgerEntryRow
	for _, e := range f.entries {
		if e.EventID == eventID {
			out = append(out, e)
		}
	}
	return out, nil
}

func newTestService(repo *fakeRepo) *Service {
	svc := NewService(repo, nil, zerolog.Nop())
	svc.now = func() time.Time {
		return time.Date(2026, 5, 16, 12, 0, 0, 0, time.UTC)
	}
	return svc
}

func may(day int) civil.Date { return civil.Date{Year: 2026, Month: 5, Day: day} }

func inboundTx(day int, amount int64, memo string) *domain.Transaction {
	return &domain.Transaction{
		Date:      may(day),
		Direction: domain.DirectionIn,
		Amount:    decimal.NewFromInt(amount),
		Memo:      memo,
	}
}

func baseRequest(txs ...*domain.Transaction) *Request {
	return &Request{
		EventID:         "evt-1",
		ScrapeAccountID: "acct-1",
		StartDate:       may(1),
		EndDate:         may(31),
		Transactions:    txs,
	}
}

func TestReconcileIdempotent(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	req := baseRequest(
		inboundTx(10, 50000, "김철수"),
		inboundTx(11, 100000, "이영희"),
		inboundTx(12, 30000, "박민수"),
		inboundTx(13, 70000, "최지은"),
		inboundTx(14, 200000, "정다혜"),
	)

	res, err := svc.Reconcile(ctx, "user-1", req)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if res.Seen != 5 || res.InsertedTransactions != 5 || res.NewLedgerEntries != 5 || res.ReflectedTotal != 5 {
		t.Errorf("first run = %+v, want 5/5/5/5", res)
	}

	res, err = svc.Reconcile(ctx, "user-1", req)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if res.InsertedTransactions != 0 || res.NewLedgerEntries != 0 {
		t.Errorf("second run inserted %d transactions, %d entries; want 0/0",
			res.InsertedTransactions, res.NewLedgerEntries)
	}
	if res.ReflectedTotal != 5 {
		t.Errorf("second run reflected total = %d, want 5", res.ReflectedTotal)
	}
	if len(repo.entries) != 5 {
		t.Errorf("ledger has %d entries after two runs, want 5", len(repo.entries))
	}
	for _, row := range repo.transactions {
		if !row.IsReflected {
			t.Errorf("transaction %s not marked reflected", row.Fingerprint)
		}
	}
	if repo.touched != 2 {
		t.Errorf("scrape account touched %d times, want 2", repo.touched)
	}
}

func TestReconcileOutboundAndNonPositiveNeverLedgered(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	in := inboundTx(10, 100000, "김철수")
	out := inboundTx(10, 45000, "카드값")
	out.Direction = domain.DirectionOut

	res, err := svc.Reconcile(context.Background(), "user-1", baseRequest(in, out))
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if res.InsertedTransactions != 2 {
		t.Errorf("inserted %d transactions, want 2 (outbound is still stored)", res.InsertedTransactions)
	}
	if res.NewLedgerEntries != 1 || res.ReflectedTotal != 1 {
		t.Errorf("entries=%d reflected=%d, want 1/1", res.NewLedgerEntries, res.ReflectedTotal)
	}
	wantFP := Fingerprint("acct-1", in)
	for _, e := range repo.entries {
		if !e.OriginFingerprint.Valid || e.OriginFingerprint.StringVal != wantFP {
			t.Errorf("ledger entry with origin %q, want only the inbound fingerprint %s",
				e.OriginFingerprint.StringVal, wantFP)
		}
	}
}

func TestReconcileMemoDistinguishesTransactions(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	// Same day, same amount, no time or balance: only the memo differs.
	res, err := svc.Reconcile(context.Background(), "user-1", baseRequest(
		inboundTx(16, 100000, "축하합니다"),
		inboundTx(16, 100000, ""),
	))
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if res.InsertedTransactions != 2 || res.NewLedgerEntries != 2 {
		t.Errorf("inserted=%d entries=%d, want two distinct rows and entries",
			res.InsertedTransactions, res.NewLedgerEntries)
	}
}

func TestReconcileLockedAfterCeremony(t *testing.T) {
	repo := newFakeRepo()
	repo.event = eventWithCeremony("2026-05-16", "18:00")
	svc := newTestService(repo)
	svc.now = func() time.Time {
		return time.Date(2026, 5, 16, 20, 0, 0, 0, ceremonyZone)
	}

	_, err := svc.Reconcile(context.Background(), "user-1", baseRequest(inboundTx(16, 100000, "")))
	var locked *LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("error = %v, want LockedError", err)
	}
	if len(repo.transactions) != 0 || len(repo.entries) != 0 {
		t.Error("locked run must not write anything")
	}
	if repo.touched != 0 {
		t.Error("locked run must not touch the scrape account")
	}
}

func TestReconcileAuthorization(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		mutate  func(*fakeRepo)
		wantErr error
	}{
		{
			name:    "missing identity",
			userID:  "",
			mutate:  func(*fakeRepo) {},
			wantErr: ErrUnauthorized,
		},
		{
			name:    "not a member",
			userID:  "stranger",
			mutate:  func(*fakeRepo) {},
			wantErr: ErrForbidden,
		},
		{
			name:   "account belongs to another member",
			userID: "user-1",
			mutate: func(f *fakeRepo) {
				f.account.MemberID = "mem-2"
			},
			wantErr: ErrForbidden,
		},
		{
			name:   "account belongs to another event",
			userID: "user-1",
			mutate: func(f *fakeRepo) {
				f.account.EventID = "evt-2"
			},
			wantErr: ErrForbidden,
		},
		{
			name:   "unknown account",
			userID: "user-1",
			mutate: func(f *fakeRepo) {
				f.account = nil
			},
			wantErr: ErrForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo()
			tt.mutate(repo)
			svc := newTestService(repo)

			_, err := svc.Reconcile(context.Background(), tt.userID, baseRequest(inboundTx(16, 100000, "")))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if len(repo.transactions) != 0 {
				t.Error("rejected run must not write transactions")
			}
		})
	}
}

func TestReconcileValidation(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"missing event", func(r *Request) { r.EventID = "" }},
		{"missing account", func(r *Request) { r.ScrapeAccountID = "" }},
		{"missing dates", func(r *Request) { r.StartDate, r.EndDate = civil.Date{}, civil.Date{} }},
		{"inverted range", func(r *Request) { r.StartDate, r.EndDate = may(20), may(10) }},
		{"both data sources", func(r *Request) { r.Raw = map[string]interface{}{"resList": []interface{}{}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest(inboundTx(16, 100000, ""))
			tt.mutate(req)
			if _, err := svc.Reconcile(context.Background(), "user-1", req); !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestReconcileRawPayloadSkipsJunkRows(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	req := baseRequest()
	req.Raw = map[string]interface{}{
		"tranList": []interface{}{
			map[string]interface{}{"trDate": "20260516", "inAmount": "100,000", "보낸분": "김철수"},
			map[string]interface{}{"inAmount": "50000"}, // no date
			map[string]interface{}{"trDate": "20260516"},
		},
	}

	res, err := svc.Reconcile(context.Background(), "user-1", req)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if res.Seen != 1 || res.Skipped != 2 {
		t.Errorf("seen=%d skipped=%d, want 1/2", res.Seen, res.Skipped)
	}
	if res.InsertedTransactions != 1 || res.NewLedgerEntries != 1 {
		t.Errorf("inserted=%d entries=%d, want 1/1", res.InsertedTransactions, res.NewLedgerEntries)
	}
	for _, row := range repo.transactions {
		if !row.RawJSON.Valid || !strings.Contains(row.RawJSON.JSONVal, "김철수") {
			t.Errorf("raw json = %+v, want the original row encoded as a JSON string", row.RawJSON)
		}
	}
}

func TestReconcileEntryShape(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	tod := civil.Time{Hour: 13, Minute: 15}
	tx := inboundTx(16, 100000, "축하합니다")
	tx.Time = &tod
	tx.Counterparty = "김철수"

	if _, err := svc.Reconcile(context.Background(), "user-1", baseRequest(tx)); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	var entry *bq.LedgerEntryRow
	for _, e := range repo.entries {
		entry = e
	}
	if entry == nil {
		t.Fatal("no ledger entry written")
	}

	if entry.Side != "GROOM" || entry.Source != bq.LedgerSourceReconciled {
		t.Errorf("side=%s source=%s", entry.Side, entry.Source)
	}
	if entry.GuestName.StringVal != "김철수" {
		t.Errorf("guest name = %q", entry.GuestName.StringVal)
	}
	if entry.AccountLabel.StringVal != "국민은행 ****1234" {
		t.Errorf("account label = %q", entry.AccountLabel.StringVal)
	}
	wantFP := Fingerprint("acct-1", tx)
	if !entry.OriginFingerprint.Valid || entry.OriginFingerprint.StringVal != wantFP {
		t.Errorf("origin fingerprint = %+v, want %s", entry.OriginFingerprint, wantFP)
	}
	wantMemoPrefix := bq.FingerprintMemoPrefix + wantFP + " 축하합니다"
	if entry.Memo.StringVal != wantMemoPrefix {
		t.Errorf("memo = %q, want %q", entry.Memo.StringVal, wantMemoPrefix)
	}
	wantTS := time.Date(2026, 5, 16, 13, 15, 0, 0, ceremonyZone)
	if !entry.GiftTS.Equal(wantTS) {
		t.Errorf("gift ts = %s, want %s", entry.GiftTS, wantTS)
	}
}
