package notionsync

import (
	"math/big"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/jomei/notionapi"

	bq "github.com/jihokoo/gift-ledger/internal/bigquery"
)

func TestLedgerEntryToNotionProperties(t *testing.T) {
	entry := &bq.LedgerEntryRow{
		EntryID:      "entry-1",
		EventID:      "evt-1",
		MemberID:     "mem-1",
		Side:         "GROOM",
		GuestName:    bigquery.NullString{StringVal: "김철수", Valid: true},
		Amount:       big.NewRat(100000, 1),
		Method:       "TRANSFER",
		GiftTS:       time.Date(2026, 5, 16, 13, 15, 0, 0, time.UTC),
		Memo:         bigquery.NullString{StringVal: "fp:abc 축하합니다", Valid: true},
		AccountLabel: bigquery.NullString{StringVal: "국민은행 ****1234", Valid: true},
		Source:       bq.LedgerSourceReconciled,
		CreatedTS:    time.Date(2026, 5, 16, 14, 0, 0, 0, time.UTC),
	}

	props := LedgerEntryToNotionProperties(entry)

	title, ok := props["Guest"].(notionapi.TitleProperty)
	if !ok || len(title.Title) != 1 || title.Title[0].Text.Content != "김철수" {
		t.Errorf("Guest property = %+v", props["Guest"])
	}

	entryID, ok := props["Entry ID"].(notionapi.RichTextProperty)
	if !ok || len(entryID.RichText) != 1 || entryID.RichText[0].Text.Content != "entry-1" {
		t.Errorf("Entry ID property = %+v", props["Entry ID"])
	}

	amount, ok := props["Amount"].(notionapi.NumberProperty)
	if !ok || amount.Number != 100000 {
		t.Errorf("Amount property = %+v", props["Amount"])
	}

	side, ok := props["Side"].(notionapi.SelectProperty)
	if !ok || side.Select.Name != "GROOM" {
		t.Errorf("Side property = %+v", props["Side"])
	}

	source, ok := props["Source"].(notionapi.SelectProperty)
	if !ok || source.Select.Name != "RECONCILED" {
		t.Errorf("Source property = %+v", props["Source"])
	}

	memo, ok := props["Memo"].(notionapi.RichTextProperty)
	if !ok || memo.RichText[0].Text.Content != "fp:abc 축하합니다" {
		t.Errorf("Memo property = %+v", props["Memo"])
	}
}

func TestLedgerEntryToNotionPropertiesMinimal(t *testing.T) {
	entry := &bq.LedgerEntryRow{
		EntryID: "entry-2",
		GiftTS:  time.Date(2026, 5, 16, 0, 0, 0, 0, time.UTC),
		Source:  bq.LedgerSourceManual,
	}

	props := LedgerEntryToNotionProperties(entry)

	title, ok := props["Guest"].(notionapi.TitleProperty)
	if !ok || title.Title[0].Text.Content != "(unknown)" {
		t.Errorf("Guest property = %+v", props["Guest"])
	}
	if _, present := props["Memo"]; present {
		t.Error("empty memo should not produce a property")
	}
	if _, present := props["Account"]; present {
		t.Error("empty account label should not produce a property")
	}
	amount, ok := props["Amount"].(notionapi.NumberProperty)
	if !ok || amount.Number != 0 {
		t.Errorf("nil amount should map to 0, got %+v", props["Amount"])
	}
}
