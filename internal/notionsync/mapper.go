package notionsync

import (
	"math/big"
	"time"

	"github.com/jomei/notionapi"

	bq "github.com/jihokoo/gift-ledger/internal/bigquery"
)

// LedgerEntryToNotionProperties converts a ledger entry row to Notion
// properties for the event's gift-ledger database. The Entry ID property is
// the sync key; the dashboard never edits it.
func LedgerEntryToNotionProperties(entry *bq.LedgerEntryRow) notionapi.Properties {
	guest := entry.GuestName.StringVal
	if guest == "" {
		guest = "(unknown)"
	}

	props := notionapi.Properties{
		"Guest": notionapi.TitleProperty{
			Title: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: guest,
					},
				},
			},
		},
		"Entry ID": notionapi.RichTextProperty{
			RichText: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: entry.EntryID,
					},
				},
			},
		},
		"Amount": notionapi.NumberProperty{
			Number: ratFloat(entry.Amount),
		},
		"Gift Date": notionapi.DateProperty{
			Date: &notionapi.DateObject{
				Start: func() *notionapi.Date {
					d := notionapi.Date(entry.GiftTS)
					return &d
				}(),
			},
		},
	}

	// Side
	if entry.Side != "" {
		props["Side"] = notionapi.SelectProperty{
			Select: notionapi.Option{
				Name: entry.Side,
			},
		}
	}

	// Method
	if entry.Method != "" {
		props["Method"] = notionapi.SelectProperty{
			Select: notionapi.Option{
				Name: entry.Method,
			},
		}
	}

	// Source
	if entry.Source != "" {
		props["Source"] = notionapi.SelectProperty{
			Select: notionapi.Option{
				Name: entry.Source,
			},
		}
	}

	// Memo
	if entry.Memo.Valid && entry.Memo.StringVal != "" {
		props["Memo"] = notionapi.RichTextProperty{
			RichText: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: entry.Memo.StringVal,
					},
				},
			},
		}
	}

	// Account
	if entry.AccountLabel.Valid && entry.AccountLabel.StringVal != "" {
		props["Account"] = notionapi.RichTextProperty{
			RichText: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: entry.AccountLabel.StringVal,
					},
				},
			},
		}
	}

	// Recorded date
	if !entry.CreatedTS.IsZero() {
		props["Recorded"] = notionapi.DateProperty{
			Date: &notionapi.DateObject{
				Start: func() *notionapi.Date {
					d := notionapi.Date(entry.CreatedTS.In(time.UTC))
					return &d
				}(),
			},
		}
	}

	return props
}

func ratFloat(r *big.Rat) float64 {
	if r == nil {
		return 0
	}
	f, _ := r.Float64()
	return f
}
