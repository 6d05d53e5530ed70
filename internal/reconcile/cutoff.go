package reconcile

import (
	"time"

	bq "github.com/jihokoo/gift-ledger/internal/bigquery"
)

// Ceremony times are civil times in Korea; KST has no daylight saving.
var ceremonyZone = time.FixedZone("KST", 9*60*60)

var cutoffDateLayouts = []string{"2006-01-02", "20060102"}
var cutoffTimeLayouts = []string{"15:04", "15:04:05", "1504"}

// cutoffInstant computes the event's ceremony-end instant. The second return
// is false when the ceremony date or end time is absent or malformed, in
// which case no cutoff is enforced. That permissive default is deliberate:
// an event without finalized ceremony settings must stay open for
// reconciliation, and the CRUD surface writes these fields unvalidated.
func cutoffInstant(ev *bq.EventRow) (time.Time, bool) {
	if ev == nil || !ev.CeremonyDate.Valid || !ev.CeremonyEndTime.Valid {
		return time.Time{}, false
	}

	day, ok := parseFirst(cutoffDateLayouts, ev.CeremonyDate.StringVal)
	if !ok {
		return time.Time{}, false
	}
	end, ok := parseFirst(cutoffTimeLayouts, ev.CeremonyEndTime.StringVal)
	if !ok {
		return time.Time{}, false
	}

	return time.Date(day.Year(), day.Month(), day.Day(),
		end.Hour(), end.Minute(), end.Second(), 0, ceremonyZone), true
}

// checkCutoff rejects reconciliation at or after the cutoff instant.
func checkCutoff(ev *bq.EventRow, now time.Time) error {
	cutoff, ok := cutoffInstant(ev)
	if !ok {
		return nil
	}
	if !now.Before(cutoff) {
		return &LockedError{Cutoff: cutoff}
	}
	return nil
}

func parseFirst(layouts []string, value string) (time.Time, bool) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
