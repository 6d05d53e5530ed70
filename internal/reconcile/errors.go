package reconcile

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnauthorized is returned when no caller identity is present.
	ErrUnauthorized = errors.New("caller identity could not be established")

	// ErrForbidden is returned when the caller is not a member of the event
	// or the scrape account does not belong to the caller and event.
	ErrForbidden = errors.New("caller may not reconcile this account")

	// ErrInvalidRequest is returned for malformed or incomplete requests.
	// No side effects have occurred when it is returned.
	ErrInvalidRequest = errors.New("invalid reconciliation request")
)

// LockedError rejects reconciliation attempted at or after the ceremony-end
// cutoff. This is a routine business-rule rejection, not a failure; Cutoff
// carries the computed instant for diagnostics.
type LockedError struct {
	Cutoff time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("ledger is locked: ceremony ended at %s", e.Cutoff.Format(time.RFC3339))
}
