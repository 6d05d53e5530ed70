package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jihokoo/gift-ledger/internal/reconcile"
)

// Worker executes reconciliation jobs against the reconcile service.
type Worker struct {
	svc   *reconcile.Service
	store JobStore
	log   zerolog.Logger
}

// NewWorker creates a job worker backed by the reconcile service.
func NewWorker(svc *reconcile.Service, store JobStore, log zerolog.Logger) *Worker {
	return &Worker{svc: svc, store: store, log: log}
}

// Handle processes a single job. Infrastructure errors are returned so the
// queue retries; business-rule rejections (bad request, forbidden, locked
// ledger) are recorded as permanent failures and not retried, since they
// cannot succeed later without a different request.
func (w *Worker) Handle(ctx context.Context, job Job) error {
	j, ok := job.(*ReconcileAccountJob)
	if !ok {
		return fmt.Errorf("unexpected job type %s", job.GetType())
	}

	req := &reconcile.Request{
		EventID:         j.EventID,
		ScrapeAccountID: j.ScrapeAccountID,
		StartDate:       j.StartDate,
		EndDate:         j.EndDate,
		Transactions:    j.Transactions,
		Raw:             j.Raw,
	}

	res, err := w.svc.Reconcile(ctx, j.UserID, req)
	if err != nil {
		if isPermanent(err) {
			w.log.Warn().Err(err).Str("job_id", j.JobID).
				Msg("Reconciliation job rejected")
			if w.store != nil {
				_ = w.store.UpdateJobStatus(ctx, j.JobID, JobStatusFailed, err.Error())
			}
			return nil
		}
		return err
	}

	j.Result = map[string]int{
		"seen":                 res.Seen,
		"skipped":              res.Skipped,
		"insertedTransactions": res.InsertedTransactions,
		"newLedgerEntries":     res.NewLedgerEntries,
		"reflectedTotal":       res.ReflectedTotal,
	}
	return nil
}

func isPermanent(err error) bool {
	var locked *reconcile.LockedError
	return errors.Is(err, reconcile.ErrInvalidRequest) ||
		errors.Is(err, reconcile.ErrUnauthorized) ||
		errors.Is(err, reconcile.ErrForbidden) ||
		errors.As(err, &locked)
}
