package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jihokoo/gift-ledger/internal/api/middleware"
	bq "github.com/jihokoo/gift-ledger/internal/bigquery"
	"github.com/jihokoo/gift-ledger/internal/domain"
	"github.com/jihokoo/gift-ledger/internal/jobs"
	"github.com/jihokoo/gift-ledger/internal/reconcile"
)

// Reconciler runs a reconciliation on behalf of an authenticated user.
// Satisfied by reconcile.Service; tests substitute a mock.
type Reconciler interface {
	Reconcile(ctx context.Context, userID string, req *reconcile.Request) (*reconcile.Result, error)
}

// ReconcileHandler handles the synchronous reconciliation endpoint.
type ReconcileHandler struct {
	svc Reconciler
	log zerolog.Logger
}

// NewReconcileHandler creates a new reconcile handler.
func NewReconcileHandler(svc Reconciler, log zerolog.Logger) *ReconcileHandler {
	return &ReconcileHandler{svc: svc, log: log}
}

type transactionInput struct {
	Date                string `json:"date"`
	Time                string `json:"time,omitempty"`
	Direction           string `json:"direction,omitempty"`
	Amount              string `json:"amount"`
	Balance             string `json:"balance,omitempty"`
	Memo                string `json:"memo,omitempty"`
	Counterparty        string `json:"counterparty,omitempty"`
	CounterpartyAccount string `json:"counterparty_account,omitempty"`
}

type reconcileRequest struct {
	ScrapeAccountID string                 `json:"scrape_account_id"`
	StartDate       string                 `json:"start_date"`
	EndDate         string                 `json:"end_date"`
	Transactions    []transactionInput     `json:"transactions,omitempty"`
	Raw             map[string]interface{} `json:"raw,omitempty"`
}

func (in transactionInput) toDomain() (*domain.Transaction, error) {
	date, err := civil.ParseDate(in.Date)
	if err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(in.Amount)
	if err != nil {
		return nil, err
	}

	tx := &domain.Transaction{
		Date:                date,
		Direction:           domain.Direction(in.Direction),
		Amount:              amount,
		Memo:                in.Memo,
		Counterparty:        in.Counterparty,
		CounterpartyAccount: in.CounterpartyAccount,
	}
	if in.Time != "" {
		tod, err := civil.ParseTime(in.Time)
		if err != nil {
			return nil, err
		}
		tx.Time = &tod
	}
	if in.Balance != "" {
		bal, err := decimal.NewFromString(in.Balance)
		if err != nil {
			return nil, err
		}
		tx.Balance = &bal
	}
	return tx, nil
}

func (req *reconcileRequest) toRequest(eventID string) (*reconcile.Request, error) {
	start, err := civil.ParseDate(req.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := civil.ParseDate(req.EndDate)
	if err != nil {
		return nil, err
	}

	out := &reconcile.Request{
		EventID:         eventID,
		ScrapeAccountID: req.ScrapeAccountID,
		StartDate:       start,
		EndDate:         end,
		Raw:             req.Raw,
	}
	for _, in := range req.Transactions {
		tx, err := in.toDomain()
		if err != nil {
			return nil, err
		}
		out.Transactions = append(out.Transactions, tx)
	}
	return out, nil
}

// Reconcile handles POST /api/events/{eventID}/reconcile
func (h *ReconcileHandler) Reconcile(w http.ResponseWriter, r *http.Request, eventID string) {
	ctx := r.Context()

	var body reconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req, err := body.toRequest(eventID)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid date or amount: "+err.Error())
		return
	}

	res, err := h.svc.Reconcile(ctx, middleware.UserID(ctx), req)
	if err != nil {
		h.writeReconcileError(w, eventID, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, res)
}

func (h *ReconcileHandler) writeReconcileError(w http.ResponseWriter, eventID string, err error) {
	var locked *reconcile.LockedError
	switch {
	case errors.Is(err, reconcile.ErrUnauthorized):
		middleware.WriteError(w, http.StatusUnauthorized, "Authentication required")
	case errors.Is(err, reconcile.ErrForbidden):
		middleware.WriteError(w, http.StatusForbidden, "You may not reconcile this account")
	case errors.As(err, &locked):
		middleware.WriteJSON(w, http.StatusLocked, map[string]string{
			"error":  "Ledger is locked after the ceremony",
			"cutoff": locked.Cutoff.Format(time.RFC3339),
		})
	case errors.Is(err, reconcile.ErrInvalidRequest):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Str("event_id", eventID).Msg("Reconciliation failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Reconciliation failed")
	}
}

// LedgerHandler handles ledger and transaction listing endpoints.
type LedgerHandler struct {
	repo bq.LedgerRepository
	log  zerolog.Logger
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(repo bq.LedgerRepository, log zerolog.Logger) *LedgerHandler {
	return &LedgerHandler{repo: repo, log: log}
}

// requireMember resolves the caller to a member of the event, writing the
// error response itself when that fails.
func (h *LedgerHandler) requireMember(w http.ResponseWriter, ctx context.Context, eventID string) *bq.MemberRow {
	userID := middleware.UserID(ctx)
	if userID == "" {
		middleware.WriteError(w, http.StatusUnauthorized, "Authentication required")
		return nil
	}

	member, err := h.repo.FindMember(ctx, userID, eventID)
	if err != nil {
		h.log.Error().Err(err).Str("event_id", eventID).Msg("Failed to resolve membership")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to resolve membership")
		return nil
	}
	if member == nil {
		middleware.WriteError(w, http.StatusForbidden, "You are not a member of this event")
		return nil
	}
	return member
}

// ListLedger handles GET /api/events/{eventID}/ledger
func (h *LedgerHandler) ListLedger(w http.ResponseWriter, r *http.Request, eventID string) {
	ctx := r.Context()

	if h.requireMember(w, ctx, eventID) == nil {
		return
	}

	entries, err := h.repo.ListLedgerEntries(ctx, eventID)
	if err != nil {
		h.log.Error().Err(err).Str("event_id", eventID).Msg("Failed to list ledger entries")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list ledger entries")
		return
	}

	if entries == nil {
		entries = []*bq.LedgerEntryRow{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// ListTransactions handles GET /api/events/{eventID}/transactions
func (h *LedgerHandler) ListTransactions(w http.ResponseWriter, r *http.Request, eventID string) {
	ctx := r.Context()

	member := h.requireMember(w, ctx, eventID)
	if member == nil {
		return
	}

	query := r.URL.Query()
	accountID := query.Get("scrape_account_id")
	if accountID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "scrape_account_id is required")
		return
	}

	// Transactions are bank statement lines; only the owning member sees them.
	account, err := h.repo.GetScrapeAccount(ctx, accountID)
	if err != nil {
		h.log.Error().Err(err).Str("account_id", accountID).Msg("Failed to get scrape account")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get scrape account")
		return
	}
	if account == nil || account.EventID != eventID || account.MemberID != member.MemberID {
		middleware.WriteError(w, http.StatusForbidden, "You may not view this account")
		return
	}

	start, end, ok := parseDateRange(w, query.Get("start_date"), query.Get("end_date"))
	if !ok {
		return
	}

	transactions, err := h.repo.QueryTransactions(ctx, accountID, start, end)
	if err != nil {
		h.log.Error().Err(err).Str("account_id", accountID).Msg("Failed to query transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to query transactions")
		return
	}

	if transactions == nil {
		transactions = []*bq.GiftTransactionRow{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// parseDateRange parses optional start/end query parameters, defaulting to
// the trailing year. Writes the 400 itself when a value is malformed.
func parseDateRange(w http.ResponseWriter, startStr, endStr string) (civil.Date, civil.Date, bool) {
	start := civil.DateOf(time.Now().AddDate(-1, 0, 0))
	end := civil.DateOf(time.Now())

	var err error
	if startStr != "" {
		if start, err = civil.ParseDate(startStr); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid start_date format")
			return civil.Date{}, civil.Date{}, false
		}
	}
	if endStr != "" {
		if end, err = civil.ParseDate(endStr); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid end_date format")
			return civil.Date{}, civil.Date{}, false
		}
	}
	return start, end, true
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	publisher jobs.Publisher
	store     jobs.JobStore
	log       zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(publisher jobs.Publisher, store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{publisher: publisher, store: store, log: log}
}

type reconcileJobRequest struct {
	EventID string `json:"event_id"`
	reconcileRequest
}

// EnqueueReconcile handles POST /api/reconcile-jobs
func (h *JobsHandler) EnqueueReconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.UserID(ctx)
	if userID == "" {
		middleware.WriteError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var body reconcileJobRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.EventID == "" || body.ScrapeAccountID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "event_id and scrape_account_id are required")
		return
	}

	req, err := body.toRequest(body.EventID)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid date or amount: "+err.Error())
		return
	}

	job := &jobs.ReconcileAccountJob{
		UserID:          userID,
		EventID:         req.EventID,
		ScrapeAccountID: req.ScrapeAccountID,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		Transactions:    req.Transactions,
		Raw:             req.Raw,
	}

	if err := h.publisher.PublishReconcileAccount(ctx, job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue reconciliation job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue reconciliation job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("event_id", job.EventID).
		Str("account_id", job.ScrapeAccountID).Msg("Reconciliation job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Parse query parameters
	query := r.URL.Query()
	filter := jobs.JobFilter{
		EventID:         query.Get("event_id"),
		ScrapeAccountID: query.Get("scrape_account_id"),
		Status:          jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
