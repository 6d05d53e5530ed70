package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/jihokoo/gift-ledger/internal/api/handlers"
	"github.com/jihokoo/gift-ledger/internal/api/middleware"
	infraBQ "github.com/jihokoo/gift-ledger/internal/infra/bigquery"
	"github.com/jihokoo/gift-ledger/internal/jobs"
	"github.com/jihokoo/gift-ledger/internal/jobs/inmemory"
	"github.com/jihokoo/gift-ledger/internal/logger"
	"github.com/jihokoo/gift-ledger/internal/rawstore"
	"github.com/jihokoo/gift-ledger/internal/reconcile"
)

func main() {
	// Parse command-line flags
	var (
		port    = flag.String("port", "8080", "HTTP server port")
		project = flag.String("project", os.Getenv("GOOGLE_CLOUD_PROJECT"), "GCP project ID (or set GOOGLE_CLOUD_PROJECT env)")
		dataset = flag.String("dataset", envOr("BQ_DATASET", "guestbook"), "BigQuery dataset ID (or set BQ_DATASET env)")
		bucket  = flag.String("bucket", os.Getenv("GCS_BUCKET"), "GCS bucket for raw payload archives (or set GCS_BUCKET env)")
	)
	flag.Parse()

	// Initialize logger
	log := logger.New()

	if *project == "" {
		log.Fatal().Msg("No GCP project configured - set -project or GOOGLE_CLOUD_PROJECT")
	}

	ctx := context.Background()

	// Initialize repository
	repo, err := infraBQ.NewLedgerRepository(ctx, *project, *dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create ledger repository")
	}
	defer repo.Close()

	// Initialize raw payload archive
	var archive reconcile.RawArchive
	if *bucket != "" {
		gcsArchive, err := rawstore.NewGCSArchive(ctx, *bucket)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create raw payload archive")
		}
		defer gcsArchive.Close()
		archive = gcsArchive
	} else {
		log.Warn().Msg("No GCS bucket configured - raw payloads will not be archived")
	}

	// Initialize reconciliation service
	svc := reconcile.NewService(repo, archive, log)

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore)
	worker := jobs.NewWorker(svc, jobStore, log)

	// Start worker in background to process jobs
	workerCtx, cancelWorker := context.WithCancel(logger.WithContext(ctx, log))
	defer cancelWorker()

	go func() {
		log.Info().Msg("Starting job worker")
		if err := jobQueue.Start(workerCtx, worker.Handle); err != nil {
			log.Error().Err(err).Msg("Job worker stopped with error")
		}
	}()

	// Initialize handlers
	reconcileHandler := handlers.NewReconcileHandler(svc, log)
	ledgerHandler := handlers.NewLedgerHandler(repo, log)
	jobsHandler := handlers.NewJobsHandler(jobQueue, jobStore, log)

	// Create router
	mux := http.NewServeMux()

	// Event-scoped endpoints: /api/events/{eventID}/{reconcile,ledger,transactions}
	mux.HandleFunc("/api/events/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/events/")
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 || parts[0] == "" {
			middleware.WriteError(w, http.StatusNotFound, "Not found")
			return
		}
		eventID, action := parts[0], parts[1]

		switch {
		case action == "reconcile" && r.Method == http.MethodPost:
			reconcileHandler.Reconcile(w, r, eventID)
		case action == "ledger" && r.Method == http.MethodGet:
			ledgerHandler.ListLedger(w, r, eventID)
		case action == "transactions" && r.Method == http.MethodGet:
			ledgerHandler.ListTransactions(w, r, eventID)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Asynchronous reconciliation endpoint
	mux.HandleFunc("/api/reconcile-jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			jobsHandler.EnqueueReconcile(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Jobs endpoints
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			// Extract job ID from path
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(
					middleware.Auth(tokenVerifierFromEnv(log), log)(mux),
				),
			),
		),
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Cancel worker context
	cancelWorker()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}

// tokenVerifierFromEnv builds a static token verifier from AUTH_TOKENS,
// a comma-separated list of token=userID pairs. Deployments behind the
// platform gateway swap this for the real session verifier.
func tokenVerifierFromEnv(log zerolog.Logger) middleware.StaticTokenVerifier {
	verifier := middleware.StaticTokenVerifier{}
	raw := os.Getenv("AUTH_TOKENS")
	if raw == "" {
		log.Warn().Msg("AUTH_TOKENS not set - all requests will be anonymous")
		return verifier
	}
	for _, pair := range strings.Split(raw, ",") {
		kv := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(kv) == 2 && kv[0] != "" && kv[1] != "" {
			verifier[kv[0]] = kv[1]
		}
	}
	return verifier
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
