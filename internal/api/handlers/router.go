package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/ledger-assistant/internal/api/middleware"
	"github.com/dvloznov/ledger-assistant/internal/commands"
	"github.com/dvloznov/ledger-assistant/internal/domain"
	"github.com/dvloznov/ledger-assistant/internal/jobs"
	"github.com/rs/zerolog"
)

// Deps are the services the router serves. Assistant may be nil.
type Deps struct {
	Store      LedgerStore
	Dispatcher *commands.Dispatcher
	Assistant  *commands.Assistant
	JobStore   jobs.JobStore
	Publisher  jobs.Publisher
	Runner     *jobs.Runner
	Log        zerolog.Logger
}

// NewRouter registers every endpoint and wraps the mux in the middleware
// chain.
func NewRouter(d Deps) http.Handler {
	transactionsHandler := NewTransactionsHandler(d.Store, d.Dispatcher, d.Log)
	reportsHandler := NewReportsHandler(d.Store, d.Log)
	commandsHandler := NewCommandsHandler(d.Dispatcher, d.Assistant, d.Log)
	jobsHandler := NewJobsHandler(d.JobStore, d.Publisher, d.Runner, d.Log)

	mux := http.NewServeMux()

	// Transactions endpoints
	mux.HandleFunc("/api/transactions", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			transactionsHandler.ListTransactions(w, r)
		case http.MethodPost:
			transactionsHandler.CreateTransaction(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/api/transactions/batch", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			transactionsHandler.BatchCreate(w, r)
		} else {
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/api/transactions/", func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(strings.TrimPrefix(r.URL.Path, "/api/transactions/"))
		if err != nil {
			middleware.WriteDomainError(w, err)
			return
		}
		switch r.Method {
		case http.MethodGet:
			transactionsHandler.GetTransaction(w, r, id)
		case http.MethodPut:
			transactionsHandler.UpdateTransaction(w, r, id)
		case http.MethodDelete:
			transactionsHandler.DeleteTransaction(w, r, id)
		default:
			methodNotAllowed(w)
		}
	})

	// Report endpoints
	mux.HandleFunc("/api/summary", getOnly(reportsHandler.Summary))
	mux.HandleFunc("/api/categories", getOnly(reportsHandler.ListCategories))
	mux.HandleFunc("/api/notes", getOnly(reportsHandler.ListNotes))
	mux.HandleFunc("/api/export", getOnly(reportsHandler.Export))

	// Command endpoints
	mux.HandleFunc("/api/commands", getOnly(commandsHandler.ListCommands))
	mux.HandleFunc("/api/commands/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		name := strings.TrimPrefix(r.URL.Path, "/api/commands/")
		if name == "" {
			middleware.WriteError(w, http.StatusBadRequest, domain.KindValidation, "Command name is required")
			return
		}
		commandsHandler.RunCommand(w, r, name)
	})
	mux.HandleFunc("/api/assistant", postOnly(commandsHandler.Ask))

	// Jobs endpoints
	mux.HandleFunc("/api/mirror", postOnly(jobsHandler.EnqueueMirror))
	mux.HandleFunc("/api/jobs", getOnly(jobsHandler.ListJobs))
	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
		if jobID == "" {
			middleware.WriteError(w, http.StatusBadRequest, domain.KindValidation, "Job ID is required")
			return
		}
		jobsHandler.GetJob(w, r, jobID)
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		targets := []jobs.Target{}
		if d.Runner != nil {
			targets = append(targets, d.Runner.EnabledTargets()...)
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "healthy",
			"time":      time.Now().Format(time.RFC3339),
			"records":   len(d.Store.Snapshot()),
			"assistant": d.Assistant != nil,
			"mirrors":   targets,
		})
	})

	return middleware.Chain(mux,
		middleware.Recovery(d.Log),
		middleware.Logger(d.Log),
		middleware.RequestID,
		middleware.CORS,
	)
}

func getOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h(w, r)
	}
}

func postOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		h(w, r)
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	middleware.WriteError(w, http.StatusMethodNotAllowed, domain.KindValidation, "Method not allowed")
}
