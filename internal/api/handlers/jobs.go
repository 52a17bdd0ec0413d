package handlers

import (
	"net/http"

	"github.com/dvloznov/ledger-assistant/internal/api/middleware"
	"github.com/dvloznov/ledger-assistant/internal/jobs"
	"github.com/rs/zerolog"
)

// JobsHandler handles mirror job endpoints.
type JobsHandler struct {
	store     jobs.JobStore
	publisher jobs.Publisher
	runner    *jobs.Runner
	log       zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, publisher jobs.Publisher, runner *jobs.Runner, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store:     store,
		publisher: publisher,
		runner:    runner,
		log:       log,
	}
}

// EnqueueMirror handles POST /api/mirror
func (h *JobsHandler) EnqueueMirror(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Target string `json:"target"`
	}
	if err := decodeBody(r, &req); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	job, err := h.runner.NewJob(req.Target)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	if err := h.publisher.PublishMirror(r.Context(), job); err != nil {
		h.log.Error().Err(err).Str("target", req.Target).Msg("Failed to enqueue mirror job")
		middleware.WriteDomainError(w, err)
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("target", string(job.Target)).Msg("Mirror job enqueued")

	// The queue owns job now; answer with the stored copy.
	saved, err := h.store.GetJob(r.Context(), job.JobID)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteSuccess(w, http.StatusAccepted, saved)
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	middleware.WriteSuccess(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		Status: jobs.JobStatus(first(query, "status")),
	}
	if target := first(query, "target"); target != "" {
		t, err := jobs.ParseTarget(target)
		if err != nil {
			middleware.WriteDomainError(w, err)
			return
		}
		filter.Target = t
	}

	var err error
	if filter.Limit, err = intParam(query, "limit"); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	if filter.Offset, err = intParam(query, "offset"); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteDomainError(w, err)
		return
	}

	middleware.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
