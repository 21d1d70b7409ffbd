package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dvloznov/customer-rfm/internal/api/middleware"
	"github.com/dvloznov/customer-rfm/internal/jobs"
	"github.com/rs/zerolog"
)

// JobsHandler triggers segmentation runs and reports their progress.
type JobsHandler struct {
	publisher jobs.Publisher
	store     jobs.JobStore
	log       zerolog.Logger
}

// NewJobsHandler creates a new jobs handler. A nil publisher disables triggering runs.
func NewJobsHandler(publisher jobs.Publisher, store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		publisher: publisher,
		store:     store,
		log:       log,
	}
}

// TriggerRun handles POST /api/runs
func (h *JobsHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	if h.publisher == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Runs are not enabled on this server")
		return
	}

	var req struct {
		InputPath string   `json:"input_path"`
		Sheets    []string `json:"sheets"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	job := &jobs.SegmentationJob{
		InputPath: req.InputPath,
		Sheets:    req.Sheets,
	}
	if err := h.publisher.PublishSegmentation(r.Context(), job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue segmentation job")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue run")
		return
	}

	h.log.Info().
		Str("job_id", job.JobID).
		Str("input_path", job.InputPath).
		Msg("Segmentation job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, job)
}

// ListJobs handles GET /api/jobs?status=&limit=
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	list, err := h.store.ListJobs(r.Context(), jobs.JobFilter{
		Status: jobs.JobStatus(r.URL.Query().Get("status")),
		Limit:  limit,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  list,
		"count": len(list),
	})
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}
