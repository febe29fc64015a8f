package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
)

// JobsHandler serves the active job list and cancellation
type JobsHandler struct {
	jobs   JobTable
	logger arbor.ILogger
}

// NewJobsHandler creates a new JobsHandler
func NewJobsHandler(jobs JobTable, logger arbor.ILogger) *JobsHandler {
	return &JobsHandler{
		jobs:   jobs,
		logger: logger,
	}
}

// ListJobsHandler handles GET /api/jobs. ?reload=true fetches before answering.
func (h *JobsHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	if r.URL.Query().Get("reload") == "true" {
		if err := h.jobs.Load(r.Context()); err != nil {
			WriteError(w, ErrorStatus(err), h.jobs.View().Error)
			return
		}
	}

	WriteJSON(w, http.StatusOK, h.jobs.View())
}

// CancelJobHandler handles POST /api/jobs/{id}/cancel
func (h *JobsHandler) CancelJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	jobID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/jobs/"), "/cancel")
	if jobID == "" || strings.Contains(jobID, "/") {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	if err := h.jobs.Cancel(r.Context(), jobID); err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Cancel via bridge failed")
		WriteError(w, ErrorStatus(err), h.jobs.View().Error)
		return
	}

	WriteJSON(w, http.StatusOK, h.jobs.View())
}
