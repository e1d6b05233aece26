package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/noperle/bsides-ldn-2019/internal/api/response"
	"github.com/noperle/bsides-ldn-2019/internal/dispatch"
	"github.com/noperle/bsides-ldn-2019/internal/store"
	"github.com/noperle/bsides-ldn-2019/pkg/models"
)

// JobStore reads job state for polling.
type JobStore interface {
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

// StatusCache is the Redis fast path consulted before the store on polls.
type StatusCache interface {
	GetJobStatus(ctx context.Context, jobID uuid.UUID) (models.JobStatus, bool, error)
}

// JobDispatcher blocks on, resolves, completes, and evicts jobs.
type JobDispatcher interface {
	Wait(ctx context.Context, job *models.Job) error
	HostCommandResult(ctx context.Context, job *models.Job) (*models.HostCommand, error)
	RatResult(ctx context.Context, job *models.Job) (*models.RatCommand, error)
	CompleteJob(ctx context.Context, jobID uuid.UUID, status models.JobStatus, patch models.Action) error
	DeleteJob(ctx context.Context, jobID uuid.UUID) error
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
// In-flight statuses are answered from the cache mirror without touching the
// store; terminal statuses fall through so the response carries the merged
// action document.
func NewGetJobHandler(s JobStore, c StatusCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_JOB_ID", "Invalid job ID format", nil)
			return
		}

		if status, ok, cerr := c.GetJobStatus(r.Context(), jobID); cerr == nil && ok && !status.Terminal() {
			response.JSON(w, map[string]any{
				"job_id": jobID.String(),
				"status": status,
			})
			return
		}

		job, err := s.GetJob(r.Context(), jobID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load job", nil)
			return
		}

		response.JSON(w, job)
	}
}

// NewWaitJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}/wait.
// The request blocks until the job reaches a terminal state or the wait
// window closes. An optional ?timeout= duration shortens the window; it can
// never extend it past maxWait.
func NewWaitJobHandler(s JobStore, d JobDispatcher, maxWait time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_JOB_ID", "Invalid job ID format", nil)
			return
		}

		wait := maxWait
		if raw := r.URL.Query().Get("timeout"); raw != "" {
			parsed, perr := time.ParseDuration(raw)
			if perr != nil || parsed <= 0 {
				response.Error(w, http.StatusBadRequest, "INVALID_TIMEOUT",
					"timeout must be a positive duration such as 30s", nil)
				return
			}
			if parsed < wait {
				wait = parsed
			}
		}

		job, err := s.GetJob(r.Context(), jobID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load job", nil)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), wait)
		defer cancel()

		if err := d.Wait(ctx, job); err != nil {
			writeWaitError(w, r, err)
			return
		}

		writeJobOutcome(w, r, d, job)
	}
}

// writeJobOutcome renders a successfully completed job as the typed command
// view matching its action shape.
func writeJobOutcome(w http.ResponseWriter, r *http.Request, d JobDispatcher, job *models.Job) {
	if _, ok := job.Action.Rats(); ok {
		rc, err := d.RatResult(r.Context(), job)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to resolve rat command", nil)
			return
		}
		response.JSON(w, map[string]any{
			"job_id":      job.ID.String(),
			"status":      job.Status,
			"rat_command": rc,
		})
		return
	}

	hc, err := d.HostCommandResult(r.Context(), job)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to resolve host command", nil)
		return
	}
	response.JSON(w, map[string]any{
		"job_id":       job.ID.String(),
		"status":       job.Status,
		"host_command": hc,
	})
}

// writeWaitError maps a Wait failure onto an HTTP status. Classified job
// failures carry the agent-reported message; wait-window expiry is 504 and
// leaves the job running.
func writeWaitError(w http.ResponseWriter, r *http.Request, err error) {
	var jobErr *dispatch.JobError
	switch {
	case errors.As(err, &jobErr):
		switch {
		case errors.Is(err, dispatch.ErrNoRat):
			response.Error(w, http.StatusGone, "RAT_KILLED", jobErr.Message, nil)
		case errors.Is(err, dispatch.ErrAgentException):
			response.Error(w, http.StatusBadGateway, "AGENT_EXCEPTION", jobErr.Message, nil)
		default:
			response.Error(w, http.StatusBadGateway, "JOB_FAILED", jobErr.Message, nil)
		}
	case errors.Is(err, context.DeadlineExceeded):
		response.Error(w, http.StatusGatewayTimeout, "WAIT_TIMEOUT",
			"Job did not complete within the wait window", nil)
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job was deleted", nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}

// NewJobResultHandler returns an http.HandlerFunc for POST /api/v1/jobs/{jobID}/result.
// Agents report job completion here; committing the result wakes any
// operator requests blocked on the job.
func NewJobResultHandler(d JobDispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_JOB_ID", "Invalid job ID format", nil)
			return
		}

		var req struct {
			Status    string `json:"status"`
			Result    any    `json:"result"`
			Error     string `json:"error"`
			Exception string `json:"exception"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		status := models.JobStatus(req.Status)
		if !status.Valid() {
			response.Error(w, http.StatusBadRequest, "INVALID_STATUS",
				"status must be one of created, pending, success, failed", nil)
			return
		}

		var patch models.Action
		switch status {
		case models.JobStatusSuccess:
			if req.Result != nil {
				patch = models.SuccessPatch(req.Result)
			}
		case models.JobStatusFailed:
			if req.Error != "" || req.Exception != "" {
				patch = models.FailurePatch(req.Error, req.Exception)
			}
		}

		if err := d.CompleteJob(r.Context(), jobID, status, patch); err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
			case errors.Is(err, store.ErrInvalidTransition):
				response.Error(w, http.StatusConflict, "INVALID_TRANSITION",
					"Job is already in a terminal state", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to record result", nil)
			}
			return
		}

		response.JSON(w, map[string]any{
			"job_id": jobID.String(),
			"status": status,
		})
	}
}

// NewDeleteJobHandler returns an http.HandlerFunc for DELETE /api/v1/jobs/{jobID}.
// Deletion also releases any requests still waiting on the job.
func NewDeleteJobHandler(d JobDispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_JOB_ID", "Invalid job ID format", nil)
			return
		}

		if err := d.DeleteJob(r.Context(), jobID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete job", nil)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
