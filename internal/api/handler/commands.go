package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/noperle/bsides-ldn-2019/internal/api/response"
	"github.com/noperle/bsides-ldn-2019/internal/store"
	"github.com/noperle/bsides-ldn-2019/pkg/models"
)

// CommandStore resolves command targets.
type CommandStore interface {
	GetHost(ctx context.Context, id uuid.UUID) (*models.Host, error)
	GetRat(ctx context.Context, id uuid.UUID) (*models.Rat, error)
}

// CommandDispatcher persists new jobs for command delivery.
type CommandDispatcher interface {
	CreateAgentCommand(ctx context.Context, host *models.Host, op string, args map[string]any) (*models.Job, error)
	CreateRatCommand(ctx context.Context, rat *models.Rat, function string, params map[string]any) (*models.Job, error)
}

// NewHostCommandHandler returns an http.HandlerFunc for POST /api/v1/commands/host.
// The opcode and its arguments are validated against the command catalog
// before the job is written, so an unsupported command never reaches an agent.
func NewHostCommandHandler(s CommandStore, d CommandDispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			HostID string         `json:"host_id"`
			Op     string         `json:"op"`
			Args   map[string]any `json:"args"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		hostID, err := uuid.Parse(req.HostID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_HOST_ID", "Invalid host_id format", nil)
			return
		}

		if req.Op == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "op is required", nil)
			return
		}
		if err := models.ValidateOpcodeArgs(req.Op, req.Args); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_OPCODE", err.Error(), nil)
			return
		}

		host, err := s.GetHost(r.Context(), hostID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "HOST_NOT_FOUND", "Host not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to look up host", nil)
			return
		}

		job, err := d.CreateAgentCommand(r.Context(), host, req.Op, req.Args)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusConflict, "NO_AGENT", "Host has no live agent", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create job", nil)
			return
		}

		response.Accepted(w, job)
	}
}

// NewRatCommandHandler returns an http.HandlerFunc for POST /api/v1/commands/rat.
func NewRatCommandHandler(s CommandStore, d CommandDispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			RatID      string         `json:"rat_id"`
			Function   string         `json:"function"`
			Parameters map[string]any `json:"parameters"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		ratID, err := uuid.Parse(req.RatID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_RAT_ID", "Invalid rat_id format", nil)
			return
		}

		if req.Function == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "function is required", nil)
			return
		}

		rat, err := s.GetRat(r.Context(), ratID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "RAT_NOT_FOUND", "Rat not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to look up rat", nil)
			return
		}

		if !rat.Active {
			response.Error(w, http.StatusGone, "RAT_INACTIVE", "Rat is no longer active", nil)
			return
		}

		job, err := d.CreateRatCommand(r.Context(), rat, req.Function, req.Parameters)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "HOST_NOT_FOUND", "Rat host not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create job", nil)
			return
		}

		response.Accepted(w, job)
	}
}
