package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/noperle/bsides-ldn-2019/internal/api/response"
	"github.com/noperle/bsides-ldn-2019/internal/store"
	"github.com/noperle/bsides-ldn-2019/pkg/models"
)

// RatStore defines the store operations the rat handlers depend on.
type RatStore interface {
	GetAgent(ctx context.Context, id uuid.UUID) (*models.Agent, error)
	CreateRat(ctx context.Context, rat *models.Rat) error
	ListRats(ctx context.Context, activeOnly bool) ([]*models.Rat, error)
}

// NewRegisterRatHandler returns an http.HandlerFunc for POST /api/v1/rats/register.
// Rats are reported by the agent that spawned them and inherit its host.
func NewRegisterRatHandler(s RatStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AgentID    string `json:"agent_id"`
			Name       int    `json:"name"`
			Elevated   bool   `json:"elevated"`
			Executable string `json:"executable"`
			Username   string `json:"username"`
			Mode       string `json:"mode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		agentID, err := uuid.Parse(req.AgentID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_AGENT_ID", "Invalid agent_id format", nil)
			return
		}

		agent, err := s.GetAgent(r.Context(), agentID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "AGENT_NOT_FOUND", "Agent not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to look up agent", nil)
			return
		}

		now := time.Now().UTC()
		rat := &models.Rat{
			ID:         uuid.New(),
			AgentID:    agent.ID,
			HostID:     agent.HostID,
			Name:       req.Name,
			Elevated:   req.Elevated,
			Executable: req.Executable,
			Username:   req.Username,
			Mode:       req.Mode,
			Active:     true,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.CreateRat(r.Context(), rat); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to register rat", nil)
			return
		}

		response.Created(w, rat)
	}
}

// NewListRatsHandler returns an http.HandlerFunc for GET /api/v1/rats.
// Pass ?active=true to exclude rats that have been killed.
func NewListRatsHandler(s RatStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activeOnly := r.URL.Query().Get("active") == "true"

		rats, err := s.ListRats(r.Context(), activeOnly)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list rats", nil)
			return
		}

		if rats == nil {
			rats = []*models.Rat{}
		}
		response.JSON(w, rats)
	}
}
