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
	"github.com/noperle/bsides-ldn-2019/internal/store"
	"github.com/noperle/bsides-ldn-2019/pkg/models"
)

// AgentStore defines the store operations the agent registration handler
// depends on.
type AgentStore interface {
	UpsertHost(ctx context.Context, host *models.Host) (*models.Host, error)
	CreateAgent(ctx context.Context, agent *models.Agent) error
}

// JobClaimer touches an agent's check-in time and hands it the jobs queued
// for it, oldest first.
type JobClaimer interface {
	ClaimJobs(ctx context.Context, agentID uuid.UUID) ([]*models.Job, error)
}

// NewRegisterAgentHandler returns an http.HandlerFunc for POST /api/v1/agents/register.
// Registration is an upsert: re-registering a known fqdn reuses the host row
// and only fills in fields the host did not already have.
func NewRegisterAgentHandler(s AgentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			FQDN     string `json:"fqdn"`
			Hostname string `json:"hostname"`
			IP       string `json:"ip"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.FQDN == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "fqdn is required", nil)
			return
		}

		hostname := req.Hostname
		if hostname == "" {
			hostname = models.HostnameFromFQDN(req.FQDN)
		}

		now := time.Now().UTC()
		host, err := s.UpsertHost(r.Context(), &models.Host{
			ID:        uuid.New(),
			FQDN:      req.FQDN,
			Hostname:  hostname,
			IP:        req.IP,
			Status:    "active",
			LastSeen:  &now,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to register host", nil)
			return
		}

		agent := &models.Agent{
			ID:        uuid.New(),
			HostID:    host.ID,
			Alive:     true,
			CheckIn:   &now,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.CreateAgent(r.Context(), agent); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to register agent", nil)
			return
		}

		response.Created(w, map[string]any{
			"agent": agent,
			"host":  host,
		})
	}
}

// NewCheckinHandler returns an http.HandlerFunc for POST /api/v1/agents/{agentID}/checkin.
// A check-in marks the agent alive and atomically claims its created jobs;
// each claimed job moves to pending before it is returned.
func NewCheckinHandler(d JobClaimer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID, err := uuid.Parse(chi.URLParam(r, "agentID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_AGENT_ID", "Invalid agent ID", nil)
			return
		}

		jobs, err := d.ClaimJobs(r.Context(), agentID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "AGENT_NOT_FOUND", "Agent not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to claim jobs", nil)
			return
		}

		if jobs == nil {
			jobs = []*models.Job{}
		}
		response.JSON(w, map[string]any{"jobs": jobs})
	}
}
