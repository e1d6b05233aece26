package handler

import (
	"context"
	"net/http"

	"github.com/noperle/bsides-ldn-2019/internal/api/response"
	"github.com/noperle/bsides-ldn-2019/pkg/models"
)

// HostStore defines the store operations the host handlers depend on.
type HostStore interface {
	ListHosts(ctx context.Context) ([]*models.Host, error)
}

// NewListHostsHandler returns an http.HandlerFunc for GET /api/v1/hosts.
func NewListHostsHandler(s HostStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hosts, err := s.ListHosts(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list hosts", nil)
			return
		}

		if hosts == nil {
			hosts = []*models.Host{}
		}
		response.JSON(w, hosts)
	}
}
