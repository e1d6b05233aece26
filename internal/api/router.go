package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/noperle/bsides-ldn-2019/internal/api/middleware"
	"github.com/noperle/bsides-ldn-2019/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	RegisterAgentHandler http.HandlerFunc
	CheckinHandler       http.HandlerFunc
	RegisterRatHandler   http.HandlerFunc
	JobResultHandler     http.HandlerFunc

	HostCommandHandler http.HandlerFunc
	RatCommandHandler  http.HandlerFunc
	GetJobHandler      http.HandlerFunc
	WaitJobHandler     http.HandlerFunc
	DeleteJobHandler   http.HandlerFunc
	ListHostsHandler   http.HandlerFunc
	ListRatsHandler    http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)

		// Agent check-in surface. Never rate limited: a throttled agent
		// cannot claim or report jobs, which stalls every waiting operator.
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("agent"))

			r.Post("/api/v1/agents/register", orNotImplemented(deps.RegisterAgentHandler))
			r.Post("/api/v1/agents/{agentID}/checkin", orNotImplemented(deps.CheckinHandler))
			r.Post("/api/v1/rats/register", orNotImplemented(deps.RegisterRatHandler))
			r.Post("/api/v1/jobs/{jobID}/result", orNotImplemented(deps.JobResultHandler))
		})

		// Operator surface
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimit.Limit)
			r.Use(deps.Auth.RequireScope("operator"))

			r.Post("/api/v1/commands/host", orNotImplemented(deps.HostCommandHandler))
			r.Post("/api/v1/commands/rat", orNotImplemented(deps.RatCommandHandler))

			r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.GetJobHandler))
			r.Get("/api/v1/jobs/{jobID}/wait", orNotImplemented(deps.WaitJobHandler))
			r.Delete("/api/v1/jobs/{jobID}", orNotImplemented(deps.DeleteJobHandler))

			r.Get("/api/v1/hosts", orNotImplemented(deps.ListHostsHandler))
			r.Get("/api/v1/rats", orNotImplemented(deps.ListRatsHandler))
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimit.Limit)
			r.Use(deps.Auth.RequireScope("admin"))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
