package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/noperle/bsides-ldn-2019/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid job status transition")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error

	CreateDomain(ctx context.Context, domain *models.Domain) error
	CreateNetwork(ctx context.Context, network *models.Network) error
	AddHostToNetwork(ctx context.Context, networkID uuid.UUID, hostID uuid.UUID) error
	ListNetworkHosts(ctx context.Context, networkID uuid.UUID) ([]*models.Host, error)

	UpsertHost(ctx context.Context, host *models.Host) (*models.Host, error)
	GetHost(ctx context.Context, id uuid.UUID) (*models.Host, error)
	ListHosts(ctx context.Context) ([]*models.Host, error)

	CreateAgent(ctx context.Context, agent *models.Agent) error
	GetAgent(ctx context.Context, id uuid.UUID) (*models.Agent, error)
	GetAgentHost(ctx context.Context, agentID uuid.UUID) (*models.Host, error)
	GetHostAgent(ctx context.Context, hostID uuid.UUID) (*models.Agent, error)
	TouchAgent(ctx context.Context, id uuid.UUID) error

	CreateRat(ctx context.Context, rat *models.Rat) error
	GetRat(ctx context.Context, id uuid.UUID) (*models.Rat, error)
	ListRats(ctx context.Context, activeOnly bool) ([]*models.Rat, error)

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	RefreshJob(ctx context.Context, id uuid.UUID) (models.JobStatus, models.Action, error)
	UpdateJobResult(ctx context.Context, id uuid.UUID, status models.JobStatus, patch models.Action) error
	ClaimJobs(ctx context.Context, agentID uuid.UUID) ([]*models.Job, error)
	DeleteJob(ctx context.Context, id uuid.UUID) error
}
