package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/noperle/bsides-ldn-2019/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Domains & Networks ---

func (s *PostgresStore) CreateDomain(ctx context.Context, domain *models.Domain) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO domains (id, windows_domain, dns_domain, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		domain.ID, domain.WindowsDomain, domain.DNSDomain, domain.CreatedAt, domain.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create domain: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateNetwork(ctx context.Context, network *models.Network) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO networks (id, name, domain_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		network.ID, network.Name, network.DomainID, network.CreatedAt, network.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create network: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddHostToNetwork(ctx context.Context, networkID uuid.UUID, hostID uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO network_hosts (network_id, host_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`, networkID, hostID)
	if err != nil {
		return fmt.Errorf("add host to network: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListNetworkHosts(ctx context.Context, networkID uuid.UUID) ([]*models.Host, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT h.id, h.fqdn, h.hostname, h.ip, h.status, h.domain_id, h.last_seen, h.created_at, h.updated_at
		 FROM hosts h JOIN network_hosts nh ON nh.host_id = h.id
		 WHERE nh.network_id = $1 ORDER BY h.fqdn`, networkID)
	if err != nil {
		return nil, fmt.Errorf("list network hosts: %w", err)
	}
	defer rows.Close()
	return scanHosts(rows)
}

// --- Hosts ---

// UpsertHost inserts a host keyed by FQDN, or refreshes the existing row.
// Empty incoming fields never clobber previously observed values.
func (s *PostgresStore) UpsertHost(ctx context.Context, host *models.Host) (*models.Host, error) {
	var h models.Host
	err := s.pool.QueryRow(ctx,
		`INSERT INTO hosts (id, fqdn, hostname, ip, status, domain_id, last_seen, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (fqdn) DO UPDATE SET
		   hostname   = COALESCE(NULLIF(EXCLUDED.hostname, ''), hosts.hostname),
		   ip         = COALESCE(NULLIF(EXCLUDED.ip, ''), hosts.ip),
		   status     = COALESCE(NULLIF(EXCLUDED.status, ''), hosts.status),
		   domain_id  = COALESCE(EXCLUDED.domain_id, hosts.domain_id),
		   last_seen  = COALESCE(EXCLUDED.last_seen, hosts.last_seen),
		   updated_at = NOW()
		 RETURNING id, fqdn, hostname, ip, status, domain_id, last_seen, created_at, updated_at`,
		host.ID, host.FQDN, host.Hostname, host.IP, host.Status, host.DomainID,
		host.LastSeen, host.CreatedAt, host.UpdatedAt,
	).Scan(&h.ID, &h.FQDN, &h.Hostname, &h.IP, &h.Status, &h.DomainID,
		&h.LastSeen, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert host: %w", err)
	}
	return &h, nil
}

func (s *PostgresStore) GetHost(ctx context.Context, id uuid.UUID) (*models.Host, error) {
	var h models.Host
	err := s.pool.QueryRow(ctx,
		`SELECT id, fqdn, hostname, ip, status, domain_id, last_seen, created_at, updated_at
		 FROM hosts WHERE id = $1`, id,
	).Scan(&h.ID, &h.FQDN, &h.Hostname, &h.IP, &h.Status, &h.DomainID,
		&h.LastSeen, &h.CreatedAt, &h.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get host: %w", err)
	}
	return &h, nil
}

func (s *PostgresStore) ListHosts(ctx context.Context) ([]*models.Host, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, fqdn, hostname, ip, status, domain_id, last_seen, created_at, updated_at
		 FROM hosts ORDER BY fqdn`)
	if err != nil {
		return nil, fmt.Errorf("list hosts: %w", err)
	}
	defer rows.Close()
	return scanHosts(rows)
}

func scanHosts(rows pgx.Rows) ([]*models.Host, error) {
	var hosts []*models.Host
	for rows.Next() {
		var h models.Host
		if err := rows.Scan(&h.ID, &h.FQDN, &h.Hostname, &h.IP, &h.Status, &h.DomainID,
			&h.LastSeen, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan host: %w", err)
		}
		hosts = append(hosts, &h)
	}
	return hosts, rows.Err()
}

// --- Agents ---

func (s *PostgresStore) CreateAgent(ctx context.Context, agent *models.Agent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO agents (id, host_id, alive, check_in, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		agent.ID, agent.HostID, agent.Alive, agent.CheckIn, agent.CreatedAt, agent.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAgent(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	var a models.Agent
	err := s.pool.QueryRow(ctx,
		`SELECT id, host_id, alive, check_in, created_at, updated_at
		 FROM agents WHERE id = $1`, id,
	).Scan(&a.ID, &a.HostID, &a.Alive, &a.CheckIn, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return &a, nil
}

func (s *PostgresStore) GetAgentHost(ctx context.Context, agentID uuid.UUID) (*models.Host, error) {
	var h models.Host
	err := s.pool.QueryRow(ctx,
		`SELECT h.id, h.fqdn, h.hostname, h.ip, h.status, h.domain_id, h.last_seen, h.created_at, h.updated_at
		 FROM hosts h JOIN agents a ON a.host_id = h.id WHERE a.id = $1`, agentID,
	).Scan(&h.ID, &h.FQDN, &h.Hostname, &h.IP, &h.Status, &h.DomainID,
		&h.LastSeen, &h.CreatedAt, &h.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agent host: %w", err)
	}
	return &h, nil
}

// GetHostAgent returns the host's primary agent: the earliest-registered one
// still marked alive.
func (s *PostgresStore) GetHostAgent(ctx context.Context, hostID uuid.UUID) (*models.Agent, error) {
	var a models.Agent
	err := s.pool.QueryRow(ctx,
		`SELECT id, host_id, alive, check_in, created_at, updated_at
		 FROM agents WHERE host_id = $1 AND alive = true
		 ORDER BY created_at ASC LIMIT 1`, hostID,
	).Scan(&a.ID, &a.HostID, &a.Alive, &a.CheckIn, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get host agent: %w", err)
	}
	return &a, nil
}

func (s *PostgresStore) TouchAgent(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agents SET check_in = NOW(), alive = true, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Rats ---

func (s *PostgresStore) CreateRat(ctx context.Context, rat *models.Rat) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO rats (id, agent_id, host_id, name, elevated, executable, username, mode, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rat.ID, rat.AgentID, rat.HostID, rat.Name, rat.Elevated, rat.Executable,
		rat.Username, rat.Mode, rat.Active, rat.CreatedAt, rat.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create rat: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRat(ctx context.Context, id uuid.UUID) (*models.Rat, error) {
	var r models.Rat
	err := s.pool.QueryRow(ctx,
		`SELECT id, agent_id, host_id, name, elevated, executable, username, mode, active, created_at, updated_at
		 FROM rats WHERE id = $1`, id,
	).Scan(&r.ID, &r.AgentID, &r.HostID, &r.Name, &r.Elevated, &r.Executable,
		&r.Username, &r.Mode, &r.Active, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rat: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) ListRats(ctx context.Context, activeOnly bool) ([]*models.Rat, error) {
	query := `SELECT id, agent_id, host_id, name, elevated, executable, username, mode, active, created_at, updated_at
	 FROM rats ORDER BY created_at ASC`
	if activeOnly {
		query = `SELECT id, agent_id, host_id, name, elevated, executable, username, mode, active, created_at, updated_at
		 FROM rats WHERE active = true ORDER BY created_at ASC`
	}
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list rats: %w", err)
	}
	defer rows.Close()

	var rats []*models.Rat
	for rows.Next() {
		var r models.Rat
		if err := rows.Scan(&r.ID, &r.AgentID, &r.HostID, &r.Name, &r.Elevated, &r.Executable,
			&r.Username, &r.Mode, &r.Active, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan rat: %w", err)
		}
		rats = append(rats, &r)
	}
	return rats, rows.Err()
}

// --- Jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, network_id, agent_id, action, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.NetworkID, job.AgentID, job.Action, job.Status, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var j models.Job
	err := s.pool.QueryRow(ctx,
		`SELECT id, network_id, agent_id, action, status, completed_at, created_at, updated_at
		 FROM jobs WHERE id = $1`, id,
	).Scan(&j.ID, &j.NetworkID, &j.AgentID, &j.Action, &j.Status,
		&j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

// RefreshJob re-reads the authoritative status and action for a job.
func (s *PostgresStore) RefreshJob(ctx context.Context, id uuid.UUID) (models.JobStatus, models.Action, error) {
	var status models.JobStatus
	var action models.Action
	err := s.pool.QueryRow(ctx,
		`SELECT status, action FROM jobs WHERE id = $1`, id,
	).Scan(&status, &action)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil, ErrNotFound
	}
	if err != nil {
		return "", nil, fmt.Errorf("refresh job: %w", err)
	}
	return status, action, nil
}

var validTransitions = map[models.JobStatus][]models.JobStatus{
	models.JobStatusCreated: {models.JobStatusPending, models.JobStatusSuccess, models.JobStatusFailed},
	models.JobStatusPending: {models.JobStatusSuccess, models.JobStatusFailed},
}

// UpdateJobResult transitions a job's status and merges patch into its action
// document. Terminal states are immutable; completed_at is stamped on entry
// into one.
func (s *PostgresStore) UpdateJobResult(ctx context.Context, id uuid.UUID, status models.JobStatus, patch models.Action) error {
	// Fetch current status
	var currentStatus models.JobStatus
	err := s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&currentStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}

	// Validate transition
	allowed := validTransitions[currentStatus]
	valid := false
	for _, a := range allowed {
		if a == status {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, currentStatus, status)
	}

	if patch == nil {
		patch = models.Action{}
	}

	// The update is guarded on the status we validated against, so two
	// racing reports cannot both commit: the loser matches zero rows.
	now := time.Now().UTC()
	var tag pgconn.CommandTag
	if status.Terminal() {
		tag, err = s.pool.Exec(ctx,
			`UPDATE jobs SET status = $2, action = action || $3, completed_at = $4, updated_at = $4
			 WHERE id = $1 AND status = $5`,
			id, status, patch, now, currentStatus)
	} else {
		tag, err = s.pool.Exec(ctx,
			`UPDATE jobs SET status = $2, action = action || $3, updated_at = $4
			 WHERE id = $1 AND status = $5`,
			id, status, patch, now, currentStatus)
	}
	if err != nil {
		return fmt.Errorf("update job result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, currentStatus, status)
	}
	return nil
}

// ClaimJobs atomically flips an agent's created jobs to pending and returns
// them oldest first. SKIP LOCKED keeps concurrent check-ins from double
// delivering a job.
func (s *PostgresStore) ClaimJobs(ctx context.Context, agentID uuid.UUID) ([]*models.Job, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE jobs SET status = 'pending', updated_at = NOW()
		 WHERE id IN (
		   SELECT id FROM jobs WHERE agent_id = $1 AND status = 'created'
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, network_id, agent_id, action, status, completed_at, created_at, updated_at`,
		agentID)
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		var j models.Job
		if err := rows.Scan(&j.ID, &j.NetworkID, &j.AgentID, &j.Action, &j.Status,
			&j.CompletedAt, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, &j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].CreatedAt.Before(jobs[k].CreatedAt) })
	return jobs, nil
}

func (s *PostgresStore) DeleteJob(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
