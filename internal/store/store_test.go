package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/noperle/bsides-ldn-2019/internal/store"
	"github.com/noperle/bsides-ldn-2019/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool + cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("adversary_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Run migrations
	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

// seedHostAgent registers a host with one agent and returns both.
func seedHostAgent(t *testing.T, s store.Store) (*models.Host, *models.Agent) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	host, err := s.UpsertHost(ctx, &models.Host{
		ID:        uuid.New(),
		FQDN:      "ws-" + uuid.NewString()[:8] + ".corp.example.com",
		Hostname:  "ws-" + uuid.NewString()[:8],
		IP:        "10.0.0.4",
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)

	agent := &models.Agent{
		ID:        uuid.New(),
		HostID:    host.ID,
		Alive:     true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.CreateAgent(ctx, agent))
	return host, agent
}

// seedJob creates a job for the agent with the given action and status.
func seedJob(t *testing.T, s store.Store, agentID uuid.UUID, action models.Action, status models.JobStatus) *models.Job {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	job := &models.Job{
		ID:        uuid.New(),
		AgentID:   agentID,
		Action:    action,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.CreateJob(context.Background(), job))
	return job
}

// --- API Key Tests ---

func TestAPIKey_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	key := &models.APIKey{
		ID:        uuid.New(),
		Name:      "test-key",
		KeyHash:   "bcrypt-hash-here",
		KeyPrefix: "adv_abcd",
		Scopes:    []string{"operator"},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.CreateAPIKey(ctx, key)
	require.NoError(t, err)

	// Get by prefix
	keys, err := s.GetAPIKeyByPrefix(ctx, "adv_abcd")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, key.ID, keys[0].ID)
	assert.Equal(t, "test-key", keys[0].Name)
	assert.Equal(t, []string{"operator"}, keys[0].Scopes)
}

func TestAPIKey_List(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	for i := 0; i < 3; i++ {
		err := s.CreateAPIKey(ctx, &models.APIKey{
			ID:        uuid.New(),
			Name:      "key-" + uuid.NewString()[:4],
			KeyHash:   "hash-" + uuid.NewString()[:4],
			KeyPrefix: "adv_" + uuid.NewString()[:4],
			Scopes:    []string{"agent"},
			CreatedAt: now,
			UpdatedAt: now,
		})
		require.NoError(t, err)
	}

	keys, err := s.ListAPIKeys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 3)
}

func TestAPIKey_Revoke(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	key := &models.APIKey{
		ID:        uuid.New(),
		Name:      "revoke-me",
		KeyHash:   "hash",
		KeyPrefix: "adv_revk",
		Scopes:    []string{"operator"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))

	// Revoke
	err := s.RevokeAPIKey(ctx, key.ID)
	require.NoError(t, err)

	// Should not appear in list or prefix lookup
	keys, err := s.ListAPIKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	keys, err = s.GetAPIKeyByPrefix(ctx, "adv_revk")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestAPIKey_RevokeNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	err := s.RevokeAPIKey(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAPIKey_UpdateLastUsed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	key := &models.APIKey{
		ID:        uuid.New(),
		Name:      "usage-key",
		KeyHash:   "hash",
		KeyPrefix: "adv_used",
		Scopes:    []string{"agent"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))

	err := s.UpdateAPIKeyLastUsed(ctx, key.ID)
	require.NoError(t, err)

	keys, err := s.GetAPIKeyByPrefix(ctx, "adv_used")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.NotNil(t, keys[0].LastUsedAt)
}

func TestAPIKey_DuplicateName(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	key := &models.APIKey{
		ID: uuid.New(), Name: "red-team-1", KeyHash: "h1", KeyPrefix: "adv_nam1",
		Scopes: []string{"operator"}, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))

	err := s.CreateAPIKey(ctx, &models.APIKey{
		ID: uuid.New(), Name: "red-team-1", KeyHash: "h2", KeyPrefix: "adv_nam2",
		Scopes: []string{"operator"}, CreatedAt: now, UpdatedAt: now,
	})
	assert.ErrorIs(t, err, store.ErrDuplicateKey)

	// Revoking frees the name for reuse.
	require.NoError(t, s.RevokeAPIKey(ctx, key.ID))
	err = s.CreateAPIKey(ctx, &models.APIKey{
		ID: uuid.New(), Name: "red-team-1", KeyHash: "h3", KeyPrefix: "adv_nam3",
		Scopes: []string{"operator"}, CreatedAt: now, UpdatedAt: now,
	})
	assert.NoError(t, err)
}

func TestAPIKey_DuplicateID(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	id := uuid.New()
	key := &models.APIKey{
		ID: id, Name: "dup1", KeyHash: "h1", KeyPrefix: "adv_dup1",
		Scopes: []string{"agent"}, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))

	key2 := &models.APIKey{
		ID: id, Name: "dup2", KeyHash: "h2", KeyPrefix: "adv_dup2",
		Scopes: []string{"agent"}, CreatedAt: now, UpdatedAt: now,
	}
	err := s.CreateAPIKey(ctx, key2)
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

// --- Host Tests ---

func TestHost_UpsertInsert(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	host, err := s.UpsertHost(ctx, &models.Host{
		ID:        uuid.New(),
		FQDN:      "dc01.corp.example.com",
		Hostname:  "dc01",
		IP:        "10.0.0.10",
		Status:    "active",
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.Equal(t, "dc01.corp.example.com", host.FQDN)
	assert.Equal(t, "dc01", host.Hostname)

	got, err := s.GetHost(ctx, host.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.10", got.IP)
}

func TestHost_UpsertMerge(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	first, err := s.UpsertHost(ctx, &models.Host{
		ID: uuid.New(), FQDN: "ws07.corp.example.com", Hostname: "ws07",
		IP: "10.0.0.7", CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	// Re-register with the same FQDN but no IP: row is updated in place and
	// the known IP survives.
	seen := now.Add(time.Minute)
	second, err := s.UpsertHost(ctx, &models.Host{
		ID: uuid.New(), FQDN: "ws07.corp.example.com", Hostname: "ws07",
		LastSeen: &seen, CreatedAt: seen, UpdatedAt: seen,
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID) // original ID preserved
	assert.Equal(t, "10.0.0.7", second.IP)
	require.NotNil(t, second.LastSeen)
	assert.Equal(t, seen, second.LastSeen.UTC().Truncate(time.Microsecond))

	hosts, err := s.ListHosts(ctx)
	require.NoError(t, err)
	assert.Len(t, hosts, 1)
}

func TestHost_GetNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.GetHost(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Network Tests ---

func TestNetwork_Membership(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	host, _ := seedHostAgent(t, s)

	network := &models.Network{ID: uuid.New(), Name: "lateral-1", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.CreateNetwork(ctx, network))

	require.NoError(t, s.AddHostToNetwork(ctx, network.ID, host.ID))
	// Adding twice is idempotent
	require.NoError(t, s.AddHostToNetwork(ctx, network.ID, host.ID))

	hosts, err := s.ListNetworkHosts(ctx, network.ID)
	require.NoError(t, err)
	require.Len(t, hosts, 1)
	assert.Equal(t, host.ID, hosts[0].ID)
}

// --- Agent Tests ---

func TestAgent_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	host, agent := seedHostAgent(t, s)

	got, err := s.GetAgent(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, host.ID, got.HostID)
	assert.True(t, got.Alive)
	assert.Nil(t, got.CheckIn)
}

func TestAgent_GetAgentHost(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	host, agent := seedHostAgent(t, s)

	got, err := s.GetAgentHost(context.Background(), agent.ID)
	require.NoError(t, err)
	assert.Equal(t, host.ID, got.ID)
	assert.Equal(t, host.FQDN, got.FQDN)
}

func TestAgent_GetHostAgentPicksEarliest(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	host, first := seedHostAgent(t, s)

	later := time.Now().UTC().Add(time.Hour)
	require.NoError(t, s.CreateAgent(ctx, &models.Agent{
		ID: uuid.New(), HostID: host.ID, Alive: true, CreatedAt: later, UpdatedAt: later,
	}))

	got, err := s.GetHostAgent(ctx, host.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestAgent_GetHostAgentNone(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	host, err := s.UpsertHost(ctx, &models.Host{
		ID: uuid.New(), FQDN: "lonely.corp.example.com", Hostname: "lonely",
		CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	_, err = s.GetHostAgent(ctx, host.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAgent_Touch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	_, agent := seedHostAgent(t, s)

	require.NoError(t, s.TouchAgent(ctx, agent.ID))

	got, err := s.GetAgent(ctx, agent.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.CheckIn)
	assert.True(t, got.Alive)
}

func TestAgent_TouchNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	err := s.TouchAgent(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Rat Tests ---

func TestRat_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	host, agent := seedHostAgent(t, s)

	rat := &models.Rat{
		ID: uuid.New(), AgentID: agent.ID, HostID: host.ID, Name: 7,
		Elevated: true, Executable: "C:\\Windows\\explorer.exe",
		Username: "CORP\\alice", Mode: "active", Active: true,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateRat(ctx, rat))

	got, err := s.GetRat(ctx, rat.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.Name)
	assert.True(t, got.Elevated)
	assert.Equal(t, "CORP\\alice", got.Username)
}

func TestRat_ListActiveOnly(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	host, agent := seedHostAgent(t, s)

	for i, active := range []bool{true, false, true} {
		require.NoError(t, s.CreateRat(ctx, &models.Rat{
			ID: uuid.New(), AgentID: agent.ID, HostID: host.ID, Name: i + 1,
			Active: active, CreatedAt: now, UpdatedAt: now,
		}))
	}

	all, err := s.ListRats(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	active, err := s.ListRats(ctx, true)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

// --- Job Tests ---

func TestJob_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	_, agent := seedHostAgent(t, s)
	action := models.NewCommandAction(models.OpExecute, map[string]any{"command_line": "whoami"})
	job := seedJob(t, s, agent.ID, action, models.JobStatusCreated)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCreated, got.Status)
	assert.Nil(t, got.CompletedAt)

	cmd, ok := got.Action.ExecuteCommandLine()
	require.True(t, ok)
	assert.Equal(t, "whoami", cmd)
}

func TestJob_GetNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.GetJob(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestJob_Refresh(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	_, agent := seedHostAgent(t, s)
	job := seedJob(t, s, agent.ID,
		models.NewCommandAction(models.OpOpenShell, map[string]any{}), models.JobStatusCreated)

	status, action, err := s.RefreshJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCreated, status)
	_, hasOp := action[models.OpOpenShell]
	assert.True(t, hasOp)

	_, _, err = s.RefreshJob(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestJob_UpdateResultSuccess(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	_, agent := seedHostAgent(t, s)
	job := seedJob(t, s, agent.ID,
		models.NewCommandAction(models.OpExecute, map[string]any{"command_line": "hostname"}),
		models.JobStatusPending)

	err := s.UpdateJobResult(ctx, job.ID, models.JobStatusSuccess, models.SuccessPatch("dc01"))
	require.NoError(t, err)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSuccess, got.Status)
	assert.NotNil(t, got.CompletedAt)

	// Patch merged into the action document, original keys intact
	result, ok := got.Action.Result()
	require.True(t, ok)
	assert.Equal(t, "dc01", result)
	cmd, ok := got.Action.ExecuteCommandLine()
	require.True(t, ok)
	assert.Equal(t, "hostname", cmd)
}

func TestJob_UpdateResultFailed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	_, agent := seedHostAgent(t, s)
	job := seedJob(t, s, agent.ID,
		models.NewRatAction("dc01", 3, "keylog", nil), models.JobStatusPending)

	err := s.UpdateJobResult(ctx, job.ID, models.JobStatusFailed,
		models.FailurePatch("agents exception", "access denied"))
	require.NoError(t, err)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, "agents exception", got.Action.ErrorText())
	assert.Equal(t, "access denied", got.Action.Exception())
}

func TestJob_UpdateResultCreatedToPending(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	_, agent := seedHostAgent(t, s)
	job := seedJob(t, s, agent.ID,
		models.NewCommandAction(models.OpReadFile, map[string]any{"file_path": "C:\\flag"}),
		models.JobStatusCreated)

	require.NoError(t, s.UpdateJobResult(ctx, job.ID, models.JobStatusPending, nil))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, got.Status)
	assert.Nil(t, got.CompletedAt)
}

func TestJob_TerminalStatusImmutable(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	_, agent := seedHostAgent(t, s)
	job := seedJob(t, s, agent.ID,
		models.NewCommandAction(models.OpExecute, map[string]any{"command_line": "whoami"}),
		models.JobStatusPending)

	require.NoError(t, s.UpdateJobResult(ctx, job.ID, models.JobStatusSuccess, models.SuccessPatch("x")))

	err := s.UpdateJobResult(ctx, job.ID, models.JobStatusFailed, nil)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	err = s.UpdateJobResult(ctx, job.ID, models.JobStatusPending, nil)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)
}

func TestJob_UpdateResultNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	err := s.UpdateJobResult(context.Background(), uuid.New(), models.JobStatusPending, nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestJob_Claim(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	_, agent := seedHostAgent(t, s)
	_, other := seedHostAgent(t, s)

	older := &models.Job{
		ID: uuid.New(), AgentID: agent.ID,
		Action: models.NewCommandAction(models.OpExecute, map[string]any{"command_line": "first"}),
		Status: models.JobStatusCreated,
		CreatedAt: time.Now().UTC().Add(-time.Minute), UpdatedAt: time.Now().UTC().Add(-time.Minute),
	}
	require.NoError(t, s.CreateJob(ctx, older))
	newer := seedJob(t, s, agent.ID,
		models.NewCommandAction(models.OpExecute, map[string]any{"command_line": "second"}),
		models.JobStatusCreated)
	seedJob(t, s, other.ID,
		models.NewCommandAction(models.OpExecute, map[string]any{"command_line": "other"}),
		models.JobStatusCreated)

	claimed, err := s.ClaimJobs(ctx, agent.ID)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, older.ID, claimed[0].ID)
	assert.Equal(t, newer.ID, claimed[1].ID)
	for _, j := range claimed {
		assert.Equal(t, models.JobStatusPending, j.Status)
	}

	// Already claimed: nothing left
	again, err := s.ClaimJobs(ctx, agent.ID)
	require.NoError(t, err)
	assert.Empty(t, again)

	// The other agent's job is untouched
	theirs, err := s.ClaimJobs(ctx, other.ID)
	require.NoError(t, err)
	assert.Len(t, theirs, 1)
}

func TestJob_Delete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	_, agent := seedHostAgent(t, s)
	job := seedJob(t, s, agent.ID,
		models.NewCommandAction(models.OpOpenShell, map[string]any{}), models.JobStatusCreated)

	require.NoError(t, s.DeleteJob(ctx, job.ID))

	_, err := s.GetJob(ctx, job.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = s.DeleteJob(ctx, job.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Ping Test ---

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	err := s.Ping(context.Background())
	assert.NoError(t, err)
}
