// Package dispatch coordinates job delivery between operators and deployed
// agents. It creates jobs, blocks operator requests until an agent commits a
// terminal result, and classifies failures into typed errors.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/noperle/bsides-ldn-2019/internal/cache"
	"github.com/noperle/bsides-ldn-2019/internal/store"
	"github.com/noperle/bsides-ldn-2019/pkg/models"
)

// DefaultPollInterval bounds how long a waiter sleeps before falling back to
// an authoritative store read when no wakeup arrives. The fallback keeps
// waits live across a missed notification; reaching it is not an error.
const DefaultPollInterval = 10 * time.Second

// Dispatcher owns the job lifecycle: creation, agent hand-off, completion,
// and the rendezvous that parks operator requests until a terminal state.
type Dispatcher struct {
	store        store.Store
	cache        cache.Cache
	registry     *Registry
	pollInterval time.Duration
	statusTTL    time.Duration
}

// New creates a Dispatcher. A non-positive pollInterval falls back to
// DefaultPollInterval.
func New(st store.Store, ca cache.Cache, reg *Registry, pollInterval, statusTTL time.Duration) *Dispatcher {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Dispatcher{
		store:        st,
		cache:        ca,
		registry:     reg,
		pollInterval: pollInterval,
		statusTTL:    statusTTL,
	}
}

// CreateRatCommand persists a job calling function on the rat and returns it.
// The invocation addresses the rat by its host's name and numeric rat name.
func (d *Dispatcher) CreateRatCommand(ctx context.Context, rat *models.Rat, function string, params map[string]any) (*models.Job, error) {
	host, err := d.store.GetHost(ctx, rat.HostID)
	if err != nil {
		return nil, fmt.Errorf("resolving rat host: %w", err)
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:        uuid.New(),
		AgentID:   rat.AgentID,
		Action:    models.NewRatAction(host.Hostname, rat.Name, function, params),
		Status:    models.JobStatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := d.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}

	_ = d.cache.SetJobStatus(ctx, job.ID, job.Status, d.statusTTL)

	return job, nil
}

// CreateAgentCommand persists a job running op with args on the host's
// primary agent.
func (d *Dispatcher) CreateAgentCommand(ctx context.Context, host *models.Host, op string, args map[string]any) (*models.Job, error) {
	agent, err := d.store.GetHostAgent(ctx, host.ID)
	if err != nil {
		return nil, fmt.Errorf("resolving host agent: %w", err)
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:        uuid.New(),
		AgentID:   agent.ID,
		Action:    models.NewCommandAction(op, args),
		Status:    models.JobStatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := d.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}

	_ = d.cache.SetJobStatus(ctx, job.ID, job.Status, d.statusTTL)

	return job, nil
}

// Wait blocks until the job reaches a terminal state, refreshing the job's
// Status and Action in place from the store. It returns nil for success and
// a classified *JobError for failure; ctx cancellation aborts the wait with
// ctx.Err().
//
// The loop wakes on the job's signal or after the poll interval, whichever
// comes first, and always re-reads the store before deciding. The signal is
// cleared only after a wake-up found the job still in flight, so a
// notification landing between the read and the clear is re-observed on the
// next pass rather than dropped.
func (d *Dispatcher) Wait(ctx context.Context, job *models.Job) error {
	if job.Status.Terminal() {
		return terminalOutcome(job)
	}

	sig := d.registry.Signal(job.ID)
	for {
		sig.Wait(ctx, d.pollInterval)
		if err := ctx.Err(); err != nil {
			return err
		}

		status, action, err := d.store.RefreshJob(ctx, job.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// The job was deleted after we subscribed; drop the
				// re-created signal entry along with it.
				d.registry.Forget(job.ID)
			}
			return fmt.Errorf("refreshing job %s: %w", job.ID, err)
		}
		job.Status = status
		job.Action = action

		if status.Terminal() {
			return terminalOutcome(job)
		}
		sig.Clear()
	}
}

func terminalOutcome(job *models.Job) error {
	if job.Status == models.JobStatusSuccess {
		return nil
	}
	return classifyFailure(job)
}

// applyOutcome feeds a successful job's result to set. In-flight and failed
// jobs leave the view untouched; any other status is rejected.
func applyOutcome(job *models.Job, set func(any)) error {
	switch job.Status {
	case models.JobStatusSuccess:
		if result, ok := job.Action.Result(); ok {
			set(result)
		}
		return nil
	case models.JobStatusCreated, models.JobStatusPending, models.JobStatusFailed:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStatus, job.Status)
	}
}

// HostCommandResult builds the operator-facing view of an agent command job.
func (d *Dispatcher) HostCommandResult(ctx context.Context, job *models.Job) (*models.HostCommand, error) {
	host, err := d.store.GetAgentHost(ctx, job.AgentID)
	if err != nil {
		return nil, fmt.Errorf("resolving job host: %w", err)
	}

	cmd := &models.HostCommand{Host: host, Status: job.Status}
	if line, ok := job.Action.ExecuteCommandLine(); ok {
		cmd.CommandLine = line
	}
	if err := applyOutcome(job, func(result any) {
		if text, ok := result.(string); ok {
			cmd.Output = text
		}
	}); err != nil {
		return nil, err
	}
	return cmd, nil
}

// RatResult builds the operator-facing view of a rat function call. Jobs
// whose action carries no rat invocation are rejected with ErrNotRatJob.
func (d *Dispatcher) RatResult(ctx context.Context, job *models.Job) (*models.RatCommand, error) {
	inv, ok := job.Action.Rats()
	if !ok {
		return nil, ErrNotRatJob
	}

	agent, err := d.store.GetAgent(ctx, job.AgentID)
	if err != nil {
		return nil, fmt.Errorf("resolving job agent: %w", err)
	}
	host, err := d.store.GetAgentHost(ctx, job.AgentID)
	if err != nil {
		return nil, fmt.Errorf("resolving job host: %w", err)
	}

	cmd := &models.RatCommand{
		Agent:      agent,
		Host:       host,
		Status:     job.Status,
		Function:   inv.Function,
		Parameters: inv.Parameters,
	}
	if err := applyOutcome(job, func(result any) {
		if outputs, ok := result.(map[string]any); ok {
			cmd.Outputs = outputs
		}
	}); err != nil {
		return nil, err
	}
	return cmd, nil
}

// CompleteJob commits a status transition plus action patch, mirrors the new
// status, then wakes any waiter. The notify always follows the store commit
// so a released waiter re-reads the committed state.
func (d *Dispatcher) CompleteJob(ctx context.Context, jobID uuid.UUID, status models.JobStatus, patch models.Action) error {
	if err := d.store.UpdateJobResult(ctx, jobID, status, patch); err != nil {
		return err
	}

	_ = d.cache.SetJobStatus(ctx, jobID, status, d.statusTTL)

	d.registry.Notify(jobID)
	return nil
}

// ClaimJobs marks the agent checked in and hands over its queued jobs,
// oldest first.
func (d *Dispatcher) ClaimJobs(ctx context.Context, agentID uuid.UUID) ([]*models.Job, error) {
	if err := d.store.TouchAgent(ctx, agentID); err != nil {
		return nil, fmt.Errorf("touching agent: %w", err)
	}

	jobs, err := d.store.ClaimJobs(ctx, agentID)
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		_ = d.cache.SetJobStatus(ctx, job.ID, job.Status, d.statusTTL)
	}
	return jobs, nil
}

// DeleteJob removes a job everywhere: store row, cached status, wakeup
// signal. A waiter still parked on the job is released and observes the
// missing row on its re-read.
func (d *Dispatcher) DeleteJob(ctx context.Context, jobID uuid.UUID) error {
	if err := d.store.DeleteJob(ctx, jobID); err != nil {
		return err
	}

	_ = d.cache.DeleteJobStatus(ctx, jobID)

	d.registry.Forget(jobID)
	return nil
}
