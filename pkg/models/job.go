// Package models contains shared data models used across the server codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a Job.
type JobStatus string

const (
	// JobStatusCreated means the job is persisted but not yet picked up by its agent.
	JobStatusCreated JobStatus = "created"
	// JobStatusPending means the agent has claimed the job and is executing it.
	JobStatusPending JobStatus = "pending"
	// JobStatusSuccess means the agent completed the job and reported a result.
	JobStatusSuccess JobStatus = "success"
	// JobStatusFailed means the agent (or the server on its behalf) reported a failure.
	JobStatusFailed JobStatus = "failed"
)

// Terminal reports whether no further status transitions can occur.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailed
}

// Valid reports whether s is one of the known job statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusCreated, JobStatusPending, JobStatusSuccess, JobStatusFailed:
		return true
	}
	return false
}

// Job is a unit of work dispatched to a remote agent. The action document
// carries the command at creation time; on completion the agent's report is
// merged into it (result on success, error/exception on failure). A job is
// mutated exactly once after dispatch, to reach a terminal status, and is
// never resurrected afterwards.
type Job struct {
	ID          uuid.UUID  `db:"id"           json:"id"`
	NetworkID   *uuid.UUID `db:"network_id"   json:"network_id,omitempty"`
	AgentID     uuid.UUID  `db:"agent_id"     json:"agent_id"`
	Action      Action     `db:"action"       json:"action"`
	Status      JobStatus  `db:"status"       json:"status"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at"   json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"   json:"updated_at"`
}
