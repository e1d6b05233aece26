package models

import (
	"time"

	"github.com/google/uuid"
)

// Agent is a deployed implant process that polls the server for jobs.
// A host can run more than one agent; the earliest-registered live agent
// is the host's primary one for command delivery.
type Agent struct {
	ID        uuid.UUID  `db:"id"         json:"id"`
	HostID    uuid.UUID  `db:"host_id"    json:"host_id"`
	Alive     bool       `db:"alive"      json:"alive"`
	CheckIn   *time.Time `db:"check_in"   json:"check_in,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}
