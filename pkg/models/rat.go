package models

import (
	"time"

	"github.com/google/uuid"
)

// Rat is a remote-access process spawned on a host by an agent. Its name is
// the numeric identifier implants report; function calls are addressed to a
// rat by hostname and name.
type Rat struct {
	ID         uuid.UUID `db:"id"         json:"id"`
	AgentID    uuid.UUID `db:"agent_id"   json:"agent_id"`
	HostID     uuid.UUID `db:"host_id"    json:"host_id"`
	Name       int       `db:"name"       json:"name"`
	Elevated   bool      `db:"elevated"   json:"elevated"`
	Executable string    `db:"executable" json:"executable,omitempty"`
	Username   string    `db:"username"   json:"username,omitempty"`
	Mode       string    `db:"mode"       json:"mode,omitempty"`
	Active     bool      `db:"active"     json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}
