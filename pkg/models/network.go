package models

import (
	"time"

	"github.com/google/uuid"
)

// Network is an operator-defined grouping of hosts targeted together
// during an operation.
type Network struct {
	ID        uuid.UUID  `db:"id"         json:"id"`
	Name      string     `db:"name"       json:"name"`
	DomainID  *uuid.UUID `db:"domain_id"  json:"domain_id,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}
