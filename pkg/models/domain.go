package models

import (
	"time"

	"github.com/google/uuid"
)

// Domain is a Windows domain that hosts belong to.
type Domain struct {
	ID            uuid.UUID `db:"id"             json:"id"`
	WindowsDomain string    `db:"windows_domain" json:"windows_domain"`
	DNSDomain     string    `db:"dns_domain"     json:"dns_domain"`
	CreatedAt     time.Time `db:"created_at"     json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"     json:"updated_at"`
}
