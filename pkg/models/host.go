package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Host is a machine observed on a target network. Hosts are keyed by FQDN;
// re-registering an existing FQDN updates the row in place.
type Host struct {
	ID        uuid.UUID  `db:"id"        json:"id"`
	FQDN      string     `db:"fqdn"      json:"fqdn"`
	Hostname  string     `db:"hostname"  json:"hostname"`
	IP        string     `db:"ip"        json:"ip,omitempty"`
	Status    string     `db:"status"    json:"status,omitempty"`
	DomainID  *uuid.UUID `db:"domain_id" json:"domain_id,omitempty"`
	LastSeen  *time.Time `db:"last_seen" json:"last_seen,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// HostnameFromFQDN returns the short host name, the label before the first dot.
func HostnameFromFQDN(fqdn string) string {
	if i := strings.IndexByte(fqdn, '.'); i >= 0 {
		return fqdn[:i]
	}
	return fqdn
}
