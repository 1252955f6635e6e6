package domain

import "time"

// Policy is an organization-level Rego module that replaces the built-in authorization policy for that
// organization. Rules must declare package orderdesk.authz.
type Policy struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"organization_id"`
	Rules     string    `json:"rules"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}
