package domain

import "errors"

// Membership links a user profile to an organization with a role and a fully resolved permission snapshot.
// Memberships are embedded in the user profile document.
type Membership struct {
	OrgID       string        `json:"organization_id"`
	Role        Role          `json:"role"`
	Permissions PermissionSet `json:"permissions"`
	IsDefault   bool          `json:"is_default"`
}

// Role names a membership role. Custom roles are allowed; only the fixed ones have presets.
type Role string

const (
	RoleOwner  Role = "Owner"
	RoleAdmin  Role = "Admin"
	RoleStaff  Role = "Staff"
	RoleViewer Role = "Viewer"
)

// ErrDuplicateMembership is returned when a profile would hold two memberships for one organization.
var ErrDuplicateMembership = errors.New("membership for organization already exists")

// Validate validates the membership for persistence. Returns an error describing the first validation failure.
func (m *Membership) Validate() error {
	if m.OrgID == "" {
		return errors.New("organization_id is required")
	}
	if m.Role == "" {
		return errors.New("role is required")
	}
	return nil
}

// IsPreset reports whether r is one of the fixed roles.
func (r Role) IsPreset() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleStaff, RoleViewer:
		return true
	}
	return false
}
