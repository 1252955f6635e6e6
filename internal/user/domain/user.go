package domain

import (
	"errors"
	"time"

	membership "order-desk/backend/internal/membership/domain"
)

// UserProfile is the per-principal profile document, keyed by subject id.
type UserProfile struct {
	SubjectID            string                  `json:"subject_id"`
	Email                string                  `json:"email"`
	DisplayName          string                  `json:"display_name"`
	Memberships          []membership.Membership `json:"memberships"`
	ActiveOrganizationID string                  `json:"active_organization_id,omitempty"`
	// Revision increments on every membership list write and guards concurrent edits.
	Revision  int64     `json:"revision"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate validates the profile for persistence. Returns an error describing the first validation failure.
func (p *UserProfile) Validate() error {
	if p.SubjectID == "" {
		return errors.New("subject_id is required")
	}
	seen := make(map[string]bool, len(p.Memberships))
	for i := range p.Memberships {
		m := &p.Memberships[i]
		if err := m.Validate(); err != nil {
			return err
		}
		if seen[m.OrgID] {
			return membership.ErrDuplicateMembership
		}
		seen[m.OrgID] = true
	}
	return nil
}

// Membership returns the membership for orgID. The first match wins if the list holds duplicates.
func (p *UserProfile) Membership(orgID string) (membership.Membership, bool) {
	if p == nil || orgID == "" {
		return membership.Membership{}, false
	}
	for _, m := range p.Memberships {
		if m.OrgID == orgID {
			return m, true
		}
	}
	return membership.Membership{}, false
}

// EffectivePermissions returns the permission snapshot of the membership for orgID, or the all-false set.
func (p *UserProfile) EffectivePermissions(orgID string) membership.PermissionSet {
	m, ok := p.Membership(orgID)
	if !ok {
		return membership.PermissionSet{}
	}
	return m.Permissions
}

// HasAccessTo reports whether the profile holds a membership for orgID.
func (p *UserProfile) HasAccessTo(orgID string) bool {
	_, ok := p.Membership(orgID)
	return ok
}

// PickFallbackOrganization returns the first membership's organization id.
func (p *UserProfile) PickFallbackOrganization() (string, bool) {
	return p.PickFallbackOrganizationExcept(nil)
}

// PickFallbackOrganizationExcept returns the first membership's organization id for which skip is false.
func (p *UserProfile) PickFallbackOrganizationExcept(skip func(orgID string) bool) (string, bool) {
	if p == nil {
		return "", false
	}
	for _, m := range p.Memberships {
		if skip != nil && skip(m.OrgID) {
			continue
		}
		return m.OrgID, true
	}
	return "", false
}

// DefaultOrganization returns the first membership marked default, or the first membership.
func (p *UserProfile) DefaultOrganization() (string, bool) {
	if p == nil {
		return "", false
	}
	for _, m := range p.Memberships {
		if m.IsDefault {
			return m.OrgID, true
		}
	}
	return p.PickFallbackOrganization()
}

// OrganizationIDs returns the organization ids of all memberships in order.
func (p *UserProfile) OrganizationIDs() []string {
	if p == nil {
		return nil
	}
	out := make([]string, 0, len(p.Memberships))
	for _, m := range p.Memberships {
		out = append(out, m.OrgID)
	}
	return out
}
