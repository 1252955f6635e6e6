// Package rbac holds the capability guards the session facade runs before privileged operations.
package rbac

import (
	"errors"

	membership "order-desk/backend/internal/membership/domain"
	sessiondomain "order-desk/backend/internal/session/domain"
)

var (
	// ErrUnauthenticated is returned when there is no Ready session.
	ErrUnauthenticated = errors.New("not signed in")
	// ErrAccessDenied is returned when the principal lacks the membership or capability.
	ErrAccessDenied = errors.New("access denied")
)

// RequireOrgMember ensures the session is signed in and holds a membership in orgID (any role). An empty orgID
// means the active organization.
// Returns (membership, subjectID, nil) on success.
func RequireOrgMember(s *sessiondomain.ActiveSession, orgID string) (membership.Membership, string, error) {
	if s == nil || s.Profile == nil {
		return membership.Membership{}, "", ErrUnauthenticated
	}
	if orgID == "" {
		orgID = s.OrgID()
	}
	m, ok := s.Profile.Membership(orgID)
	if !ok {
		return membership.Membership{}, "", ErrAccessDenied
	}
	return m, s.Principal.SubjectID, nil
}
