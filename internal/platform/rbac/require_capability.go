package rbac

import (
	membership "order-desk/backend/internal/membership/domain"
	sessiondomain "order-desk/backend/internal/session/domain"
)

// RequireCapability ensures the session grants c in the active organization.
// Returns (orgID, subjectID, nil) on success.
func RequireCapability(s *sessiondomain.ActiveSession, c membership.Capability) (orgID, subjectID string, err error) {
	if s == nil || s.Organization == nil {
		return "", "", ErrUnauthenticated
	}
	if !s.Can(c) {
		return "", "", ErrAccessDenied
	}
	return s.Organization.ID, s.Principal.SubjectID, nil
}

// RequireTeamManager ensures the session holds can_manage_team in orgID, which need not be the active
// organization. The check reads the membership's own permission snapshot.
func RequireTeamManager(s *sessiondomain.ActiveSession, orgID string) (subjectID string, err error) {
	m, subjectID, err := RequireOrgMember(s, orgID)
	if err != nil {
		return "", err
	}
	if !m.Permissions.CanManageTeam {
		return "", ErrAccessDenied
	}
	return subjectID, nil
}
