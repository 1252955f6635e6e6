package domain

import "time"

// Event is a structured session/authorization event (subject-scoped, optional organization).
type Event struct {
	SubjectID  string
	OrgID      string
	EventType  string
	Source     string
	Attributes map[string]string
	CreatedAt  time.Time
}

// Event types emitted by the identity and membership core.
const (
	EventSignedIn            = "signed_in"
	EventSignedOut           = "signed_out"
	EventForcedSignOut       = "forced_sign_out"
	EventSessionReady        = "session_ready"
	EventOrgSwitched         = "organization_switched"
	EventOrphanedMembership  = "orphaned_membership"
	EventMembershipsChanged  = "memberships_changed"
	EventInviteGenerated     = "invite_generated"
	EventInviteRedeemed      = "invite_redeemed"
	EventInviteRevoked       = "invite_revoked"
	EventOrganizationCreated = "organization_created"
)
