package domain

import "time"

// Actions recorded in the audit trail.
const (
	ActionSignup          = "signup"
	ActionJoin            = "organization_joined"
	ActionSwitch          = "organization_switched"
	ActionOrgCreated      = "organization_created"
	ActionInviteGenerated = "invite_generated"
	ActionInviteRedeemed  = "invite_redeemed"
	ActionInviteRevoked   = "invite_revoked"
	ActionMemberUpdated   = "member_updated"
	ActionMemberRemoved   = "member_removed"
	ActionForcedSignOut   = "forced_sign_out"
	ActionOrphanedOrg     = "orphaned_membership"
)

// AuditLog represents an audit event.
type AuditLog struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"organization_id"`
	SubjectID string    `json:"subject_id"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	Source    string    `json:"source"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
