package domain

import (
	"errors"

	identity "order-desk/backend/internal/identity/domain"
	membership "order-desk/backend/internal/membership/domain"
	org "order-desk/backend/internal/organization/domain"
	user "order-desk/backend/internal/user/domain"
)

var (
	// ErrNoProfileAfterRetries ends a sign-in whose profile document never appeared.
	ErrNoProfileAfterRetries = errors.New("no user profile after retries")
	// ErrNoOrganizationAccess ends a sign-in whose principal has no accessible organization left.
	ErrNoOrganizationAccess = errors.New("no accessible organization")
	// ErrLoadingFailed is set on a Failed view after a store subscription error.
	ErrLoadingFailed = errors.New("session loading failed")
)

// State is the synchronizer state of the current sign-in.
type State int

const (
	StateUnauthenticated State = iota
	StateAwaitingProfile
	StateReady
	StateReconciling
	StateSignedOutForcibly
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAwaitingProfile:
		return "awaiting_profile"
	case StateReady:
		return "ready"
	case StateReconciling:
		return "reconciling"
	case StateSignedOutForcibly:
		return "signed_out_forcibly"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// ActiveSession is the derived authorization view of a signed-in principal. It is rebuilt on every profile or
// organization change and never persisted.
type ActiveSession struct {
	Principal    identity.Principal
	Profile      *user.UserProfile
	Organization *org.Org
	Permissions  membership.PermissionSet
}

// OrgID returns the active organization id, or "" for a nil session.
func (s *ActiveSession) OrgID() string {
	if s == nil || s.Organization == nil {
		return ""
	}
	return s.Organization.ID
}

// Can reports whether the session grants capability c. A nil session grants nothing.
func (s *ActiveSession) Can(c membership.Capability) bool {
	if s == nil {
		return false
	}
	return s.Permissions.Allows(c)
}

// Reason explains a forced sign-out.
type Reason string

const (
	ReasonNoProfile            Reason = "no_profile"
	ReasonNoOrganizationAccess Reason = "no_organization_access"
)

// Message is the user-facing explanation shown before returning to the login screen.
func (r Reason) Message() string {
	switch r {
	case ReasonNoProfile:
		return "We could not load your account profile. Please sign in again or contact support if this keeps happening."
	case ReasonNoOrganizationAccess:
		return "You no longer have access to any organization. Ask an administrator for a new invite code."
	}
	return ""
}

// Err returns the error a forced sign-out with this reason carries.
func (r Reason) Err() error {
	switch r {
	case ReasonNoProfile:
		return ErrNoProfileAfterRetries
	case ReasonNoOrganizationAccess:
		return ErrNoOrganizationAccess
	}
	return nil
}

// View is what the synchronizer publishes. Session is non-nil only in StateReady.
type View struct {
	State   State
	Session *ActiveSession
	// Retries counts missing-profile observations while awaiting the profile.
	Retries int
	Reason  Reason
	Message string
	Err     error
}

// Forced returns the terminal view of a forced sign-out.
func Forced(r Reason) View {
	return View{State: StateSignedOutForcibly, Reason: r, Message: r.Message(), Err: r.Err()}
}
