package synchronizer

import (
	user "order-desk/backend/internal/user/domain"
)

// Outcome is what reconciliation asks the synchronizer to do next.
type Outcome int

const (
	// OutcomePublish means the active organization is usable and an ActiveSession can be built for OrgID.
	OutcomePublish Outcome = iota
	// OutcomeSwitch means the active pointer must be moved to OrgID before any session is built.
	OutcomeSwitch
	// OutcomeForceSignOut means the principal has no usable organization left.
	OutcomeForceSignOut
)

func (o Outcome) String() string {
	switch o {
	case OutcomePublish:
		return "publish"
	case OutcomeSwitch:
		return "switch"
	case OutcomeForceSignOut:
		return "force_sign_out"
	}
	return "unknown"
}

// Decision is the result of Reconcile.
type Decision struct {
	Outcome Outcome
	OrgID   string
}

// Reconcile decides what a profile snapshot requires. unusable reports organizations known to be orphaned (their
// document is gone); it may be nil. Reconcile is pure and safe to re-run on every notification.
func Reconcile(p *user.UserProfile, unusable func(orgID string) bool) Decision {
	if p == nil || len(p.Memberships) == 0 {
		return Decision{Outcome: OutcomeForceSignOut}
	}
	skip := func(orgID string) bool { return unusable != nil && unusable(orgID) }
	active := p.ActiveOrganizationID
	if active != "" && p.HasAccessTo(active) && !skip(active) {
		return Decision{Outcome: OutcomePublish, OrgID: active}
	}
	fallback, ok := p.PickFallbackOrganizationExcept(skip)
	if !ok {
		return Decision{Outcome: OutcomeForceSignOut}
	}
	return Decision{Outcome: OutcomeSwitch, OrgID: fallback}
}

// retryBudget counts missing-profile observations. The observation that reaches max exhausts it.
type retryBudget struct {
	max    int
	misses int
}

func (b *retryBudget) miss() (exhausted bool) {
	b.misses++
	return b.misses >= b.max
}

func (b *retryBudget) reset() { b.misses = 0 }
