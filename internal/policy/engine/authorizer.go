package engine

import (
	"context"

	sessiondomain "order-desk/backend/internal/session/domain"
)

// Actions understood by the built-in policy.
const (
	ActionAddRecords       = "records.add"
	ActionEditRecords      = "records.edit"
	ActionDeleteRecords    = "records.delete"
	ActionViewStatistics   = "statistics.view"
	ActionExport           = "records.export"
	ActionConfigureCatalog = "catalog.configure"
	ActionManageTeam       = "team.manage"
	ActionChangePlan       = "plan.change"
	ActionCreateOrg        = "organization.create"
)

// Decision is the result of an authorization query.
type Decision struct {
	Allowed bool
	// Reason is set on denials the policy explains.
	Reason string
}

// Authorizer decides whether the session may perform action.
type Authorizer interface {
	// Authorize is fail-closed: a nil session, an unknown action or any evaluation failure denies.
	Authorize(ctx context.Context, session *sessiondomain.ActiveSession, action string) (Decision, error)
}
