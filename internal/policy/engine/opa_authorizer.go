package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"order-desk/backend/internal/policy/repository"
	sessiondomain "order-desk/backend/internal/session/domain"
)

const defaultPolicyPackage = "orderdesk.authz"

// Default Rego policy: each action maps to one capability of the active membership. Organization creation is
// reserved to the owner of the active organization while its subscription is usable.
const defaultRegoPolicy = `package orderdesk.authz

default allow := false

capability := {
	"records.add": "can_add_records",
	"records.edit": "can_edit_records",
	"records.delete": "can_delete_records",
	"statistics.view": "can_view_statistics",
	"records.export": "can_export",
	"catalog.configure": "can_configure_catalog",
	"team.manage": "can_manage_team",
	"plan.change": "can_change_plan",
}

usable_status := {"active", "trialing"}

allow if {
	cap := capability[input.action]
	input.permissions[cap] == true
}

allow if {
	input.action == "organization.create"
	input.organization.owner_subject_id == input.subject_id
	usable_status[input.organization.status]
}

reason := "missing capability" if {
	capability[input.action]
	not allow
}

reason := "only the organization owner may create organizations" if {
	input.action == "organization.create"
	not allow
}

reason := "unknown action" if {
	not capability[input.action]
	input.action != "organization.create"
}
`

// DefaultPolicy returns the built-in Rego module. Organization policies usually start from it.
func DefaultPolicy() string { return defaultRegoPolicy }

// OPAAuthorizer evaluates authorization with OPA Rego. Enabled per-organization policies replace the default one.
type OPAAuthorizer struct {
	policyRepo repository.Repository
}

// NewOPAAuthorizer returns an OPA-based authorizer. policyRepo may be nil: only the default policy is used.
func NewOPAAuthorizer(policyRepo repository.Repository) *OPAAuthorizer {
	return &OPAAuthorizer{policyRepo: policyRepo}
}

// HealthCheck verifies that the in-process OPA Rego engine can compile and evaluate the default policy.
// Does not call the policy repo. Returns nil on success.
func (e *OPAAuthorizer) HealthCheck(ctx context.Context) error {
	compiler, err := ast.CompileModules(map[string]string{"policy_0.rego": defaultRegoPolicy})
	if err != nil {
		return fmt.Errorf("compile default policy: %w", err)
	}
	minimalInput := map[string]interface{}{
		"subject_id":   "",
		"action":       ActionAddRecords,
		"role":         "",
		"permissions":  map[string]interface{}{},
		"organization": map[string]interface{}{"id": "", "owner_subject_id": "", "plan": "", "status": ""},
	}
	rs, err := rego.New(
		rego.Query("data."+defaultPolicyPackage+".allow"),
		rego.Compiler(compiler),
		rego.Input(minimalInput),
	).Eval(ctx)
	if err != nil {
		return fmt.Errorf("eval default policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("policy query returned no result")
	}
	return nil
}

// Authorize evaluates action against the session's active organization.
func (e *OPAAuthorizer) Authorize(ctx context.Context, session *sessiondomain.ActiveSession, action string) (Decision, error) {
	if session == nil || session.Organization == nil {
		return Decision{Reason: "no active session"}, nil
	}
	orgID := session.Organization.ID

	var policies []string
	if e.policyRepo != nil {
		enabled, err := e.policyRepo.GetEnabledPoliciesByOrg(ctx, orgID)
		if err != nil {
			log.Printf("policy: failed to load policies for org %s: %v", orgID, err)
		} else {
			for _, p := range enabled {
				if p.Enabled && p.Rules != "" {
					policies = append(policies, p.Rules)
				}
			}
		}
	}
	if len(policies) == 0 {
		policies = []string{defaultRegoPolicy}
	}

	d, err := e.evaluate(ctx, policies, buildInput(session, action))
	if err != nil {
		log.Printf("policy: evaluation failed for org %s action %s: %v", orgID, action, err)
		return Decision{Reason: "policy evaluation failed"}, err
	}
	return d, nil
}

func buildInput(session *sessiondomain.ActiveSession, action string) map[string]interface{} {
	perms := make(map[string]interface{})
	for k, v := range session.Permissions.AsMap() {
		perms[k] = v
	}
	role := ""
	if m, ok := session.Profile.Membership(session.Organization.ID); ok {
		role = string(m.Role)
	}
	o := session.Organization
	return map[string]interface{}{
		"subject_id":  session.Principal.SubjectID,
		"email":       session.Principal.Email,
		"action":      action,
		"role":        role,
		"permissions": perms,
		"organization": map[string]interface{}{
			"id":               o.ID,
			"owner_subject_id": o.OwnerSubjectID,
			"plan":             string(o.Subscription.Plan),
			"status":           string(o.Subscription.Status),
		},
	}
}

func (e *OPAAuthorizer) evaluate(ctx context.Context, policies []string, input map[string]interface{}) (Decision, error) {
	modules := make(map[string]string)
	for i, policy := range policies {
		modules[fmt.Sprintf("policy_%d.rego", i)] = policy
	}
	compiler, err := ast.CompileModules(modules)
	if err != nil {
		return Decision{}, fmt.Errorf("compile policies: %w", err)
	}

	allowRS, err := rego.New(
		rego.Query("data."+defaultPolicyPackage+".allow"),
		rego.Compiler(compiler),
		rego.Input(input),
	).Eval(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("eval allow: %w", err)
	}
	var out Decision
	if len(allowRS) > 0 && len(allowRS[0].Expressions) > 0 {
		if v, ok := allowRS[0].Expressions[0].Value.(bool); ok {
			out.Allowed = v
		}
	}
	if out.Allowed {
		return out, nil
	}

	reasonRS, err := rego.New(
		rego.Query("data."+defaultPolicyPackage+".reason"),
		rego.Compiler(compiler),
		rego.Input(input),
	).Eval(ctx)
	if err == nil && len(reasonRS) > 0 && len(reasonRS[0].Expressions) > 0 {
		if v, ok := reasonRS[0].Expressions[0].Value.(string); ok {
			out.Reason = v
		}
	}
	return out, nil
}
