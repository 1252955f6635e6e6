package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	auditdomain "order-desk/backend/internal/audit/domain"
	invitedomain "order-desk/backend/internal/invite/domain"
	inviteservice "order-desk/backend/internal/invite/service"
	membership "order-desk/backend/internal/membership/domain"
	org "order-desk/backend/internal/organization/domain"
	"order-desk/backend/internal/platform/rbac"
	"order-desk/backend/internal/policy/engine"
	telemetrydomain "order-desk/backend/internal/telemetry/domain"
	userrepo "order-desk/backend/internal/user/repository"
)

// Member is one profile holding a membership in the active organization.
type Member struct {
	SubjectID   string
	Email       string
	DisplayName string
	Membership  membership.Membership
	IsOwner     bool
}

// GenerateInviteCode issues a code for the active organization. perms nil uses the role preset. The Owner role
// cannot be handed out by code.
func (f *Facade) GenerateInviteCode(ctx context.Context, role membership.Role, perms *membership.PermissionSet, targetEmail string) (code *invitedomain.InviteCode, err error) {
	ctx, span := f.tracer.Start(ctx, "session.GenerateInviteCode")
	defer func() { finish(span, err) }()

	orgID, subjectID, err := rbac.RequireCapability(f.sync.Session(), membership.CapManageTeam)
	if err != nil {
		return nil, err
	}
	if role == "" || role == membership.RoleOwner {
		return nil, ErrInvalidRole
	}
	p := membership.ApplyRolePreset(role)
	if perms != nil {
		p = *perms
	}
	code, err = f.invites.Generate(ctx, inviteservice.GenerateRequest{
		OrgID:       orgID,
		Role:        role,
		Permissions: p,
		CreatedBy:   subjectID,
		TargetEmail: targetEmail,
	})
	if err != nil {
		return nil, err
	}
	f.logAudit(ctx, orgID, subjectID, auditdomain.ActionInviteGenerated, "invite_code", string(role))
	f.emit(ctx, subjectID, orgID, telemetrydomain.EventInviteGenerated, map[string]string{"role": string(role)})
	return code, nil
}

// RevokeInviteCode deletes an active code. The caller needs can_manage_team in the code's organization, which
// need not be the active one.
func (f *Facade) RevokeInviteCode(ctx context.Context, code string) (err error) {
	ctx, span := f.tracer.Start(ctx, "session.RevokeInviteCode")
	defer func() { finish(span, err) }()

	s := f.sync.Session()
	if s == nil {
		return ErrUnauthenticated
	}
	c, err := f.invites.Get(ctx, code)
	if err != nil {
		return err
	}
	subjectID, err := rbac.RequireTeamManager(s, c.OrgID)
	if err != nil {
		return err
	}
	if err := f.invites.Revoke(ctx, c.Code); err != nil {
		return err
	}
	f.logAudit(ctx, c.OrgID, subjectID, auditdomain.ActionInviteRevoked, "invite_code", "")
	f.emit(ctx, subjectID, c.OrgID, telemetrydomain.EventInviteRevoked, nil)
	return nil
}

// ListInviteCodes returns the active, unexpired codes of the active organization.
func (f *Facade) ListInviteCodes(ctx context.Context) (codes []*invitedomain.InviteCode, err error) {
	ctx, span := f.tracer.Start(ctx, "session.ListInviteCodes")
	defer func() { finish(span, err) }()

	orgID, _, err := rbac.RequireCapability(f.sync.Session(), membership.CapManageTeam)
	if err != nil {
		return nil, err
	}
	return f.invites.ListActive(ctx, orgID)
}

// ListMembers returns the members of the active organization in store order.
func (f *Facade) ListMembers(ctx context.Context) (members []Member, err error) {
	ctx, span := f.tracer.Start(ctx, "session.ListMembers")
	defer func() { finish(span, err) }()

	s := f.sync.Session()
	orgID, _, err := rbac.RequireCapability(s, membership.CapManageTeam)
	if err != nil {
		return nil, err
	}
	profiles, err := f.profiles.ListByOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	members = make([]Member, 0, len(profiles))
	for _, p := range profiles {
		m, ok := p.Membership(orgID)
		if !ok {
			continue
		}
		members = append(members, Member{
			SubjectID:   p.SubjectID,
			Email:       p.Email,
			DisplayName: p.DisplayName,
			Membership:  m,
			IsOwner:     s.Organization.IsOwner(p.SubjectID),
		})
	}
	return members, nil
}

// UpdateMemberAccess replaces another member's role and permission snapshot in the active organization. The
// owner cannot be demoted and nobody can be promoted to Owner.
func (f *Facade) UpdateMemberAccess(ctx context.Context, subjectID string, role membership.Role, perms membership.PermissionSet) (err error) {
	ctx, span := f.tracer.Start(ctx, "session.UpdateMemberAccess")
	defer func() { finish(span, err) }()

	s := f.sync.Session()
	orgID, actor, err := rbac.RequireCapability(s, membership.CapManageTeam)
	if err != nil {
		return err
	}
	if role == "" || role == membership.RoleOwner {
		return ErrInvalidRole
	}
	if err := f.checkEditable(ctx, s.Organization, subjectID); err != nil {
		return err
	}
	if err := f.profiles.UpdateMembership(ctx, subjectID, orgID, role, perms); err != nil {
		return mapMemberErr(err)
	}
	f.logAudit(ctx, orgID, actor, auditdomain.ActionMemberUpdated, "user", fmt.Sprintf("subject=%s role=%s", subjectID, role))
	return nil
}

// RemoveMember drops another member from the active organization. If it was their active organization their
// pointer is cleared and their own synchronizer reconciles.
func (f *Facade) RemoveMember(ctx context.Context, subjectID string) (err error) {
	ctx, span := f.tracer.Start(ctx, "session.RemoveMember")
	defer func() { finish(span, err) }()

	s := f.sync.Session()
	orgID, actor, err := rbac.RequireCapability(s, membership.CapManageTeam)
	if err != nil {
		return err
	}
	if err := f.checkEditable(ctx, s.Organization, subjectID); err != nil {
		return err
	}
	if err := f.profiles.RemoveMembership(ctx, subjectID, orgID); err != nil {
		return mapMemberErr(err)
	}
	f.logAudit(ctx, orgID, actor, auditdomain.ActionMemberRemoved, "user", "subject="+subjectID)
	return nil
}

// checkEditable rejects edits of the organization owner or of a member holding the Owner role.
func (f *Facade) checkEditable(ctx context.Context, o *org.Org, subjectID string) error {
	if o.IsOwner(subjectID) {
		return ErrOwnerImmutable
	}
	target, err := f.profiles.Get(ctx, subjectID)
	if err != nil {
		return err
	}
	m, ok := target.Membership(o.ID)
	if !ok {
		return ErrMemberNotFound
	}
	if m.Role == membership.RoleOwner {
		return ErrOwnerImmutable
	}
	return nil
}

func mapMemberErr(err error) error {
	if errors.Is(err, userrepo.ErrNotMember) || errors.Is(err, userrepo.ErrProfileNotFound) {
		return ErrMemberNotFound
	}
	return err
}

// CreateOrganization founds another organization under the active organization's plan. Only its owner may do so,
// the authorization policy must allow it, and they must own fewer organizations than the plan allows. The new
// organization becomes active.
func (f *Facade) CreateOrganization(ctx context.Context, name string) (o *org.Org, err error) {
	ctx, span := f.tracer.Start(ctx, "session.CreateOrganization")
	defer func() { finish(span, err) }()

	s := f.sync.Session()
	if s == nil {
		return nil, ErrUnauthenticated
	}
	subjectID := s.Principal.SubjectID
	if !s.Organization.IsOwner(subjectID) {
		return nil, ErrAccessDenied
	}
	if err := f.Authorize(ctx, engine.ActionCreateOrg); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errors.New("organization name is required")
	}
	owned, err := f.orgs.ListByOwner(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	limit := s.Organization.Limits.MaxOrganizations
	if limit <= 0 {
		limit = org.DefaultLimits(s.Organization.Subscription.Plan).MaxOrganizations
	}
	if len(owned) >= limit {
		return nil, ErrOrganizationLimitReached
	}
	now := f.now().UTC()
	sub := s.Organization.Subscription
	o = &org.Org{
		ID:             uuid.New().String(),
		Name:           name,
		OwnerSubjectID: subjectID,
		Subscription:   sub,
		Limits:         org.DefaultLimits(sub.Plan),
		CreatedAt:      now,
	}
	if err := f.orgs.CreateOrganization(ctx, o); err != nil {
		return nil, err
	}
	m := membership.Membership{OrgID: o.ID, Role: membership.RoleOwner, Permissions: membership.ApplyRolePreset(membership.RoleOwner)}
	if err := f.profiles.AddMembership(ctx, subjectID, m, true); err != nil {
		return nil, fmt.Errorf("add owner membership: %w", err)
	}
	f.logAudit(ctx, o.ID, subjectID, auditdomain.ActionOrgCreated, "organization", o.Name)
	f.emit(ctx, subjectID, o.ID, telemetrydomain.EventOrganizationCreated, nil)
	return o, nil
}
