// Package service is the session facade: the operations a UI layer calls to sign up, sign in, join and switch
// organizations and manage a team. Every operation is a short sequence over the credential provider, the
// repositories and the invite registry; the only state is the synchronizer's published view.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"order-desk/backend/internal/audit"
	auditdomain "order-desk/backend/internal/audit/domain"
	identity "order-desk/backend/internal/identity/domain"
	identityservice "order-desk/backend/internal/identity/service"
	inviteservice "order-desk/backend/internal/invite/service"
	membership "order-desk/backend/internal/membership/domain"
	org "order-desk/backend/internal/organization/domain"
	orgrepo "order-desk/backend/internal/organization/repository"
	"order-desk/backend/internal/policy/engine"
	sessiondomain "order-desk/backend/internal/session/domain"
	"order-desk/backend/internal/session/synchronizer"
	"order-desk/backend/internal/telemetry"
	telemetrydomain "order-desk/backend/internal/telemetry/domain"
	user "order-desk/backend/internal/user/domain"
	userrepo "order-desk/backend/internal/user/repository"
)

// TracerName is the instrumentation scope of facade spans.
const TracerName = "orderdesk.session"

const eventSource = "session_facade"

// DefaultReadyTimeout bounds WaitReady when ctx has no deadline.
const DefaultReadyTimeout = 15 * time.Second

// Deps are the facade's collaborators. Credentials, Profiles, Orgs and Invites are required.
type Deps struct {
	Credentials identityservice.Provider
	Profiles    userrepo.Repository
	Orgs        orgrepo.Repository
	Invites     *inviteservice.Registry
	// Synchronizer is built from Profiles, Orgs and Credentials with SyncConfig when nil.
	Synchronizer *synchronizer.Synchronizer
	SyncConfig   synchronizer.Config
	// Authorizer defaults to the OPA authorizer with the built-in policy only.
	Authorizer engine.Authorizer
	Audit      audit.AuditLogger
	Emitter    telemetry.EventEmitter
	Counters   *telemetry.Counters
}

// Facade is the session facade of one process. Create it once at startup and pass it to its consumers.
type Facade struct {
	creds    identityservice.Provider
	profiles userrepo.Repository
	orgs     orgrepo.Repository
	invites  *inviteservice.Registry
	sync     *synchronizer.Synchronizer
	authz    engine.Authorizer
	audit    audit.AuditLogger
	emitter  telemetry.EventEmitter
	tracer   trace.Tracer
	now      func() time.Time

	unsubscribe func()
}

// New wires the facade and starts listening to the credential provider's session changes.
func New(d Deps) *Facade {
	sync := d.Synchronizer
	if sync == nil {
		sync = synchronizer.New(d.Profiles, d.Orgs, d.Credentials.SignOut, d.SyncConfig, synchronizer.Options{
			Counters: d.Counters,
			Emitter:  d.Emitter,
			Audit:    d.Audit,
		})
	}
	authz := d.Authorizer
	if authz == nil {
		authz = engine.NewOPAAuthorizer(nil)
	}
	f := &Facade{
		creds:    d.Credentials,
		profiles: d.Profiles,
		orgs:     d.Orgs,
		invites:  d.Invites,
		sync:     sync,
		authz:    authz,
		audit:    d.Audit,
		emitter:  d.Emitter,
		tracer:   otel.Tracer(TracerName),
		now:      time.Now,
	}
	f.unsubscribe = d.Credentials.OnSessionChange(sync.HandleSessionEvent)
	return f
}

// Close stops listening to the credential provider and stops the synchronizer.
func (f *Facade) Close() {
	if f.unsubscribe != nil {
		f.unsubscribe()
	}
	f.sync.Close()
}

// View returns the synchronizer's current view.
func (f *Facade) View() sessiondomain.View { return f.sync.Current() }

// Session returns the ActiveSession, or nil when not Ready. It is the only authorization artifact callers may trust.
func (f *Facade) Session() *sessiondomain.ActiveSession { return f.sync.Session() }

// Watch registers fn for every later view. See synchronizer.Synchronizer.Watch.
func (f *Facade) Watch(fn func(sessiondomain.View)) (unsubscribe func()) { return f.sync.Watch(fn) }

// WaitReady blocks until the session is Ready and returns it. A forced sign-out or a loading failure returns the
// view's error; with nobody signed in it returns ErrUnauthenticated.
func (f *Facade) WaitReady(ctx context.Context) (*sessiondomain.ActiveSession, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultReadyTimeout)
		defer cancel()
	}
	v, err := f.sync.WaitFor(ctx, func(v sessiondomain.View) bool {
		switch v.State {
		case sessiondomain.StateReady, sessiondomain.StateSignedOutForcibly, sessiondomain.StateFailed, sessiondomain.StateUnauthenticated:
			return true
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	switch v.State {
	case sessiondomain.StateReady:
		return v.Session, nil
	case sessiondomain.StateUnauthenticated:
		return nil, ErrUnauthenticated
	}
	return nil, v.Err
}

// SignupAsOwner creates an account, a free organization owned by it and the owner's profile. orgName defaults to
// one derived from displayName. A failure after the account exists leaves an orphaned credential; the synchronizer
// ends that sign-in when no profile appears.
func (f *Facade) SignupAsOwner(ctx context.Context, email, password, displayName, orgName string) (principal *identity.Principal, err error) {
	ctx, span := f.tracer.Start(ctx, "session.SignupAsOwner")
	defer func() { finish(span, err) }()

	principal, err = f.creds.CreateAccount(ctx, email, password)
	if err != nil {
		return nil, err
	}
	now := f.now().UTC()
	o := &org.Org{
		ID:             uuid.New().String(),
		Name:           defaultOrgName(orgName, displayName, principal.Email),
		OwnerSubjectID: principal.SubjectID,
		Subscription:   org.NewFreeSubscription(now),
		Limits:         org.DefaultLimits(org.PlanFree),
		CreatedAt:      now,
	}
	if err := f.orgs.CreateOrganization(ctx, o); err != nil {
		log.Printf("session: signup of %s left an orphaned credential: create organization: %v", principal.SubjectID, err)
		return nil, fmt.Errorf("create organization: %w", err)
	}
	profile := &user.UserProfile{
		SubjectID:   principal.SubjectID,
		Email:       principal.Email,
		DisplayName: displayName,
		Memberships: []membership.Membership{{
			OrgID:       o.ID,
			Role:        membership.RoleOwner,
			Permissions: membership.ApplyRolePreset(membership.RoleOwner),
			IsDefault:   true,
		}},
		ActiveOrganizationID: o.ID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := f.profiles.Create(ctx, profile); err != nil {
		log.Printf("session: signup of %s left an orphaned credential: create profile: %v", principal.SubjectID, err)
		return nil, fmt.Errorf("create profile: %w", err)
	}
	f.sendVerification(ctx, *principal)
	f.logAudit(ctx, o.ID, principal.SubjectID, auditdomain.ActionSignup, "user", "owner")
	f.emit(ctx, principal.SubjectID, o.ID, telemetrydomain.EventOrganizationCreated, nil)
	return principal, nil
}

// SignupWithInviteCode creates an account that joins the code's organization. The code is checked before the
// account is created, so dead codes never produce throwaway accounts.
func (f *Facade) SignupWithInviteCode(ctx context.Context, email, password, displayName, code string) (principal *identity.Principal, err error) {
	ctx, span := f.tracer.Start(ctx, "session.SignupWithInviteCode")
	defer func() { finish(span, err) }()

	if _, err := f.invites.Validate(ctx, code); err != nil {
		return nil, err
	}
	principal, err = f.creds.CreateAccount(ctx, email, password)
	if err != nil {
		return nil, err
	}
	m, err := f.invites.Redeem(ctx, code, principal.SubjectID)
	if err != nil {
		// Lost a redemption race after the pre-check. Nothing references the new account yet.
		log.Printf("session: invite signup of %s failed to redeem: %v", principal.SubjectID, err)
		f.sync.Clear()
		if sErr := f.creds.SignOut(ctx); sErr != nil {
			log.Printf("session: sign-out after failed redemption: %v", sErr)
		}
		return nil, err
	}
	m.IsDefault = true
	now := f.now().UTC()
	profile := &user.UserProfile{
		SubjectID:            principal.SubjectID,
		Email:                principal.Email,
		DisplayName:          displayName,
		Memberships:          []membership.Membership{m},
		ActiveOrganizationID: m.OrgID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := f.profiles.Create(ctx, profile); err != nil {
		log.Printf("session: invite code consumed by %s but profile write failed, needs operator repair: %v", principal.SubjectID, err)
		return nil, fmt.Errorf("create profile: %w", err)
	}
	f.sendVerification(ctx, *principal)
	f.logAudit(ctx, m.OrgID, principal.SubjectID, auditdomain.ActionSignup, "user", "invite")
	f.logAudit(ctx, m.OrgID, principal.SubjectID, auditdomain.ActionInviteRedeemed, "invite_code", "")
	f.emit(ctx, principal.SubjectID, m.OrgID, telemetrydomain.EventInviteRedeemed, map[string]string{"role": string(m.Role)})
	return principal, nil
}

// JoinOrganizationWithCode redeems code for the signed-in principal and makes the joined organization active.
// Membership is checked before redeeming so a code is never spent on a no-op.
func (f *Facade) JoinOrganizationWithCode(ctx context.Context, code string) (m membership.Membership, err error) {
	ctx, span := f.tracer.Start(ctx, "session.JoinOrganizationWithCode")
	defer func() { finish(span, err) }()

	principal := f.creds.CurrentPrincipal()
	if principal == nil {
		return membership.Membership{}, ErrUnauthenticated
	}
	c, err := f.invites.Get(ctx, code)
	if err != nil {
		return membership.Membership{}, err
	}
	profile, err := f.profiles.Get(ctx, principal.SubjectID)
	if err != nil {
		return membership.Membership{}, err
	}
	if profile == nil {
		return membership.Membership{}, ErrUnauthenticated
	}
	if profile.HasAccessTo(c.OrgID) {
		return membership.Membership{}, ErrAlreadyMember
	}
	m, err = f.invites.Redeem(ctx, c.Code, principal.SubjectID)
	if err != nil {
		return membership.Membership{}, err
	}
	if err := f.profiles.AddMembership(ctx, principal.SubjectID, m, true); err != nil {
		log.Printf("session: invite code %s consumed by %s but membership write failed, needs operator repair: %v", c.Code, principal.SubjectID, err)
		if errors.Is(err, membership.ErrDuplicateMembership) {
			return membership.Membership{}, ErrAlreadyMember
		}
		return membership.Membership{}, fmt.Errorf("add membership: %w", err)
	}
	f.logAudit(ctx, m.OrgID, principal.SubjectID, auditdomain.ActionJoin, "organization", "")
	f.logAudit(ctx, m.OrgID, principal.SubjectID, auditdomain.ActionInviteRedeemed, "invite_code", "")
	f.emit(ctx, principal.SubjectID, m.OrgID, telemetrydomain.EventInviteRedeemed, map[string]string{"role": string(m.Role)})
	return m, nil
}

// SwitchOrganization makes orgID active. With nobody signed in it does nothing. Switching to the already active
// organization succeeds without a write.
func (f *Facade) SwitchOrganization(ctx context.Context, orgID string) (err error) {
	ctx, span := f.tracer.Start(ctx, "session.SwitchOrganization")
	defer func() { finish(span, err) }()

	principal := f.creds.CurrentPrincipal()
	if principal == nil {
		return nil
	}
	profile, err := f.profiles.Get(ctx, principal.SubjectID)
	if err != nil {
		return err
	}
	if !profile.HasAccessTo(orgID) {
		return ErrAccessDenied
	}
	if profile.ActiveOrganizationID == orgID {
		return nil
	}
	if err := f.profiles.SetActiveOrganization(ctx, principal.SubjectID, orgID); err != nil {
		return err
	}
	f.logAudit(ctx, orgID, principal.SubjectID, auditdomain.ActionSwitch, "organization", "from="+profile.ActiveOrganizationID)
	f.emit(ctx, principal.SubjectID, orgID, telemetrydomain.EventOrgSwitched, map[string]string{"from": profile.ActiveOrganizationID})
	return nil
}

// Login authenticates with email and password.
func (f *Facade) Login(ctx context.Context, email, password string) (principal *identity.Principal, err error) {
	ctx, span := f.tracer.Start(ctx, "session.Login")
	defer func() { finish(span, err) }()
	return f.creds.Authenticate(ctx, email, password)
}

// Logout clears the session view before signing out, so no stale ActiveSession is observable.
func (f *Facade) Logout(ctx context.Context) (err error) {
	ctx, span := f.tracer.Start(ctx, "session.Logout")
	defer func() { finish(span, err) }()
	f.sync.Clear()
	return f.creds.SignOut(ctx)
}

// ResetPassword sends a password reset notice.
func (f *Facade) ResetPassword(ctx context.Context, email string) (err error) {
	ctx, span := f.tracer.Start(ctx, "session.ResetPassword")
	defer func() { finish(span, err) }()
	return f.creds.SendPasswordReset(ctx, email)
}

// ConfirmPasswordReset sets a new password with a reset token.
func (f *Facade) ConfirmPasswordReset(ctx context.Context, token, newPassword string) (err error) {
	ctx, span := f.tracer.Start(ctx, "session.ConfirmPasswordReset")
	defer func() { finish(span, err) }()
	return f.creds.ConfirmPasswordReset(ctx, token, newPassword)
}

// Authorize returns nil when the ActiveSession may perform action. Any failure denies.
func (f *Facade) Authorize(ctx context.Context, action string) (err error) {
	ctx, span := f.tracer.Start(ctx, "session.Authorize")
	defer func() { finish(span, err) }()

	s := f.sync.Session()
	if s == nil {
		return ErrUnauthenticated
	}
	d, err := f.authz.Authorize(ctx, s, action)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAccessDenied, err)
	}
	if !d.Allowed {
		if d.Reason != "" {
			return fmt.Errorf("%w: %s", ErrAccessDenied, d.Reason)
		}
		return ErrAccessDenied
	}
	return nil
}

func (f *Facade) sendVerification(ctx context.Context, p identity.Principal) {
	if err := f.creds.SendVerification(ctx, p); err != nil {
		log.Printf("session: verification notice for %s failed: %v", p.SubjectID, err)
	}
}

func (f *Facade) logAudit(ctx context.Context, orgID, subjectID, action, resource, metadata string) {
	if f.audit == nil {
		return
	}
	f.audit.LogEvent(ctx, orgID, subjectID, action, resource, metadata)
}

func (f *Facade) emit(ctx context.Context, subjectID, orgID, eventType string, attrs map[string]string) {
	telemetry.EmitAsync(f.emitter, ctx, &telemetrydomain.Event{
		SubjectID:  subjectID,
		OrgID:      orgID,
		EventType:  eventType,
		Source:     eventSource,
		Attributes: attrs,
	})
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func defaultOrgName(orgName, displayName, email string) string {
	if name := strings.TrimSpace(orgName); name != "" {
		return name
	}
	if name := strings.TrimSpace(displayName); name != "" {
		return name + "'s organization"
	}
	return email
}
