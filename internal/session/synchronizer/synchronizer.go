// Package synchronizer keeps the ActiveSession of the signed-in principal in step with its profile and active
// organization documents.
//
// One goroutine runs per sign-in. It subscribes to the profile document, polls while the document has not appeared
// yet, reconciles every snapshot and publishes the resulting View. Sign-out, a new sign-in or Close stops it.
package synchronizer

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"order-desk/backend/internal/audit"
	auditdomain "order-desk/backend/internal/audit/domain"
	identity "order-desk/backend/internal/identity/domain"
	membership "order-desk/backend/internal/membership/domain"
	org "order-desk/backend/internal/organization/domain"
	orgrepo "order-desk/backend/internal/organization/repository"
	"order-desk/backend/internal/session/domain"
	"order-desk/backend/internal/telemetry"
	telemetrydomain "order-desk/backend/internal/telemetry/domain"
	user "order-desk/backend/internal/user/domain"
	userrepo "order-desk/backend/internal/user/repository"
)

const eventSource = "synchronizer"

// Defaults for Config fields left zero.
const (
	DefaultMaxRetries    = 10
	DefaultRetryInterval = 500 * time.Millisecond
	DefaultWaitTimeout   = 10 * time.Second
)

// Config bounds the wait for a profile document that does not exist yet.
type Config struct {
	// MaxRetries is the number of missing-profile observations that ends the sign-in.
	MaxRetries int
	// RetryInterval is how often the profile is re-read while it is missing.
	RetryInterval time.Duration
	// WaitTimeout is the wall-clock ceiling on the whole wait.
	WaitTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = DefaultWaitTimeout
	}
	return c
}

// SignOutFunc ends the credential provider's sign-in. The synchronizer calls it on a forced sign-out.
type SignOutFunc func(ctx context.Context) error

// Options carries the optional collaborators. Nil fields disable the concern.
type Options struct {
	Counters *telemetry.Counters
	Emitter  telemetry.EventEmitter
	Audit    audit.AuditLogger
}

// Synchronizer publishes the View of the current sign-in.
type Synchronizer struct {
	profiles userrepo.Repository
	orgs     orgrepo.Repository
	signOut  SignOutFunc
	cfg      Config
	opts     Options

	// notifyMu orders view publication so watchers observe views in publish order.
	notifyMu sync.Mutex

	mu       sync.Mutex
	view     domain.View
	cur      *run
	watchers map[int]func(domain.View)
	nextID   int
	closed   bool
}

// New returns a synchronizer in the Unauthenticated state. Feed it credential provider events with
// HandleSessionEvent.
func New(profiles userrepo.Repository, orgs orgrepo.Repository, signOut SignOutFunc, cfg Config, opts Options) *Synchronizer {
	return &Synchronizer{
		profiles: profiles,
		orgs:     orgs,
		signOut:  signOut,
		cfg:      cfg.withDefaults(),
		opts:     opts,
		view:     domain.View{State: domain.StateUnauthenticated},
		watchers: make(map[int]func(domain.View)),
	}
}

// run is the state of one sign-in.
type run struct {
	principal identity.Principal
	ctx       context.Context
	cancel    context.CancelFunc
	profileCh chan *user.UserProfile
	orgCh     chan orgSnapshot
	errCh     chan error
	done      chan struct{}
}

type orgSnapshot struct {
	id  string
	org *org.Org
}

func newRun(p identity.Principal) *run {
	ctx, cancel := context.WithCancel(context.Background())
	return &run{
		principal: p,
		ctx:       ctx,
		cancel:    cancel,
		profileCh: make(chan *user.UserProfile, 1),
		orgCh:     make(chan orgSnapshot, 1),
		errCh:     make(chan error, 1),
		done:      make(chan struct{}),
	}
}

// offer puts v into a one-slot channel, replacing any value not yet taken. Snapshots are latest-state, so a dropped
// one is superseded by v.
func offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// HandleSessionEvent starts or stops synchronization. Register it with the credential provider's OnSessionChange.
func (s *Synchronizer) HandleSessionEvent(ev identity.SessionEvent) {
	switch ev.Kind {
	case identity.SignedIn:
		s.start(ev.Principal)
		telemetry.EmitAsync(s.opts.Emitter, context.Background(), &telemetrydomain.Event{
			SubjectID: ev.Principal.SubjectID, EventType: telemetrydomain.EventSignedIn, Source: eventSource,
		})
	case identity.SignedOut:
		s.stop(ev.Principal.SubjectID, false)
		telemetry.EmitAsync(s.opts.Emitter, context.Background(), &telemetrydomain.Event{
			SubjectID: ev.Principal.SubjectID, EventType: telemetrydomain.EventSignedOut, Source: eventSource,
		})
	}
}

func (s *Synchronizer) start(p identity.Principal) {
	r := newRun(p)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		r.cancel()
		return
	}
	old := s.cur
	s.cur = r
	s.view = domain.View{State: domain.StateAwaitingProfile}
	s.mu.Unlock()
	if old != nil {
		old.cancel()
	}
	go s.loop(r)
}

// stop ends the run of subject ("" matches any). A forced sign-out view is kept unless clear is set, so the user
// can still read why the session ended.
func (s *Synchronizer) stop(subject string, clear bool) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.mu.Lock()
	r := s.cur
	if r != nil && subject != "" && r.principal.SubjectID != subject {
		s.mu.Unlock()
		return
	}
	s.cur = nil
	keep := !clear && s.view.State == domain.StateSignedOutForcibly
	changed := false
	if !keep && (r != nil || s.view.State != domain.StateUnauthenticated) {
		s.view = domain.View{State: domain.StateUnauthenticated}
		changed = true
	}
	v := s.view
	fns := s.watcherFuncs()
	s.mu.Unlock()
	if r != nil {
		r.cancel()
	}
	if changed {
		for _, fn := range fns {
			fn(v)
		}
	}
}

// Clear drops the current session view immediately, before the credential provider reports the sign-out.
func (s *Synchronizer) Clear() {
	s.stop("", true)
}

// Close stops synchronization and waits for the running sign-in to finish. Later sign-ins are ignored.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	s.closed = true
	r := s.cur
	s.mu.Unlock()
	s.stop("", true)
	if r != nil {
		<-r.done
	}
}

// Current returns the latest published view.
func (s *Synchronizer) Current() domain.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Session returns the ActiveSession of the current view, or nil when not Ready.
func (s *Synchronizer) Session() *domain.ActiveSession {
	v := s.Current()
	if v.State != domain.StateReady {
		return nil
	}
	return v.Session
}

// Watch registers fn for every view published after Watch returns. fn runs on the publishing goroutine, in publish
// order, and must not block or sign the principal out.
func (s *Synchronizer) Watch(fn func(domain.View)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		})
	}
}

// WaitFor blocks until the current or a later view satisfies pred, or ctx is done.
func (s *Synchronizer) WaitFor(ctx context.Context, pred func(domain.View) bool) (domain.View, error) {
	ch := make(chan domain.View, 1)
	unsub := s.Watch(func(v domain.View) {
		if pred(v) {
			select {
			case ch <- v:
			default:
			}
		}
	})
	defer unsub()
	if v := s.Current(); pred(v) {
		return v, nil
	}
	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		return s.Current(), ctx.Err()
	}
}

// watcherFuncs returns the watchers in registration order. Caller holds s.mu.
func (s *Synchronizer) watcherFuncs() []func(domain.View) {
	fns := make([]func(domain.View), 0, len(s.watchers))
	for id := 0; id < s.nextID; id++ {
		if fn, ok := s.watchers[id]; ok {
			fns = append(fns, fn)
		}
	}
	return fns
}

// publish sets the view if r is still the current run.
func (s *Synchronizer) publish(r *run, v domain.View) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.mu.Lock()
	if s.cur != r {
		s.mu.Unlock()
		return false
	}
	s.view = v
	fns := s.watcherFuncs()
	s.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
	return true
}

func (s *Synchronizer) loop(r *run) {
	defer close(r.done)
	subject := r.principal.SubjectID
	s.publish(r, domain.View{State: domain.StateAwaitingProfile})

	unsubProfile, err := s.profiles.Subscribe(r.ctx, subject,
		func(p *user.UserProfile) { offer(r.profileCh, p) },
		func(err error) { offer(r.errCh, err) })
	if err != nil {
		s.fail(r, fmt.Errorf("subscribe profile: %w", err))
		return
	}
	defer unsubProfile()

	var (
		unsubOrg  func()
		watchedID string
	)
	defer func() {
		if unsubOrg != nil {
			unsubOrg()
		}
	}()
	watchOrg := func(id string) {
		if id == watchedID {
			return
		}
		if unsubOrg != nil {
			unsubOrg()
			unsubOrg = nil
		}
		watchedID = id
		u, err := s.orgs.Subscribe(r.ctx, id,
			func(o *org.Org) { offer(r.orgCh, orgSnapshot{id: id, org: o}) },
			func(err error) { offer(r.errCh, err) })
		if err != nil {
			log.Printf("synchronizer: subscribe organization %s: %v", id, err)
			return
		}
		unsubOrg = u
	}

	ticker := time.NewTicker(s.cfg.RetryInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(s.cfg.WaitTimeout)
	defer deadline.Stop()

	budget := retryBudget{max: s.cfg.MaxRetries}
	awaiting := true
	readyOnce := false
	var (
		profile   *user.UserProfile
		activeOrg *org.Org
		pending   string
	)
	orphaned := make(map[string]bool)
	isOrphaned := func(id string) bool { return orphaned[id] }

	// settle reconciles the current profile. It returns true when the run is over.
	settle := func() bool {
		for {
			d := Reconcile(profile, isOrphaned)
			switch d.Outcome {
			case OutcomeForceSignOut:
				s.force(r, domain.ReasonNoOrganizationAccess, budget.misses)
				return true
			case OutcomeSwitch:
				if pending == d.OrgID {
					return false
				}
				pending = d.OrgID
				log.Printf("synchronizer: active organization of %s unusable, switching to %s", subject, d.OrgID)
				s.publish(r, domain.View{State: domain.StateReconciling})
				if err := s.profiles.SetActiveOrganization(r.ctx, subject, d.OrgID); err != nil {
					if r.ctx.Err() != nil {
						return true
					}
					s.fail(r, fmt.Errorf("switch to fallback organization %s: %w", d.OrgID, err))
					return true
				}
				return false
			}
			pending = ""
			if activeOrg == nil || activeOrg.ID != d.OrgID {
				o, err := s.orgs.GetOrganizationByID(r.ctx, d.OrgID)
				if err != nil {
					if r.ctx.Err() != nil {
						return true
					}
					s.fail(r, fmt.Errorf("load organization %s: %w", d.OrgID, err))
					return true
				}
				if o == nil {
					orphaned[d.OrgID] = true
					s.orphan(r, d.OrgID)
					continue
				}
				activeOrg = o
			}
			watchOrg(d.OrgID)
			session := &domain.ActiveSession{
				Principal:    r.principal,
				Profile:      profile,
				Organization: activeOrg,
				Permissions:  profile.EffectivePermissions(d.OrgID),
			}
			if s.publish(r, domain.View{State: domain.StateReady, Session: session}) && !readyOnce {
				readyOnce = true
				telemetry.EmitAsync(s.opts.Emitter, r.ctx, &telemetrydomain.Event{
					SubjectID: subject, OrgID: d.OrgID, EventType: telemetrydomain.EventSessionReady, Source: eventSource,
				})
			}
			return false
		}
	}

	// observe handles one profile snapshot. It returns true when the run is over.
	observe := func(p *user.UserProfile) bool {
		if awaiting {
			if p == nil {
				s.opts.Counters.ProfileRetry(r.ctx)
				if budget.miss() {
					s.force(r, domain.ReasonNoProfile, budget.misses)
					return true
				}
				s.publish(r, domain.View{State: domain.StateAwaitingProfile, Retries: budget.misses})
				return false
			}
			awaiting = false
			budget.reset()
			ticker.Stop()
			deadline.Stop()
		} else if p == nil {
			s.force(r, domain.ReasonNoProfile, 0)
			return true
		}
		if profile != nil {
			s.logMembershipChanges(r, profile, p)
		}
		profile = p
		return settle()
	}

	for {
		select {
		case <-r.ctx.Done():
			return
		case err := <-r.errCh:
			s.fail(r, err)
			return
		case p := <-r.profileCh:
			if observe(p) {
				return
			}
		case <-ticker.C:
			if !awaiting {
				continue
			}
			p, err := s.profiles.Get(r.ctx, subject)
			if err != nil {
				if r.ctx.Err() != nil {
					return
				}
				log.Printf("synchronizer: read profile %s: %v", subject, err)
				continue
			}
			if observe(p) {
				return
			}
		case <-deadline.C:
			if awaiting {
				log.Printf("synchronizer: profile %s did not appear within %s", subject, s.cfg.WaitTimeout)
				s.force(r, domain.ReasonNoProfile, budget.misses)
				return
			}
		case snap := <-r.orgCh:
			if activeOrg == nil || snap.id != activeOrg.ID {
				continue
			}
			if snap.org == nil {
				orphaned[snap.id] = true
				activeOrg = nil
				s.orphan(r, snap.id)
			} else {
				activeOrg = snap.org
			}
			if profile != nil && settle() {
				return
			}
		}
	}
}

// force publishes the terminal view and signs the principal out of the credential provider.
func (s *Synchronizer) force(r *run, reason domain.Reason, retries int) {
	subject := r.principal.SubjectID
	log.Printf("synchronizer: forcing sign-out of %s: %s", subject, reason)
	v := domain.Forced(reason)
	v.Retries = retries
	if !s.publish(r, v) {
		return
	}
	ctx := context.Background()
	s.opts.Counters.ForcedSignOut(ctx, string(reason))
	telemetry.EmitAsync(s.opts.Emitter, ctx, &telemetrydomain.Event{
		SubjectID: subject, EventType: telemetrydomain.EventForcedSignOut, Source: eventSource,
		Attributes: map[string]string{"reason": string(reason)},
	})
	if s.opts.Audit != nil {
		s.opts.Audit.LogEvent(ctx, "", subject, auditdomain.ActionForcedSignOut, "session", string(reason))
	}
	if s.signOut != nil {
		if err := s.signOut(ctx); err != nil {
			log.Printf("synchronizer: sign-out of %s failed: %v", subject, err)
		}
	}
}

// fail publishes a Failed view. The run ends; the next sign-in starts over.
func (s *Synchronizer) fail(r *run, err error) {
	log.Printf("synchronizer: session of %s failed: %v", r.principal.SubjectID, err)
	s.publish(r, domain.View{
		State:   domain.StateFailed,
		Message: "Loading your account failed. Please sign in again.",
		Err:     fmt.Errorf("%w: %w", domain.ErrLoadingFailed, err),
	})
}

func (s *Synchronizer) orphan(r *run, orgID string) {
	subject := r.principal.SubjectID
	log.Printf("synchronizer: membership of %s points at missing organization %s, treating it as inaccessible", subject, orgID)
	telemetry.EmitAsync(s.opts.Emitter, r.ctx, &telemetrydomain.Event{
		SubjectID: subject, OrgID: orgID, EventType: telemetrydomain.EventOrphanedMembership, Source: eventSource,
	})
	if s.opts.Audit != nil {
		s.opts.Audit.LogEvent(r.ctx, orgID, subject, auditdomain.ActionOrphanedOrg, "organization", "")
	}
}

func (s *Synchronizer) logMembershipChanges(r *run, before, after *user.UserProfile) {
	d := membership.DiffMemberships(before.Memberships, after.Memberships)
	if d.Empty() {
		return
	}
	subject := r.principal.SubjectID
	for _, id := range d.Removed {
		log.Printf("synchronizer: %s removed from organization %s", subject, id)
	}
	telemetry.EmitAsync(s.opts.Emitter, r.ctx, &telemetrydomain.Event{
		SubjectID: subject, EventType: telemetrydomain.EventMembershipsChanged, Source: eventSource,
		Attributes: map[string]string{
			"added":   strings.Join(d.Added, ","),
			"removed": strings.Join(d.Removed, ","),
			"changed": strings.Join(d.Changed, ","),
		},
	})
}

