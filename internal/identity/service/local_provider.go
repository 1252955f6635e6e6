package service

import (
	"context"
	"errors"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"order-desk/backend/internal/identity/domain"
	"order-desk/backend/internal/identity/repository"
	"order-desk/backend/internal/notify"
	"order-desk/backend/internal/security"
)

// DefaultResetTTL is how long a password reset token stays valid.
const DefaultResetTTL = time.Hour

// LocalProvider is a credential provider over locally stored bcrypt credentials. It holds the one signed-in
// principal of this process and notifies listeners on sign-in and sign-out.
type LocalProvider struct {
	repo     repository.Repository
	hasher   *security.Hasher
	tokens   *security.TokenProvider
	notifier notify.Sender
	resetTTL time.Duration
	now      func() time.Time

	mu        sync.Mutex
	current   *domain.Principal
	idToken   string
	listeners map[int]func(domain.SessionEvent)
	nextID    int
}

// NewLocalProvider returns a provider. tokens and notifier may be nil: no id token is issued and notices are dropped.
func NewLocalProvider(repo repository.Repository, hasher *security.Hasher, tokens *security.TokenProvider, notifier notify.Sender, resetTTL time.Duration) *LocalProvider {
	if resetTTL <= 0 {
		resetTTL = DefaultResetTTL
	}
	return &LocalProvider{
		repo:      repo,
		hasher:    hasher,
		tokens:    tokens,
		notifier:  notifier,
		resetTTL:  resetTTL,
		now:       time.Now,
		listeners: make(map[int]func(domain.SessionEvent)),
	}
}

// CreateAccount registers email/password and signs the new principal in.
func (p *LocalProvider) CreateAccount(ctx context.Context, email, password string) (*domain.Principal, error) {
	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	hashed, err := p.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	now := p.now().UTC()
	cred := &domain.Credential{
		Email:             email,
		SubjectID:         uuid.New().String(),
		PasswordHash:      hashed,
		CreatedAt:         now,
		PasswordChangedAt: now,
	}
	if err := p.repo.Create(ctx, cred); err != nil {
		if errors.Is(err, repository.ErrCredentialExists) {
			return nil, credentialError(ErrEmailAlreadyRegistered, "An account with this email already exists.")
		}
		return nil, err
	}
	principal := cred.Principal()
	if err := p.signIn(principal); err != nil {
		return nil, err
	}
	return &principal, nil
}

// Authenticate checks email/password and signs the principal in. Unknown email and wrong password fail the same way.
func (p *LocalProvider) Authenticate(ctx context.Context, email, password string) (*domain.Principal, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, credentialError(ErrInvalidCredentials, "Invalid email or password.")
	}
	cred, err := p.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if cred == nil || cred.PasswordHash == "" {
		return nil, credentialError(ErrInvalidCredentials, "Invalid email or password.")
	}
	if err := p.hasher.Compare(cred.PasswordHash, password); err != nil {
		if errors.Is(err, security.ErrPasswordMismatch) {
			return nil, credentialError(ErrInvalidCredentials, "Invalid email or password.")
		}
		return nil, err
	}
	principal := cred.Principal()
	if err := p.signIn(principal); err != nil {
		return nil, err
	}
	return &principal, nil
}

// signIn replaces the current principal. A different principal already signed in is signed out first.
func (p *LocalProvider) signIn(principal domain.Principal) error {
	var token string
	if p.tokens != nil {
		t, _, err := p.tokens.IssueID(principal.SubjectID, principal.Email)
		if err != nil {
			return err
		}
		token = t
	}
	p.mu.Lock()
	prev := p.current
	pr := principal
	p.current = &pr
	p.idToken = token
	p.mu.Unlock()
	if prev != nil && prev.SubjectID != principal.SubjectID {
		p.emit(domain.SessionEvent{Kind: domain.SignedOut, Principal: *prev})
	}
	p.emit(domain.SessionEvent{Kind: domain.SignedIn, Principal: principal})
	return nil
}

// SignOut clears the current principal. No-op when nobody is signed in.
func (p *LocalProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	prev := p.current
	p.current = nil
	p.idToken = ""
	p.mu.Unlock()
	if prev != nil {
		p.emit(domain.SessionEvent{Kind: domain.SignedOut, Principal: *prev})
	}
	return nil
}

// CurrentPrincipal returns the signed-in principal, or nil.
func (p *LocalProvider) CurrentPrincipal() *domain.Principal {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	pr := *p.current
	return &pr
}

// IDToken returns the id token of the current sign-in, or "" when signed out or no token provider is set.
func (p *LocalProvider) IDToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idToken
}

// OnSessionChange registers fn for sign-in and sign-out events. Events are delivered synchronously on the
// goroutine that caused them.
func (p *LocalProvider) OnSessionChange(fn func(domain.SessionEvent)) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

func (p *LocalProvider) emit(ev domain.SessionEvent) {
	p.mu.Lock()
	ids := make([]int, 0, len(p.listeners))
	for id := range p.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(domain.SessionEvent), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, p.listeners[id])
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// SendVerification issues a verification token for the principal and sends it.
func (p *LocalProvider) SendVerification(ctx context.Context, principal domain.Principal) error {
	token, hash, err := security.NewResetToken()
	if err != nil {
		return err
	}
	if err := p.repo.SetVerifyToken(ctx, principal.Email, hash); err != nil {
		return err
	}
	return p.send(ctx, notify.Notice{Kind: notify.KindVerification, To: principal.Email, SubjectID: principal.SubjectID, Token: token})
}

// VerifyEmail consumes a verification token.
func (p *LocalProvider) VerifyEmail(ctx context.Context, token string) error {
	hash := security.HashResetToken(token)
	cred, err := p.repo.GetByVerifyTokenHash(ctx, hash)
	if err != nil {
		return err
	}
	if token == "" || cred == nil {
		return credentialError(ErrInvalidVerifyToken, "This verification link is no longer valid.")
	}
	if err := p.repo.MarkEmailVerified(ctx, cred.Email, hash); err != nil {
		if errors.Is(err, repository.ErrTokenConsumed) {
			return credentialError(ErrInvalidVerifyToken, "This verification link is no longer valid.")
		}
		return err
	}
	return nil
}

// SendPasswordReset issues a reset token and sends it. Unknown emails succeed silently so the call does not reveal
// which addresses are registered.
func (p *LocalProvider) SendPasswordReset(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}
	cred, err := p.repo.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if cred == nil {
		log.Printf("identity: password reset requested for unknown email")
		return nil
	}
	token, hash, err := security.NewResetToken()
	if err != nil {
		return err
	}
	expiresAt := p.now().UTC().Add(p.resetTTL)
	if err := p.repo.SetResetToken(ctx, email, hash, expiresAt); err != nil {
		return err
	}
	return p.send(ctx, notify.Notice{Kind: notify.KindPasswordReset, To: email, SubjectID: cred.SubjectID, Token: token, ExpiresAt: expiresAt})
}

// ConfirmPasswordReset sets a new password using a reset token. The token works once and only before it expires.
func (p *LocalProvider) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	invalid := credentialError(ErrInvalidResetToken, "This reset link is invalid or has expired.")
	if token == "" {
		return invalid
	}
	hash := security.HashResetToken(token)
	cred, err := p.repo.GetByResetTokenHash(ctx, hash)
	if err != nil {
		return err
	}
	if cred == nil || !security.ResetTokenHashEqual(token, cred.ResetTokenHash) {
		return invalid
	}
	if cred.ResetExpiresAt == nil || p.now().After(*cred.ResetExpiresAt) {
		return invalid
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	hashed, err := p.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := p.repo.UpdatePassword(ctx, cred.Email, hash, hashed, p.now()); err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) || errors.Is(err, repository.ErrTokenConsumed) {
			return invalid
		}
		return err
	}
	return nil
}

func (p *LocalProvider) send(ctx context.Context, n notify.Notice) error {
	if p.notifier == nil {
		log.Printf("identity: no notifier configured, dropping %s notice", n.Kind)
		return nil
	}
	return p.notifier.Send(ctx, n)
}
