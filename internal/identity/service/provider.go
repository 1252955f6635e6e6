package service

import (
	"context"

	"order-desk/backend/internal/identity/domain"
)

// Provider is the credential provider the session core consumes. LocalProvider implements it.
type Provider interface {
	CreateAccount(ctx context.Context, email, password string) (*domain.Principal, error)
	Authenticate(ctx context.Context, email, password string) (*domain.Principal, error)
	SignOut(ctx context.Context) error
	// CurrentPrincipal returns the signed-in principal, or nil.
	CurrentPrincipal() *domain.Principal
	OnSessionChange(fn func(domain.SessionEvent)) (unsubscribe func())
	// SendVerification is best-effort from the caller's point of view.
	SendVerification(ctx context.Context, principal domain.Principal) error
	SendPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) error
}

var _ Provider = (*LocalProvider)(nil)
