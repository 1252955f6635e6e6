package repository

import (
	"context"
	"errors"
	"time"

	"order-desk/backend/internal/identity/domain"
)

// ErrCredentialExists is returned by Create when the email is already registered.
var ErrCredentialExists = errors.New("credential already exists")

// ErrCredentialNotFound is returned by writes against a missing credential.
var ErrCredentialNotFound = errors.New("credential not found")

// ErrTokenConsumed is returned when a token-guarded write finds the token already used or replaced.
var ErrTokenConsumed = errors.New("token already consumed")

// Repository defines persistence for local credentials.
type Repository interface {
	Create(ctx context.Context, c *domain.Credential) error
	// GetByEmail returns the credential, or nil if not found.
	GetByEmail(ctx context.Context, email string) (*domain.Credential, error)
	// GetByResetTokenHash returns the credential holding the reset token hash, or nil.
	GetByResetTokenHash(ctx context.Context, hash string) (*domain.Credential, error)
	// GetByVerifyTokenHash returns the credential holding the verification token hash, or nil.
	GetByVerifyTokenHash(ctx context.Context, hash string) (*domain.Credential, error)
	SetResetToken(ctx context.Context, email, hash string, expiresAt time.Time) error
	SetVerifyToken(ctx context.Context, email, hash string) error
	// UpdatePassword stores a new hash and clears any reset token, only if the reset token hash still matches.
	UpdatePassword(ctx context.Context, email, resetHash, passwordHash string, at time.Time) error
	// MarkEmailVerified sets email_verified, only if the verification token hash still matches.
	MarkEmailVerified(ctx context.Context, email, verifyHash string) error
}
