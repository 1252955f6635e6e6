package repository

import (
	"context"
	"errors"
	"time"

	"order-desk/backend/internal/invite/domain"
)

// ErrCodeExists is returned by Create when the code is already stored.
var ErrCodeExists = errors.New("invite code already exists")

// Repository defines persistence for invite codes.
type Repository interface {
	// Create inserts c; returns ErrCodeExists if the code is taken.
	Create(ctx context.Context, c *domain.InviteCode) error
	// Get returns the code, or nil if not found.
	Get(ctx context.Context, code string) (*domain.InviteCode, error)
	// MarkUsed flips an active code to used in one conditional write. Returns domain.ErrCodeNotFound if missing and
	// domain.ErrCodeUsed if the code is no longer active.
	MarkUsed(ctx context.Context, code, subjectID string, at time.Time) error
	Delete(ctx context.Context, code string) error
	// ListByStatus returns codes with status; orgID filters when non-empty.
	ListByStatus(ctx context.Context, orgID string, status domain.Status) ([]*domain.InviteCode, error)
}
