package repository

import (
	"context"

	"order-desk/backend/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	// ListByOrg returns the newest entries of orgID first, at most limit when limit > 0.
	ListByOrg(ctx context.Context, orgID string, limit int) ([]*domain.AuditLog, error)
}
