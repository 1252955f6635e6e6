package repository

import (
	"context"

	"order-desk/backend/internal/policy/domain"
)

// Repository defines persistence for policies.
type Repository interface {
	// GetByID returns the policy, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Policy, error)
	ListByOrg(ctx context.Context, orgID string) ([]*domain.Policy, error)
	GetEnabledPoliciesByOrg(ctx context.Context, orgID string) ([]*domain.Policy, error)
	// Put creates or replaces the policy.
	Put(ctx context.Context, p *domain.Policy) error
	Delete(ctx context.Context, id string) error
}
