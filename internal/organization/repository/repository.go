package repository

import (
	"context"
	"errors"

	"order-desk/backend/internal/docstore"
	"order-desk/backend/internal/organization/domain"
)

// ErrOrganizationExists is returned by CreateOrganization when the id is taken.
var ErrOrganizationExists = errors.New("organization already exists")

// OrgFunc receives organization snapshots. The organization is nil when the document does not exist.
type OrgFunc func(o *domain.Org)

// Repository defines persistence for organizations.
type Repository interface {
	// GetOrganizationByID returns the organization, or nil if not found.
	GetOrganizationByID(ctx context.Context, id string) (*domain.Org, error)
	CreateOrganization(ctx context.Context, o *domain.Org) error
	// UpdateSubscription merges the subscription and the limits derived from it.
	UpdateSubscription(ctx context.Context, id string, sub domain.Subscription) error
	// ListByOwner returns the organizations founded by ownerSubjectID.
	ListByOwner(ctx context.Context, ownerSubjectID string) ([]*domain.Org, error)
	Subscribe(ctx context.Context, id string, onChange OrgFunc, onError func(error)) (docstore.Unsubscribe, error)
}
