package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"order-desk/backend/internal/docstore"
	"order-desk/backend/internal/organization/domain"
)

// DocstoreRepository stores organizations in the organizations collection keyed by id.
type DocstoreRepository struct {
	store docstore.Store
	now   func() time.Time
}

// NewDocstoreRepository returns an organization repository over store.
func NewDocstoreRepository(store docstore.Store) *DocstoreRepository {
	return &DocstoreRepository{store: store, now: time.Now}
}

// GetOrganizationByID returns the organization for id, or nil if not found.
// It returns an error only for store failures, not for missing documents.
func (r *DocstoreRepository) GetOrganizationByID(ctx context.Context, id string) (*domain.Org, error) {
	doc, err := r.store.Get(ctx, docstore.CollectionOrganizations, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return decodeOrg(doc.Key, doc.Decode)
}

// CreateOrganization persists a new organization. The organization must have ID set.
func (r *DocstoreRepository) CreateOrganization(ctx context.Context, o *domain.Org) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = r.now().UTC()
	}
	fields, err := docstore.FieldsOf(o)
	if err != nil {
		return err
	}
	if err := r.store.Create(ctx, docstore.CollectionOrganizations, o.ID, fields); err != nil {
		if errors.Is(err, docstore.ErrAlreadyExists) {
			return ErrOrganizationExists
		}
		return err
	}
	return nil
}

// UpdateSubscription merges sub and the plan's default limits into an existing organization.
func (r *DocstoreRepository) UpdateSubscription(ctx context.Context, id string, sub domain.Subscription) error {
	return r.store.PutIf(ctx, docstore.CollectionOrganizations, id,
		docstore.Fields{"id": id},
		docstore.Fields{"subscription": sub, "limits": domain.DefaultLimits(sub.Plan)})
}

// ListByOwner queries organizations by owner_subject_id.
func (r *DocstoreRepository) ListByOwner(ctx context.Context, ownerSubjectID string) ([]*domain.Org, error) {
	docs, err := r.store.Query(ctx, docstore.CollectionOrganizations, docstore.Eq("owner_subject_id", ownerSubjectID))
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Org, 0, len(docs))
	for _, doc := range docs {
		o, err := decodeOrg(doc.Key, doc.Decode)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// Subscribe decodes every snapshot of the organization document.
func (r *DocstoreRepository) Subscribe(ctx context.Context, id string, onChange OrgFunc, onError func(error)) (docstore.Unsubscribe, error) {
	return r.store.Subscribe(ctx, docstore.CollectionOrganizations, id, func(s docstore.Snapshot) {
		if !s.Exists {
			onChange(nil)
			return
		}
		o, err := decodeOrg(id, s.Decode)
		if err != nil {
			onError(err)
			return
		}
		onChange(o)
	}, onError)
}

func decodeOrg(id string, decode func(any) error) (*domain.Org, error) {
	var o domain.Org
	if err := decode(&o); err != nil {
		return nil, fmt.Errorf("decode organization %s: %w", id, err)
	}
	o.ID = id
	return &o, nil
}
