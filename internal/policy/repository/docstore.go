package repository

import (
	"context"
	"errors"
	"fmt"

	"order-desk/backend/internal/docstore"
	"order-desk/backend/internal/policy/domain"
)

// DocstoreRepository stores policies in the policies collection keyed by policy id.
type DocstoreRepository struct {
	store docstore.Store
}

// NewDocstoreRepository returns a policy repository over store.
func NewDocstoreRepository(store docstore.Store) *DocstoreRepository {
	return &DocstoreRepository{store: store}
}

// GetByID returns the policy, or nil if not found.
func (r *DocstoreRepository) GetByID(ctx context.Context, id string) (*domain.Policy, error) {
	doc, err := r.store.Get(ctx, docstore.CollectionPolicies, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var p domain.Policy
	if err := doc.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode policy %s: %w", id, err)
	}
	return &p, nil
}

func (r *DocstoreRepository) ListByOrg(ctx context.Context, orgID string) ([]*domain.Policy, error) {
	return r.query(ctx, docstore.Eq("organization_id", orgID))
}

func (r *DocstoreRepository) GetEnabledPoliciesByOrg(ctx context.Context, orgID string) ([]*domain.Policy, error) {
	return r.query(ctx, docstore.Eq("organization_id", orgID), docstore.Eq("enabled", true))
}

func (r *DocstoreRepository) Put(ctx context.Context, p *domain.Policy) error {
	if p.ID == "" || p.OrgID == "" {
		return errors.New("policy id and organization_id are required")
	}
	fields, err := docstore.FieldsOf(p)
	if err != nil {
		return err
	}
	return r.store.Put(ctx, docstore.CollectionPolicies, p.ID, fields, false)
}

func (r *DocstoreRepository) Delete(ctx context.Context, id string) error {
	err := r.store.Delete(ctx, docstore.CollectionPolicies, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	return err
}

func (r *DocstoreRepository) query(ctx context.Context, filters ...docstore.Filter) ([]*domain.Policy, error) {
	docs, err := r.store.Query(ctx, docstore.CollectionPolicies, filters...)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Policy, 0, len(docs))
	for _, d := range docs {
		var p domain.Policy
		if err := d.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode policy %s: %w", d.Key, err)
		}
		out = append(out, &p)
	}
	return out, nil
}
