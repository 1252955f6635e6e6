package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"order-desk/backend/internal/docstore"
	"order-desk/backend/internal/invite/domain"
)

// DocstoreRepository stores codes in the invite_codes collection keyed by the code itself.
type DocstoreRepository struct {
	store docstore.Store
}

// NewDocstoreRepository returns an invite repository over store.
func NewDocstoreRepository(store docstore.Store) *DocstoreRepository {
	return &DocstoreRepository{store: store}
}

// Create inserts the code with docstore.Create so a colliding code is detected by the store, not by a prior read.
func (r *DocstoreRepository) Create(ctx context.Context, c *domain.InviteCode) error {
	fields, err := docstore.FieldsOf(c)
	if err != nil {
		return err
	}
	if err := r.store.Create(ctx, docstore.CollectionInviteCodes, c.Code, fields); err != nil {
		if errors.Is(err, docstore.ErrAlreadyExists) {
			return ErrCodeExists
		}
		return err
	}
	return nil
}

// Get returns the code, or nil if not found.
// It returns an error only for store failures, not for missing documents.
func (r *DocstoreRepository) Get(ctx context.Context, code string) (*domain.InviteCode, error) {
	doc, err := r.store.Get(ctx, docstore.CollectionInviteCodes, code)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var c domain.InviteCode
	if err := doc.Decode(&c); err != nil {
		return nil, fmt.Errorf("decode invite %s: %w", code, err)
	}
	c.Code = code
	return &c, nil
}

// MarkUsed is the redemption write: status=active is the condition, so exactly one concurrent caller wins.
func (r *DocstoreRepository) MarkUsed(ctx context.Context, code, subjectID string, at time.Time) error {
	err := r.store.PutIf(ctx, docstore.CollectionInviteCodes, code,
		docstore.Fields{"status": domain.StatusActive},
		docstore.Fields{"status": domain.StatusUsed, "used_by_subject_id": subjectID, "used_at": at.UTC()})
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return domain.ErrCodeNotFound
	case errors.Is(err, docstore.ErrConditionFailed):
		return domain.ErrCodeUsed
	}
	return err
}

// Delete removes the code document.
func (r *DocstoreRepository) Delete(ctx context.Context, code string) error {
	return r.store.Delete(ctx, docstore.CollectionInviteCodes, code)
}

// ListByStatus queries codes by status and, when given, organization.
func (r *DocstoreRepository) ListByStatus(ctx context.Context, orgID string, status domain.Status) ([]*domain.InviteCode, error) {
	filters := []docstore.Filter{docstore.Eq("status", status)}
	if orgID != "" {
		filters = append(filters, docstore.Eq("organization_id", orgID))
	}
	docs, err := r.store.Query(ctx, docstore.CollectionInviteCodes, filters...)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.InviteCode, 0, len(docs))
	for _, doc := range docs {
		var c domain.InviteCode
		if err := doc.Decode(&c); err != nil {
			return nil, fmt.Errorf("decode invite %s: %w", doc.Key, err)
		}
		c.Code = doc.Key
		out = append(out, &c)
	}
	return out, nil
}
