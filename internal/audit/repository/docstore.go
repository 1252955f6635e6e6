package repository

import (
	"context"
	"fmt"
	"sort"

	"order-desk/backend/internal/audit/domain"
	"order-desk/backend/internal/docstore"
)

// DocstoreRepository stores audit entries in the audit_logs collection keyed by entry id.
type DocstoreRepository struct {
	store docstore.Store
}

// NewDocstoreRepository returns an audit repository over store.
func NewDocstoreRepository(store docstore.Store) *DocstoreRepository {
	return &DocstoreRepository{store: store}
}

func (r *DocstoreRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	fields, err := docstore.FieldsOf(a)
	if err != nil {
		return err
	}
	return r.store.Create(ctx, docstore.CollectionAuditLogs, a.ID, fields)
}

func (r *DocstoreRepository) ListByOrg(ctx context.Context, orgID string, limit int) ([]*domain.AuditLog, error) {
	docs, err := r.store.Query(ctx, docstore.CollectionAuditLogs, docstore.Eq("organization_id", orgID))
	if err != nil {
		return nil, err
	}
	out := make([]*domain.AuditLog, 0, len(docs))
	for _, d := range docs {
		var a domain.AuditLog
		if err := d.Decode(&a); err != nil {
			return nil, fmt.Errorf("decode audit log %s: %w", d.Key, err)
		}
		out = append(out, &a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
