package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"order-desk/backend/internal/docstore"
	membership "order-desk/backend/internal/membership/domain"
	"order-desk/backend/internal/user/domain"
)

const maxEditAttempts = 5

// DocstoreRepository stores profiles in the users collection keyed by subject id.
type DocstoreRepository struct {
	store docstore.Store
	now   func() time.Time
}

// NewDocstoreRepository returns a profile repository over store.
func NewDocstoreRepository(store docstore.Store) *DocstoreRepository {
	return &DocstoreRepository{store: store, now: time.Now}
}

// Get returns the profile for subjectID, or nil if not found.
// It returns an error only for store failures, not for missing documents.
func (r *DocstoreRepository) Get(ctx context.Context, subjectID string) (*domain.UserProfile, error) {
	doc, err := r.store.Get(ctx, docstore.CollectionUsers, subjectID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var p domain.UserProfile
	if err := doc.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", subjectID, err)
	}
	p.SubjectID = subjectID
	return &p, nil
}

// Create persists a new profile. Timestamps are set when zero.
func (r *DocstoreRepository) Create(ctx context.Context, p *domain.UserProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	now := r.now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	if p.Memberships == nil {
		p.Memberships = []membership.Membership{}
	}
	fields, err := docstore.FieldsOf(p)
	if err != nil {
		return err
	}
	if err := r.store.Create(ctx, docstore.CollectionUsers, p.SubjectID, fields); err != nil {
		if errors.Is(err, docstore.ErrAlreadyExists) {
			return ErrProfileExists
		}
		return err
	}
	return nil
}

// Subscribe decodes every snapshot of the profile document. Undecodable snapshots are reported to onError.
func (r *DocstoreRepository) Subscribe(ctx context.Context, subjectID string, onChange ProfileFunc, onError func(error)) (docstore.Unsubscribe, error) {
	return r.store.Subscribe(ctx, docstore.CollectionUsers, subjectID, func(s docstore.Snapshot) {
		if !s.Exists {
			onChange(nil)
			return
		}
		var p domain.UserProfile
		if err := s.Decode(&p); err != nil {
			onError(fmt.Errorf("decode profile %s: %w", subjectID, err))
			return
		}
		p.SubjectID = subjectID
		onChange(&p)
	}, onError)
}

// SetActiveOrganization merges the active pointer into an existing profile.
func (r *DocstoreRepository) SetActiveOrganization(ctx context.Context, subjectID, orgID string) error {
	err := r.store.PutIf(ctx, docstore.CollectionUsers, subjectID,
		docstore.Fields{"subject_id": subjectID},
		docstore.Fields{"active_organization_id": orgID, "updated_at": r.now().UTC()})
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrProfileNotFound
	}
	return err
}

// AddMembership appends m unless the profile already holds a membership for m.OrgID.
func (r *DocstoreRepository) AddMembership(ctx context.Context, subjectID string, m membership.Membership, activate bool) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return r.editMemberships(ctx, subjectID, func(p *domain.UserProfile) (docstore.Fields, error) {
		if p.HasAccessTo(m.OrgID) {
			return nil, membership.ErrDuplicateMembership
		}
		p.Memberships = append(p.Memberships, m)
		if activate {
			return docstore.Fields{"active_organization_id": m.OrgID}, nil
		}
		return nil, nil
	})
}

// UpdateMembership replaces role and permissions; the default flag is kept.
func (r *DocstoreRepository) UpdateMembership(ctx context.Context, subjectID, orgID string, role membership.Role, perms membership.PermissionSet) error {
	return r.editMemberships(ctx, subjectID, func(p *domain.UserProfile) (docstore.Fields, error) {
		for i := range p.Memberships {
			if p.Memberships[i].OrgID == orgID {
				p.Memberships[i].Role = role
				p.Memberships[i].Permissions = perms
				return nil, nil
			}
		}
		return nil, ErrNotMember
	})
}

// RemoveMembership drops every membership for orgID.
func (r *DocstoreRepository) RemoveMembership(ctx context.Context, subjectID, orgID string) error {
	return r.editMemberships(ctx, subjectID, func(p *domain.UserProfile) (docstore.Fields, error) {
		kept := make([]membership.Membership, 0, len(p.Memberships))
		for _, m := range p.Memberships {
			if m.OrgID != orgID {
				kept = append(kept, m)
			}
		}
		if len(kept) == len(p.Memberships) {
			return nil, ErrNotMember
		}
		p.Memberships = kept
		if p.ActiveOrganizationID == orgID {
			return docstore.Fields{"active_organization_id": ""}, nil
		}
		return nil, nil
	})
}

// ListByOrganization queries profiles whose memberships contain orgID.
func (r *DocstoreRepository) ListByOrganization(ctx context.Context, orgID string) ([]*domain.UserProfile, error) {
	docs, err := r.store.Query(ctx, docstore.CollectionUsers,
		docstore.ArrayContains("memberships", map[string]any{"organization_id": orgID}))
	if err != nil {
		return nil, err
	}
	out := make([]*domain.UserProfile, 0, len(docs))
	for _, doc := range docs {
		var p domain.UserProfile
		if err := doc.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode profile %s: %w", doc.Key, err)
		}
		p.SubjectID = doc.Key
		out = append(out, &p)
	}
	return out, nil
}

// editMemberships runs a read-modify-write of the membership list guarded by the revision field. Only the
// memberships, revision, updated_at and any extra fields returned by fn are written, so concurrent writes to other
// fields (such as the active pointer) are not clobbered.
func (r *DocstoreRepository) editMemberships(ctx context.Context, subjectID string, fn func(p *domain.UserProfile) (docstore.Fields, error)) error {
	for attempt := 0; attempt < maxEditAttempts; attempt++ {
		p, err := r.Get(ctx, subjectID)
		if err != nil {
			return err
		}
		if p == nil {
			return ErrProfileNotFound
		}
		rev := p.Revision
		extra, err := fn(p)
		if err != nil {
			return err
		}
		fields := docstore.Fields{
			"memberships": p.Memberships,
			"revision":    rev + 1,
			"updated_at":  r.now().UTC(),
		}
		for k, v := range extra {
			fields[k] = v
		}
		err = r.store.PutIf(ctx, docstore.CollectionUsers, subjectID, docstore.Fields{"revision": rev}, fields)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, docstore.ErrConditionFailed):
			continue
		case errors.Is(err, docstore.ErrNotFound):
			return ErrProfileNotFound
		default:
			return err
		}
	}
	return ErrConcurrentUpdate
}
