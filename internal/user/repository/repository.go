package repository

import (
	"context"
	"errors"

	"order-desk/backend/internal/docstore"
	membership "order-desk/backend/internal/membership/domain"
	"order-desk/backend/internal/user/domain"
)

var (
	// ErrProfileExists is returned by Create when the subject already has a profile.
	ErrProfileExists = errors.New("user profile already exists")
	// ErrProfileNotFound is returned by writes against a missing profile.
	ErrProfileNotFound = errors.New("user profile not found")
	// ErrNotMember is returned when a membership edit names an organization the profile does not belong to.
	ErrNotMember = errors.New("profile has no membership for organization")
	// ErrConcurrentUpdate is returned when a membership edit keeps losing to concurrent writers.
	ErrConcurrentUpdate = errors.New("user profile changed concurrently")
)

// ProfileFunc receives profile snapshots. The profile is nil when the document does not exist.
type ProfileFunc func(p *domain.UserProfile)

// Repository defines persistence for user profiles.
type Repository interface {
	// Get returns the profile for subjectID, or nil if not found.
	Get(ctx context.Context, subjectID string) (*domain.UserProfile, error)
	Create(ctx context.Context, p *domain.UserProfile) error
	// Subscribe delivers the current profile and every later change until unsubscribed or ctx is done.
	Subscribe(ctx context.Context, subjectID string, onChange ProfileFunc, onError func(error)) (docstore.Unsubscribe, error)
	// SetActiveOrganization writes only the active organization pointer.
	SetActiveOrganization(ctx context.Context, subjectID, orgID string) error
	// AddMembership appends m; with activate the active organization is set to m.OrgID in the same write.
	AddMembership(ctx context.Context, subjectID string, m membership.Membership, activate bool) error
	// UpdateMembership replaces the role and permission snapshot of the membership for orgID.
	UpdateMembership(ctx context.Context, subjectID, orgID string, role membership.Role, perms membership.PermissionSet) error
	// RemoveMembership drops the membership for orgID and clears the active pointer if it named orgID.
	RemoveMembership(ctx context.Context, subjectID, orgID string) error
	// ListByOrganization returns the profiles holding a membership for orgID.
	ListByOrganization(ctx context.Context, orgID string) ([]*domain.UserProfile, error)
}
