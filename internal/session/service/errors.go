package service

import (
	"errors"

	invitedomain "order-desk/backend/internal/invite/domain"
	"order-desk/backend/internal/platform/rbac"
	sessiondomain "order-desk/backend/internal/session/domain"
)

// Failures surfaced by the facade. Credential failures come back as *identityservice.CredentialError.
var (
	ErrInvalidCode              = invitedomain.ErrCodeNotFound
	ErrCodeUsed                 = invitedomain.ErrCodeUsed
	ErrCodeExpired              = invitedomain.ErrCodeExpired
	ErrAlreadyMember            = errors.New("already a member of this organization")
	ErrAccessDenied             = rbac.ErrAccessDenied
	ErrUnauthenticated          = rbac.ErrUnauthenticated
	ErrNoProfileAfterRetries    = sessiondomain.ErrNoProfileAfterRetries
	ErrNoOrganizationAccess     = sessiondomain.ErrNoOrganizationAccess
	ErrOrganizationLimitReached = errors.New("organization limit reached for plan")
	ErrOwnerImmutable           = errors.New("the organization owner cannot be removed or demoted")
	ErrInvalidRole              = errors.New("role cannot be granted")
	ErrMemberNotFound           = errors.New("member not found")
)
