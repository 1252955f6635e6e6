package service

import (
	"context"
	"errors"
	"log"
	"time"

	"order-desk/backend/internal/invite"
	"order-desk/backend/internal/invite/domain"
	"order-desk/backend/internal/invite/repository"
	membership "order-desk/backend/internal/membership/domain"
	"order-desk/backend/internal/telemetry"
)

// GenerateRequest describes the membership a new code grants.
type GenerateRequest struct {
	OrgID       string
	Role        membership.Role
	Permissions membership.PermissionSet
	CreatedBy   string
	TargetEmail string
}

// Registry generates, validates, redeems and revokes invite codes. It owns the single-use guarantee of redemption;
// it does not know about caller permissions.
type Registry struct {
	repo     repository.Repository
	ttl      time.Duration
	counters *telemetry.Counters
	now      func() time.Time
	newCode  func() (string, error)
}

// NewRegistry returns a registry. ttl <= 0 uses domain.DefaultTTL. counters may be nil.
func NewRegistry(repo repository.Repository, ttl time.Duration, counters *telemetry.Counters) *Registry {
	if ttl <= 0 {
		ttl = domain.DefaultTTL
	}
	return &Registry{repo: repo, ttl: ttl, counters: counters, now: time.Now, newCode: invite.GenerateCode}
}

// Generate stores a new active code. A colliding candidate is detected by the insert itself and a new one is drawn
// until a free code is found or ctx is done.
func (r *Registry) Generate(ctx context.Context, req GenerateRequest) (*domain.InviteCode, error) {
	if req.OrgID == "" || req.Role == "" || req.CreatedBy == "" {
		return nil, errors.New("invite: organization, role and creator are required")
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		code, err := r.newCode()
		if err != nil {
			return nil, err
		}
		now := r.now().UTC()
		c := &domain.InviteCode{
			Code:               code,
			OrgID:              req.OrgID,
			Role:               req.Role,
			Permissions:        req.Permissions,
			Status:             domain.StatusActive,
			CreatedBySubjectID: req.CreatedBy,
			TargetEmail:        req.TargetEmail,
			CreatedAt:          now,
			ExpiresAt:          now.Add(r.ttl),
		}
		err = r.repo.Create(ctx, c)
		if errors.Is(err, repository.ErrCodeExists) {
			log.Printf("invite: code collision for org %s, regenerating", req.OrgID)
			continue
		}
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Get returns the stored code or domain.ErrCodeNotFound, regardless of status.
func (r *Registry) Get(ctx context.Context, code string) (*domain.InviteCode, error) {
	code = domain.NormalizeCode(code)
	if !domain.ValidFormat(code) {
		return nil, domain.ErrCodeNotFound
	}
	c, err := r.repo.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, domain.ErrCodeNotFound
	}
	return c, nil
}

// Validate returns the code if it is active and unexpired. It does not consume it.
func (r *Registry) Validate(ctx context.Context, code string) (*domain.InviteCode, error) {
	c, err := r.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := c.CheckRedeemable(r.now()); err != nil {
		return nil, err
	}
	return c, nil
}

// Redeem consumes the code for subjectID and returns the membership it grants. Checks run in order: missing,
// used, expired. The final flip to used is a single conditional write; a caller that loses the race gets
// domain.ErrCodeUsed.
func (r *Registry) Redeem(ctx context.Context, code, subjectID string) (membership.Membership, error) {
	c, err := r.Get(ctx, code)
	if err != nil {
		return membership.Membership{}, err
	}
	now := r.now()
	if err := c.CheckRedeemable(now); err != nil {
		return membership.Membership{}, err
	}
	if err := r.repo.MarkUsed(ctx, c.Code, subjectID, now); err != nil {
		if errors.Is(err, domain.ErrCodeUsed) {
			r.counters.RedemptionConflict(ctx)
		}
		return membership.Membership{}, err
	}
	r.counters.Redeemed(ctx)
	return c.Membership(), nil
}

// Revoke deletes an active code. Used codes are kept as the record of who joined.
func (r *Registry) Revoke(ctx context.Context, code string) error {
	c, err := r.Get(ctx, code)
	if err != nil {
		return err
	}
	if c.Status != domain.StatusActive {
		return domain.ErrCodeUsed
	}
	return r.repo.Delete(ctx, c.Code)
}

// ListActive returns the organization's active, unexpired codes.
func (r *Registry) ListActive(ctx context.Context, orgID string) ([]*domain.InviteCode, error) {
	codes, err := r.repo.ListByStatus(ctx, orgID, domain.StatusActive)
	if err != nil {
		return nil, err
	}
	now := r.now()
	out := codes[:0]
	for _, c := range codes {
		if !c.IsExpired(now) {
			out = append(out, c)
		}
	}
	return out, nil
}

// PurgeExpired deletes never-redeemed codes past their expiry and returns how many were removed.
func (r *Registry) PurgeExpired(ctx context.Context) (int, error) {
	codes, err := r.repo.ListByStatus(ctx, "", domain.StatusActive)
	if err != nil {
		return 0, err
	}
	now := r.now()
	n := 0
	for _, c := range codes {
		if !c.IsExpired(now) {
			continue
		}
		if err := r.repo.Delete(ctx, c.Code); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
