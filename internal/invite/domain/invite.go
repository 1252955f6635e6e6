package domain

import (
	"errors"
	"strings"
	"time"

	membership "order-desk/backend/internal/membership/domain"
)

// Code format: human-typable, ambiguity-reduced alphabet (no 0/O, 1/I/L).
const (
	CodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	CodeLength   = 6
)

// DefaultTTL is how long a code stays redeemable after creation.
const DefaultTTL = 30 * 24 * time.Hour

var (
	ErrCodeNotFound = errors.New("invite code not found")
	ErrCodeUsed     = errors.New("invite code already used")
	ErrCodeExpired  = errors.New("invite code expired")
)

// InviteCode is a single-use, time-limited grant of a predefined membership. Role and permissions are a snapshot
// taken at generation time.
type InviteCode struct {
	Code               string                   `json:"code"`
	OrgID              string                   `json:"organization_id"`
	Role               membership.Role          `json:"role"`
	Permissions        membership.PermissionSet `json:"permissions"`
	Status             Status                   `json:"status"`
	CreatedBySubjectID string                   `json:"created_by_subject_id"`
	TargetEmail        string                   `json:"target_email,omitempty"`
	CreatedAt          time.Time                `json:"created_at"`
	ExpiresAt          time.Time                `json:"expires_at"`
	UsedBySubjectID    string                   `json:"used_by_subject_id,omitempty"`
	UsedAt             *time.Time               `json:"used_at,omitempty"`
}

type Status string

const (
	StatusActive Status = "active"
	StatusUsed   Status = "used"
)

// IsExpired reports whether now is past ExpiresAt. Expiry is independent of status.
func (c *InviteCode) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// CheckRedeemable returns the error a redemption at now would fail with, or nil.
func (c *InviteCode) CheckRedeemable(now time.Time) error {
	if c == nil {
		return ErrCodeNotFound
	}
	if c.Status != StatusActive {
		return ErrCodeUsed
	}
	if c.IsExpired(now) {
		return ErrCodeExpired
	}
	return nil
}

// Membership builds the membership this code grants.
func (c *InviteCode) Membership() membership.Membership {
	return membership.Membership{OrgID: c.OrgID, Role: c.Role, Permissions: c.Permissions}
}

// NormalizeCode uppercases and trims user input.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidFormat reports whether code has the right length and only alphabet symbols.
func ValidFormat(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for _, r := range code {
		if !strings.ContainsRune(CodeAlphabet, r) {
			return false
		}
	}
	return true
}
