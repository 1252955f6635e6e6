package domain

import (
	"errors"
	"testing"

	membership "order-desk/backend/internal/membership/domain"
)

func profileWith(ms ...membership.Membership) *UserProfile {
	return &UserProfile{SubjectID: "sub-1", Memberships: ms}
}

func TestEffectivePermissions_FailClosed(t *testing.T) {
	p := profileWith(membership.Membership{OrgID: "org-a", Role: membership.RoleOwner, Permissions: membership.ApplyRolePreset(membership.RoleOwner)})
	for _, org := range []string{"org-b", "", "ORG-A"} {
		if got := p.EffectivePermissions(org); got != (membership.PermissionSet{}) {
			t.Errorf("EffectivePermissions(%q) = %+v, want all false", org, got)
		}
	}
	var nilProfile *UserProfile
	if got := nilProfile.EffectivePermissions("org-a"); got != (membership.PermissionSet{}) {
		t.Errorf("nil profile granted %+v", got)
	}
	if got := (&UserProfile{}).EffectivePermissions("org-a"); got != (membership.PermissionSet{}) {
		t.Errorf("empty profile granted %+v", got)
	}
}

func TestEffectivePermissions_ReturnsSnapshot(t *testing.T) {
	custom := membership.PermissionSet{CanExport: true}
	p := profileWith(
		membership.Membership{OrgID: "org-a", Role: "Accountant", Permissions: custom},
		membership.Membership{OrgID: "org-b", Role: membership.RoleViewer, Permissions: membership.ApplyRolePreset(membership.RoleViewer)},
	)
	if got := p.EffectivePermissions("org-a"); got != custom {
		t.Errorf("org-a = %+v, want %+v", got, custom)
	}
	if !p.HasAccessTo("org-b") || p.HasAccessTo("org-c") {
		t.Error("HasAccessTo mismatch")
	}
}

func TestPickFallbackOrganization(t *testing.T) {
	if _, ok := profileWith().PickFallbackOrganization(); ok {
		t.Error("empty memberships must have no fallback")
	}
	p := profileWith(membership.Membership{OrgID: "org-a"}, membership.Membership{OrgID: "org-b"})
	if id, ok := p.PickFallbackOrganization(); !ok || id != "org-a" {
		t.Errorf("fallback = %q, %v", id, ok)
	}
	id, ok := p.PickFallbackOrganizationExcept(func(org string) bool { return org == "org-a" })
	if !ok || id != "org-b" {
		t.Errorf("fallback except org-a = %q, %v", id, ok)
	}
	if _, ok := p.PickFallbackOrganizationExcept(func(string) bool { return true }); ok {
		t.Error("all skipped must have no fallback")
	}
}

func TestDefaultOrganization(t *testing.T) {
	p := profileWith(membership.Membership{OrgID: "org-a"}, membership.Membership{OrgID: "org-b", IsDefault: true}, membership.Membership{OrgID: "org-c", IsDefault: true})
	if id, _ := p.DefaultOrganization(); id != "org-b" {
		t.Errorf("default = %q, want org-b", id)
	}
	p = profileWith(membership.Membership{OrgID: "org-a"})
	if id, _ := p.DefaultOrganization(); id != "org-a" {
		t.Errorf("default = %q, want org-a", id)
	}
}

func TestValidate(t *testing.T) {
	if err := (&UserProfile{}).Validate(); err == nil {
		t.Error("expected error for missing subject")
	}
	p := profileWith(membership.Membership{OrgID: "org-a", Role: membership.RoleStaff}, membership.Membership{OrgID: "org-a", Role: membership.RoleViewer})
	if err := p.Validate(); !errors.Is(err, membership.ErrDuplicateMembership) {
		t.Errorf("Validate = %v, want ErrDuplicateMembership", err)
	}
	p = profileWith(membership.Membership{OrgID: "org-a"})
	if err := p.Validate(); err == nil {
		t.Error("expected error for missing role")
	}
}
