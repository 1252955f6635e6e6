package domain

import (
	"errors"
	"testing"

	membership "order-desk/backend/internal/membership/domain"
	org "order-desk/backend/internal/organization/domain"
)

func TestActiveSession_NilDeniesEverything(t *testing.T) {
	var s *ActiveSession
	for _, c := range membership.AllCapabilities {
		if s.Can(c) {
			t.Errorf("nil session allows %s", c)
		}
	}
	if s.OrgID() != "" {
		t.Errorf("OrgID = %q", s.OrgID())
	}
}

func TestActiveSession_Can(t *testing.T) {
	s := &ActiveSession{Organization: &org.Org{ID: "org-a"}, Permissions: membership.ApplyRolePreset(membership.RoleStaff)}
	if !s.Can(membership.CapAddRecords) || s.Can(membership.CapManageTeam) {
		t.Errorf("staff permissions = %+v", s.Permissions)
	}
	if s.OrgID() != "org-a" {
		t.Errorf("OrgID = %q", s.OrgID())
	}
}

func TestForced(t *testing.T) {
	tests := []struct {
		reason Reason
		err    error
	}{
		{ReasonNoProfile, ErrNoProfileAfterRetries},
		{ReasonNoOrganizationAccess, ErrNoOrganizationAccess},
	}
	for _, tt := range tests {
		v := Forced(tt.reason)
		if v.State != StateSignedOutForcibly || v.Session != nil {
			t.Errorf("%s: view = %+v", tt.reason, v)
		}
		if v.Message == "" {
			t.Errorf("%s: forced sign-out without message", tt.reason)
		}
		if !errors.Is(v.Err, tt.err) {
			t.Errorf("%s: err = %v, want %v", tt.reason, v.Err, tt.err)
		}
	}
}

func TestStateString(t *testing.T) {
	if StateSignedOutForcibly.String() != "signed_out_forcibly" || State(99).String() != "unknown" {
		t.Error("unexpected state names")
	}
}
