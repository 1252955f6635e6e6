package domain

// PermissionSet is the fixed set of capabilities a membership grants. The zero value denies everything.
type PermissionSet struct {
	CanAddRecords       bool `json:"can_add_records"`
	CanEditRecords      bool `json:"can_edit_records"`
	CanDeleteRecords    bool `json:"can_delete_records"`
	CanViewStatistics   bool `json:"can_view_statistics"`
	CanExport           bool `json:"can_export"`
	CanConfigureCatalog bool `json:"can_configure_catalog"`
	CanManageTeam       bool `json:"can_manage_team"`
	CanChangePlan       bool `json:"can_change_plan"`
}

// Capability names one field of PermissionSet. The values match the JSON field names.
type Capability string

const (
	CapAddRecords       Capability = "can_add_records"
	CapEditRecords      Capability = "can_edit_records"
	CapDeleteRecords    Capability = "can_delete_records"
	CapViewStatistics   Capability = "can_view_statistics"
	CapExport           Capability = "can_export"
	CapConfigureCatalog Capability = "can_configure_catalog"
	CapManageTeam       Capability = "can_manage_team"
	CapChangePlan       Capability = "can_change_plan"
)

// AllCapabilities lists every capability in declaration order.
var AllCapabilities = []Capability{
	CapAddRecords, CapEditRecords, CapDeleteRecords, CapViewStatistics,
	CapExport, CapConfigureCatalog, CapManageTeam, CapChangePlan,
}

// Allows reports whether the set grants c. Unknown capabilities are denied.
func (p PermissionSet) Allows(c Capability) bool {
	switch c {
	case CapAddRecords:
		return p.CanAddRecords
	case CapEditRecords:
		return p.CanEditRecords
	case CapDeleteRecords:
		return p.CanDeleteRecords
	case CapViewStatistics:
		return p.CanViewStatistics
	case CapExport:
		return p.CanExport
	case CapConfigureCatalog:
		return p.CanConfigureCatalog
	case CapManageTeam:
		return p.CanManageTeam
	case CapChangePlan:
		return p.CanChangePlan
	}
	return false
}

// AsMap returns the set keyed by capability name, the shape fed to the policy engine.
func (p PermissionSet) AsMap() map[string]bool {
	out := make(map[string]bool, len(AllCapabilities))
	for _, c := range AllCapabilities {
		out[string(c)] = p.Allows(c)
	}
	return out
}

// ApplyRolePreset returns the canned permission set for a fixed role. Custom roles get the empty set.
// Presets are applied only when a membership or invite code is created; existing memberships keep their snapshot.
func ApplyRolePreset(role Role) PermissionSet {
	switch role {
	case RoleOwner:
		return PermissionSet{
			CanAddRecords: true, CanEditRecords: true, CanDeleteRecords: true, CanViewStatistics: true,
			CanExport: true, CanConfigureCatalog: true, CanManageTeam: true, CanChangePlan: true,
		}
	case RoleAdmin:
		return PermissionSet{
			CanAddRecords: true, CanEditRecords: true, CanDeleteRecords: true, CanViewStatistics: true,
			CanExport: true, CanConfigureCatalog: true,
		}
	case RoleStaff:
		return PermissionSet{CanAddRecords: true, CanEditRecords: true, CanViewStatistics: true}
	case RoleViewer:
		return PermissionSet{CanViewStatistics: true}
	}
	return PermissionSet{}
}
