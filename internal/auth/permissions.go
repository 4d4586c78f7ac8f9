package auth

// Permission represents a named capability in the system.
type Permission string

// Permission constants.
const (
	PermDashboardRead  Permission = "dashboard:read"
	PermServiceManage  Permission = "service:manage"
	PermAlertManage    Permission = "alert:manage"
	PermViewManage     Permission = "view:manage"
	PermAuditRead      Permission = "audit:read"
	PermUserManage     Permission = "user:manage"
	PermSecretManage   Permission = "secret:manage"
	PermSettingsManage Permission = "settings:manage"
)

// rolePermissions maps each role to its granted permissions.
// This is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermDashboardRead,
		PermAuditRead,
	},
	RoleEditor: {
		PermDashboardRead,
		PermAuditRead,
		PermServiceManage,
		PermAlertManage,
		PermViewManage,
	},
	RoleAdmin: {
		PermDashboardRead,
		PermAuditRead,
		PermServiceManage,
		PermAlertManage,
		PermViewManage,
		PermUserManage,
		PermSecretManage,
		PermSettingsManage,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns all permissions granted to a role.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}
