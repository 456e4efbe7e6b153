package auth

// Permission represents a named capability.
type Permission string

// Permission constants.
const (
	PermFileRead      Permission = "file:read"
	PermFileDownload  Permission = "file:download"
	PermFileDelete    Permission = "file:delete"
	PermDeviceCommand Permission = "device:command"
	PermDeviceManage  Permission = "device:manage"
	PermUserManage    Permission = "user:manage"
	PermAuditRead     Permission = "audit:read"
)

// rolePermissions maps each role to its granted permissions.
// This is the single source of truth for what each role may do.
var rolePermissions = map[Role][]Permission{
	RoleUser: {
		PermFileRead,
		PermFileDownload,
		PermFileDelete,
		PermDeviceCommand,
	},
	RoleAdmin: {
		PermFileRead,
		PermFileDownload,
		PermFileDelete,
		PermDeviceCommand,
		PermDeviceManage,
		PermUserManage,
		PermAuditRead,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	perms, ok := rolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
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

// IsAdminOnly returns true if only the admin role holds perm.
func IsAdminOnly(perm Permission) bool {
	return HasPermission(RoleAdmin, perm) && !HasPermission(RoleUser, perm)
}
