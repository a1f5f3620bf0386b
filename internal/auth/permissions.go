package auth

// Permission represents a named capability in the system.
type Permission string

// Permission constants.
const (
	PermCardRead      Permission = "card:read"
	PermCardManage    Permission = "card:manage"     // own cards only unless card:manage:all
	PermCardManageAll Permission = "card:manage:all" // toggle disablement on any card
	PermReaderManage  Permission = "reader:manage"
	PermKeyIssue      Permission = "key:issue"
	PermUserManage    Permission = "user:manage"
	PermSystemConfig  Permission = "system:config"
)

// rolePermissions maps each role to its granted permissions.
// This is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleUser: {
		PermCardRead,
		PermCardManage, // owner-scoped: only cards the user owns
	},
	RoleAdmin: {
		PermCardRead,
		PermCardManage,
		PermCardManageAll,
		PermReaderManage,
		PermKeyIssue,
		PermUserManage,
		PermSystemConfig,
	},
	RoleOwner: {
		PermCardRead,
		PermCardManage,
		PermCardManageAll,
		PermReaderManage,
		PermKeyIssue,
		PermUserManage,
		PermSystemConfig,
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

// IsPrivileged returns true if the role bypasses owner scoping — it can see
// and manage every card, not just its own.
func IsPrivileged(role Role) bool {
	return HasPermission(role, PermCardManageAll)
}
