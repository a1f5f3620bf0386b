package auth

import "testing"

func TestHasPermission(t *testing.T) {
	tests := []struct {
		name string
		role Role
		perm Permission
		want bool
	}{
		{"user can read cards", RoleUser, PermCardRead, true},
		{"user can manage own cards", RoleUser, PermCardManage, true},
		{"user cannot manage all cards", RoleUser, PermCardManageAll, false},
		{"user cannot issue keys", RoleUser, PermKeyIssue, false},
		{"user cannot manage readers", RoleUser, PermReaderManage, false},
		{"admin can manage all cards", RoleAdmin, PermCardManageAll, true},
		{"admin can issue keys", RoleAdmin, PermKeyIssue, true},
		{"admin has system config", RoleAdmin, PermSystemConfig, true},
		{"owner has system config", RoleOwner, PermSystemConfig, true},
		{"unknown role has nothing", Role("ghost"), PermCardRead, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasPermission(tt.role, tt.perm); got != tt.want {
				t.Errorf("HasPermission(%q, %q) = %v, want %v", tt.role, tt.perm, got, tt.want)
			}
		})
	}
}

func TestPermissionsForRole(t *testing.T) {
	if perms := PermissionsForRole(Role("ghost")); perms != nil {
		t.Errorf("PermissionsForRole(unknown) = %v, want nil", perms)
	}

	perms := PermissionsForRole(RoleUser)
	if len(perms) == 0 {
		t.Fatal("PermissionsForRole(user) should not be empty")
	}

	// Returned slice must be a copy, not an alias of the internal map
	perms[0] = Permission("mutated")
	if HasPermission(RoleUser, Permission("mutated")) {
		t.Error("mutating returned slice leaked into internal permission table")
	}
}

func TestIsPrivileged(t *testing.T) {
	if IsPrivileged(RoleUser) {
		t.Error("user role must not be privileged")
	}
	if !IsPrivileged(RoleAdmin) {
		t.Error("admin role must be privileged")
	}
	if !IsPrivileged(RoleOwner) {
		t.Error("owner role must be privileged")
	}
}

func TestIsValidUserRole(t *testing.T) {
	for _, r := range ValidRoles {
		if !IsValidUserRole(r) {
			t.Errorf("IsValidUserRole(%q) = false, want true", r)
		}
	}
	if IsValidUserRole(Role("panel")) {
		t.Error("IsValidUserRole(panel) = true, want false")
	}
}

func TestIsValidUsername(t *testing.T) {
	valid := []string{"alice", "bob.smith", "user_01", "a-b-c"}
	for _, u := range valid {
		if !IsValidUsername(u) {
			t.Errorf("IsValidUsername(%q) = false, want true", u)
		}
	}

	invalid := []string{"", "has space", "emoji😀", "way@bad"}
	for _, u := range invalid {
		if IsValidUsername(u) {
			t.Errorf("IsValidUsername(%q) = true, want false", u)
		}
	}
}
