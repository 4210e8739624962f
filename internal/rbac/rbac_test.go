package rbac

import "testing"

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role string
		perm string
		want bool
	}{
		{RoleViewer, PermView, true},
		{RoleViewer, PermDonate, false},
		{RoleOperator, PermFinalize, true},
		{RoleOperator, PermWithdraw, false},
		{RoleOperator, PermForceSucceed, false},
		{RoleOwner, PermWithdraw, true},
		{RoleOwner, PermCancel, true},
		{"unknown", PermView, false},
	}
	for _, tt := range tests {
		if got := HasPermission(tt.role, tt.perm); got != tt.want {
			t.Errorf("HasPermission(%q, %q) = %v, want %v", tt.role, tt.perm, got, tt.want)
		}
	}
}

func TestOwnerOperationsAreOwnerOnly(t *testing.T) {
	for role := range RolePermissions {
		for _, p := range RolePermissions[role] {
			if IsOwnerOperation(p) && role != RoleOwner {
				t.Errorf("role %q has owner-only permission %q", role, p)
			}
		}
	}
}
