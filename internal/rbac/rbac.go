package rbac

// Role constants
const (
	RoleViewer   = "viewer"
	RoleOperator = "operator"
	RoleOwner    = "owner"
)

// Permission constants
const (
	PermView         = "view"
	PermCreate       = "create"
	PermDonate       = "donate"
	PermFinalize     = "finalize"
	PermRefund       = "refund"
	PermArchive      = "archive"
	PermWithdraw     = "withdraw"
	PermForceSucceed = "force_succeed"
	PermCancel       = "cancel"
)

// RolePermissions defines what each role can do.
var RolePermissions = map[string][]string{
	RoleViewer: {
		PermView,
	},
	RoleOperator: {
		PermView, PermCreate, PermDonate, PermFinalize, PermRefund, PermArchive,
		// Operator CANNOT: PermWithdraw, PermForceSucceed, PermCancel
	},
	RoleOwner: {
		PermView, PermCreate, PermDonate, PermFinalize, PermRefund, PermArchive,
		PermWithdraw, PermForceSucceed, PermCancel,
	},
}

func IsValidRole(role string) bool {
	_, ok := RolePermissions[role]
	return ok
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}

// IsOwnerOperation reports permissions that act with the campaign owner's
// authority over the treasury or the campaign itself.
func IsOwnerOperation(permission string) bool {
	return permission == PermWithdraw || permission == PermForceSucceed || permission == PermCancel
}
