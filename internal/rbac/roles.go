package rbac

import "calltrack/internal/auth"

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleOwner       = "owner"
	RoleManager     = "manager"
	RoleAgent       = "agent"
	RoleSuperAdmin  = auth.RoleSuperAdmin
	RoleIntegration = "integration" // hidden role: machine clients pushing calls
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

func IsHiddenRole(role string) bool { return role == RoleIntegration }
