package auth

import "errors"

// Role is the access level carried in a token.
type Role string

// Roles, lowest to highest.
const (
	// RoleViewer may read the catalog, the connection view and stats.
	RoleViewer Role = "viewer"

	// RoleController may additionally connect, disconnect, pair and forget devices.
	RoleController Role = "controller"

	// RoleOwner may additionally control discovery and read the audit trail.
	RoleOwner Role = "owner"
)

// ValidRoles returns all roles in ascending order of privilege.
func ValidRoles() []Role {
	return []Role{RoleViewer, RoleController, RoleOwner}
}

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	for _, v := range ValidRoles() {
		if r == v {
			return true
		}
	}
	return false
}

// Auth errors.
var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrForbidden    = errors.New("insufficient permissions")
)
