package models

// Role is an access level carried in API token claims.
type Role string

const (
	// RoleRead grants read-only access to meshes, gateways, and policies.
	RoleRead Role = "read"

	// RoleWrite grants create/update/delete access.
	RoleWrite Role = "write"

	// RoleAdmin grants write access plus token administration.
	RoleAdmin Role = "admin"
)

// HasRole reports whether the given role list contains the wanted role.
func HasRole(roles []Role, want Role) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}
