package auth

import "errors"

// Role is an authorisation tier.
type Role string

const (
	// RoleViewer may read configuration and status.
	RoleViewer Role = "viewer"

	// RoleAdmin may additionally change configuration and trigger polls.
	RoleAdmin Role = "admin"
)

// ValidRoles lists every role a token may carry.
var ValidRoles = []Role{RoleViewer, RoleAdmin}

// IsValidRole reports whether r is a known role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Sentinel errors.
var (
	ErrTokenInvalid = errors.New("auth: invalid token")
	ErrInvalidRole  = errors.New("auth: invalid role")
	ErrEmptySecret  = errors.New("auth: signing secret is empty")
)
