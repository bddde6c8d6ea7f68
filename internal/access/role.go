package access

import (
	"errors"
	"fmt"
	"strings"
)

// Role is a portal role tag. The set of roles is closed.
type Role string

const (
	RoleOwner Role = "owner"
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ErrUnknownRole is returned when a role tag is outside the closed set.
var ErrUnknownRole = errors.New("unknown role")

// Roles returns every role in canonical order, most privileged first.
func Roles() []Role {
	return []Role{RoleOwner, RoleAdmin, RoleUser}
}

// ParseRole converts a role tag to a Role. Matching is case-insensitive and
// ignores surrounding whitespace.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleOwner:
		return RoleOwner, nil
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleUser:
		return RoleUser, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

// Valid reports whether r is a member of the closed role set.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleUser:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}
