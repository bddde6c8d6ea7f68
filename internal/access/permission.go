package access

import (
	"fmt"
	"strings"
)

// PermissionRequest is the ordered set of roles a screen or action admits.
// The zero value admits nobody.
type PermissionRequest struct {
	roles []Role
}

// Allow builds a PermissionRequest from roles. Duplicates are dropped and
// first-seen order is kept. Invalid roles are ignored.
func Allow(roles ...Role) PermissionRequest {
	out := make([]Role, 0, len(roles))
	for _, r := range roles {
		if !r.Valid() || containsRole(out, r) {
			continue
		}
		out = append(out, r)
	}
	return PermissionRequest{roles: out}
}

// Contains reports whether role is admitted by the request.
func (p PermissionRequest) Contains(role Role) bool {
	return containsRole(p.roles, role)
}

// Roles returns a copy of the admitted roles.
func (p PermissionRequest) Roles() []Role {
	out := make([]Role, len(p.roles))
	copy(out, p.roles)
	return out
}

// Empty reports whether the request admits nobody.
func (p PermissionRequest) Empty() bool {
	return len(p.roles) == 0
}

// Equal reports whether both requests admit the same roles in the same order.
func (p PermissionRequest) Equal(other PermissionRequest) bool {
	if len(p.roles) != len(other.roles) {
		return false
	}
	for i := range p.roles {
		if p.roles[i] != other.roles[i] {
			return false
		}
	}
	return true
}

func (p PermissionRequest) String() string {
	parts := make([]string, len(p.roles))
	for i, r := range p.roles {
		parts[i] = string(r)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func containsRole(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// Named role groups used by screen configuration.
//
// AdminOrOwner and AdminGroup currently admit the same roles. They are kept
// as separate names so screens can diverge without touching every caller.
var (
	OwnerOnly    = Allow(RoleOwner)
	AdminOrOwner = Allow(RoleOwner, RoleAdmin)
	AdminGroup   = Allow(RoleOwner, RoleAdmin)
	Everyone     = Allow(RoleOwner, RoleAdmin, RoleUser)
)

// Group names as they appear in the screen table.
const (
	GroupOwnerOnly    = "owner-only"
	GroupAdminOrOwner = "admin-or-owner"
	GroupAdmin        = "admin"
	GroupEveryone     = "everyone"
)

// Group resolves a named role group.
func Group(name string) (PermissionRequest, error) {
	switch name {
	case GroupOwnerOnly:
		return OwnerOnly, nil
	case GroupAdminOrOwner:
		return AdminOrOwner, nil
	case GroupAdmin:
		return AdminGroup, nil
	case GroupEveryone:
		return Everyone, nil
	default:
		return PermissionRequest{}, fmt.Errorf("unknown role group %q", name)
	}
}
