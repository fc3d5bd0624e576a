package domain

import (
	"slices"

	dErrors "opsdesk/pkg/domain-errors"
)

// Role is the coarse authorization level of a user inside a tenant.
type Role string

const (
	RoleMember     Role = "member"
	RoleManager    Role = "manager"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

// WildcardPermission grants every permission string.
const WildcardPermission = "*"

// ParseRole validates a role from external input.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid role: "+s)
	}
	return r, nil
}

func (r Role) IsValid() bool {
	switch r {
	case RoleMember, RoleManager, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	UserID      UserID   `json:"user_id"`
	TenantID    TenantID `json:"tenant_id"`
	Role        Role     `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
}

// IsAdmin is true for admin and superadmin.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin || p.Role == RoleSuperAdmin
}

// HasPermission reports whether the permission list grants perm.
// Roles are not consulted here; see authz.Can.
func (p Principal) HasPermission(perm string) bool {
	return slices.Contains(p.Permissions, perm) || slices.Contains(p.Permissions, WildcardPermission)
}

// IsAuthenticated reports whether both user and tenant are set.
func (p Principal) IsAuthenticated() bool {
	return !p.UserID.IsNil() && !p.TenantID.IsNil()
}
