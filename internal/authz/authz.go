// Package authz holds the permission predicates shared by every module.
// Modules compose these into their own CanX/RequireX pairs.
package authz

import (
	"context"

	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
	"opsdesk/pkg/requestcontext"
)

const adminRequired = "Permission denied: Admin access required"

// Can reports whether p is an admin or holds perm (or the wildcard).
func Can(p domain.Principal, perm string) bool {
	return p.IsAdmin() || p.HasPermission(perm)
}

// Require is Can as an error.
func Require(p domain.Principal, perm string) error {
	if !Can(p, perm) {
		return dErrors.New(dErrors.CodeForbidden, "Permission denied: "+perm+" required")
	}
	return nil
}

// RequireAdmin rejects everyone below admin.
func RequireAdmin(p domain.Principal) error {
	if !p.IsAdmin() {
		return dErrors.New(dErrors.CodeForbidden, adminRequired)
	}
	return nil
}

// CanModifyOwned allows admins, the owner, and holders of perm.
func CanModifyOwned(p domain.Principal, owner domain.UserID, perm string) bool {
	if p.IsAdmin() || (!owner.IsNil() && p.UserID == owner) {
		return true
	}
	return perm != "" && p.HasPermission(perm)
}

// RequireModifyOwned is CanModifyOwned as an error.
func RequireModifyOwned(p domain.Principal, owner domain.UserID, perm string) error {
	if !CanModifyOwned(p, owner, perm) {
		if perm == "" {
			return dErrors.New(dErrors.CodeForbidden, "Permission denied: only the owner or an admin can modify this resource")
		}
		return dErrors.New(dErrors.CodeForbidden, "Permission denied: owner or "+perm+" required")
	}
	return nil
}

// Caller returns the authenticated principal on ctx.
func Caller(ctx context.Context) (domain.Principal, error) {
	p := requestcontext.Principal(ctx)
	if !p.IsAuthenticated() {
		return domain.Principal{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return p, nil
}
