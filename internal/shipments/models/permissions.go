package models

import (
	"opsdesk/internal/authz"
	"opsdesk/pkg/domain"
)

const (
	PermRead  = "shipments:read"
	PermWrite = "shipments:write"
)

func CanRead(p domain.Principal) bool  { return authz.Can(p, PermRead) || authz.Can(p, PermWrite) }
func CanWrite(p domain.Principal) bool { return authz.Can(p, PermWrite) }
func CanDelete(p domain.Principal) bool {
	return p.IsAdmin()
}

func RequireRead(p domain.Principal) error {
	if !CanRead(p) {
		return authz.Require(p, PermRead)
	}
	return nil
}

func RequireWrite(p domain.Principal) error { return authz.Require(p, PermWrite) }

// RequireDelete and RequireRecalculate are admin only.
func RequireDelete(p domain.Principal) error      { return authz.RequireAdmin(p) }
func RequireRecalculate(p domain.Principal) error { return authz.RequireAdmin(p) }
