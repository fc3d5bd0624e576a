package models

import (
	"opsdesk/internal/authz"
	"opsdesk/pkg/domain"
)

const (
	PermRead  = "invoices:read"
	PermWrite = "invoices:write"
)

func CanRead(p domain.Principal) bool  { return authz.Can(p, PermRead) || authz.Can(p, PermWrite) }
func CanWrite(p domain.Principal) bool { return authz.Can(p, PermWrite) }

func RequireRead(p domain.Principal) error {
	if !CanRead(p) {
		return authz.Require(p, PermRead)
	}
	return nil
}

func RequireWrite(p domain.Principal) error { return authz.Require(p, PermWrite) }

// Voiding and deleting are admin only.
func RequireVoid(p domain.Principal) error   { return authz.RequireAdmin(p) }
func RequireDelete(p domain.Principal) error { return authz.RequireAdmin(p) }
