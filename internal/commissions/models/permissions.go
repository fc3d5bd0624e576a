package models

import (
	"opsdesk/internal/authz"
	"opsdesk/pkg/domain"
)

const (
	PermRead  = "commissions:read"
	PermWrite = "commissions:write"
)

// CanReadAll allows admins and commission managers to see every payee.
// Holders of commissions:read alone see their own commissions.
func CanReadAll(p domain.Principal) bool { return authz.Can(p, PermWrite) }

func CanRead(p domain.Principal) bool { return authz.Can(p, PermRead) || CanReadAll(p) }

func CanView(p domain.Principal, c *Commission) bool {
	return CanReadAll(p) || (authz.Can(p, PermRead) && c.IsPayee(p.UserID))
}

func RequireRead(p domain.Principal) error {
	if !CanRead(p) {
		return authz.Require(p, PermRead)
	}
	return nil
}

func RequireCreate(p domain.Principal) error { return authz.Require(p, PermWrite) }

// RequireReview guards approve, reject, pay and delete.
func RequireReview(p domain.Principal) error { return authz.RequireAdmin(p) }
