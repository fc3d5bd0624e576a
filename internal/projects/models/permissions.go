package models

import (
	"opsdesk/internal/authz"
	"opsdesk/pkg/domain"
)

const (
	PermRead   = "projects:read"
	PermWrite  = "projects:write"
	PermManage = "projects:manage"
)

func CanRead(p domain.Principal) bool {
	return authz.Can(p, PermRead) || authz.Can(p, PermWrite) || authz.Can(p, PermManage)
}

func CanCreate(p domain.Principal) bool { return authz.Can(p, PermWrite) }

// CanModify allows the project owner, admins and projects:manage holders.
func CanModify(p domain.Principal, project *Project) bool {
	return authz.CanModifyOwned(p, project.OwnerID, PermManage)
}

func RequireRead(p domain.Principal) error {
	if !CanRead(p) {
		return authz.Require(p, PermRead)
	}
	return nil
}

func RequireCreate(p domain.Principal) error { return authz.Require(p, PermWrite) }

func RequireModify(p domain.Principal, project *Project) error {
	return authz.RequireModifyOwned(p, project.OwnerID, PermManage)
}
