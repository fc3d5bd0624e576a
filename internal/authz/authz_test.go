package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
	"opsdesk/pkg/requestcontext"
)

func principal(role domain.Role, perms ...string) domain.Principal {
	return domain.Principal{UserID: domain.NewUserID(), TenantID: domain.NewTenantID(), Role: role, Permissions: perms}
}

func TestCan(t *testing.T) {
	tests := []struct {
		name string
		p    domain.Principal
		want bool
	}{
		{"admin without list", principal(domain.RoleAdmin), true},
		{"superadmin", principal(domain.RoleSuperAdmin), true},
		{"member holding permission", principal(domain.RoleMember, "shipments:write"), true},
		{"member with wildcard", principal(domain.RoleMember, "*"), true},
		{"member with other permission", principal(domain.RoleMember, "shipments:read"), false},
		{"manager with nothing", principal(domain.RoleManager), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Can(tt.p, "shipments:write"))
		})
	}
}

func TestRequire(t *testing.T) {
	err := Require(principal(domain.RoleMember), "projects:write")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	assert.Equal(t, "Permission denied: projects:write required", dErrors.MessageOf(err))

	assert.NoError(t, Require(principal(domain.RoleMember, "projects:write"), "projects:write"))
}

func TestRequireAdmin(t *testing.T) {
	err := RequireAdmin(principal(domain.RoleManager, "*"))
	require.Error(t, err)
	assert.Equal(t, "Permission denied: Admin access required", dErrors.MessageOf(err))
	assert.NoError(t, RequireAdmin(principal(domain.RoleAdmin)))
}

func TestCanModifyOwned(t *testing.T) {
	owner := principal(domain.RoleMember)
	stranger := principal(domain.RoleMember)
	manager := principal(domain.RoleMember, "projects:manage")

	assert.True(t, CanModifyOwned(owner, owner.UserID, "projects:manage"))
	assert.False(t, CanModifyOwned(stranger, owner.UserID, "projects:manage"))
	assert.True(t, CanModifyOwned(manager, owner.UserID, "projects:manage"))
	assert.True(t, CanModifyOwned(principal(domain.RoleAdmin), owner.UserID, ""))
	assert.False(t, CanModifyOwned(stranger, domain.UserID{}, ""), "nil owner never matches")

	err := RequireModifyOwned(stranger, owner.UserID, "projects:manage")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestCaller(t *testing.T) {
	_, err := Caller(context.Background())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	p := principal(domain.RoleMember)
	got, err := Caller(requestcontext.WithPrincipal(context.Background(), p))
	require.NoError(t, err)
	assert.Equal(t, p.UserID, got.UserID)
}
