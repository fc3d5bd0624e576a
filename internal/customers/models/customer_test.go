package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
)

func TestNewCustomer(t *testing.T) {
	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	actor := domain.NewUserID()

	c, err := NewCustomer(domain.NewTenantID(), Fields{
		Name:    "  Acme Freight ",
		Email:   " Ops@Acme.Example ",
		Company: " Acme ",
	}, now, actor)
	require.NoError(t, err)

	assert.Equal(t, "Acme Freight", c.Name)
	assert.Equal(t, "ops@acme.example", c.Email)
	assert.Equal(t, "Acme", c.Company)
	assert.Equal(t, StatusActive, c.Status)
	assert.Equal(t, now, c.CreatedAt)
	assert.Equal(t, actor, c.CreatedBy)
}

func TestNewCustomerRejectsInvalidFields(t *testing.T) {
	cases := map[string]Fields{
		"blank name":    {Name: "  ", Email: "a@b.example"},
		"long name":     {Name: strings.Repeat("x", MaxNameLength+1), Email: "a@b.example"},
		"missing email": {Name: "Acme"},
		"bad email":     {Name: "Acme", Email: "Acme <a@b.example>"},
	}
	for name, f := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewCustomer(domain.NewTenantID(), f, time.Now(), domain.NewUserID())
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		})
	}
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus(" Inactive ")
	require.NoError(t, err)
	assert.Equal(t, StatusInactive, st)

	_, err = ParseStatus("archived")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestCustomerPermissions(t *testing.T) {
	reader := domain.Principal{Role: domain.RoleMember, Permissions: []string{PermRead}}
	writer := domain.Principal{Role: domain.RoleMember, Permissions: []string{PermWrite}}
	admin := domain.Principal{Role: domain.RoleAdmin}

	assert.NoError(t, RequireRead(reader))
	assert.NoError(t, RequireRead(writer))
	assert.Error(t, RequireWrite(reader))
	assert.NoError(t, RequireWrite(writer))

	err := RequireDelete(writer)
	require.Error(t, err)
	assert.Equal(t, "Permission denied: Admin access required", dErrors.MessageOf(err))
	assert.NoError(t, RequireDelete(admin))
}

func TestCloneIsIndependent(t *testing.T) {
	c, err := NewCustomer(domain.NewTenantID(), Fields{Name: "Acme", Email: "a@b.example"}, time.Now(), domain.NewUserID())
	require.NoError(t, err)

	cp := c.Clone()
	cp.Name = "Other"
	require.NoError(t, cp.MarkDeleted(time.Now(), domain.NewUserID()))

	assert.Equal(t, "Acme", c.Name)
	assert.False(t, c.IsDeleted())
	assert.True(t, cp.IsDeleted())
}
