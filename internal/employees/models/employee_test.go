package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
)

func TestNewEmployeeDerivesNames(t *testing.T) {
	e, err := NewEmployee(domain.NewTenantID(), Fields{Email: "Jane.Doe@Acme.io"}, time.Now(), domain.NewUserID())
	require.NoError(t, err)
	assert.Equal(t, "Jane", e.FirstName)
	assert.Equal(t, "Doe", e.LastName)
	assert.Equal(t, "jane.doe@acme.io", e.Email)
	assert.Equal(t, StatusActive, e.Status)
}

func TestNewEmployeeRejectsBadEmail(t *testing.T) {
	_, err := NewEmployee(domain.NewTenantID(), Fields{FirstName: "Jane", Email: "jane"}, time.Now(), domain.NewUserID())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestTerminateOnce(t *testing.T) {
	e, err := NewEmployee(domain.NewTenantID(), Fields{FirstName: "Jane", Email: "jane@acme.io"}, time.Now(), domain.NewUserID())
	require.NoError(t, err)
	require.NoError(t, e.CanTerminate())
	at := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	e.ApplyTerminate(at, time.Now(), domain.NewUserID())
	assert.Equal(t, StatusTerminated, e.Status)
	assert.Equal(t, at, *e.TerminatedAt)
	assert.Error(t, e.CanTerminate())
}
