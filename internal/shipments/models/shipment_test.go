package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
)

func TestNewShipment(t *testing.T) {
	now := time.Now()
	actor := domain.NewUserID()

	_, err := NewShipment(domain.NewTenantID(), "", "A", "B", "", nil, nil, now, actor)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = NewShipment(domain.NewTenantID(), "R", "A", "  ", "", nil, nil, now, actor)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	long := make([]byte, MaxReferenceLength+1)
	for i := range long {
		long[i] = 'x'
	}
	_, err = NewShipment(domain.NewTenantID(), string(long), "A", "B", "", nil, nil, now, actor)
	assert.Error(t, err)

	sh, err := NewShipment(domain.NewTenantID(), " R-1 ", "A", "B", "", nil, nil, now, actor)
	require.NoError(t, err)
	assert.Equal(t, "R-1", sh.Reference)
	assert.Equal(t, StatusPending, sh.Status)
}

func TestStatusTransitions(t *testing.T) {
	allowed := map[Status][]Status{
		StatusPending:        {StatusPickedUp, StatusCancelled},
		StatusPickedUp:       {StatusInTransit, StatusCancelled},
		StatusInTransit:      {StatusOutForDelivery, StatusDelivered, StatusCancelled},
		StatusOutForDelivery: {StatusDelivered, StatusInTransit, StatusCancelled},
		StatusDelivered:      nil,
		StatusCancelled:      nil,
	}
	all := []Status{StatusPending, StatusPickedUp, StatusInTransit, StatusOutForDelivery, StatusDelivered, StatusCancelled}
	for from, targets := range allowed {
		for _, to := range all {
			want := false
			for _, t := range targets {
				if t == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
	assert.True(t, StatusDelivered.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusInTransit.IsTerminal())
}

func TestCloneIsDeep(t *testing.T) {
	deadline := time.Now()
	customer := domain.NewCustomerID()
	sh, err := NewShipment(domain.NewTenantID(), "R", "A", "B", "", &customer, &deadline, time.Now(), domain.NewUserID())
	require.NoError(t, err)

	c := sh.Clone()
	*c.SLADeadline = deadline.Add(time.Hour)
	*c.CustomerID = domain.NewCustomerID()
	assert.True(t, sh.SLADeadline.Equal(deadline))
	assert.Equal(t, customer, *sh.CustomerID)
}

func TestPermissions(t *testing.T) {
	tenant := domain.NewTenantID()
	writer := domain.Principal{UserID: domain.NewUserID(), TenantID: tenant, Role: domain.RoleMember, Permissions: []string{PermWrite}}
	nobody := domain.Principal{UserID: domain.NewUserID(), TenantID: tenant, Role: domain.RoleMember}

	assert.True(t, CanRead(writer), "write implies read")
	assert.False(t, CanRead(nobody))
	assert.False(t, CanDelete(writer))
	assert.Error(t, RequireRecalculate(writer))
}
