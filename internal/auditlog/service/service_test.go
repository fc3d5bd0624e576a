package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
	"opsdesk/pkg/platform/audit"
	auditmemory "opsdesk/pkg/platform/audit/store/memory"
	"opsdesk/pkg/testutil"
)

func seed(t *testing.T, store audit.Store, tenant domain.TenantID, actor domain.UserID, n int) {
	t.Helper()
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	for i := range n {
		require.NoError(t, store.Append(context.Background(), audit.Event{
			TenantID:     tenant,
			ActorID:      actor,
			Action:       string(audit.EventShipmentCreated),
			ResourceType: "shipment",
			ResourceID:   fmt.Sprintf("shp-%d", i),
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
		}))
	}
}

func TestListRequiresAdmin(t *testing.T) {
	tenant := domain.NewTenantID()
	svc := New(auditmemory.NewInMemoryStore())
	_, err := svc.List(testutil.Ctx(testutil.Principal(tenant, domain.RoleManager, "audit_logs:read")), Query{})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	assert.Equal(t, "Permission denied: Admin access required", dErrors.MessageOf(err))
}

func TestListFiltersAndScopesToTenant(t *testing.T) {
	store := auditmemory.NewInMemoryStore()
	tenant := domain.NewTenantID()
	actor := domain.NewUserID()
	seed(t, store, tenant, actor, 3)
	seed(t, store, domain.NewTenantID(), actor, 2)
	seed(t, store, tenant, domain.NewUserID(), 1)

	svc := New(store)
	ctx := testutil.Ctx(testutil.Principal(tenant, domain.RoleAdmin))

	all, err := svc.List(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	mine, err := svc.List(ctx, Query{ActorID: actor})
	require.NoError(t, err)
	require.Len(t, mine, 3)
	assert.Equal(t, "shp-2", mine[0].ResourceID, "newest first")

	one, err := svc.List(ctx, Query{ResourceType: "shipment", ResourceID: "shp-1", ActorID: actor})
	require.NoError(t, err)
	assert.Len(t, one, 1)

	limited, err := svc.List(ctx, Query{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
