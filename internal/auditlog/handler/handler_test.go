package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"opsdesk/internal/auditlog/service"
	"opsdesk/pkg/domain"
	"opsdesk/pkg/platform/audit"
	auditmemory "opsdesk/pkg/platform/audit/store/memory"
	"opsdesk/pkg/testutil"
)

func router(store audit.Store) http.Handler {
	r := chi.NewRouter()
	New(service.New(store), slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	return r
}

func TestAuditLogHandler(t *testing.T) {
	store := auditmemory.NewInMemoryStore()
	tenant := domain.NewTenantID()
	actor := domain.NewUserID()
	for _, id := range []string{"inv-1", "inv-2"} {
		require.NoError(t, store.Append(context.Background(), audit.Event{
			TenantID:     tenant,
			ActorID:      actor,
			Action:       string(audit.EventInvoiceCreated),
			ResourceType: "invoice",
			ResourceID:   id,
		}))
	}
	h := router(store)
	admin := testutil.Principal(tenant, domain.RoleAdmin)

	testutil.Given(t, "an admin caller", func(t *testing.T) {
		testutil.When(t, "filtering by resource id", func(t *testing.T) {
			req := testutil.NewRequest(t, http.MethodGet, "/audit-logs?resource_type=invoice&resource_id=inv-2&actor_id="+actor.String())
			rr := testutil.DoAs(h, req, admin)
			testutil.Then(t, "only the matching event is returned", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusOK)
				testutil.AssertJSONContains(t, rr, "count", float64(1))
			})
		})
		testutil.When(t, "actor_id is malformed", func(t *testing.T) {
			rr := testutil.DoAs(h, testutil.NewRequest(t, http.MethodGet, "/audit-logs?actor_id=bob"), admin)
			testutil.Then(t, "the request is rejected", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusBadRequest)
			})
		})
	})

	testutil.Given(t, "a non-admin caller", func(t *testing.T) {
		rr := testutil.DoAs(h, testutil.NewRequest(t, http.MethodGet, "/audit-logs"), testutil.Principal(tenant, domain.RoleMember))
		testutil.Then(t, "access is forbidden", func(t *testing.T) {
			testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")
		})
	})
}
