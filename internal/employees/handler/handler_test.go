package handler

import (
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"

	"opsdesk/internal/docstore/memory"
	"opsdesk/internal/employees/models"
	"opsdesk/internal/employees/service"
	"opsdesk/pkg/domain"
	"opsdesk/pkg/testutil"
)

func TestEmployeeRoutes(t *testing.T) {
	r := chi.NewRouter()
	New(service.New(memory.New[*models.Employee](models.Schema)), slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)

	tenant := domain.NewTenantID()
	admin := testutil.Principal(tenant, domain.RoleAdmin)
	member := testutil.Principal(tenant, domain.RoleMember, models.PermRead)

	testutil.Given(t, "a member without admin rights", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/employees", map[string]any{"email": "jane@acme.io"})
		testutil.AssertStatusAndError(t, testutil.DoAs(r, req, member), http.StatusForbidden, "forbidden")
	})

	var created *models.Employee
	testutil.When(t, "an admin hires from an email only", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/employees", map[string]any{"email": "jane.doe@acme.io", "department": "Ops"})
		rr := testutil.DoAs(r, req, admin)
		testutil.AssertStatus(t, rr, http.StatusCreated)
		created = testutil.UnmarshalResponse[models.Employee](t, rr)
		testutil.AssertJSONContains(t, rr, "firstName", "Jane")
	})

	testutil.Then(t, "terminate without a body uses the request time", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodPost, "/employees/"+created.ID.String()+"/terminate")
		rr := testutil.DoAs(r, req, admin)
		testutil.AssertStatus(t, rr, http.StatusOK)
		testutil.AssertJSONContains(t, rr, "status", "terminated")
		testutil.AssertJSONHasKey(t, rr, "terminatedAt")

		rr = testutil.DoAs(r, testutil.NewRequest(t, http.MethodGet, "/employees?status=terminated"), member)
		testutil.AssertJSONContains(t, rr, "count", float64(1))
	})
}

func TestListRejectsUnknownStatus(t *testing.T) {
	r := chi.NewRouter()
	New(service.New(memory.New[*models.Employee](models.Schema)), slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	p := testutil.Principal(domain.NewTenantID(), domain.RoleAdmin)
	testutil.AssertStatus(t, testutil.DoAs(r, testutil.NewRequest(t, http.MethodGet, "/employees?status=retired"), p), http.StatusBadRequest)
}
