package handler

import (
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"opsdesk/internal/docstore/memory"
	"opsdesk/internal/emailtemplates/models"
	"opsdesk/internal/emailtemplates/service"
	"opsdesk/pkg/domain"
	"opsdesk/pkg/testutil"
)

func newRouter() http.Handler {
	r := chi.NewRouter()
	New(service.New(memory.New[*models.Template](models.Schema)), slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	return r
}

func TestTemplateRendering(t *testing.T) {
	router := newRouter()
	tenant := domain.NewTenantID()
	admin := testutil.Principal(tenant, domain.RoleAdmin)
	reader := testutil.Principal(tenant, domain.RoleMember, models.PermRead)
	var created *models.Template

	testutil.Given(t, "an admin creates a template without a key", func(t *testing.T) {
		rr := testutil.DoAs(router, testutil.NewJSONRequest(t, http.MethodPost, "/email-templates", map[string]any{
			"name":      "Shipment Delayed",
			"subject":   "Shipment {{.reference}} is delayed",
			"body":      "New ETA: {{.eta}}",
			"variables": []string{"reference", "eta"},
		}), admin)
		testutil.AssertStatus(t, rr, http.StatusCreated)
		testutil.AssertJSONContains(t, rr, "key", "shipment-delayed")
		testutil.AssertJSONContains(t, rr, "active", true)
		created = testutil.UnmarshalResponse[models.Template](t, rr)
	})

	testutil.When(t, "a reader renders it with all variables", func(t *testing.T) {
		rr := testutil.DoAs(router, testutil.NewJSONRequest(t, http.MethodPost, "/email-templates/"+created.ID.String()+"/render", map[string]any{
			"data": map[string]any{"reference": "SHP-7", "eta": "Friday"},
		}), reader)
		testutil.AssertStatus(t, rr, http.StatusOK)
		out := testutil.UnmarshalResponse[models.Rendered](t, rr)
		require.Equal(t, "Shipment SHP-7 is delayed", out.Subject)
		require.Equal(t, "New ETA: Friday", out.Body)
	})

	testutil.Then(t, "missing variables are a validation error", func(t *testing.T) {
		rr := testutil.DoAs(router, testutil.NewRequest(t, http.MethodPost, "/email-templates/"+created.ID.String()+"/render"), reader)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")
		testutil.AssertErrorDescription(t, rr, "missing template variables: eta, reference")
	})
}

func TestTemplateWritesAreAdminOnly(t *testing.T) {
	router := newRouter()
	reader := testutil.Principal(domain.NewTenantID(), domain.RoleMember, models.PermRead)
	rr := testutil.DoAs(router, testutil.NewJSONRequest(t, http.MethodPost, "/email-templates", map[string]any{
		"name": "x", "subject": "s", "body": "b",
	}), reader)
	testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")
}

func TestTemplateSyntaxError(t *testing.T) {
	router := newRouter()
	admin := testutil.Principal(domain.NewTenantID(), domain.RoleAdmin)
	rr := testutil.DoAs(router, testutil.NewJSONRequest(t, http.MethodPost, "/email-templates", map[string]any{
		"name": "Broken", "subject": "Hi", "body": "{{range .items}}",
	}), admin)
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")
}
