package httpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwttoken "opsdesk/internal/jwt_token"
	"opsdesk/internal/platform/metrics"
	"opsdesk/pkg/domain"
	"opsdesk/pkg/platform/httputil"
	"opsdesk/pkg/requestcontext"
	"opsdesk/pkg/testutil"
)

type echoPrincipal struct{}

func (echoPrincipal) Register(r chi.Router) {
	r.Post("/whoami", func(w http.ResponseWriter, r *http.Request) {
		p := requestcontext.Principal(r.Context())
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"permissions": p.Permissions})
	})
}

type rawUpload struct{}

func (rawUpload) Register(r chi.Router) {
	r.Post("/upload", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		httputil.WriteJSON(w, http.StatusCreated, map[string]any{"bytes": len(body)})
	})
}

type adminPing struct{}

func (adminPing) Register(r chi.Router) {
	r.Post("/ping", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
}

type grants []string

func (g grants) GrantedPermissions(context.Context, domain.TenantID, domain.UserID) ([]string, error) {
	return g, nil
}

type routerFixture struct {
	handler http.Handler
	jwt     *jwttoken.JWTService
}

func newRouterFixture(checks map[string]HealthCheck) routerFixture {
	jwt := jwttoken.NewJWTService("test-signing-key", "opsdesk", "opsdesk-api")
	reg := prometheus.NewRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return routerFixture{
		jwt: jwt,
		handler: NewRouter(Config{
			Logger:     logger,
			Metrics:    metrics.New(reg, reg),
			AdminToken: "operator-secret",
			Validator:  jwt.Validator(),
			Grants:     grants{"documents:read"},
			Checks:     checks,
			Admin:      []Registrar{adminPing{}},
			API:        []Registrar{echoPrincipal{}},
			Raw:        []Registrar{rawUpload{}},
		}),
	}
}

func (f routerFixture) bearer(t *testing.T, p domain.Principal) string {
	t.Helper()
	token, _, err := f.jwt.GenerateAccessToken(p, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestAPIRequiresBearerToken(t *testing.T) {
	f := newRouterFixture(nil)
	rr := testutil.DoRequest(f.handler, testutil.NewJSONRequest(t, http.MethodPost, "/api/whoami", map[string]any{}))
	testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestAPIMergesGrants(t *testing.T) {
	f := newRouterFixture(nil)
	p := testutil.Principal(domain.NewTenantID(), domain.RoleMember, "shipments:read")
	req := testutil.NewJSONRequest(t, http.MethodPost, "/api/whoami", map[string]any{})
	req.Header.Set("Authorization", f.bearer(t, p))

	rr := testutil.DoRequest(f.handler, req)
	testutil.AssertStatus(t, rr, http.StatusOK)
	resp := testutil.UnmarshalResponse[struct {
		Permissions []string `json:"permissions"`
	}](t, rr)
	assert.ElementsMatch(t, []string{"shipments:read", "documents:read"}, resp.Permissions)
}

func TestJSONRoutesRejectOtherBodies(t *testing.T) {
	f := newRouterFixture(nil)
	p := testutil.Principal(domain.NewTenantID(), domain.RoleMember)

	req := testutil.NewRequestWithBody(t, http.MethodPost, "/api/whoami", "a,b,c")
	req.Header.Set("Content-Type", "text/csv")
	req.Header.Set("Authorization", f.bearer(t, p))
	testutil.AssertStatus(t, testutil.DoRequest(f.handler, req), http.StatusUnsupportedMediaType)

	req = testutil.NewRequestWithBody(t, http.MethodPost, "/api/upload", "a,b,c")
	req.Header.Set("Content-Type", "text/csv")
	req.Header.Set("Authorization", f.bearer(t, p))
	rr := testutil.DoRequest(f.handler, req)
	testutil.AssertStatus(t, rr, http.StatusCreated)
	testutil.AssertJSONContains(t, rr, "bytes", float64(5))
}

func TestAdminRoutesRequireOperatorToken(t *testing.T) {
	f := newRouterFixture(nil)
	req := testutil.NewJSONRequest(t, http.MethodPost, "/admin/ping", map[string]any{})
	testutil.AssertStatus(t, testutil.DoRequest(f.handler, req), http.StatusUnauthorized)

	req = testutil.NewJSONRequest(t, http.MethodPost, "/admin/ping", map[string]any{})
	req.Header.Set("X-Admin-Token", "operator-secret")
	testutil.AssertStatus(t, testutil.DoRequest(f.handler, req), http.StatusNoContent)
}

func TestHealthz(t *testing.T) {
	f := newRouterFixture(map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
	})
	rr := testutil.DoRequest(f.handler, testutil.NewRequest(t, http.MethodGet, "/healthz"))
	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.AssertJSONContains(t, rr, "status", "ok")

	f = newRouterFixture(map[string]HealthCheck{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})
	rr = testutil.DoRequest(f.handler, testutil.NewRequest(t, http.MethodGet, "/healthz"))
	testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)
	testutil.AssertJSONContains(t, rr, "status", "degraded")
}

func TestMetricsEndpoint(t *testing.T) {
	f := newRouterFixture(nil)
	testutil.DoRequest(f.handler, testutil.NewRequest(t, http.MethodGet, "/healthz"))

	rr := testutil.DoRequest(f.handler, testutil.NewRequest(t, http.MethodGet, "/metrics"))
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.True(t, strings.Contains(rr.Body.String(), "opsdesk_http_requests_total"))
}
