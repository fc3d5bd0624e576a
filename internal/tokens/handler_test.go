package tokens

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwttoken "opsdesk/internal/jwt_token"
	"opsdesk/pkg/domain"
	"opsdesk/pkg/platform/audit"
	"opsdesk/pkg/platform/audit/store/memory"
	"opsdesk/pkg/testutil"
)

type failingIssuer struct{}

func (failingIssuer) GenerateAccessToken(domain.Principal, time.Duration) (string, time.Time, error) {
	return "", time.Time{}, errors.New("hsm offline")
}

func newRouter(issuer Issuer, store audit.Store) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var pub audit.Publisher
	if store != nil {
		pub = publisherFunc(store.Append)
	}
	r := chi.NewRouter()
	New(issuer, time.Hour, pub, logger).Register(r)
	return r
}

type publisherFunc func(context.Context, audit.Event) error

func (f publisherFunc) Emit(ctx context.Context, e audit.Event) error { return f(ctx, e) }

func TestIssueToken(t *testing.T) {
	svc := jwttoken.NewJWTService("k", "opsdesk", "opsdesk-api")
	events := memory.NewInMemoryStore()
	router := newRouter(svc, events)

	userID := domain.NewUserID()
	tenantID := domain.NewTenantID()
	req := testutil.NewJSONRequest(t, http.MethodPost, "/tokens", map[string]any{
		"user_id":     userID.String(),
		"tenant_id":   tenantID.String(),
		"role":        " Manager ",
		"permissions": []string{"shipments:read", "shipments:read", " "},
	})
	rr := testutil.DoRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusCreated)

	resp := testutil.UnmarshalResponse[IssueResponse](t, rr)
	assert.Equal(t, "Bearer", resp.TokenType)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, tenantID.String(), claims.TenantID)
	assert.Equal(t, "manager", claims.Role)
	assert.Equal(t, []string{"shipments:read"}, claims.Permissions)

	logged, err := events.List(context.Background(), tenantID, audit.Filter{})
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, string(audit.EventTokenIssued), logged[0].Action)
}

func TestIssueTokenValidation(t *testing.T) {
	router := newRouter(jwttoken.NewJWTService("k", "i", "a"), nil)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing user", map[string]any{"tenant_id": domain.NewTenantID().String()}},
		{"bad tenant", map[string]any{"user_id": domain.NewUserID().String(), "tenant_id": "nope"}},
		{"unknown role", map[string]any{"user_id": domain.NewUserID().String(), "tenant_id": domain.NewTenantID().String(), "role": "owner"}},
		{"ttl too long", map[string]any{"user_id": domain.NewUserID().String(), "tenant_id": domain.NewTenantID().String(), "ttl_seconds": 99999999}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/tokens", tt.body))
			testutil.AssertStatus(t, rr, http.StatusBadRequest)
		})
	}
}

func TestIssueTokenSignerFailure(t *testing.T) {
	router := newRouter(failingIssuer{}, nil)
	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/tokens", map[string]any{
		"user_id":   domain.NewUserID().String(),
		"tenant_id": domain.NewTenantID().String(),
	}))
	testutil.AssertStatusAndError(t, rr, http.StatusInternalServerError, "internal_error")
}
