package testutil

import (
	"context"
	"net/http"

	"opsdesk/pkg/domain"
	"opsdesk/pkg/requestcontext"
)

// Principal builds a caller in tenant with the given role and permissions.
func Principal(tenant domain.TenantID, role domain.Role, perms ...string) domain.Principal {
	return domain.Principal{
		UserID:      domain.NewUserID(),
		TenantID:    tenant,
		Role:        role,
		Permissions: perms,
	}
}

// WithPrincipal adds a caller to the request context.
// This simulates what the auth middleware would do for authenticated requests.
func WithPrincipal(req *http.Request, p domain.Principal) *http.Request {
	return req.WithContext(requestcontext.WithPrincipal(req.Context(), p))
}

// Ctx returns a background context carrying p.
func Ctx(p domain.Principal) context.Context {
	return requestcontext.WithPrincipal(context.Background(), p)
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
