// Package admin guards operator routes with a static shared token.
package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	dErrors "opsdesk/pkg/domain-errors"
	"opsdesk/pkg/platform/httputil"
	request "opsdesk/pkg/platform/middleware/request"
)

// HeaderAdminToken carries the operator token for /admin routes.
const HeaderAdminToken = "X-Admin-Token"

// RequireAdminToken guards operator endpoints. An empty expected token
// disables the routes entirely.
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	want := []byte(expectedToken)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sent := r.Header.Get(HeaderAdminToken)
			var reason string
			switch {
			case len(want) == 0:
				reason = "admin routes are disabled"
			case sent == "":
				reason = "admin token required"
			case subtle.ConstantTimeCompare([]byte(sent), want) != 1:
				reason = "invalid admin token"
			default:
				next.ServeHTTP(w, r)
				return
			}
			logger.WarnContext(ctx, "admin request rejected",
				"reason", reason,
				"path", r.URL.Path,
				"request_id", request.GetRequestID(ctx),
			)
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, reason))
		})
	}
}
