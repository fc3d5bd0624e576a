// Package requesttime pins a single "now" per HTTP request so audit stamps,
// SLA classification and history entries written by one request agree.
package requesttime

import (
	"net/http"
	"time"

	"opsdesk/pkg/requestcontext"
)

// Middleware stamps each request with the wall clock in UTC.
var Middleware = WithClock(time.Now)

// WithClock stamps each request with clock(). Tests pass a fixed clock.
func WithClock(clock func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, pinned := r.Context().Value(requestcontext.ContextKeyRequestTime).(time.Time); pinned {
				next.ServeHTTP(w, r)
				return
			}
			ctx := requestcontext.WithTime(r.Context(), clock().UTC())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
