package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"opsdesk/pkg/platform/httputil"
	"opsdesk/pkg/requestcontext"
)

// Middleware enforces a per-caller request budget.
type Middleware struct {
	store  Store
	limit  int
	window time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// New returns a middleware allowing limit requests per window. A
// non-positive limit disables throttling.
func New(store Store, limit int, window time.Duration, logger *slog.Logger) *Middleware {
	return &Middleware{store: store, limit: limit, window: window, logger: logger, now: time.Now}
}

type exceededResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
	RetryAfter  int    `json:"retry_after"`
}

// Handler must run after authentication so callers are keyed by user.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.limit <= 0 || m.window <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		key := callerKey(r)
		result, err := m.store.Allow(ctx, key, m.limit, m.window)
		if err != nil {
			m.logger.WarnContext(ctx, "rate limit check failed, allowing request",
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
		if !result.Allowed {
			retry := result.RetryAfter(m.now())
			m.logger.InfoContext(ctx, "rate limit exceeded",
				"key", key,
				"request_id", requestcontext.RequestID(ctx),
			)
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			httputil.WriteJSON(w, http.StatusTooManyRequests, exceededResponse{
				Error:       "rate_limit_exceeded",
				Description: "Too many requests, retry later",
				RetryAfter:  retry,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func callerKey(r *http.Request) string {
	p := requestcontext.Principal(r.Context())
	if p.IsAuthenticated() {
		return "user:" + p.TenantID.String() + ":" + p.UserID.String()
	}
	ip := requestcontext.ClientIP(r.Context())
	if ip == "" {
		ip = r.RemoteAddr
	}
	return "ip:" + ip
}
