// Package httpapi assembles the public router: the base middleware chain,
// operator routes under /admin and the authenticated JSON API under /api.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"opsdesk/internal/platform/metrics"
	"opsdesk/pkg/platform/httputil"
	adminmw "opsdesk/pkg/platform/middleware/admin"
	authmw "opsdesk/pkg/platform/middleware/auth"
	"opsdesk/pkg/platform/middleware/metadata"
	request "opsdesk/pkg/platform/middleware/request"
	"opsdesk/pkg/platform/middleware/requesttime"
)

// Registrar is implemented by every module handler.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Config struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	RequestTimeout time.Duration
	AdminToken     string
	Validator      authmw.JWTValidator
	// Grants is optional; when set, approved permission grants are merged
	// into the caller's principal.
	Grants authmw.GrantSource
	// RateLimit is optional and runs after authentication.
	RateLimit func(http.Handler) http.Handler
	Checks    map[string]HealthCheck

	// Admin handlers mount under /admin behind the admin token.
	Admin []Registrar
	// API handlers mount under /api and accept JSON bodies only.
	API []Registrar
	// Raw handlers mount under /api and accept any request body.
	Raw []Registrar
}

func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(cfg.Logger))
	r.Use(request.Logger(cfg.Logger))
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.LatencyMiddleware)
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Get("/healthz", healthHandler(cfg.Checks))

	r.Route("/admin", func(r chi.Router) {
		r.Use(adminmw.RequireAdminToken(cfg.AdminToken, cfg.Logger))
		r.Use(request.ContentTypeJSON)
		for _, h := range cfg.Admin {
			h.Register(r)
		}
	})

	r.Route("/api", func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(request.Timeout(cfg.RequestTimeout))
		}
		r.Use(authmw.RequireAuth(cfg.Validator, cfg.Logger))
		if cfg.RateLimit != nil {
			r.Use(cfg.RateLimit)
		}
		if cfg.Grants != nil {
			r.Use(authmw.MergeGrants(cfg.Grants, cfg.Logger))
		}
		r.Group(func(r chi.Router) {
			r.Use(request.ContentTypeJSON)
			for _, h := range cfg.API {
				h.Register(r)
			}
		})
		for _, h := range cfg.Raw {
			h.Register(r)
		}
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(names) > 0 {
			resp.Checks = make(map[string]string, len(names))
		}
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
