package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"opsdesk/internal/auditlog/service"
	"opsdesk/pkg/domain"
	"opsdesk/pkg/platform/audit"
	"opsdesk/pkg/platform/httputil"
)

type Service interface {
	List(ctx context.Context, q service.Query) ([]audit.Event, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/audit-logs", h.HandleList)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := httputil.QueryInt(r, "limit", service.DefaultLimit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var actor domain.UserID
	if raw := q.Get("actor_id"); raw != "" {
		actor, err = domain.ParseUserID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	events, err := h.service.List(r.Context(), service.Query{
		ResourceType: q.Get("resource_type"),
		ResourceID:   q.Get("resource_id"),
		ActorID:      actor,
		Action:       q.Get("action"),
		Limit:        limit,
	})
	if err != nil {
		httputil.Fail(w, r, h.logger, "list audit logs", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.NewListResponse(events))
}
