package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"opsdesk/internal/dashboards/models"
	"opsdesk/internal/dashboards/service"
	"opsdesk/pkg/domain"
	"opsdesk/pkg/platform/httputil"
	"opsdesk/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/dashboards-mocks.go -package=mocks Service
type Service interface {
	Create(ctx context.Context, in service.CreateInput) (*models.Dashboard, error)
	Get(ctx context.Context, id domain.DashboardID) (*models.Dashboard, error)
	List(ctx context.Context, f service.ListFilter) ([]*models.Dashboard, error)
	Update(ctx context.Context, id domain.DashboardID, in service.UpdateInput) (*models.Dashboard, error)
	SetDefault(ctx context.Context, id domain.DashboardID) (*models.Dashboard, error)
	Default(ctx context.Context) (*models.Dashboard, error)
	Delete(ctx context.Context, id domain.DashboardID) error
}

type CreateDashboardRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Shared      bool            `json:"shared"`
	IsDefault   bool            `json:"isDefault"`
	Widgets     []models.Widget `json:"widgets,omitempty"`
}

type UpdateDashboardRequest struct {
	Name        *string         `json:"name,omitempty"`
	Description *string         `json:"description,omitempty"`
	Shared      *bool           `json:"shared,omitempty"`
	Widgets     []models.Widget `json:"widgets,omitempty"`
	OwnerID     *string         `json:"ownerId,omitempty"`

	input service.UpdateInput
}

func (r *UpdateDashboardRequest) Validate() error {
	r.input = service.UpdateInput{
		Name:        r.Name,
		Description: r.Description,
		Shared:      r.Shared,
		Widgets:     r.Widgets,
	}
	if r.OwnerID != nil {
		owner, err := domain.ParseUserID(*r.OwnerID)
		if err != nil {
			return err
		}
		r.input.OwnerID = &owner
	}
	return nil
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/dashboards", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Get("/default", h.HandleDefault)
		r.Get("/{id}", h.HandleGet)
		r.Patch("/{id}", h.HandleUpdate)
		r.Delete("/{id}", h.HandleDelete)
		r.Post("/{id}/default", h.HandleSetDefault)
	})
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateDashboardRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	d, err := h.service.Create(r.Context(), service.CreateInput{
		Fields: models.Fields{
			Name:        req.Name,
			Description: req.Description,
			Shared:      req.Shared,
			Widgets:     req.Widgets,
		},
		IsDefault: req.IsDefault,
	})
	if err != nil {
		httputil.Fail(w, r, h.logger, "create dashboard", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, d)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.PageParams(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	items, err := h.service.List(r.Context(), service.ListFilter{
		OwnedOnly:      httputil.QueryBool(r, "mine"),
		IncludeDeleted: page.IncludeDeleted,
		Limit:          page.Limit,
		Offset:         page.Offset,
	})
	if err != nil {
		httputil.Fail(w, r, h.logger, "list dashboards", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.NewListResponse(items))
}

func (h *Handler) HandleDefault(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Default(r.Context())
	if err != nil {
		httputil.Fail(w, r, h.logger, "get default dashboard", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.dashboardID(w, r)
	if !ok {
		return
	}
	d, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.Fail(w, r, h.logger, "get dashboard", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.dashboardID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateDashboardRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	d, err := h.service.Update(ctx, id, req.input)
	if err != nil {
		httputil.Fail(w, r, h.logger, "update dashboard", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) HandleSetDefault(w http.ResponseWriter, r *http.Request) {
	id, ok := h.dashboardID(w, r)
	if !ok {
		return
	}
	d, err := h.service.SetDefault(r.Context(), id)
	if err != nil {
		httputil.Fail(w, r, h.logger, "set default dashboard", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.dashboardID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httputil.Fail(w, r, h.logger, "delete dashboard", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) dashboardID(w http.ResponseWriter, r *http.Request) (domain.DashboardID, bool) {
	id, err := domain.ParseDashboardID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return domain.DashboardID{}, false
	}
	return id, true
}
