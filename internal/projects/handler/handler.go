package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"opsdesk/internal/projects/models"
	"opsdesk/internal/projects/service"
	"opsdesk/pkg/domain"
	"opsdesk/pkg/platform/httputil"
	"opsdesk/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/projects-mocks.go -package=mocks Service
type Service interface {
	Create(ctx context.Context, in service.CreateInput) (*models.Project, error)
	Get(ctx context.Context, id domain.ProjectID) (*models.Project, error)
	List(ctx context.Context, f service.ListFilter) ([]*models.Project, error)
	Update(ctx context.Context, id domain.ProjectID, in service.UpdateInput) (*models.Project, error)
	Delete(ctx context.Context, id domain.ProjectID) error
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/projects", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Get("/{id}", h.HandleGet)
		r.Patch("/{id}", h.HandleUpdate)
		r.Delete("/{id}", h.HandleDelete)
	})
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreateProjectRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	project, err := h.service.Create(ctx, req.input)
	if err != nil {
		httputil.Fail(w, r, h.logger, "create project", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, project)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.PageParams(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	f := service.ListFilter{Limit: page.Limit, Offset: page.Offset, IncludeDeleted: page.IncludeDeleted}
	q := r.URL.Query()
	if v := q.Get("status"); v != "" {
		if f.Status, err = models.ParseStatus(v); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	if v := q.Get("owner_id"); v != "" {
		id, err := domain.ParseUserID(v)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		f.OwnerID = &id
	}
	if v := q.Get("customer_id"); v != "" {
		id, err := domain.ParseCustomerID(v)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		f.CustomerID = &id
	}
	items, err := h.service.List(r.Context(), f)
	if err != nil {
		httputil.Fail(w, r, h.logger, "list projects", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.NewListResponse(items))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseProjectID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	project, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.Fail(w, r, h.logger, "get project", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, project)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseProjectID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateProjectRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	project, err := h.service.Update(ctx, id, req.input)
	if err != nil {
		httputil.Fail(w, r, h.logger, "update project", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, project)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseProjectID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httputil.Fail(w, r, h.logger, "delete project", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
