package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"opsdesk/internal/emailtemplates/models"
	"opsdesk/internal/emailtemplates/service"
	"opsdesk/pkg/domain"
	"opsdesk/pkg/platform/httputil"
	"opsdesk/pkg/requestcontext"
)

type Service interface {
	Create(ctx context.Context, f models.Fields) (*models.Template, error)
	Get(ctx context.Context, id domain.TemplateID) (*models.Template, error)
	List(ctx context.Context, f service.ListFilter) ([]*models.Template, error)
	Update(ctx context.Context, id domain.TemplateID, in service.UpdateInput) (*models.Template, error)
	Delete(ctx context.Context, id domain.TemplateID) error
	Render(ctx context.Context, id domain.TemplateID, data map[string]any) (models.Rendered, error)
}

type CreateTemplateRequest struct {
	Key       string   `json:"key,omitempty"`
	Name      string   `json:"name"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	Variables []string `json:"variables,omitempty"`
	Active    *bool    `json:"active,omitempty"`
}

func (r *CreateTemplateRequest) fields() models.Fields {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return models.Fields{
		Slug:      r.Key,
		Name:      r.Name,
		Subject:   r.Subject,
		Body:      r.Body,
		Variables: r.Variables,
		Active:    active,
	}
}

type UpdateTemplateRequest struct {
	Key       *string  `json:"key,omitempty"`
	Name      *string  `json:"name,omitempty"`
	Subject   *string  `json:"subject,omitempty"`
	Body      *string  `json:"body,omitempty"`
	Variables []string `json:"variables,omitempty"`
	Active    *bool    `json:"active,omitempty"`
}

type RenderRequest struct {
	Data map[string]any `json:"data"`
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/email-templates", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Get("/{id}", h.HandleGet)
		r.Patch("/{id}", h.HandleUpdate)
		r.Delete("/{id}", h.HandleDelete)
		r.Post("/{id}/render", h.HandleRender)
	})
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateTemplateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	t, err := h.service.Create(r.Context(), req.fields())
	if err != nil {
		httputil.Fail(w, r, h.logger, "create email template", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, t)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.PageParams(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	items, err := h.service.List(r.Context(), service.ListFilter{
		Slug:           r.URL.Query().Get("key"),
		ActiveOnly:     httputil.QueryBool(r, "active"),
		IncludeDeleted: page.IncludeDeleted,
		Limit:          page.Limit,
		Offset:         page.Offset,
	})
	if err != nil {
		httputil.Fail(w, r, h.logger, "list email templates", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.NewListResponse(items))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.templateID(w, r)
	if !ok {
		return
	}
	t, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.Fail(w, r, h.logger, "get email template", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.templateID(w, r)
	if !ok {
		return
	}
	var req UpdateTemplateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	t, err := h.service.Update(r.Context(), id, service.UpdateInput{
		Slug:      req.Key,
		Name:      req.Name,
		Subject:   req.Subject,
		Body:      req.Body,
		Variables: req.Variables,
		Active:    req.Active,
	})
	if err != nil {
		httputil.Fail(w, r, h.logger, "update email template", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.templateID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httputil.Fail(w, r, h.logger, "delete email template", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleRender(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.templateID(w, r)
	if !ok {
		return
	}
	var req RenderRequest
	if r.ContentLength > 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	out, err := h.service.Render(ctx, id, req.Data)
	if err != nil {
		httputil.Fail(w, r, h.logger, "render email template", err)
		return
	}
	h.logger.DebugContext(ctx, "email template rendered",
		"request_id", requestcontext.RequestID(ctx),
		"template_id", id,
	)
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) templateID(w http.ResponseWriter, r *http.Request) (domain.TemplateID, bool) {
	id, err := domain.ParseTemplateID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return domain.TemplateID{}, false
	}
	return id, true
}
