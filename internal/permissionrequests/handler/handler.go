package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"opsdesk/internal/permissionrequests/models"
	"opsdesk/internal/permissionrequests/service"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
	"opsdesk/pkg/platform/httputil"
	"opsdesk/pkg/requestcontext"
)

type Service interface {
	Create(ctx context.Context, permission, reason string) (*models.Request, error)
	Get(ctx context.Context, id domain.RequestID) (*models.Request, error)
	List(ctx context.Context, f service.ListFilter) ([]*models.Request, error)
	Approve(ctx context.Context, id domain.RequestID, note string) (*models.Request, error)
	Deny(ctx context.Context, id domain.RequestID, note string) (*models.Request, error)
	Cancel(ctx context.Context, id domain.RequestID) (*models.Request, error)
	Grants(ctx context.Context, user domain.UserID) ([]*models.Grant, error)
	Revoke(ctx context.Context, grantID uuid.UUID) error
}

type CreateRequest struct {
	Permission string `json:"permission"`
	Reason     string `json:"reason"`
}

func (r *CreateRequest) Normalize() {
	r.Permission = strings.TrimSpace(r.Permission)
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *CreateRequest) Validate() error {
	if r.Permission == "" {
		return dErrors.New(dErrors.CodeValidation, "permission is required")
	}
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	return nil
}

type ReviewRequest struct {
	Note string `json:"note,omitempty"`
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/permission-requests", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Get("/grants/{userID}", h.HandleGrants)
		r.Delete("/grants/{userID}/{grantID}", h.HandleRevoke)
		r.Get("/{id}", h.HandleGet)
		r.Post("/{id}/approve", h.review("approve permission request", h.service.Approve))
		r.Post("/{id}/deny", h.review("deny permission request", h.service.Deny))
		r.Post("/{id}/cancel", h.HandleCancel)
	})
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreateRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	out, err := h.service.Create(ctx, req.Permission, req.Reason)
	if err != nil {
		httputil.Fail(w, r, h.logger, "create permission request", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, out)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.PageParams(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	f := service.ListFilter{Limit: page.Limit, Offset: page.Offset}
	if v := r.URL.Query().Get("status"); v != "" {
		if f.Status, err = models.ParseStatus(v); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	if v := r.URL.Query().Get("requester_id"); v != "" {
		id, err := domain.ParseUserID(v)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		f.RequesterID = &id
	}
	items, err := h.service.List(r.Context(), f)
	if err != nil {
		httputil.Fail(w, r, h.logger, "list permission requests", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.NewListResponse(items))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	out, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.Fail(w, r, h.logger, "get permission request", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) review(op string, fn func(context.Context, domain.RequestID, string) (*models.Request, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.requestID(w, r)
		if !ok {
			return
		}
		var req ReviewRequest
		if r.ContentLength > 0 {
			if err := httputil.DecodeJSON(r, &req); err != nil {
				httputil.WriteError(w, err)
				return
			}
		}
		out, err := fn(r.Context(), id, req.Note)
		if err != nil {
			httputil.Fail(w, r, h.logger, op, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, out)
	}
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	out, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		httputil.Fail(w, r, h.logger, "cancel permission request", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) HandleGrants(w http.ResponseWriter, r *http.Request) {
	user, err := domain.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	grants, err := h.service.Grants(r.Context(), user)
	if err != nil {
		httputil.Fail(w, r, h.logger, "list permission grants", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.NewListResponse(grants))
}

func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	grantID, err := uuid.Parse(chi.URLParam(r, "grantID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid grant_id"))
		return
	}
	if err := h.service.Revoke(r.Context(), grantID); err != nil {
		httputil.Fail(w, r, h.logger, "revoke permission grant", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) requestID(w http.ResponseWriter, r *http.Request) (domain.RequestID, bool) {
	id, err := domain.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return domain.RequestID{}, false
	}
	return id, true
}
