package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"opsdesk/internal/customers/models"
	"opsdesk/internal/customers/service"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
	"opsdesk/pkg/platform/httputil"
	"opsdesk/pkg/requestcontext"
)

type Service interface {
	Create(ctx context.Context, in models.Fields) (*models.Customer, error)
	Get(ctx context.Context, id domain.CustomerID) (*models.Customer, error)
	List(ctx context.Context, f service.ListFilter) ([]*models.Customer, error)
	Update(ctx context.Context, id domain.CustomerID, in service.UpdateInput) (*models.Customer, error)
	Delete(ctx context.Context, id domain.CustomerID) error
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/customers", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Get("/{id}", h.HandleGet)
		r.Patch("/{id}", h.HandleUpdate)
		r.Delete("/{id}", h.HandleDelete)
	})
}

type CustomerRequest struct {
	Name    string         `json:"name"`
	Email   string         `json:"email"`
	Phone   string         `json:"phone,omitempty"`
	Company string         `json:"company,omitempty"`
	Address models.Address `json:"address"`
	Status  string         `json:"status,omitempty"`

	status models.Status
}

func (r *CustomerRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
}

func (r *CustomerRequest) Validate() error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "customer name is required")
	}
	if r.Email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if r.Status != "" {
		st, err := models.ParseStatus(r.Status)
		if err != nil {
			return err
		}
		r.status = st
	}
	return nil
}

type UpdateCustomerRequest struct {
	Name    *string         `json:"name,omitempty"`
	Email   *string         `json:"email,omitempty"`
	Phone   *string         `json:"phone,omitempty"`
	Company *string         `json:"company,omitempty"`
	Address *models.Address `json:"address,omitempty"`
	Status  *string         `json:"status,omitempty"`

	status *models.Status
}

func (r *UpdateCustomerRequest) Validate() error {
	if r.Status != nil {
		st, err := models.ParseStatus(*r.Status)
		if err != nil {
			return err
		}
		r.status = &st
	}
	return nil
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CustomerRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	c, err := h.service.Create(ctx, models.Fields{
		Name: req.Name, Email: req.Email, Phone: req.Phone, Company: req.Company, Address: req.Address, Status: req.status,
	})
	if err != nil {
		httputil.Fail(w, r, h.logger, "create customer", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.PageParams(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	q := r.URL.Query()
	f := service.ListFilter{
		Email:          q.Get("email"),
		Company:        q.Get("company"),
		IncludeDeleted: page.IncludeDeleted,
		Limit:          page.Limit,
		Offset:         page.Offset,
	}
	if v := q.Get("status"); v != "" {
		if f.Status, err = models.ParseStatus(v); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	items, err := h.service.List(r.Context(), f)
	if err != nil {
		httputil.Fail(w, r, h.logger, "list customers", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.NewListResponse(items))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseCustomerID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.Fail(w, r, h.logger, "get customer", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseCustomerID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateCustomerRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	c, err := h.service.Update(ctx, id, service.UpdateInput{
		Name: req.Name, Email: req.Email, Phone: req.Phone, Company: req.Company, Address: req.Address, Status: req.status,
	})
	if err != nil {
		httputil.Fail(w, r, h.logger, "update customer", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseCustomerID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httputil.Fail(w, r, h.logger, "delete customer", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
