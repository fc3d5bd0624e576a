package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"opsdesk/internal/commissions/models"
	"opsdesk/internal/commissions/service"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
	"opsdesk/pkg/platform/httputil"
	"opsdesk/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/commissions-mocks.go -package=mocks Service
type Service interface {
	Create(ctx context.Context, f models.Fields) (*models.Commission, error)
	Get(ctx context.Context, id domain.CommissionID) (*models.Commission, error)
	List(ctx context.Context, f service.ListFilter) ([]*models.Commission, error)
	Approve(ctx context.Context, id domain.CommissionID) (*models.Commission, error)
	Reject(ctx context.Context, id domain.CommissionID) (*models.Commission, error)
	Pay(ctx context.Context, id domain.CommissionID, paidAt *time.Time) (*models.Commission, error)
	Delete(ctx context.Context, id domain.CommissionID) error
}

type CreateCommissionRequest struct {
	EmployeeID  string `json:"employeeId"`
	InvoiceID   string `json:"invoiceId,omitempty"`
	AmountCents int64  `json:"amountCents"`
	RateBps     int    `json:"rateBps"`
	Period      string `json:"period"`
	Notes       string `json:"notes,omitempty"`

	fields models.Fields
}

func (r *CreateCommissionRequest) Normalize() {
	r.EmployeeID = strings.TrimSpace(r.EmployeeID)
	r.InvoiceID = strings.TrimSpace(r.InvoiceID)
	r.Period = strings.TrimSpace(r.Period)
}

func (r *CreateCommissionRequest) Validate() error {
	if r.EmployeeID == "" {
		return dErrors.New(dErrors.CodeValidation, "employeeId is required")
	}
	employee, err := domain.ParseEmployeeID(r.EmployeeID)
	if err != nil {
		return err
	}
	if r.AmountCents <= 0 {
		return dErrors.New(dErrors.CodeValidation, "amountCents must be greater than zero")
	}
	r.fields = models.Fields{
		EmployeeID:  employee,
		AmountCents: r.AmountCents,
		RateBps:     r.RateBps,
		Period:      r.Period,
		Notes:       r.Notes,
	}
	if r.InvoiceID != "" {
		invoice, err := domain.ParseInvoiceID(r.InvoiceID)
		if err != nil {
			return err
		}
		r.fields.InvoiceID = &invoice
	}
	return nil
}

type PayCommissionRequest struct {
	PaidAt *time.Time `json:"paidAt,omitempty"`
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/commissions", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Get("/{id}", h.HandleGet)
		r.Delete("/{id}", h.HandleDelete)
		r.Post("/{id}/approve", h.HandleApprove)
		r.Post("/{id}/reject", h.HandleReject)
		r.Post("/{id}/pay", h.HandlePay)
	})
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreateCommissionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	c, err := h.service.Create(ctx, req.fields)
	if err != nil {
		httputil.Fail(w, r, h.logger, "create commission", err)
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
		Period:         q.Get("period"),
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
	if v := q.Get("employee_id"); v != "" {
		id, err := domain.ParseEmployeeID(v)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		f.EmployeeID = &id
	}
	items, err := h.service.List(r.Context(), f)
	if err != nil {
		httputil.Fail(w, r, h.logger, "list commissions", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.NewListResponse(items))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.commissionID(w, r)
	if !ok {
		return
	}
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.Fail(w, r, h.logger, "get commission", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.commissionID(w, r)
	if !ok {
		return
	}
	c, err := h.service.Approve(r.Context(), id)
	if err != nil {
		httputil.Fail(w, r, h.logger, "approve commission", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.commissionID(w, r)
	if !ok {
		return
	}
	c, err := h.service.Reject(r.Context(), id)
	if err != nil {
		httputil.Fail(w, r, h.logger, "reject commission", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) HandlePay(w http.ResponseWriter, r *http.Request) {
	id, ok := h.commissionID(w, r)
	if !ok {
		return
	}
	var req PayCommissionRequest
	if r.ContentLength > 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	c, err := h.service.Pay(r.Context(), id, req.PaidAt)
	if err != nil {
		httputil.Fail(w, r, h.logger, "pay commission", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.commissionID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httputil.Fail(w, r, h.logger, "delete commission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) commissionID(w http.ResponseWriter, r *http.Request) (domain.CommissionID, bool) {
	id, err := domain.ParseCommissionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return domain.CommissionID{}, false
	}
	return id, true
}
