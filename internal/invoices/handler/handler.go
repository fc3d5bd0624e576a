package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"opsdesk/internal/invoices/models"
	"opsdesk/internal/invoices/service"
	"opsdesk/pkg/domain"
	"opsdesk/pkg/platform/httputil"
	"opsdesk/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/invoices-mocks.go -package=mocks Service
type Service interface {
	Create(ctx context.Context, in service.CreateInput) (*models.Invoice, error)
	Get(ctx context.Context, id domain.InvoiceID) (*models.Invoice, error)
	List(ctx context.Context, f service.ListFilter) ([]*models.Invoice, error)
	Update(ctx context.Context, id domain.InvoiceID, in service.UpdateInput) (*models.Invoice, error)
	Send(ctx context.Context, id domain.InvoiceID) (*models.Invoice, error)
	MarkPaid(ctx context.Context, id domain.InvoiceID, paidAt *time.Time) (*models.Invoice, error)
	Void(ctx context.Context, id domain.InvoiceID) (*models.Invoice, error)
	Delete(ctx context.Context, id domain.InvoiceID) error
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/invoices", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Get("/{id}", h.HandleGet)
		r.Patch("/{id}", h.HandleUpdate)
		r.Delete("/{id}", h.HandleDelete)
		r.Post("/{id}/send", h.HandleSend)
		r.Post("/{id}/pay", h.HandlePay)
		r.Post("/{id}/void", h.HandleVoid)
	})
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreateInvoiceRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	inv, err := h.service.Create(ctx, req.input)
	if err != nil {
		httputil.Fail(w, r, h.logger, "create invoice", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, inv)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.PageParams(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	f := service.ListFilter{
		OverdueOnly:    httputil.QueryBool(r, "overdue"),
		IncludeDeleted: page.IncludeDeleted,
		Limit:          page.Limit,
		Offset:         page.Offset,
	}
	q := r.URL.Query()
	if v := q.Get("status"); v != "" {
		if f.Status, err = models.ParseStatus(v); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	if v := q.Get("customer_id"); v != "" {
		id, err := domain.ParseCustomerID(v)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		f.CustomerID = &id
	}
	if v := q.Get("quote_id"); v != "" {
		id, err := domain.ParseQuoteID(v)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		f.QuoteID = &id
	}
	items, err := h.service.List(r.Context(), f)
	if err != nil {
		httputil.Fail(w, r, h.logger, "list invoices", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.NewListResponse(items))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.Fail(w, r, h.logger, "get invoice", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, inv)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateInvoiceRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	inv, err := h.service.Update(ctx, id, req.input)
	if err != nil {
		httputil.Fail(w, r, h.logger, "update invoice", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, inv)
}

func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Send(r.Context(), id)
	if err != nil {
		httputil.Fail(w, r, h.logger, "send invoice", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, inv)
}

func (h *Handler) HandlePay(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	var req PayInvoiceRequest
	if r.ContentLength > 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	inv, err := h.service.MarkPaid(r.Context(), id, req.PaidAt)
	if err != nil {
		httputil.Fail(w, r, h.logger, "mark invoice paid", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, inv)
}

func (h *Handler) HandleVoid(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Void(r.Context(), id)
	if err != nil {
		httputil.Fail(w, r, h.logger, "void invoice", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, inv)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httputil.Fail(w, r, h.logger, "delete invoice", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) invoiceID(w http.ResponseWriter, r *http.Request) (domain.InvoiceID, bool) {
	id, err := domain.ParseInvoiceID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return domain.InvoiceID{}, false
	}
	return id, true
}
