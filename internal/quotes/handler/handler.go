package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"opsdesk/internal/billing"
	"opsdesk/internal/quotes/models"
	"opsdesk/internal/quotes/service"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
	"opsdesk/pkg/platform/httputil"
	"opsdesk/pkg/requestcontext"
)

type Service interface {
	Create(ctx context.Context, d models.Draft) (*models.Quote, error)
	Get(ctx context.Context, id domain.QuoteID) (*models.Quote, error)
	List(ctx context.Context, f service.ListFilter) ([]*models.Quote, error)
	Update(ctx context.Context, id domain.QuoteID, in service.UpdateInput) (*models.Quote, error)
	Send(ctx context.Context, id domain.QuoteID) (*models.Quote, error)
	Accept(ctx context.Context, id domain.QuoteID) (*models.Quote, error)
	Reject(ctx context.Context, id domain.QuoteID) (*models.Quote, error)
	Convert(ctx context.Context, id domain.QuoteID) (*service.Conversion, error)
	Delete(ctx context.Context, id domain.QuoteID) error
}

type CreateQuoteRequest struct {
	CustomerID string             `json:"customerId"`
	LineItems  []billing.LineItem `json:"lineItems"`
	TaxRateBps int                `json:"taxRateBps"`
	Currency   string             `json:"currency,omitempty"`
	Notes      string             `json:"notes,omitempty"`
	ValidUntil *time.Time         `json:"validUntil,omitempty"`

	draft models.Draft
}

func (r *CreateQuoteRequest) Validate() error {
	if strings.TrimSpace(r.CustomerID) == "" {
		return dErrors.New(dErrors.CodeValidation, "customerId is required")
	}
	customer, err := domain.ParseCustomerID(r.CustomerID)
	if err != nil {
		return err
	}
	r.draft = models.Draft{
		CustomerID: customer,
		LineItems:  r.LineItems,
		TaxRateBps: r.TaxRateBps,
		Currency:   r.Currency,
		Notes:      r.Notes,
		ValidUntil: r.ValidUntil,
	}
	return nil
}

type UpdateQuoteRequest struct {
	CustomerID *string            `json:"customerId,omitempty"`
	LineItems  []billing.LineItem `json:"lineItems,omitempty"`
	TaxRateBps *int               `json:"taxRateBps,omitempty"`
	Currency   *string            `json:"currency,omitempty"`
	Notes      *string            `json:"notes,omitempty"`
	ValidUntil *time.Time         `json:"validUntil,omitempty"`

	input service.UpdateInput
}

func (r *UpdateQuoteRequest) Validate() error {
	r.input = service.UpdateInput{
		LineItems:  r.LineItems,
		TaxRateBps: r.TaxRateBps,
		Currency:   r.Currency,
		Notes:      r.Notes,
		ValidUntil: r.ValidUntil,
	}
	if r.CustomerID != nil {
		id, err := domain.ParseCustomerID(*r.CustomerID)
		if err != nil {
			return err
		}
		r.input.CustomerID = &id
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
	r.Route("/quotes", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Get("/{id}", h.HandleGet)
		r.Patch("/{id}", h.HandleUpdate)
		r.Delete("/{id}", h.HandleDelete)
		r.Post("/{id}/send", h.transition("send quote", h.service.Send))
		r.Post("/{id}/accept", h.transition("accept quote", h.service.Accept))
		r.Post("/{id}/reject", h.transition("reject quote", h.service.Reject))
		r.Post("/{id}/convert", h.HandleConvert)
	})
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreateQuoteRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	q, err := h.service.Create(ctx, req.draft)
	if err != nil {
		httputil.Fail(w, r, h.logger, "create quote", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, q)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.PageParams(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	f := service.ListFilter{IncludeDeleted: page.IncludeDeleted, Limit: page.Limit, Offset: page.Offset}
	if v := r.URL.Query().Get("status"); v != "" {
		if f.Status, err = models.ParseStatus(v); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	if v := r.URL.Query().Get("customer_id"); v != "" {
		id, err := domain.ParseCustomerID(v)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		f.CustomerID = &id
	}
	items, err := h.service.List(r.Context(), f)
	if err != nil {
		httputil.Fail(w, r, h.logger, "list quotes", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.NewListResponse(items))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.quoteID(w, r)
	if !ok {
		return
	}
	q, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.Fail(w, r, h.logger, "get quote", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, q)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.quoteID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateQuoteRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	q, err := h.service.Update(ctx, id, req.input)
	if err != nil {
		httputil.Fail(w, r, h.logger, "update quote", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, q)
}

// transition serves the body-less status endpoints.
func (h *Handler) transition(op string, fn func(context.Context, domain.QuoteID) (*models.Quote, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.quoteID(w, r)
		if !ok {
			return
		}
		q, err := fn(r.Context(), id)
		if err != nil {
			httputil.Fail(w, r, h.logger, op, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, q)
	}
}

func (h *Handler) HandleConvert(w http.ResponseWriter, r *http.Request) {
	id, ok := h.quoteID(w, r)
	if !ok {
		return
	}
	conv, err := h.service.Convert(r.Context(), id)
	if err != nil {
		httputil.Fail(w, r, h.logger, "convert quote", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, conv)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.quoteID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httputil.Fail(w, r, h.logger, "delete quote", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) quoteID(w http.ResponseWriter, r *http.Request) (domain.QuoteID, bool) {
	id, err := domain.ParseQuoteID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return domain.QuoteID{}, false
	}
	return id, true
}
