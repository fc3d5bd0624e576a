package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"opsdesk/internal/shipments/models"
	"opsdesk/internal/shipments/service"
	"opsdesk/internal/shipments/sla"
	"opsdesk/pkg/domain"
	"opsdesk/pkg/platform/httputil"
	"opsdesk/pkg/requestcontext"
)

// Service defines the shipment operations the handler needs.
type Service interface {
	Create(ctx context.Context, in service.CreateInput) (*models.Shipment, error)
	Get(ctx context.Context, id domain.ShipmentID) (*models.Shipment, error)
	List(ctx context.Context, f service.ListFilter) ([]*models.Shipment, error)
	Update(ctx context.Context, id domain.ShipmentID, in service.UpdateInput) (*models.Shipment, error)
	ChangeStatus(ctx context.Context, id domain.ShipmentID, to models.Status, note string) (*models.Shipment, error)
	Delete(ctx context.Context, id domain.ShipmentID) error
	History(ctx context.Context, id domain.ShipmentID) ([]*models.StatusHistoryEntry, error)
	SLASummary(ctx context.Context) (*service.SLASummary, error)
	RecalculateSLA(ctx context.Context) (*sla.Report, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the shipment routes under /shipments.
func (h *Handler) Register(r chi.Router) {
	r.Route("/shipments", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Get("/sla/summary", h.HandleSLASummary)
		r.Post("/sla/recalculate", h.HandleRecalculate)
		r.Get("/{id}", h.HandleGet)
		r.Patch("/{id}", h.HandleUpdate)
		r.Delete("/{id}", h.HandleDelete)
		r.Post("/{id}/status", h.HandleChangeStatus)
		r.Get("/{id}/history", h.HandleHistory)
	})
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateShipmentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	sh, err := h.service.Create(ctx, req.Input())
	if err != nil {
		httputil.Fail(w, r, h.logger, "create shipment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, sh)
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
		st, err := models.ParseStatus(v)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		f.Status = st
	}
	if v := q.Get("sla_status"); v != "" {
		st, err := models.ParseSLAStatus(v)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		f.SLAStatus = st
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
		httputil.Fail(w, r, h.logger, "list shipments", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.NewListResponse(items))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseShipmentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sh, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.Fail(w, r, h.logger, "get shipment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sh)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseShipmentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateShipmentRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	sh, err := h.service.Update(ctx, id, req.input)
	if err != nil {
		httputil.Fail(w, r, h.logger, "update shipment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sh)
}

func (h *Handler) HandleChangeStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseShipmentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ChangeStatusRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	sh, err := h.service.ChangeStatus(ctx, id, req.status, req.Note)
	if err != nil {
		httputil.Fail(w, r, h.logger, "change shipment status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sh)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseShipmentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httputil.Fail(w, r, h.logger, "delete shipment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseShipmentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries, err := h.service.History(r.Context(), id)
	if err != nil {
		httputil.Fail(w, r, h.logger, "load shipment history", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.NewListResponse(entries))
}

func (h *Handler) HandleSLASummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.SLASummary(r.Context())
	if err != nil {
		httputil.Fail(w, r, h.logger, "summarize sla", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) HandleRecalculate(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.RecalculateSLA(r.Context())
	if err != nil {
		httputil.Fail(w, r, h.logger, "recalculate sla", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}
