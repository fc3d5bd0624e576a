package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"opsdesk/internal/employees/models"
	"opsdesk/internal/employees/service"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
	"opsdesk/pkg/platform/httputil"
	"opsdesk/pkg/requestcontext"
)

type Service interface {
	Create(ctx context.Context, in models.Fields) (*models.Employee, error)
	Get(ctx context.Context, id domain.EmployeeID) (*models.Employee, error)
	List(ctx context.Context, f service.ListFilter) ([]*models.Employee, error)
	Update(ctx context.Context, id domain.EmployeeID, in service.UpdateInput) (*models.Employee, error)
	Terminate(ctx context.Context, id domain.EmployeeID, at *time.Time) (*models.Employee, error)
	Delete(ctx context.Context, id domain.EmployeeID) error
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/employees", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Get("/{id}", h.HandleGet)
		r.Patch("/{id}", h.HandleUpdate)
		r.Delete("/{id}", h.HandleDelete)
		r.Post("/{id}/terminate", h.HandleTerminate)
	})
}

type EmployeeRequest struct {
	UserID     string     `json:"userId,omitempty"`
	FirstName  string     `json:"firstName"`
	LastName   string     `json:"lastName"`
	Email      string     `json:"email"`
	Department string     `json:"department,omitempty"`
	Position   string     `json:"position,omitempty"`
	HireDate   *time.Time `json:"hireDate,omitempty"`

	userID *domain.UserID
}

func (r *EmployeeRequest) Validate() error {
	if strings.TrimSpace(r.Email) == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if strings.TrimSpace(r.UserID) != "" {
		id, err := domain.ParseUserID(r.UserID)
		if err != nil {
			return err
		}
		r.userID = &id
	}
	return nil
}

type UpdateEmployeeRequest struct {
	UserID     *string    `json:"userId,omitempty"`
	FirstName  *string    `json:"firstName,omitempty"`
	LastName   *string    `json:"lastName,omitempty"`
	Email      *string    `json:"email,omitempty"`
	Department *string    `json:"department,omitempty"`
	Position   *string    `json:"position,omitempty"`
	HireDate   *time.Time `json:"hireDate,omitempty"`

	input service.UpdateInput
}

func (r *UpdateEmployeeRequest) Validate() error {
	in := service.UpdateInput{
		FirstName: r.FirstName, LastName: r.LastName, Email: r.Email,
		Department: r.Department, Position: r.Position, HireDate: r.HireDate,
	}
	if r.UserID != nil {
		if strings.TrimSpace(*r.UserID) == "" {
			in.ClearUser = true
		} else {
			id, err := domain.ParseUserID(*r.UserID)
			if err != nil {
				return err
			}
			in.UserID = &id
		}
	}
	r.input = in
	return nil
}

type TerminateRequest struct {
	TerminatedAt *time.Time `json:"terminatedAt,omitempty"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[EmployeeRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	e, err := h.service.Create(ctx, models.Fields{
		UserID: req.userID, FirstName: req.FirstName, LastName: req.LastName, Email: req.Email,
		Department: req.Department, Position: req.Position, HireDate: req.HireDate,
	})
	if err != nil {
		httputil.Fail(w, r, h.logger, "create employee", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, e)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.PageParams(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	q := r.URL.Query()
	f := service.ListFilter{
		Department:     q.Get("department"),
		IncludeDeleted: page.IncludeDeleted,
		Limit:          page.Limit,
		Offset:         page.Offset,
	}
	switch st := models.Status(q.Get("status")); st {
	case "", models.StatusActive, models.StatusTerminated:
		f.Status = st
	default:
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid employee status: "+string(st)))
		return
	}
	items, err := h.service.List(r.Context(), f)
	if err != nil {
		httputil.Fail(w, r, h.logger, "list employees", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.NewListResponse(items))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseEmployeeID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	e, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.Fail(w, r, h.logger, "get employee", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, e)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseEmployeeID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateEmployeeRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	e, err := h.service.Update(ctx, id, req.input)
	if err != nil {
		httputil.Fail(w, r, h.logger, "update employee", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, e)
}

func (h *Handler) HandleTerminate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseEmployeeID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req TerminateRequest
	if r.ContentLength > 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	e, err := h.service.Terminate(ctx, id, req.TerminatedAt)
	if err != nil {
		httputil.Fail(w, r, h.logger, "terminate employee", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, e)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseEmployeeID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httputil.Fail(w, r, h.logger, "delete employee", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
