package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"opsdesk/internal/authz"
	"opsdesk/internal/docstore"
	"opsdesk/internal/employees/models"
	platformmetrics "opsdesk/internal/platform/metrics"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
	"opsdesk/pkg/platform/audit"
	"opsdesk/pkg/platform/sentinel"
	txcontext "opsdesk/pkg/platform/tx"
	"opsdesk/pkg/requestcontext"
)

const (
	resourceType = "employee"
	notFound     = "Employee not found"
)

type Service struct {
	employees docstore.Store[*models.Employee]
	tx        txcontext.Runner
	logger    *slog.Logger
	publisher audit.Publisher
	emitter   *audit.Emitter
	metrics   *platformmetrics.Mutations
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

func WithMetrics(m *platformmetrics.Mutations) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTx(tx txcontext.Runner) Option {
	return func(s *Service) { s.tx = tx }
}

func New(employees docstore.Store[*models.Employee], opts ...Option) *Service {
	s := &Service{
		employees: employees,
		tx:        txcontext.NoopRunner{},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.emitter = audit.NewEmitter(s.logger, s.publisher)
	return s
}

type UpdateInput struct {
	UserID     *domain.UserID
	ClearUser  bool
	FirstName  *string
	LastName   *string
	Email      *string
	Department *string
	Position   *string
	HireDate   *time.Time
}

type ListFilter struct {
	Status         models.Status
	Department     string
	IncludeDeleted bool
	Limit          int
	Offset         int
}

func (s *Service) Create(ctx context.Context, in models.Fields) (*models.Employee, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireWrite(p); err != nil {
		return nil, err
	}
	e, err := models.NewEmployee(p.TenantID, in, requestcontext.Now(ctx), p.UserID)
	if err != nil {
		return nil, toValidation(err)
	}
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.employees.Insert(txCtx, e); err != nil {
			return wrapEmployeeErr(err, "create employee")
		}
		return s.emitter.Record(txCtx, audit.EventEmployeeCreated, resourceType, e.ID.String(), e.Email)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Inc("employees", "create")
	return e, nil
}

func (s *Service) Get(ctx context.Context, id domain.EmployeeID) (*models.Employee, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireRead(p); err != nil {
		return nil, err
	}
	e, err := s.employees.Get(ctx, p.TenantID, uuid.UUID(id))
	if err != nil {
		return nil, wrapEmployeeErr(err, "load employee")
	}
	if e.IsDeleted() {
		return nil, dErrors.New(dErrors.CodeNotFound, notFound)
	}
	return e, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]*models.Employee, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireRead(p); err != nil {
		return nil, err
	}
	q := docstore.Query{IncludeDeleted: f.IncludeDeleted && p.IsAdmin(), Limit: f.Limit, Offset: f.Offset}
	if f.Status != "" {
		q = q.Where("status", f.Status)
	}
	if f.Department != "" {
		q = q.Where("department", f.Department)
	}
	out, err := s.employees.List(ctx, p.TenantID, q)
	if err != nil {
		return nil, wrapEmployeeErr(err, "list employees")
	}
	return out, nil
}

func (s *Service) Update(ctx context.Context, id domain.EmployeeID, in UpdateInput) (*models.Employee, error) {
	return s.mutate(ctx, id, audit.EventEmployeeUpdated, "update",
		func(e *models.Employee) error {
			return toValidation(e.Clone().Apply(merge(e.Fields(), in)))
		},
		func(e *models.Employee, _ time.Time) {
			_ = e.Apply(merge(e.Fields(), in))
		},
	)
}

// Terminate ends employment at the given date, or now when at is nil.
func (s *Service) Terminate(ctx context.Context, id domain.EmployeeID, at *time.Time) (*models.Employee, error) {
	return s.mutate(ctx, id, audit.EventEmployeeTerminated, "terminate",
		func(e *models.Employee) error {
			if err := e.CanTerminate(); err != nil {
				return dErrors.New(dErrors.CodeConflict, dErrors.MessageOf(err))
			}
			return nil
		},
		func(e *models.Employee, now time.Time) {
			when := now
			if at != nil {
				when = *at
			}
			e.ApplyTerminate(when, now, requestcontext.UserID(ctx))
		},
	)
}

func (s *Service) Delete(ctx context.Context, id domain.EmployeeID) error {
	_, err := s.mutate(ctx, id, audit.EventEmployeeDeleted, "delete",
		func(*models.Employee) error { return nil },
		func(e *models.Employee, now time.Time) { e.ApplyDelete(now, requestcontext.UserID(ctx)) },
	)
	return err
}

// mutate runs the admin check, the locked validate/apply and the audit
// record shared by every employee write.
func (s *Service) mutate(ctx context.Context, id domain.EmployeeID, event audit.AuditEvent, action string, validate func(*models.Employee) error, apply func(*models.Employee, time.Time)) (*models.Employee, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireWrite(p); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	var out *models.Employee
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		e, err := s.employees.Execute(txCtx, p.TenantID, uuid.UUID(id),
			func(e *models.Employee) error {
				if e.IsDeleted() {
					return dErrors.New(dErrors.CodeNotFound, notFound)
				}
				return validate(e)
			},
			func(e *models.Employee) {
				apply(e, now)
				e.Touch(now, p.UserID)
			},
		)
		if err != nil {
			return wrapEmployeeErr(err, action+" employee")
		}
		out = e
		return s.emitter.Record(txCtx, event, resourceType, e.ID.String(), e.Email)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Inc("employees", action)
	return out, nil
}

func merge(f models.Fields, in UpdateInput) models.Fields {
	switch {
	case in.ClearUser:
		f.UserID = nil
	case in.UserID != nil:
		f.UserID = in.UserID
	}
	if in.FirstName != nil {
		f.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		f.LastName = *in.LastName
	}
	if in.Email != nil {
		f.Email = *in.Email
	}
	if in.Department != nil {
		f.Department = *in.Department
	}
	if in.Position != nil {
		f.Position = *in.Position
	}
	if in.HireDate != nil {
		f.HireDate = in.HireDate
	}
	return f
}

func wrapEmployeeErr(err error, op string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, notFound)
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeConflict, "an employee with this email or user already exists")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "employee was modified concurrently, retry")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to "+op)
	}
}

func toValidation(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
	}
	return err
}
