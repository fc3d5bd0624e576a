package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"opsdesk/internal/authz"
	"opsdesk/internal/commissions/models"
	"opsdesk/internal/docstore"
	empmodels "opsdesk/internal/employees/models"
	platformmetrics "opsdesk/internal/platform/metrics"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
	"opsdesk/pkg/platform/audit"
	"opsdesk/pkg/platform/sentinel"
	txcontext "opsdesk/pkg/platform/tx"
	"opsdesk/pkg/requestcontext"
)

const (
	resourceType = "commission"
	notFound     = "Commission not found"
)

// EmployeeDirectory resolves the payee of a new commission.
type EmployeeDirectory interface {
	Get(ctx context.Context, tenantID domain.TenantID, key uuid.UUID) (*empmodels.Employee, error)
}

type Service struct {
	commissions docstore.Store[*models.Commission]
	employees   EmployeeDirectory
	tx          txcontext.Runner
	logger      *slog.Logger
	publisher   audit.Publisher
	emitter     *audit.Emitter
	metrics     *platformmetrics.Mutations
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

func New(commissions docstore.Store[*models.Commission], employees EmployeeDirectory, opts ...Option) *Service {
	s := &Service{
		commissions: commissions,
		employees:   employees,
		tx:          txcontext.NoopRunner{},
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.emitter = audit.NewEmitter(s.logger, s.publisher)
	return s
}

type ListFilter struct {
	Status         models.Status
	EmployeeID     *domain.EmployeeID
	Period         string
	IncludeDeleted bool
	Limit          int
	Offset         int
}

func (s *Service) Create(ctx context.Context, f models.Fields) (*models.Commission, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireCreate(p); err != nil {
		return nil, err
	}
	var payee *domain.UserID
	if !f.EmployeeID.IsNil() {
		emp, err := s.employees.Get(ctx, p.TenantID, uuid.UUID(f.EmployeeID))
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeValidation, "commission employee does not exist")
		case err != nil:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load employee")
		case emp.IsDeleted():
			return nil, dErrors.New(dErrors.CodeValidation, "commission employee does not exist")
		case emp.Status == empmodels.StatusTerminated:
			return nil, dErrors.New(dErrors.CodeConflict, "cannot create a commission for a terminated employee")
		}
		payee = emp.UserID
	}
	c, err := models.NewCommission(p.TenantID, f, payee, requestcontext.Now(ctx), p.UserID)
	if err != nil {
		return nil, toValidation(err)
	}
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.commissions.Insert(txCtx, c); err != nil {
			return wrapCommissionErr(err, "create commission")
		}
		return s.emitter.Record(txCtx, audit.EventCommissionCreated, resourceType, c.ID.String(), c.Period)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Inc("commissions", "create")
	return c, nil
}

// Get hides commissions the caller may not view behind not found.
func (s *Service) Get(ctx context.Context, id domain.CommissionID) (*models.Commission, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireRead(p); err != nil {
		return nil, err
	}
	c, err := s.commissions.Get(ctx, p.TenantID, uuid.UUID(id))
	if err != nil {
		return nil, wrapCommissionErr(err, "load commission")
	}
	if c.IsDeleted() || !models.CanView(p, c) {
		return nil, dErrors.New(dErrors.CodeNotFound, notFound)
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]*models.Commission, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireRead(p); err != nil {
		return nil, err
	}
	q := docstore.Query{IncludeDeleted: f.IncludeDeleted && p.IsAdmin(), Limit: f.Limit, Offset: f.Offset}
	if !models.CanReadAll(p) {
		q = q.Where("userId", p.UserID)
	}
	if f.Status != "" {
		q = q.Where("status", f.Status)
	}
	if f.EmployeeID != nil {
		q = q.Where("employeeId", *f.EmployeeID)
	}
	if f.Period != "" {
		q = q.Where("period", f.Period)
	}
	out, err := s.commissions.List(ctx, p.TenantID, q)
	if err != nil {
		return nil, wrapCommissionErr(err, "list commissions")
	}
	return out, nil
}

func (s *Service) Approve(ctx context.Context, id domain.CommissionID) (*models.Commission, error) {
	return s.review(ctx, id, audit.EventCommissionApproved, "approve",
		func(c *models.Commission) error { return c.CanReview() },
		func(c *models.Commission, now time.Time, actor domain.UserID) {
			c.ApplyReview(models.StatusApproved, now, actor)
		},
	)
}

func (s *Service) Reject(ctx context.Context, id domain.CommissionID) (*models.Commission, error) {
	return s.review(ctx, id, audit.EventCommissionRejected, "reject",
		func(c *models.Commission) error { return c.CanReview() },
		func(c *models.Commission, now time.Time, actor domain.UserID) {
			c.ApplyReview(models.StatusRejected, now, actor)
		},
	)
}

// Pay records payout at paidAt, or the request time when nil.
func (s *Service) Pay(ctx context.Context, id domain.CommissionID, paidAt *time.Time) (*models.Commission, error) {
	return s.review(ctx, id, audit.EventCommissionPaid, "pay",
		func(c *models.Commission) error { return c.CanPay() },
		func(c *models.Commission, now time.Time, _ domain.UserID) {
			if paidAt != nil {
				now = *paidAt
			}
			c.ApplyPaid(now)
		},
	)
}

func (s *Service) Delete(ctx context.Context, id domain.CommissionID) error {
	_, err := s.review(ctx, id, audit.EventCommissionDeleted, "delete",
		func(c *models.Commission) error { return c.CanRemove() },
		func(c *models.Commission, now time.Time, actor domain.UserID) { c.ApplyDelete(now, actor) },
	)
	return err
}

func (s *Service) review(
	ctx context.Context,
	id domain.CommissionID,
	event audit.AuditEvent,
	action string,
	validate func(*models.Commission) error,
	apply func(*models.Commission, time.Time, domain.UserID),
) (*models.Commission, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireReview(p); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	var out *models.Commission
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		c, err := s.commissions.Execute(txCtx, p.TenantID, uuid.UUID(id),
			func(c *models.Commission) error {
				if c.IsDeleted() {
					return dErrors.New(dErrors.CodeNotFound, notFound)
				}
				return invariantToConflict(validate(c))
			},
			func(c *models.Commission) {
				apply(c, now, p.UserID)
				c.Touch(now, p.UserID)
			},
		)
		if err != nil {
			return wrapCommissionErr(err, action+" commission")
		}
		out = c
		return s.emitter.Record(txCtx, event, resourceType, c.ID.String(), string(c.Status))
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Inc("commissions", action)
	return out, nil
}

func wrapCommissionErr(err error, op string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, notFound)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "commission was modified concurrently, retry")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to "+op)
	}
}

func invariantToConflict(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeConflict, dErrors.MessageOf(err))
	}
	return err
}

func toValidation(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
	}
	return err
}
