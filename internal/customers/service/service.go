package service

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"opsdesk/internal/authz"
	"opsdesk/internal/customers/models"
	"opsdesk/internal/docstore"
	platformmetrics "opsdesk/internal/platform/metrics"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
	"opsdesk/pkg/email"
	"opsdesk/pkg/platform/audit"
	"opsdesk/pkg/platform/sentinel"
	txcontext "opsdesk/pkg/platform/tx"
	"opsdesk/pkg/requestcontext"
)

const (
	resourceType = "customer"
	notFound     = "Customer not found"
)

type Service struct {
	customers docstore.Store[*models.Customer]
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

func New(customers docstore.Store[*models.Customer], opts ...Option) *Service {
	s := &Service{
		customers: customers,
		tx:        txcontext.NoopRunner{},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.emitter = audit.NewEmitter(s.logger, s.publisher)
	return s
}

// UpdateInput is a partial update; nil fields are left unchanged.
type UpdateInput struct {
	Name    *string
	Email   *string
	Phone   *string
	Company *string
	Address *models.Address
	Status  *models.Status
}

type ListFilter struct {
	Status         models.Status
	Email          string
	Company        string
	IncludeDeleted bool
	Limit          int
	Offset         int
}

func (s *Service) Create(ctx context.Context, in models.Fields) (*models.Customer, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireWrite(p); err != nil {
		return nil, err
	}
	c, err := models.NewCustomer(p.TenantID, in, requestcontext.Now(ctx), p.UserID)
	if err != nil {
		return nil, toValidation(err)
	}
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.customers.Insert(txCtx, c); err != nil {
			return wrapCustomerErr(err, "create customer")
		}
		return s.emitter.Record(txCtx, audit.EventCustomerCreated, resourceType, c.ID.String(), c.Name)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Inc("customers", "create")
	return c, nil
}

func (s *Service) Get(ctx context.Context, id domain.CustomerID) (*models.Customer, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireRead(p); err != nil {
		return nil, err
	}
	c, err := s.customers.Get(ctx, p.TenantID, uuid.UUID(id))
	if err != nil {
		return nil, wrapCustomerErr(err, "load customer")
	}
	if c.IsDeleted() {
		return nil, dErrors.New(dErrors.CodeNotFound, notFound)
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]*models.Customer, error) {
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
	if f.Email != "" {
		q = q.Where("email", email.Normalize(f.Email))
	}
	if f.Company != "" {
		q = q.Where("company", f.Company)
	}
	out, err := s.customers.List(ctx, p.TenantID, q)
	if err != nil {
		return nil, wrapCustomerErr(err, "list customers")
	}
	return out, nil
}

func (s *Service) Update(ctx context.Context, id domain.CustomerID, in UpdateInput) (*models.Customer, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireWrite(p); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	var updated *models.Customer
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		c, err := s.customers.Execute(txCtx, p.TenantID, uuid.UUID(id),
			func(c *models.Customer) error {
				if c.IsDeleted() {
					return dErrors.New(dErrors.CodeNotFound, notFound)
				}
				return toValidation(c.Clone().Apply(merge(c.Fields(), in)))
			},
			func(c *models.Customer) {
				_ = c.Apply(merge(c.Fields(), in))
				c.Touch(now, p.UserID)
			},
		)
		if err != nil {
			return wrapCustomerErr(err, "update customer")
		}
		updated = c
		return s.emitter.Record(txCtx, audit.EventCustomerUpdated, resourceType, c.ID.String(), c.Name)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Inc("customers", "update")
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id domain.CustomerID) error {
	p, err := authz.Caller(ctx)
	if err != nil {
		return err
	}
	if err := models.RequireDelete(p); err != nil {
		return err
	}
	now := requestcontext.Now(ctx)
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		c, err := s.customers.Execute(txCtx, p.TenantID, uuid.UUID(id),
			func(c *models.Customer) error {
				if c.IsDeleted() {
					return dErrors.New(dErrors.CodeNotFound, notFound)
				}
				return nil
			},
			func(c *models.Customer) { c.ApplyDelete(now, p.UserID) },
		)
		if err != nil {
			return wrapCustomerErr(err, "delete customer")
		}
		return s.emitter.Record(txCtx, audit.EventCustomerDeleted, resourceType, c.ID.String(), c.Name)
	})
	if err != nil {
		return err
	}
	s.metrics.Inc("customers", "delete")
	return nil
}

func merge(f models.Fields, in UpdateInput) models.Fields {
	if in.Name != nil {
		f.Name = *in.Name
	}
	if in.Email != nil {
		f.Email = *in.Email
	}
	if in.Phone != nil {
		f.Phone = *in.Phone
	}
	if in.Company != nil {
		f.Company = *in.Company
	}
	if in.Address != nil {
		f.Address = *in.Address
	}
	if in.Status != nil {
		f.Status = *in.Status
	}
	return f
}

func wrapCustomerErr(err error, op string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, notFound)
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeConflict, "a customer with this email already exists")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "customer was modified concurrently, retry")
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
