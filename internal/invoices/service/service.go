package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"opsdesk/internal/authz"
	"opsdesk/internal/billing"
	"opsdesk/internal/counters"
	"opsdesk/internal/docstore"
	"opsdesk/internal/invoices/models"
	platformmetrics "opsdesk/internal/platform/metrics"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
	"opsdesk/pkg/platform/audit"
	"opsdesk/pkg/platform/sentinel"
	txcontext "opsdesk/pkg/platform/tx"
	"opsdesk/pkg/requestcontext"
)

const (
	resourceType = "invoice"
	notFound     = "Invoice not found"
)

type Service struct {
	invoices  docstore.Store[*models.Invoice]
	counter   counters.Counter
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

func New(invoices docstore.Store[*models.Invoice], counter counters.Counter, opts ...Option) *Service {
	s := &Service{
		invoices: invoices,
		counter:  counter,
		tx:       txcontext.NoopRunner{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.emitter = audit.NewEmitter(s.logger, s.publisher)
	return s
}

type CreateInput struct {
	models.Draft
	QuoteID *domain.QuoteID
	// ID is used as the invoice id when set, so a caller can link to the
	// invoice before it exists.
	ID domain.InvoiceID
}

// UpdateInput edits a draft; nil fields are left unchanged.
type UpdateInput struct {
	CustomerID *domain.CustomerID
	LineItems  []billing.LineItem
	TaxRateBps *int
	Currency   *string
	Notes      *string
	DueDate    *time.Time
}

type ListFilter struct {
	Status         models.Status
	CustomerID     *domain.CustomerID
	QuoteID        *domain.QuoteID
	OverdueOnly    bool
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// Create numbers and stores a draft invoice.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Invoice, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireWrite(p); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	// Validate before consuming a number so bad requests leave no gaps.
	check := &models.Invoice{}
	if err := check.ApplyDraft(in.Draft); err != nil {
		return nil, toValidation(err)
	}
	n, err := s.counter.Next(ctx, p.TenantID, counters.Invoices)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate invoice number")
	}
	inv, err := models.NewInvoice(p.TenantID, counters.Format(models.NumberPrefix, n), in.Draft, in.QuoteID, now, p.UserID)
	if err != nil {
		return nil, toValidation(err)
	}
	if !in.ID.IsNil() {
		inv.ID = in.ID
	}
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.invoices.Insert(txCtx, inv); err != nil {
			return wrapInvoiceErr(err, "create invoice")
		}
		return s.emitter.Record(txCtx, audit.EventInvoiceCreated, resourceType, inv.ID.String(), inv.Number)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Inc("invoices", "create")
	s.logger.InfoContext(ctx, "invoice created",
		"request_id", requestcontext.RequestID(ctx),
		"invoice_id", inv.ID,
		"number", inv.Number,
	)
	return inv, nil
}

func (s *Service) Get(ctx context.Context, id domain.InvoiceID) (*models.Invoice, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireRead(p); err != nil {
		return nil, err
	}
	inv, err := s.invoices.Get(ctx, p.TenantID, uuid.UUID(id))
	if err != nil {
		return nil, wrapInvoiceErr(err, "load invoice")
	}
	if inv.IsDeleted() {
		return nil, dErrors.New(dErrors.CodeNotFound, notFound)
	}
	return inv, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]*models.Invoice, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireRead(p); err != nil {
		return nil, err
	}
	q := docstore.Query{IncludeDeleted: f.IncludeDeleted && p.IsAdmin()}
	if !f.OverdueOnly {
		q.Limit, q.Offset = f.Limit, f.Offset
	}
	if f.Status != "" {
		q = q.Where("status", f.Status)
	}
	if f.CustomerID != nil {
		q = q.Where("customerId", *f.CustomerID)
	}
	if f.QuoteID != nil {
		q = q.Where("quoteId", *f.QuoteID)
	}
	out, err := s.invoices.List(ctx, p.TenantID, q)
	if err != nil {
		return nil, wrapInvoiceErr(err, "list invoices")
	}
	if !f.OverdueOnly {
		return out, nil
	}
	now := requestcontext.Now(ctx)
	overdue := make([]*models.Invoice, 0, len(out))
	for _, inv := range out {
		if inv.IsOverdue(now) {
			overdue = append(overdue, inv)
		}
	}
	return docstore.Page(overdue, f.Offset, f.Limit), nil
}

func (s *Service) Update(ctx context.Context, id domain.InvoiceID, in UpdateInput) (*models.Invoice, error) {
	return s.transition(ctx, id, models.RequireWrite, audit.EventInvoiceUpdated, "update",
		func(inv *models.Invoice) error {
			if err := inv.CanEdit(); err != nil {
				return invariantToConflict(err)
			}
			return toValidation(inv.Clone().ApplyDraft(merge(inv.Draft(), in)))
		},
		func(inv *models.Invoice, _ time.Time, _ domain.UserID) {
			_ = inv.ApplyDraft(merge(inv.Draft(), in))
		},
	)
}

func (s *Service) Send(ctx context.Context, id domain.InvoiceID) (*models.Invoice, error) {
	return s.transition(ctx, id, models.RequireWrite, audit.EventInvoiceSent, "send",
		func(inv *models.Invoice) error { return invariantToConflict(inv.CanSend()) },
		func(inv *models.Invoice, now time.Time, actor domain.UserID) { inv.ApplySend(now, actor) },
	)
}

// MarkPaid records payment at paidAt, or the request time when nil.
func (s *Service) MarkPaid(ctx context.Context, id domain.InvoiceID, paidAt *time.Time) (*models.Invoice, error) {
	return s.transition(ctx, id, models.RequireWrite, audit.EventInvoicePaid, "pay",
		func(inv *models.Invoice) error { return invariantToConflict(inv.CanMarkPaid()) },
		func(inv *models.Invoice, now time.Time, actor domain.UserID) {
			at := now
			if paidAt != nil {
				at = *paidAt
			}
			inv.ApplyPaid(at, now, actor)
		},
	)
}

func (s *Service) Void(ctx context.Context, id domain.InvoiceID) (*models.Invoice, error) {
	return s.transition(ctx, id, models.RequireVoid, audit.EventInvoiceVoided, "void",
		func(inv *models.Invoice) error { return invariantToConflict(inv.CanVoid()) },
		func(inv *models.Invoice, now time.Time, actor domain.UserID) { inv.ApplyVoid(now, actor) },
	)
}

func (s *Service) Delete(ctx context.Context, id domain.InvoiceID) error {
	_, err := s.transition(ctx, id, models.RequireDelete, audit.EventInvoiceDeleted, "delete",
		func(*models.Invoice) error { return nil },
		func(inv *models.Invoice, now time.Time, actor domain.UserID) { inv.ApplyDelete(now, actor) },
	)
	return err
}

func (s *Service) transition(
	ctx context.Context,
	id domain.InvoiceID,
	require func(domain.Principal) error,
	event audit.AuditEvent,
	action string,
	validate func(*models.Invoice) error,
	apply func(*models.Invoice, time.Time, domain.UserID),
) (*models.Invoice, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := require(p); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	var out *models.Invoice
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		inv, err := s.invoices.Execute(txCtx, p.TenantID, uuid.UUID(id),
			func(inv *models.Invoice) error {
				if inv.IsDeleted() {
					return dErrors.New(dErrors.CodeNotFound, notFound)
				}
				return validate(inv)
			},
			func(inv *models.Invoice) {
				apply(inv, now, p.UserID)
				inv.Touch(now, p.UserID)
			},
		)
		if err != nil {
			return wrapInvoiceErr(err, action+" invoice")
		}
		out = inv
		return s.emitter.Record(txCtx, event, resourceType, inv.ID.String(), inv.Number)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Inc("invoices", action)
	return out, nil
}

func merge(d models.Draft, in UpdateInput) models.Draft {
	if in.CustomerID != nil {
		d.CustomerID = *in.CustomerID
	}
	if in.LineItems != nil {
		d.LineItems = in.LineItems
	}
	if in.TaxRateBps != nil {
		d.TaxRateBps = *in.TaxRateBps
	}
	if in.Currency != nil {
		d.Currency = *in.Currency
	}
	if in.Notes != nil {
		d.Notes = *in.Notes
	}
	if in.DueDate != nil {
		d.DueDate = in.DueDate
	}
	return d
}

func wrapInvoiceErr(err error, op string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, notFound)
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeConflict, "invoice number is already in use")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "invoice was modified concurrently, retry")
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
