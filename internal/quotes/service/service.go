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
	invmodels "opsdesk/internal/invoices/models"
	invservice "opsdesk/internal/invoices/service"
	platformmetrics "opsdesk/internal/platform/metrics"
	"opsdesk/internal/quotes/models"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
	"opsdesk/pkg/platform/audit"
	"opsdesk/pkg/platform/sentinel"
	txcontext "opsdesk/pkg/platform/tx"
	"opsdesk/pkg/requestcontext"
)

const (
	resourceType = "quote"
	notFound     = "Quote not found"
)

// InvoiceCreator issues the draft invoice for a converted quote.
type InvoiceCreator interface {
	Create(ctx context.Context, in invservice.CreateInput) (*invmodels.Invoice, error)
}

type Service struct {
	quotes    docstore.Store[*models.Quote]
	counter   counters.Counter
	invoices  InvoiceCreator
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

func New(quotes docstore.Store[*models.Quote], counter counters.Counter, invoices InvoiceCreator, opts ...Option) *Service {
	s := &Service{
		quotes:   quotes,
		counter:  counter,
		invoices: invoices,
		tx:       txcontext.NoopRunner{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.emitter = audit.NewEmitter(s.logger, s.publisher)
	return s
}

type UpdateInput struct {
	CustomerID *domain.CustomerID
	LineItems  []billing.LineItem
	TaxRateBps *int
	Currency   *string
	Notes      *string
	ValidUntil *time.Time
}

type ListFilter struct {
	Status         models.Status
	CustomerID     *domain.CustomerID
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// Conversion is the result of turning an accepted quote into an invoice.
type Conversion struct {
	Quote   *models.Quote      `json:"quote"`
	Invoice *invmodels.Invoice `json:"invoice"`
}

func (s *Service) Create(ctx context.Context, d models.Draft) (*models.Quote, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireWrite(p); err != nil {
		return nil, err
	}
	if err := (&models.Quote{}).ApplyDraft(d); err != nil {
		return nil, toValidation(err)
	}
	n, err := s.counter.Next(ctx, p.TenantID, counters.Quotes)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate quote number")
	}
	q, err := models.NewQuote(p.TenantID, counters.Format(models.NumberPrefix, n), d, requestcontext.Now(ctx), p.UserID)
	if err != nil {
		return nil, toValidation(err)
	}
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.quotes.Insert(txCtx, q); err != nil {
			return wrapQuoteErr(err, "create quote")
		}
		return s.emitter.Record(txCtx, audit.EventQuoteCreated, resourceType, q.ID.String(), q.Number)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Inc("quotes", "create")
	return q, nil
}

func (s *Service) Get(ctx context.Context, id domain.QuoteID) (*models.Quote, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireRead(p); err != nil {
		return nil, err
	}
	q, err := s.quotes.Get(ctx, p.TenantID, uuid.UUID(id))
	if err != nil {
		return nil, wrapQuoteErr(err, "load quote")
	}
	if q.IsDeleted() {
		return nil, dErrors.New(dErrors.CodeNotFound, notFound)
	}
	return q, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]*models.Quote, error) {
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
	if f.CustomerID != nil {
		q = q.Where("customerId", *f.CustomerID)
	}
	out, err := s.quotes.List(ctx, p.TenantID, q)
	if err != nil {
		return nil, wrapQuoteErr(err, "list quotes")
	}
	return out, nil
}

func (s *Service) Update(ctx context.Context, id domain.QuoteID, in UpdateInput) (*models.Quote, error) {
	return s.change(ctx, id, models.RequireWrite, audit.EventQuoteUpdated, "update",
		func(q *models.Quote, _ time.Time) error {
			if err := q.CanEdit(); err != nil {
				return invariantToConflict(err)
			}
			return toValidation(q.Clone().ApplyDraft(merge(q.Draft(), in)))
		},
		func(q *models.Quote, _ time.Time) { _ = q.ApplyDraft(merge(q.Draft(), in)) },
	)
}

func (s *Service) Send(ctx context.Context, id domain.QuoteID) (*models.Quote, error) {
	return s.change(ctx, id, models.RequireWrite, audit.EventQuoteSent, "send",
		func(q *models.Quote, now time.Time) error { return invariantToConflict(q.CanSend(now)) },
		func(q *models.Quote, now time.Time) { q.ApplySend(now) },
	)
}

// Accept records the customer's acceptance. A quote past its validity date
// is marked expired instead and the call fails with a conflict.
func (s *Service) Accept(ctx context.Context, id domain.QuoteID) (*models.Quote, error) {
	q, err := s.change(ctx, id, models.RequireWrite, audit.EventQuoteAccepted, "accept",
		func(q *models.Quote, now time.Time) error {
			if err := q.CanDecide(); err != nil {
				return invariantToConflict(err)
			}
			if q.IsExpired(now) {
				return errExpired
			}
			return nil
		},
		func(q *models.Quote, now time.Time) { q.ApplyDecision(models.StatusAccepted, now) },
	)
	if errors.Is(err, errExpired) {
		if _, expireErr := s.expire(ctx, id); expireErr != nil {
			return nil, expireErr
		}
		return nil, dErrors.New(dErrors.CodeConflict, "quote has expired")
	}
	return q, err
}

func (s *Service) Reject(ctx context.Context, id domain.QuoteID) (*models.Quote, error) {
	return s.change(ctx, id, models.RequireWrite, audit.EventQuoteRejected, "reject",
		func(q *models.Quote, _ time.Time) error { return invariantToConflict(q.CanDecide()) },
		func(q *models.Quote, now time.Time) { q.ApplyDecision(models.StatusRejected, now) },
	)
}

// Convert creates a draft invoice from an accepted quote and links it.
// The quote is claimed for the new invoice id before the invoice is
// written, so concurrent conversions of one quote yield a single invoice.
func (s *Service) Convert(ctx context.Context, id domain.QuoteID) (*Conversion, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireWrite(p); err != nil {
		return nil, err
	}
	q, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := q.CanConvert(); err != nil {
		return nil, invariantToConflict(err)
	}
	now := requestcontext.Now(ctx)
	invID := domain.NewInvoiceID()
	var out *Conversion
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		claimed, err := s.quotes.Execute(txCtx, p.TenantID, uuid.UUID(id),
			func(q *models.Quote) error {
				if q.IsDeleted() {
					return dErrors.New(dErrors.CodeNotFound, notFound)
				}
				return invariantToConflict(q.CanConvert())
			},
			func(q *models.Quote) {
				q.InvoiceID = &invID
				q.Touch(now, p.UserID)
			},
		)
		if err != nil {
			return wrapQuoteErr(err, "convert quote")
		}
		quoteID := claimed.ID
		inv, err := s.invoices.Create(txCtx, invservice.CreateInput{
			Draft: invmodels.Draft{
				CustomerID: claimed.CustomerID,
				LineItems:  billing.CloneItems(claimed.LineItems),
				TaxRateBps: claimed.TaxRateBps,
				Currency:   claimed.Currency,
				Notes:      "From quote " + claimed.Number,
			},
			QuoteID: &quoteID,
			ID:      invID,
		})
		if err != nil {
			s.release(txCtx, p.TenantID, id, invID)
			return err
		}
		out = &Conversion{Quote: claimed, Invoice: inv}
		return s.emitter.Record(txCtx, audit.EventQuoteConverted, resourceType, claimed.ID.String(), claimed.Number)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Inc("quotes", "convert")
	return out, nil
}

// release clears a conversion claim whose invoice was never written.
// Transactional backends roll the claim back on their own.
func (s *Service) release(ctx context.Context, tenantID domain.TenantID, id domain.QuoteID, invID domain.InvoiceID) {
	_, err := s.quotes.Execute(ctx, tenantID, uuid.UUID(id),
		func(q *models.Quote) error {
			if q.InvoiceID == nil || *q.InvoiceID != invID {
				return sentinel.ErrInvalidState
			}
			return nil
		},
		func(q *models.Quote) { q.InvoiceID = nil },
	)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to release quote conversion claim",
			"request_id", requestcontext.RequestID(ctx),
			"quote_id", id,
			"invoice_id", invID,
			"error", err,
		)
	}
}

func (s *Service) Delete(ctx context.Context, id domain.QuoteID) error {
	_, err := s.change(ctx, id, models.RequireDelete, audit.EventQuoteDeleted, "delete",
		func(*models.Quote, time.Time) error { return nil },
		func(q *models.Quote, now time.Time) { q.ApplyDelete(now, requestcontext.UserID(ctx)) },
	)
	return err
}

// ExpireStale marks every sent quote past its validity date as expired,
// across tenants. It runs from the scheduler.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	now := requestcontext.Now(ctx)
	sent, err := s.quotes.ListAll(ctx, docstore.Query{}.Where("status", models.StatusSent))
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list sent quotes")
	}
	expired := 0
	for _, q := range sent {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		if !q.IsExpired(now) {
			continue
		}
		_, err := s.quotes.Execute(ctx, q.TenantID, uuid.UUID(q.ID),
			func(q *models.Quote) error {
				if !q.IsExpired(now) || q.IsDeleted() {
					return sentinel.ErrInvalidState
				}
				return nil
			},
			func(q *models.Quote) {
				q.ApplyDecision(models.StatusExpired, now)
				q.UpdatedAt = now
			},
		)
		if errors.Is(err, sentinel.ErrInvalidState) {
			continue
		}
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to expire quote", "quote_id", q.ID, "error", err)
			continue
		}
		expired++
		if err := s.emitter.RecordFor(ctx, q.TenantID, audit.EventQuoteExpired, resourceType, q.ID.String(), q.Number); err != nil {
			s.logger.WarnContext(ctx, "quote expired without audit event",
				"tenant_id", q.TenantID,
				"quote_id", q.ID,
				"error", err,
			)
		}
	}
	if expired > 0 {
		s.logger.InfoContext(ctx, "expired stale quotes", "count", expired)
	}
	return expired, nil
}

// Job adapts ExpireStale to the scheduler.
func (s *Service) Job(ctx context.Context) error {
	_, err := s.ExpireStale(ctx)
	return err
}

var errExpired = errors.New("quote expired")

func (s *Service) expire(ctx context.Context, id domain.QuoteID) (*models.Quote, error) {
	return s.change(ctx, id, models.RequireWrite, audit.EventQuoteExpired, "expire",
		func(q *models.Quote, now time.Time) error {
			if !q.IsExpired(now) {
				return dErrors.New(dErrors.CodeConflict, "quote is no longer pending")
			}
			return nil
		},
		func(q *models.Quote, now time.Time) { q.ApplyDecision(models.StatusExpired, now) },
	)
}

func (s *Service) change(
	ctx context.Context,
	id domain.QuoteID,
	require func(domain.Principal) error,
	event audit.AuditEvent,
	action string,
	validate func(*models.Quote, time.Time) error,
	apply func(*models.Quote, time.Time),
) (*models.Quote, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := require(p); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	var out *models.Quote
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		q, err := s.quotes.Execute(txCtx, p.TenantID, uuid.UUID(id),
			func(q *models.Quote) error {
				if q.IsDeleted() {
					return dErrors.New(dErrors.CodeNotFound, notFound)
				}
				return validate(q, now)
			},
			func(q *models.Quote) {
				apply(q, now)
				q.Touch(now, p.UserID)
			},
		)
		if err != nil {
			return wrapQuoteErr(err, action+" quote")
		}
		out = q
		return s.emitter.Record(txCtx, event, resourceType, q.ID.String(), q.Number)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Inc("quotes", action)
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
	if in.ValidUntil != nil {
		d.ValidUntil = in.ValidUntil
	}
	return d
}

func wrapQuoteErr(err error, op string) error {
	var de *dErrors.Error
	switch {
	case errors.Is(err, errExpired):
		return err
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, notFound)
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeConflict, "quote number is already in use")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "quote was modified concurrently, retry")
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
