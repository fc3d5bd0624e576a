package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"opsdesk/internal/billing"
	"opsdesk/internal/counters"
	"opsdesk/internal/docstore"
	"opsdesk/internal/docstore/memory"
	invmodels "opsdesk/internal/invoices/models"
	invservice "opsdesk/internal/invoices/service"
	"opsdesk/internal/quotes/models"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
	"opsdesk/pkg/platform/audit"
	auditmemory "opsdesk/pkg/platform/audit/store/memory"
	"opsdesk/pkg/requestcontext"
	"opsdesk/pkg/testutil"
)

type storePublisher struct{ store audit.Store }

func (p storePublisher) Emit(ctx context.Context, e audit.Event) error { return p.store.Append(ctx, e) }

// hookedCounter runs onInvoice once, just before the next invoice number
// is allocated.
type hookedCounter struct {
	counters.Counter
	onInvoice func()
}

func (c *hookedCounter) Next(ctx context.Context, tenantID domain.TenantID, name string) (int64, error) {
	if name == counters.Invoices && c.onInvoice != nil {
		hook := c.onInvoice
		c.onInvoice = nil
		hook()
	}
	return c.Counter.Next(ctx, tenantID, name)
}

type failingPublisher struct{}

func (failingPublisher) Emit(context.Context, audit.Event) error {
	return errors.New("audit sink down")
}

type failingCounter struct{}

func (failingCounter) Next(context.Context, domain.TenantID, string) (int64, error) {
	return 0, errors.New("counter unavailable")
}

type QuoteServiceSuite struct {
	suite.Suite
	service      *Service
	invoices     *invservice.Service
	invoiceStore *memory.Store[*invmodels.Invoice]
	counter      *hookedCounter
	store        *memory.Store[*models.Quote]
	events   *auditmemory.InMemoryStore
	tenant   domain.TenantID
	writer   domain.Principal
	admin    domain.Principal
	now      time.Time
}

func TestQuoteServiceSuite(t *testing.T) {
	suite.Run(t, new(QuoteServiceSuite))
}

func (s *QuoteServiceSuite) SetupTest() {
	s.events = auditmemory.NewInMemoryStore()
	pub := WithAuditPublisher(storePublisher{s.events})
	s.counter = &hookedCounter{Counter: counters.NewMemory()}
	s.invoiceStore = memory.New[*invmodels.Invoice](invmodels.Schema)
	s.invoices = invservice.New(s.invoiceStore, s.counter)
	s.store = memory.New[*models.Quote](models.Schema)
	s.service = New(s.store, s.counter, s.invoices, pub)

	s.tenant = domain.NewTenantID()
	s.now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	s.writer = testutil.Principal(s.tenant, domain.RoleMember, models.PermWrite, invmodels.PermWrite)
	s.admin = testutil.Principal(s.tenant, domain.RoleAdmin)
}

func (s *QuoteServiceSuite) at(p domain.Principal, t time.Time) context.Context {
	return requestcontext.WithTime(testutil.Ctx(p), t)
}

func (s *QuoteServiceSuite) draft() models.Draft {
	valid := s.now.Add(7 * 24 * time.Hour)
	return models.Draft{
		CustomerID: domain.NewCustomerID(),
		LineItems:  []billing.LineItem{{Description: "Consulting", Quantity: 10, UnitPriceCents: 15000}},
		TaxRateBps: 1000,
		Currency:   "usd",
		ValidUntil: &valid,
	}
}

func (s *QuoteServiceSuite) sent() *models.Quote {
	ctx := s.at(s.writer, s.now)
	q, err := s.service.Create(ctx, s.draft())
	s.Require().NoError(err)
	q, err = s.service.Send(ctx, q.ID)
	s.Require().NoError(err)
	return q
}

func (s *QuoteServiceSuite) TestCreateNumbersAndTotals() {
	q, err := s.service.Create(s.at(s.writer, s.now), s.draft())
	s.Require().NoError(err)
	s.Equal("Q-000001", q.Number)
	s.Equal(models.StatusDraft, q.Status)
	s.Equal(int64(150000), q.SubtotalCents)
	s.Equal(int64(165000), q.TotalCents)
	s.Equal(s.writer.UserID, q.CreatedBy)
}

func (s *QuoteServiceSuite) TestCreateRequiresCustomer() {
	d := s.draft()
	d.CustomerID = domain.CustomerID{}
	_, err := s.service.Create(s.at(s.writer, s.now), d)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Equal("quote customer is required", dErrors.MessageOf(err))
}

func (s *QuoteServiceSuite) TestCreateForbiddenWithoutWrite() {
	reader := testutil.Principal(s.tenant, domain.RoleMember, models.PermRead)
	_, err := s.service.Create(s.at(reader, s.now), s.draft())
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *QuoteServiceSuite) TestUpdateOnlyDrafts() {
	ctx := s.at(s.writer, s.now)
	q, err := s.service.Create(ctx, s.draft())
	s.Require().NoError(err)

	notes := "net 30"
	updated, err := s.service.Update(ctx, q.ID, UpdateInput{Notes: &notes})
	s.Require().NoError(err)
	s.Equal("net 30", updated.Notes)

	_, err = s.service.Send(ctx, q.ID)
	s.Require().NoError(err)
	_, err = s.service.Update(ctx, q.ID, UpdateInput{Notes: &notes})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Equal("only draft quotes can be edited", dErrors.MessageOf(err))
}

func (s *QuoteServiceSuite) TestAcceptBeforeExpiry() {
	q := s.sent()
	accepted, err := s.service.Accept(s.at(s.writer, s.now.Add(time.Hour)), q.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusAccepted, accepted.Status)
	s.Require().NotNil(accepted.DecidedAt)

	_, err = s.service.Reject(s.at(s.writer, s.now.Add(2*time.Hour)), q.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *QuoteServiceSuite) TestAcceptAfterExpiryMarksExpired() {
	q := s.sent()
	late := s.at(s.writer, s.now.Add(8*24*time.Hour))

	_, err := s.service.Accept(late, q.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Equal("quote has expired", dErrors.MessageOf(err))

	stored, err := s.service.Get(late, q.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusExpired, stored.Status)

	events, err := s.events.List(context.Background(), s.tenant, audit.Filter{Action: string(audit.EventQuoteExpired)})
	s.Require().NoError(err)
	s.Len(events, 1)
}

func (s *QuoteServiceSuite) TestReject() {
	q := s.sent()
	rejected, err := s.service.Reject(s.at(s.writer, s.now), q.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, rejected.Status)

	_, err = s.service.Convert(s.at(s.writer, s.now), q.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *QuoteServiceSuite) TestConvertCreatesDraftInvoice() {
	q := s.sent()
	ctx := s.at(s.writer, s.now.Add(time.Hour))
	_, err := s.service.Accept(ctx, q.ID)
	s.Require().NoError(err)

	conv, err := s.service.Convert(ctx, q.ID)
	s.Require().NoError(err)
	s.Equal(invmodels.StatusDraft, conv.Invoice.Status)
	s.Equal("INV-000001", conv.Invoice.Number)
	s.Equal(q.CustomerID, conv.Invoice.CustomerID)
	s.Equal(q.TotalCents, conv.Invoice.TotalCents)
	s.Require().NotNil(conv.Invoice.QuoteID)
	s.Equal(q.ID, *conv.Invoice.QuoteID)
	s.Require().NotNil(conv.Quote.InvoiceID)
	s.Equal(conv.Invoice.ID, *conv.Quote.InvoiceID)

	_, err = s.service.Convert(ctx, q.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *QuoteServiceSuite) TestConvertInterleavedIssuesOneInvoice() {
	q := s.sent()
	ctx := s.at(s.writer, s.now.Add(time.Hour))
	_, err := s.service.Accept(ctx, q.ID)
	s.Require().NoError(err)

	var innerErr error
	s.counter.onInvoice = func() {
		_, innerErr = s.service.Convert(ctx, q.ID)
	}
	conv, err := s.service.Convert(ctx, q.ID)
	s.Require().NoError(err)
	s.True(dErrors.HasCode(innerErr, dErrors.CodeConflict))

	issued, err := s.invoiceStore.List(ctx, s.tenant, docstore.Query{}.Where("quoteId", q.ID))
	s.Require().NoError(err)
	s.Require().Len(issued, 1)
	s.Equal(conv.Invoice.ID, issued[0].ID)

	stored, err := s.service.Get(ctx, q.ID)
	s.Require().NoError(err)
	s.Require().NotNil(stored.InvoiceID)
	s.Equal(conv.Invoice.ID, *stored.InvoiceID)
}

func (s *QuoteServiceSuite) TestConvertReleasesClaimWhenInvoiceFails() {
	q := s.sent()
	ctx := s.at(s.writer, s.now)
	_, err := s.service.Accept(ctx, q.ID)
	s.Require().NoError(err)

	s.counter.Counter = failingCounter{}
	_, err = s.service.Convert(ctx, q.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	stored, err := s.service.Get(ctx, q.ID)
	s.Require().NoError(err)
	s.Nil(stored.InvoiceID)
	s.NoError(stored.CanConvert())
}

func (s *QuoteServiceSuite) TestConvertNeedsInvoicePermission() {
	q := s.sent()
	ctx := s.at(s.writer, s.now)
	_, err := s.service.Accept(ctx, q.ID)
	s.Require().NoError(err)

	quoteOnly := testutil.Principal(s.tenant, domain.RoleMember, models.PermWrite)
	_, err = s.service.Convert(s.at(quoteOnly, s.now), q.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	stored, err := s.service.Get(ctx, q.ID)
	s.Require().NoError(err)
	s.Nil(stored.InvoiceID)
}

func (s *QuoteServiceSuite) TestDeleteAdminOnly() {
	q, err := s.service.Create(s.at(s.writer, s.now), s.draft())
	s.Require().NoError(err)

	err = s.service.Delete(s.at(s.writer, s.now), q.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	s.Require().NoError(s.service.Delete(s.at(s.admin, s.now), q.ID))
	_, err = s.service.Get(s.at(s.admin, s.now), q.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.Equal("Quote not found", dErrors.MessageOf(err))

	list, err := s.service.List(s.at(s.writer, s.now), ListFilter{})
	s.Require().NoError(err)
	s.Empty(list)

	list, err = s.service.List(s.at(s.admin, s.now), ListFilter{IncludeDeleted: true})
	s.Require().NoError(err)
	s.Len(list, 1)
}

func (s *QuoteServiceSuite) TestListFiltersByStatus() {
	s.sent()
	_, err := s.service.Create(s.at(s.writer, s.now), s.draft())
	s.Require().NoError(err)

	list, err := s.service.List(s.at(s.writer, s.now), ListFilter{Status: models.StatusSent})
	s.Require().NoError(err)
	s.Len(list, 1)
}

func (s *QuoteServiceSuite) TestExpireStaleAcrossTenants() {
	s.sent()
	other := testutil.Principal(domain.NewTenantID(), domain.RoleMember, models.PermWrite)
	oq, err := s.service.Create(s.at(other, s.now), s.draft())
	s.Require().NoError(err)
	_, err = s.service.Send(s.at(other, s.now), oq.ID)
	s.Require().NoError(err)
	_, err = s.service.Create(s.at(s.writer, s.now), s.draft())
	s.Require().NoError(err)

	n, err := s.service.ExpireStale(requestcontext.WithTime(context.Background(), s.now.Add(time.Hour)))
	s.Require().NoError(err)
	s.Equal(0, n)

	n, err = s.service.ExpireStale(requestcontext.WithTime(context.Background(), s.now.Add(30*24*time.Hour)))
	s.Require().NoError(err)
	s.Equal(2, n)

	stored, err := s.service.Get(s.at(other, s.now), oq.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusExpired, stored.Status)
}

func (s *QuoteServiceSuite) TestExpireStaleLogsLostAuditEvent() {
	q := s.sent()
	var buf bytes.Buffer
	svc := New(s.store, s.counter, s.invoices,
		WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))),
		WithAuditPublisher(failingPublisher{}),
	)

	n, err := svc.ExpireStale(requestcontext.WithTime(context.Background(), s.now.Add(30*24*time.Hour)))
	s.Require().NoError(err)
	s.Equal(1, n)
	s.Contains(buf.String(), "quote expired without audit event")
	s.Contains(buf.String(), `"quote_id":"`+q.ID.String()+`"`)
}
