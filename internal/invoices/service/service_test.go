package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"opsdesk/internal/billing"
	"opsdesk/internal/counters"
	"opsdesk/internal/docstore/memory"
	"opsdesk/internal/invoices/models"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
	"opsdesk/pkg/platform/audit"
	auditmemory "opsdesk/pkg/platform/audit/store/memory"
	"opsdesk/pkg/requestcontext"
	"opsdesk/pkg/testutil"
)

type storePublisher struct{ store audit.Store }

func (p storePublisher) Emit(ctx context.Context, e audit.Event) error { return p.store.Append(ctx, e) }

type failingCounter struct{}

func (failingCounter) Next(context.Context, domain.TenantID, string) (int64, error) {
	return 0, errors.New("redis: connection refused")
}

type InvoiceServiceSuite struct {
	suite.Suite
	redis   *miniredis.Miniredis
	service *Service
	events  *auditmemory.InMemoryStore
	tenant  domain.TenantID
	writer  context.Context
	admin   context.Context
	now     time.Time
}

func TestInvoiceServiceSuite(t *testing.T) {
	suite.Run(t, new(InvoiceServiceSuite))
}

func (s *InvoiceServiceSuite) SetupTest() {
	s.redis = miniredis.RunT(s.T())
	client := redis.NewClient(&redis.Options{Addr: s.redis.Addr()})
	s.events = auditmemory.NewInMemoryStore()
	s.service = New(memory.New[*models.Invoice](models.Schema), counters.NewRedis(client),
		WithAuditPublisher(storePublisher{s.events}))

	s.tenant = domain.NewTenantID()
	s.now = time.Date(2026, 4, 10, 10, 0, 0, 0, time.UTC)
	s.writer = requestcontext.WithTime(testutil.Ctx(testutil.Principal(s.tenant, domain.RoleMember, models.PermWrite)), s.now)
	s.admin = requestcontext.WithTime(testutil.Ctx(testutil.Principal(s.tenant, domain.RoleAdmin)), s.now)
}

func (s *InvoiceServiceSuite) draft() CreateInput {
	return CreateInput{Draft: models.Draft{
		CustomerID: domain.NewCustomerID(),
		LineItems:  []billing.LineItem{{Description: "Freight", Quantity: 1, UnitPriceCents: 20000}},
		TaxRateBps: 2000,
		Currency:   "eur",
	}}
}

func (s *InvoiceServiceSuite) TestNumbersAreSequentialPerTenant() {
	first, err := s.service.Create(s.writer, s.draft())
	s.Require().NoError(err)
	second, err := s.service.Create(s.writer, s.draft())
	s.Require().NoError(err)
	s.Equal("INV-000001", first.Number)
	s.Equal("INV-000002", second.Number)
	s.Equal("EUR", first.Currency)
	s.Equal(int64(24000), first.TotalCents)

	other := testutil.Ctx(testutil.Principal(domain.NewTenantID(), domain.RoleMember, models.PermWrite))
	inv, err := s.service.Create(other, s.draft())
	s.Require().NoError(err)
	s.Equal("INV-000001", inv.Number)
}

func (s *InvoiceServiceSuite) TestInvalidDraftConsumesNoNumber() {
	bad := s.draft()
	bad.LineItems[0].Quantity = 0
	_, err := s.service.Create(s.writer, bad)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	inv, err := s.service.Create(s.writer, s.draft())
	s.Require().NoError(err)
	s.Equal("INV-000001", inv.Number)
}

func (s *InvoiceServiceSuite) TestCounterFailure() {
	svc := New(memory.New[*models.Invoice](models.Schema), failingCounter{})
	_, err := svc.Create(s.writer, s.draft())
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *InvoiceServiceSuite) TestLifecycle() {
	inv, err := s.service.Create(s.writer, s.draft())
	s.Require().NoError(err)

	rate := 0
	updated, err := s.service.Update(s.writer, inv.ID, UpdateInput{TaxRateBps: &rate})
	s.Require().NoError(err)
	s.Equal(int64(20000), updated.TotalCents)

	_, err = s.service.MarkPaid(s.writer, inv.ID, nil)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	sent, err := s.service.Send(s.writer, inv.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusSent, sent.Status)
	s.Require().NotNil(sent.IssuedAt)

	_, err = s.service.Update(s.writer, inv.ID, UpdateInput{TaxRateBps: &rate})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Equal("only draft invoices can be edited", dErrors.MessageOf(err))

	paid, err := s.service.MarkPaid(s.writer, inv.ID, nil)
	s.Require().NoError(err)
	s.Equal(models.StatusPaid, paid.Status)
	s.True(paid.PaidAt.Equal(s.now))

	events, err := s.events.List(context.Background(), s.tenant, audit.Filter{ResourceID: inv.ID.String()})
	s.Require().NoError(err)
	s.Len(events, 4)
}

func (s *InvoiceServiceSuite) TestVoidIsAdminOnly() {
	inv, err := s.service.Create(s.writer, s.draft())
	s.Require().NoError(err)

	_, err = s.service.Void(s.writer, inv.ID)
	s.Equal("Permission denied: Admin access required", dErrors.MessageOf(err))

	voided, err := s.service.Void(s.admin, inv.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusVoid, voided.Status)

	_, err = s.service.Send(s.writer, inv.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *InvoiceServiceSuite) TestOverdueFilter() {
	due := s.now.Add(-24 * time.Hour)
	in := s.draft()
	in.DueDate = &due
	late, err := s.service.Create(s.writer, in)
	s.Require().NoError(err)
	_, err = s.service.Send(s.writer, late.ID)
	s.Require().NoError(err)
	_, err = s.service.Create(s.writer, in)
	s.Require().NoError(err)

	list, err := s.service.List(s.writer, ListFilter{OverdueOnly: true})
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(late.ID, list[0].ID)
}
