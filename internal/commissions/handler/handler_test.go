package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"opsdesk/internal/commissions/handler/mocks"
	"opsdesk/internal/commissions/models"
	"opsdesk/internal/commissions/service"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
	"opsdesk/pkg/testutil"
)

func setup(t *testing.T) (*mocks.MockService, http.Handler) {
	t.Helper()
	svc := mocks.NewMockService(gomock.NewController(t))
	r := chi.NewRouter()
	New(svc, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	return svc, r
}

func sample(t *testing.T, tenant domain.TenantID) *models.Commission {
	t.Helper()
	c, err := models.NewCommission(tenant, models.Fields{
		EmployeeID: domain.NewEmployeeID(), AmountCents: 9900, RateBps: 300, Period: "2026-02",
	}, nil, time.Now(), domain.NewUserID())
	require.NoError(t, err)
	return c
}

func TestCreateCommission(t *testing.T) {
	svc, router := setup(t)
	caller := testutil.Principal(domain.NewTenantID(), domain.RoleManager, models.PermWrite)
	employee := domain.NewEmployeeID()
	invoice := domain.NewInvoiceID()

	svc.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, f models.Fields) (*models.Commission, error) {
			assert.Equal(t, employee, f.EmployeeID)
			require.NotNil(t, f.InvoiceID)
			assert.Equal(t, invoice, *f.InvoiceID)
			assert.Equal(t, "2026-02", f.Period)
			return sample(t, caller.TenantID), nil
		})

	req := testutil.NewJSONRequest(t, http.MethodPost, "/commissions", map[string]any{
		"employeeId":  employee.String(),
		"invoiceId":   invoice.String(),
		"amountCents": 9900,
		"rateBps":     300,
		"period":      " 2026-02 ",
	})
	rr := testutil.DoAs(router, req, caller)
	testutil.AssertStatus(t, rr, http.StatusCreated)
	testutil.AssertJSONContains(t, rr, "status", "pending")
}

func TestCreateCommissionValidation(t *testing.T) {
	_, router := setup(t)
	caller := testutil.Principal(domain.NewTenantID(), domain.RoleManager, models.PermWrite)
	tests := []struct {
		name string
		body map[string]any
		msg  string
	}{
		{"missing employee", map[string]any{"amountCents": 1, "period": "2026-01"}, "employeeId is required"},
		{"negative amount", map[string]any{"employeeId": domain.NewEmployeeID().String(), "amountCents": -5, "period": "2026-01"}, "amountCents must be greater than zero"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := testutil.DoAs(router, testutil.NewJSONRequest(t, http.MethodPost, "/commissions", tt.body), caller)
			testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")
			testutil.AssertErrorDescription(t, rr, tt.msg)
		})
	}
}

func TestListPassesFilters(t *testing.T) {
	svc, router := setup(t)
	caller := testutil.Principal(domain.NewTenantID(), domain.RoleMember, models.PermRead)
	employee := domain.NewEmployeeID()

	svc.EXPECT().List(gomock.Any(), service.ListFilter{
		Status: models.StatusApproved, EmployeeID: &employee, Period: "2026-02", Limit: 10,
	}).Return([]*models.Commission{sample(t, caller.TenantID)}, nil)

	path := "/commissions?status=approved&period=2026-02&limit=10&employee_id=" + employee.String()
	rr := testutil.DoAs(router, testutil.NewRequest(t, http.MethodGet, path), caller)
	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.AssertJSONContains(t, rr, "count", float64(1))
}

func TestApproveForbidden(t *testing.T) {
	svc, router := setup(t)
	caller := testutil.Principal(domain.NewTenantID(), domain.RoleManager, models.PermWrite)
	id := domain.NewCommissionID()
	svc.EXPECT().Approve(gomock.Any(), id).
		Return(nil, dErrors.New(dErrors.CodeForbidden, "Permission denied: Admin access required"))

	rr := testutil.DoAs(router, testutil.NewRequest(t, http.MethodPost, "/commissions/"+id.String()+"/approve"), caller)
	testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")
	testutil.AssertErrorDescription(t, rr, "Permission denied: Admin access required")
}

func TestPayWithAndWithoutBody(t *testing.T) {
	svc, router := setup(t)
	admin := testutil.Principal(domain.NewTenantID(), domain.RoleAdmin)
	c := sample(t, admin.TenantID)
	paidAt := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)

	svc.EXPECT().Pay(gomock.Any(), c.ID, (*time.Time)(nil)).Return(c, nil)
	rr := testutil.DoAs(router, testutil.NewRequest(t, http.MethodPost, "/commissions/"+c.ID.String()+"/pay"), admin)
	testutil.AssertStatus(t, rr, http.StatusOK)

	svc.EXPECT().Pay(gomock.Any(), c.ID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.CommissionID, at *time.Time) (*models.Commission, error) {
			require.NotNil(t, at)
			assert.True(t, paidAt.Equal(*at))
			return c, nil
		})
	req := testutil.NewJSONRequest(t, http.MethodPost, "/commissions/"+c.ID.String()+"/pay", map[string]any{"paidAt": paidAt})
	rr = testutil.DoAs(router, req, admin)
	testutil.AssertStatus(t, rr, http.StatusOK)
}

func TestDeleteRejectsBadID(t *testing.T) {
	_, router := setup(t)
	admin := testutil.Principal(domain.NewTenantID(), domain.RoleAdmin)
	rr := testutil.DoAs(router, testutil.NewRequest(t, http.MethodDelete, "/commissions/abc"), admin)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}
