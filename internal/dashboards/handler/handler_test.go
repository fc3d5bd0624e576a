package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"opsdesk/internal/dashboards/handler/mocks"
	"opsdesk/internal/dashboards/models"
	"opsdesk/internal/dashboards/service"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
	"opsdesk/pkg/testutil"
)

type DashboardHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  http.Handler
	caller  domain.Principal
}

func TestDashboardHandlerSuite(t *testing.T) {
	suite.Run(t, new(DashboardHandlerSuite))
}

func (s *DashboardHandlerSuite) SetupTest() {
	s.service = mocks.NewMockService(gomock.NewController(s.T()))
	r := chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	s.router = r
	s.caller = testutil.Principal(domain.NewTenantID(), domain.RoleMember)
}

func (s *DashboardHandlerSuite) sample() *models.Dashboard {
	d, err := models.NewDashboard(s.caller.TenantID, models.Fields{Name: "Ops"}, s.caller.UserID, time.Now())
	s.Require().NoError(err)
	return d
}

func (s *DashboardHandlerSuite) TestCreateDecodesWidgets() {
	s.service.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, in service.CreateInput) (*models.Dashboard, error) {
			s.True(in.IsDefault)
			s.Require().Len(in.Widgets, 1)
			s.Equal(models.WidgetChart, in.Widgets[0].Type)
			s.Equal(3, in.Widgets[0].Position.W)
			return s.sample(), nil
		})
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/dashboards", map[string]any{
		"name":      "Ops",
		"isDefault": true,
		"widgets": []map[string]any{
			{"type": "chart", "title": "Shipments by SLA", "position": map[string]any{"x": 0, "y": 0, "w": 3, "h": 2}},
		},
	})
	rr := testutil.DoAs(s.router, req, s.caller)
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	testutil.AssertJSONContains(s.T(), rr, "name", "Ops")
}

func (s *DashboardHandlerSuite) TestDefaultRouteIsNotAnID() {
	s.service.EXPECT().Default(gomock.Any()).Return(nil, dErrors.New(dErrors.CodeNotFound, "No default dashboard"))
	rr := testutil.DoAs(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/dashboards/default"), s.caller)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	testutil.AssertErrorDescription(s.T(), rr, "No default dashboard")
}

func (s *DashboardHandlerSuite) TestUpdateParsesOwner() {
	d := s.sample()
	owner := domain.NewUserID()
	s.service.EXPECT().Update(gomock.Any(), d.ID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.DashboardID, in service.UpdateInput) (*models.Dashboard, error) {
			s.Require().NotNil(in.OwnerID)
			s.Equal(owner, *in.OwnerID)
			return d, nil
		})
	req := testutil.NewJSONRequest(s.T(), http.MethodPatch, "/dashboards/"+d.ID.String(), map[string]any{"ownerId": owner.String()})
	testutil.AssertStatus(s.T(), testutil.DoAs(s.router, req, s.caller), http.StatusOK)

	req = testutil.NewJSONRequest(s.T(), http.MethodPatch, "/dashboards/"+d.ID.String(), map[string]any{"ownerId": "nope"})
	testutil.AssertStatus(s.T(), testutil.DoAs(s.router, req, s.caller), http.StatusBadRequest)
}

func (s *DashboardHandlerSuite) TestListMine() {
	s.service.EXPECT().List(gomock.Any(), service.ListFilter{OwnedOnly: true, Limit: 100}).Return(nil, nil)
	rr := testutil.DoAs(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/dashboards?mine=true"), s.caller)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	testutil.AssertJSONContains(s.T(), rr, "count", float64(0))
}

func (s *DashboardHandlerSuite) TestSetDefaultForbidden() {
	id := domain.NewDashboardID()
	s.service.EXPECT().SetDefault(gomock.Any(), id).
		Return(nil, dErrors.New(dErrors.CodeForbidden, "Permission denied: only the owner or an admin can modify this resource"))
	rr := testutil.DoAs(s.router, testutil.NewRequest(s.T(), http.MethodPost, "/dashboards/"+id.String()+"/default"), s.caller)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")
}
