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

	"opsdesk/internal/projects/handler/mocks"
	"opsdesk/internal/projects/models"
	"opsdesk/internal/projects/service"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
	"opsdesk/pkg/testutil"
)

type ProjectHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  http.Handler
	caller  domain.Principal
}

func TestProjectHandlerSuite(t *testing.T) {
	suite.Run(t, new(ProjectHandlerSuite))
}

func (s *ProjectHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	r := chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	s.router = r
	s.caller = testutil.Principal(domain.NewTenantID(), domain.RoleMember, models.PermWrite)
}

func (s *ProjectHandlerSuite) sample() *models.Project {
	p, err := models.NewProject(s.caller.TenantID, "Fleet", "", "", nil, 0, nil, nil, time.Now(), s.caller.UserID)
	s.Require().NoError(err)
	return p
}

func (s *ProjectHandlerSuite) TestCreate() {
	s.Run("blank name is rejected before the service", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/projects", map[string]any{"name": "  "})
		rr := testutil.DoAs(s.router, req, s.caller)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
		testutil.AssertErrorDescription(s.T(), rr, "project name is required")
	})

	s.Run("valid", func() {
		s.service.EXPECT().Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, in service.CreateInput) (*models.Project, error) {
				s.Equal("Fleet", in.Name)
				s.Equal(models.StatusActive, in.Status)
				s.Equal(int64(50000), in.BudgetCents)
				return s.sample(), nil
			})
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/projects", map[string]any{
			"name": "Fleet", "status": "Active", "budgetCents": 50000,
		})
		rr := testutil.DoAs(s.router, req, s.caller)
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		testutil.AssertJSONContains(s.T(), rr, "name", "Fleet")
	})

	s.Run("unknown status", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/projects", map[string]any{"name": "x", "status": "paused"})
		rr := testutil.DoAs(s.router, req, s.caller)
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})
}

func (s *ProjectHandlerSuite) TestGetNotFound() {
	s.service.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, dErrors.New(dErrors.CodeNotFound, "Project not found"))
	rr := testutil.DoAs(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/projects/"+domain.NewProjectID().String()), s.caller)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	testutil.AssertErrorDescription(s.T(), rr, "Project not found")
}

func (s *ProjectHandlerSuite) TestUpdateForbidden() {
	s.service.EXPECT().Update(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeForbidden, "Permission denied: owner or projects:manage required"))
	req := testutil.NewJSONRequest(s.T(), http.MethodPatch, "/projects/"+domain.NewProjectID().String(), map[string]any{"name": "x"})
	rr := testutil.DoAs(s.router, req, s.caller)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")
}

func (s *ProjectHandlerSuite) TestUpdateParsesOwner() {
	owner := domain.NewUserID()
	s.service.EXPECT().Update(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.ProjectID, in service.UpdateInput) (*models.Project, error) {
			s.Require().NotNil(in.OwnerID)
			s.Equal(owner, *in.OwnerID)
			s.Nil(in.Name)
			return s.sample(), nil
		})
	req := testutil.NewJSONRequest(s.T(), http.MethodPatch, "/projects/"+domain.NewProjectID().String(), map[string]any{"ownerId": owner.String()})
	rr := testutil.DoAs(s.router, req, s.caller)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
}

func (s *ProjectHandlerSuite) TestListAndDelete() {
	s.service.EXPECT().List(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, f service.ListFilter) ([]*models.Project, error) {
			s.True(f.IncludeDeleted)
			return nil, nil
		})
	rr := testutil.DoAs(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/projects?include_deleted=true"), s.caller)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	testutil.AssertJSONContains(s.T(), rr, "count", float64(0))

	s.service.EXPECT().Delete(gomock.Any(), gomock.Any()).Return(nil)
	rr = testutil.DoAs(s.router, testutil.NewRequest(s.T(), http.MethodDelete, "/projects/"+domain.NewProjectID().String()), s.caller)
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
}
