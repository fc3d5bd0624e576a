package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"opsdesk/internal/docstore/memory"
	platformmetrics "opsdesk/internal/platform/metrics"
	"opsdesk/internal/projects/models"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
	"opsdesk/pkg/platform/audit"
	auditmemory "opsdesk/pkg/platform/audit/store/memory"
	"opsdesk/pkg/requestcontext"
	ptestutil "opsdesk/pkg/testutil"
)

type storePublisher struct{ store audit.Store }

func (p storePublisher) Emit(ctx context.Context, e audit.Event) error { return p.store.Append(ctx, e) }

type ProjectServiceSuite struct {
	suite.Suite
	service *Service
	metrics *platformmetrics.Mutations
	events  *auditmemory.InMemoryStore
	tenant  domain.TenantID
	owner   domain.Principal
	other   domain.Principal
	manager domain.Principal
	admin   domain.Principal
}

func TestProjectServiceSuite(t *testing.T) {
	suite.Run(t, new(ProjectServiceSuite))
}

func (s *ProjectServiceSuite) SetupTest() {
	s.events = auditmemory.NewInMemoryStore()
	s.metrics = platformmetrics.NewMutations(prometheus.NewRegistry())
	s.service = New(memory.New[*models.Project](models.Schema),
		WithAuditPublisher(storePublisher{s.events}),
		WithMetrics(s.metrics),
	)
	s.tenant = domain.NewTenantID()
	s.owner = ptestutil.Principal(s.tenant, domain.RoleMember, models.PermWrite)
	s.other = ptestutil.Principal(s.tenant, domain.RoleMember, models.PermWrite)
	s.manager = ptestutil.Principal(s.tenant, domain.RoleManager, models.PermManage)
	s.admin = ptestutil.Principal(s.tenant, domain.RoleAdmin)
}

func (s *ProjectServiceSuite) ctx(p domain.Principal) context.Context {
	return requestcontext.WithTime(ptestutil.Ctx(p), time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
}

func (s *ProjectServiceSuite) create(name string) *models.Project {
	project, err := s.service.Create(s.ctx(s.owner), CreateInput{Name: name})
	s.Require().NoError(err)
	return project
}

func (s *ProjectServiceSuite) TestCreate() {
	s.Run("blank name is rejected", func() {
		_, err := s.service.Create(s.ctx(s.owner), CreateInput{Name: "   "})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal("project name is required", dErrors.MessageOf(err))
	})

	s.Run("caller becomes owner", func() {
		project := s.create("Fleet upgrade")
		s.Equal(s.owner.UserID, project.OwnerID)
		s.Equal(models.StatusPlanning, project.Status)

		events, err := s.events.List(context.Background(), s.tenant, audit.Filter{Action: string(audit.EventProjectCreated)})
		s.Require().NoError(err)
		s.Len(events, 1)
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.Total.WithLabelValues("projects", "create")))
	})

	s.Run("manage without write cannot create", func() {
		_, err := s.service.Create(s.ctx(s.manager), CreateInput{Name: "x"})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *ProjectServiceSuite) TestUpdatePermissions() {
	project := s.create("Fleet upgrade")
	name := "Renamed"

	_, err := s.service.Update(s.ctx(s.other), project.ID, UpdateInput{Name: &name})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	s.Equal("Permission denied: owner or projects:manage required", dErrors.MessageOf(err))

	for _, p := range []domain.Principal{s.owner, s.manager, s.admin} {
		updated, err := s.service.Update(s.ctx(p), project.ID, UpdateInput{Name: &name})
		s.Require().NoError(err)
		s.Equal("Renamed", updated.Name)
		s.Equal(p.UserID, updated.UpdatedBy)
	}
}

func (s *ProjectServiceSuite) TestUpdateValidation() {
	project := s.create("Fleet upgrade")

	negative := int64(-5)
	_, err := s.service.Update(s.ctx(s.owner), project.ID, UpdateInput{BudgetCents: &negative})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	due := start.Add(-time.Hour)
	_, err = s.service.Update(s.ctx(s.owner), project.ID, UpdateInput{StartDate: &start, DueDate: &due})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	got, err := s.service.Get(s.ctx(s.owner), project.ID)
	s.Require().NoError(err)
	s.Nil(got.StartDate, "rejected update leaves the document untouched")
}

func (s *ProjectServiceSuite) TestSoftDelete() {
	keep := s.create("Keep")
	gone := s.create("Gone")

	err := s.service.Delete(s.ctx(s.other), gone.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	s.Require().NoError(s.service.Delete(s.ctx(s.owner), gone.ID))

	list, err := s.service.List(s.ctx(s.other), ListFilter{})
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(keep.ID, list[0].ID)

	_, err = s.service.Get(s.ctx(s.owner), gone.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.Equal("Project not found", dErrors.MessageOf(err))

	list, err = s.service.List(s.ctx(s.admin), ListFilter{IncludeDeleted: true})
	s.Require().NoError(err)
	s.Len(list, 2)
}

func (s *ProjectServiceSuite) TestListFilters() {
	a := s.create("A")
	s.create("B")
	active := models.StatusActive
	_, err := s.service.Update(s.ctx(s.owner), a.ID, UpdateInput{Status: &active})
	s.Require().NoError(err)

	list, err := s.service.List(s.ctx(s.owner), ListFilter{Status: models.StatusActive})
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(a.ID, list[0].ID)

	list, err = s.service.List(s.ctx(s.owner), ListFilter{OwnerID: &s.other.UserID})
	s.Require().NoError(err)
	s.Empty(list)
}

func (s *ProjectServiceSuite) TestUnknownProject() {
	_, err := s.service.Get(s.ctx(s.owner), domain.NewProjectID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.Equal("Project not found", dErrors.MessageOf(err))
}
