package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"opsdesk/internal/docstore/memory"
	"opsdesk/internal/employees/models"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
	"opsdesk/pkg/requestcontext"
	"opsdesk/pkg/testutil"
)

type EmployeeServiceSuite struct {
	suite.Suite
	service *Service
	admin   context.Context
	reader  context.Context
	now     time.Time
}

func TestEmployeeServiceSuite(t *testing.T) {
	suite.Run(t, new(EmployeeServiceSuite))
}

func (s *EmployeeServiceSuite) SetupTest() {
	s.service = New(memory.New[*models.Employee](models.Schema))
	tenant := domain.NewTenantID()
	s.now = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	s.admin = requestcontext.WithTime(testutil.Ctx(testutil.Principal(tenant, domain.RoleAdmin)), s.now)
	s.reader = testutil.Ctx(testutil.Principal(tenant, domain.RoleMember, models.PermRead))
}

func (s *EmployeeServiceSuite) TestWritesAreAdminOnly() {
	_, err := s.service.Create(s.reader, models.Fields{FirstName: "Jane", Email: "jane@acme.io"})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	s.Equal("Permission denied: Admin access required", dErrors.MessageOf(err))

	e, err := s.service.Create(s.admin, models.Fields{FirstName: "Jane", Email: "jane@acme.io"})
	s.Require().NoError(err)

	_, err = s.service.Terminate(s.reader, e.ID, nil)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	s.True(dErrors.HasCode(s.service.Delete(s.reader, e.ID), dErrors.CodeForbidden))
}

func (s *EmployeeServiceSuite) TestTerminate() {
	e, err := s.service.Create(s.admin, models.Fields{FirstName: "Jane", Email: "jane@acme.io"})
	s.Require().NoError(err)

	terminated, err := s.service.Terminate(s.admin, e.ID, nil)
	s.Require().NoError(err)
	s.Equal(models.StatusTerminated, terminated.Status)
	s.Require().NotNil(terminated.TerminatedAt)
	s.True(terminated.TerminatedAt.Equal(s.now))

	_, err = s.service.Terminate(s.admin, e.ID, nil)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	list, err := s.service.List(s.reader, ListFilter{Status: models.StatusTerminated})
	s.Require().NoError(err)
	s.Len(list, 1)
}

func (s *EmployeeServiceSuite) TestUniqueEmail() {
	_, err := s.service.Create(s.admin, models.Fields{Email: "jane.doe@acme.io"})
	s.Require().NoError(err)
	_, err = s.service.Create(s.admin, models.Fields{Email: "Jane.Doe@acme.io"})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *EmployeeServiceSuite) TestUpdateAndDelete() {
	e, err := s.service.Create(s.admin, models.Fields{FirstName: "Jane", Email: "jane@acme.io"})
	s.Require().NoError(err)

	dept := "Logistics"
	updated, err := s.service.Update(s.admin, e.ID, UpdateInput{Department: &dept})
	s.Require().NoError(err)
	s.Equal("Logistics", updated.Department)
	s.Equal("Jane", updated.FirstName)

	s.Require().NoError(s.service.Delete(s.admin, e.ID))
	_, err = s.service.Get(s.reader, e.ID)
	s.Equal("Employee not found", dErrors.MessageOf(err))
	s.True(dErrors.HasCode(s.service.Delete(s.admin, e.ID), dErrors.CodeNotFound))
}
