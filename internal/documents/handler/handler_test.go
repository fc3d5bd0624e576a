package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"opsdesk/internal/documents/handler/mocks"
	"opsdesk/internal/documents/models"
	"opsdesk/internal/documents/service"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
	"opsdesk/pkg/testutil"
)

type DocumentHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  http.Handler
	caller  domain.Principal
}

func TestDocumentHandlerSuite(t *testing.T) {
	suite.Run(t, new(DocumentHandlerSuite))
}

func (s *DocumentHandlerSuite) SetupTest() {
	s.service = mocks.NewMockService(gomock.NewController(s.T()))
	r := chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	s.router = r
	s.caller = testutil.Principal(domain.NewTenantID(), domain.RoleMember, models.PermWrite)
}

func (s *DocumentHandlerSuite) sample() *models.Document {
	d, err := models.NewDocument(s.caller.TenantID, models.Fields{Name: "pod.pdf", ContentType: "application/pdf"}, time.Now(), s.caller.UserID)
	s.Require().NoError(err)
	d.SetContent(5, "abc123")
	return d
}

func (s *DocumentHandlerSuite) TestUploadStreamsRawBody() {
	s.service.EXPECT().MaxSize().Return(int64(1024))
	s.service.EXPECT().Upload(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, in service.UploadInput) (*models.Document, error) {
			s.Equal("pod.pdf", in.Name)
			s.Equal("application/pdf", in.ContentType)
			s.Equal("shipment", in.ResourceType)
			s.Equal("SHP-1", in.ResourceID)
			s.Equal(int64(5), in.Size)
			body, err := io.ReadAll(in.Body)
			s.Require().NoError(err)
			s.Equal("%PDF-", string(body))
			return s.sample(), nil
		})

	req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/documents?name=pod.pdf&resource_type=shipment&resource_id=SHP-1", "%PDF-")
	req.Header.Set("Content-Type", "application/pdf")
	rr := testutil.DoAs(s.router, req, s.caller)
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	testutil.AssertJSONContains(s.T(), rr, "name", "pod.pdf")
	testutil.AssertJSONContains(s.T(), rr, "size", float64(5))
}

func (s *DocumentHandlerSuite) TestUploadValidationError() {
	s.service.EXPECT().MaxSize().Return(int64(1024))
	s.service.EXPECT().Upload(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeValidation, "document name is required"))

	req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/documents", "data")
	rr := testutil.DoAs(s.router, req, s.caller)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	testutil.AssertErrorDescription(s.T(), rr, "document name is required")
}

func (s *DocumentHandlerSuite) TestDownloadSetsHeaders() {
	d := s.sample()
	s.service.EXPECT().Download(gomock.Any(), d.ID).
		Return(d, io.NopCloser(strings.NewReader("%PDF-")), nil)

	rr := testutil.DoAs(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/documents/"+d.ID.String()+"/content"), s.caller)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.Equal("application/pdf", rr.Header().Get("Content-Type"))
	s.Equal(`attachment; filename=pod.pdf`, rr.Header().Get("Content-Disposition"))
	s.Equal("5", rr.Header().Get("Content-Length"))
	s.Equal(`"abc123"`, rr.Header().Get("ETag"))
	s.Equal("%PDF-", rr.Body.String())
}

func (s *DocumentHandlerSuite) TestDownloadNotFound() {
	id := domain.NewDocumentID()
	s.service.EXPECT().Download(gomock.Any(), id).
		Return(nil, nil, dErrors.New(dErrors.CodeNotFound, "Document not found"))

	rr := testutil.DoAs(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/documents/"+id.String()+"/content"), s.caller)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
}

func (s *DocumentHandlerSuite) TestListPassesResourceFilter() {
	s.service.EXPECT().List(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, f service.ListFilter) ([]*models.Document, error) {
			s.Equal("invoice", f.ResourceType)
			s.Equal("INV-000001", f.ResourceID)
			s.Equal(10, f.Limit)
			return []*models.Document{s.sample()}, nil
		})

	rr := testutil.DoAs(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/documents?resource_type=invoice&resource_id=INV-000001&limit=10"), s.caller)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	testutil.AssertJSONContains(s.T(), rr, "count", float64(1))
}

func (s *DocumentHandlerSuite) TestDeleteAndBadID() {
	d := s.sample()
	s.service.EXPECT().Delete(gomock.Any(), d.ID).Return(nil)
	rr := testutil.DoAs(s.router, testutil.NewRequest(s.T(), http.MethodDelete, "/documents/"+d.ID.String()), s.caller)
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)

	rr = testutil.DoAs(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/documents/not-a-uuid"), s.caller)
	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
}
