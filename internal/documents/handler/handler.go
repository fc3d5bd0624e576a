package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"opsdesk/internal/documents/models"
	"opsdesk/internal/documents/service"
	"opsdesk/pkg/domain"
	"opsdesk/pkg/platform/httputil"
	"opsdesk/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/documents-mocks.go -package=mocks Service
type Service interface {
	Upload(ctx context.Context, in service.UploadInput) (*models.Document, error)
	Get(ctx context.Context, id domain.DocumentID) (*models.Document, error)
	Download(ctx context.Context, id domain.DocumentID) (*models.Document, io.ReadCloser, error)
	List(ctx context.Context, f service.ListFilter) ([]*models.Document, error)
	Delete(ctx context.Context, id domain.DocumentID) error
	MaxSize() int64
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/documents", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleUpload)
		r.Get("/{id}", h.HandleGet)
		r.Get("/{id}/content", h.HandleDownload)
		r.Delete("/{id}", h.HandleDelete)
	})
}

// HandleUpload takes the raw request body as the document content.
// Metadata travels in the query string and the Content-Type header.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	body := http.MaxBytesReader(w, r.Body, h.service.MaxSize()+1)
	defer body.Close()

	doc, err := h.service.Upload(r.Context(), service.UploadInput{
		Fields: models.Fields{
			Name:         q.Get("name"),
			ContentType:  r.Header.Get("Content-Type"),
			ResourceType: q.Get("resource_type"),
			ResourceID:   q.Get("resource_id"),
		},
		Size: r.ContentLength,
		Body: body,
	})
	if err != nil {
		httputil.Fail(w, r, h.logger, "upload document", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, doc)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.PageParams(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	q := r.URL.Query()
	items, err := h.service.List(r.Context(), service.ListFilter{
		ResourceType:   q.Get("resource_type"),
		ResourceID:     q.Get("resource_id"),
		IncludeDeleted: page.IncludeDeleted,
		Limit:          page.Limit,
		Offset:         page.Offset,
	})
	if err != nil {
		httputil.Fail(w, r, h.logger, "list documents", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.NewListResponse(items))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.Fail(w, r, h.logger, "get document", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	doc, rc, err := h.service.Download(ctx, id)
	if err != nil {
		httputil.Fail(w, r, h.logger, "download document", err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", doc.ContentDisposition())
	w.Header().Set("Content-Length", strconv.FormatInt(doc.Size, 10))
	if doc.Checksum != "" {
		w.Header().Set("ETag", strconv.Quote(doc.Checksum))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WarnContext(ctx, "document download interrupted",
			"request_id", requestcontext.RequestID(ctx),
			"document_id", id,
			"error", err,
		)
	}
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httputil.Fail(w, r, h.logger, "delete document", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) documentID(w http.ResponseWriter, r *http.Request) (domain.DocumentID, bool) {
	id, err := domain.ParseDocumentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return domain.DocumentID{}, false
	}
	return id, true
}
