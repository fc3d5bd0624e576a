package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"opsdesk/internal/authz"
	"opsdesk/internal/docstore"
	"opsdesk/internal/documents/models"
	platformmetrics "opsdesk/internal/platform/metrics"
	"opsdesk/internal/platform/objectstore"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
	"opsdesk/pkg/platform/audit"
	"opsdesk/pkg/platform/sentinel"
	txcontext "opsdesk/pkg/platform/tx"
	"opsdesk/pkg/requestcontext"
)

const (
	resourceType = "document"
	notFound     = "Document not found"

	DefaultMaxSize int64 = 25 << 20
)

type Service struct {
	documents docstore.Store[*models.Document]
	blobs     objectstore.Store
	maxSize   int64
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

// WithMaxSize caps the upload size in bytes. Non-positive values are ignored.
func WithMaxSize(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxSize = n
		}
	}
}

func New(documents docstore.Store[*models.Document], blobs objectstore.Store, opts ...Option) *Service {
	s := &Service{
		documents: documents,
		blobs:     blobs,
		maxSize:   DefaultMaxSize,
		tx:        txcontext.NoopRunner{},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.emitter = audit.NewEmitter(s.logger, s.publisher)
	return s
}

// MaxSize is the largest accepted upload in bytes.
func (s *Service) MaxSize() int64 { return s.maxSize }

type UploadInput struct {
	models.Fields
	// Size is the declared body length, or -1 when unknown.
	Size int64
	Body io.Reader
}

type ListFilter struct {
	ResourceType   string
	ResourceID     string
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// Upload streams the body into the object store, then records the metadata.
// The blob is removed again when the metadata write fails.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*models.Document, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireUpload(p); err != nil {
		return nil, err
	}
	if in.Body == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "document body is required")
	}
	if in.Size > s.maxSize {
		return nil, s.tooLarge()
	}
	doc, err := models.NewDocument(p.TenantID, in.Fields, requestcontext.Now(ctx), p.UserID)
	if err != nil {
		return nil, toValidation(err)
	}

	hash := sha256.New()
	counter := &countingReader{r: io.LimitReader(in.Body, s.maxSize+1)}
	body := io.TeeReader(counter, hash)
	size := in.Size
	if size < 0 {
		size = -1
	}
	if err := s.blobs.Put(ctx, doc.ObjectKey, body, size, doc.ContentType); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store document content")
	}
	if counter.n > s.maxSize {
		s.removeBlob(ctx, doc.ObjectKey)
		return nil, s.tooLarge()
	}
	if counter.n == 0 {
		s.removeBlob(ctx, doc.ObjectKey)
		return nil, dErrors.New(dErrors.CodeValidation, "document body is empty")
	}
	doc.SetContent(counter.n, hex.EncodeToString(hash.Sum(nil)))

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.documents.Insert(txCtx, doc); err != nil {
			return wrapDocumentErr(err, "record document")
		}
		return s.emitter.Record(txCtx, audit.EventDocumentUploaded, resourceType, doc.ID.String(), doc.Name)
	})
	if err != nil {
		s.removeBlob(ctx, doc.ObjectKey)
		return nil, err
	}
	s.metrics.Inc("documents", "upload")
	s.logger.InfoContext(ctx, "document uploaded",
		"request_id", requestcontext.RequestID(ctx),
		"document_id", doc.ID,
		"size", doc.Size,
	)
	return doc, nil
}

func (s *Service) Get(ctx context.Context, id domain.DocumentID) (*models.Document, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireRead(p); err != nil {
		return nil, err
	}
	return s.load(ctx, p.TenantID, id)
}

// Download returns the metadata and an open reader over the content.
// The caller closes the reader.
func (s *Service) Download(ctx context.Context, id domain.DocumentID) (*models.Document, io.ReadCloser, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Get(ctx, doc.ObjectKey)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeNotFound, "Document content not found")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read document content")
	}
	return doc, rc, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]*models.Document, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireRead(p); err != nil {
		return nil, err
	}
	q := docstore.Query{IncludeDeleted: f.IncludeDeleted && p.IsAdmin(), Limit: f.Limit, Offset: f.Offset}
	if f.ResourceType != "" {
		q = q.Where("resourceType", f.ResourceType)
	}
	if f.ResourceID != "" {
		q = q.Where("resourceId", f.ResourceID)
	}
	out, err := s.documents.List(ctx, p.TenantID, q)
	if err != nil {
		return nil, wrapDocumentErr(err, "list documents")
	}
	return out, nil
}

// Delete soft-deletes the metadata. The blob is kept.
func (s *Service) Delete(ctx context.Context, id domain.DocumentID) error {
	p, err := authz.Caller(ctx)
	if err != nil {
		return err
	}
	if err := models.RequireRead(p); err != nil {
		return err
	}
	now := requestcontext.Now(ctx)
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		doc, err := s.documents.Execute(txCtx, p.TenantID, uuid.UUID(id),
			func(d *models.Document) error {
				if d.IsDeleted() {
					return dErrors.New(dErrors.CodeNotFound, notFound)
				}
				return models.RequireDelete(p, d)
			},
			func(d *models.Document) { d.ApplyDelete(now, p.UserID) },
		)
		if err != nil {
			return wrapDocumentErr(err, "delete document")
		}
		return s.emitter.Record(txCtx, audit.EventDocumentDeleted, resourceType, doc.ID.String(), doc.Name)
	})
	if err != nil {
		return err
	}
	s.metrics.Inc("documents", "delete")
	return nil
}

func (s *Service) load(ctx context.Context, tenant domain.TenantID, id domain.DocumentID) (*models.Document, error) {
	doc, err := s.documents.Get(ctx, tenant, uuid.UUID(id))
	if err != nil {
		return nil, wrapDocumentErr(err, "load document")
	}
	if doc.IsDeleted() {
		return nil, dErrors.New(dErrors.CodeNotFound, notFound)
	}
	return doc, nil
}

func (s *Service) removeBlob(ctx context.Context, key string) {
	if err := s.blobs.Remove(context.WithoutCancel(ctx), key); err != nil {
		s.logger.WarnContext(ctx, "failed to remove orphaned document content",
			"request_id", requestcontext.RequestID(ctx),
			"object_key", key,
			"error", err,
		)
	}
}

func (s *Service) tooLarge() error {
	return dErrors.New(dErrors.CodeValidation, "document exceeds the maximum size of "+strconv.FormatInt(s.maxSize, 10)+" bytes")
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func wrapDocumentErr(err error, op string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, notFound)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "document was modified concurrently, retry")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to "+op)
	}
}

func toValidation(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
	}
	return err
}
