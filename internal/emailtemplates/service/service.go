package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"opsdesk/internal/authz"
	"opsdesk/internal/docstore"
	"opsdesk/internal/emailtemplates/models"
	platformmetrics "opsdesk/internal/platform/metrics"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
	"opsdesk/pkg/platform/audit"
	"opsdesk/pkg/platform/sentinel"
	txcontext "opsdesk/pkg/platform/tx"
	"opsdesk/pkg/requestcontext"
)

const (
	resourceType = "email_template"
	notFound     = "Email template not found"
)

type Service struct {
	templates docstore.Store[*models.Template]
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

func New(templates docstore.Store[*models.Template], opts ...Option) *Service {
	s := &Service{
		templates: templates,
		tx:        txcontext.NoopRunner{},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.emitter = audit.NewEmitter(s.logger, s.publisher)
	return s
}

type UpdateInput struct {
	Slug      *string
	Name      *string
	Subject   *string
	Body      *string
	Variables []string
	Active    *bool
}

type ListFilter struct {
	Slug           string
	ActiveOnly     bool
	IncludeDeleted bool
	Limit          int
	Offset         int
}

func (s *Service) Create(ctx context.Context, f models.Fields) (*models.Template, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireWrite(p); err != nil {
		return nil, err
	}
	t, err := models.NewTemplate(p.TenantID, f, requestcontext.Now(ctx), p.UserID)
	if err != nil {
		return nil, toValidation(err)
	}
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.templates.Insert(txCtx, t); err != nil {
			return wrapTemplateErr(err, "create email template", t.Slug)
		}
		return s.emitter.Record(txCtx, audit.EventTemplateCreated, resourceType, t.ID.String(), t.Slug)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Inc("email_templates", "create")
	return t, nil
}

func (s *Service) Get(ctx context.Context, id domain.TemplateID) (*models.Template, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireRead(p); err != nil {
		return nil, err
	}
	t, err := s.templates.Get(ctx, p.TenantID, uuid.UUID(id))
	if err != nil {
		return nil, wrapTemplateErr(err, "load email template", "")
	}
	if t.IsDeleted() {
		return nil, dErrors.New(dErrors.CodeNotFound, notFound)
	}
	return t, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]*models.Template, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireRead(p); err != nil {
		return nil, err
	}
	q := docstore.Query{IncludeDeleted: f.IncludeDeleted && p.IsAdmin(), Limit: f.Limit, Offset: f.Offset}
	if f.Slug != "" {
		q = q.Where("key", strings.TrimSpace(f.Slug))
	}
	if f.ActiveOnly {
		q = q.Where("active", true)
	}
	out, err := s.templates.List(ctx, p.TenantID, q)
	if err != nil {
		return nil, wrapTemplateErr(err, "list email templates", "")
	}
	return out, nil
}

func (s *Service) Update(ctx context.Context, id domain.TemplateID, in UpdateInput) (*models.Template, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireWrite(p); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	var out *models.Template
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		t, err := s.templates.Execute(txCtx, p.TenantID, uuid.UUID(id),
			func(t *models.Template) error {
				if t.IsDeleted() {
					return dErrors.New(dErrors.CodeNotFound, notFound)
				}
				return toValidation(t.Clone().Apply(merge(t.Fields(), in)))
			},
			func(t *models.Template) {
				_ = t.Apply(merge(t.Fields(), in))
				t.Touch(now, p.UserID)
			},
		)
		if err != nil {
			slug := ""
			if in.Slug != nil {
				slug = *in.Slug
			}
			return wrapTemplateErr(err, "update email template", slug)
		}
		out = t
		return s.emitter.Record(txCtx, audit.EventTemplateUpdated, resourceType, t.ID.String(), t.Slug)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Inc("email_templates", "update")
	return out, nil
}

func (s *Service) Delete(ctx context.Context, id domain.TemplateID) error {
	p, err := authz.Caller(ctx)
	if err != nil {
		return err
	}
	if err := models.RequireWrite(p); err != nil {
		return err
	}
	now := requestcontext.Now(ctx)
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		t, err := s.templates.Execute(txCtx, p.TenantID, uuid.UUID(id),
			func(t *models.Template) error {
				if t.IsDeleted() {
					return dErrors.New(dErrors.CodeNotFound, notFound)
				}
				return nil
			},
			func(t *models.Template) { t.ApplyDelete(now, p.UserID) },
		)
		if err != nil {
			return wrapTemplateErr(err, "delete email template", "")
		}
		return s.emitter.Record(txCtx, audit.EventTemplateDeleted, resourceType, t.ID.String(), t.Slug)
	})
	if err != nil {
		return err
	}
	s.metrics.Inc("email_templates", "delete")
	return nil
}

// Render executes the template against data without persisting anything.
func (s *Service) Render(ctx context.Context, id domain.TemplateID, data map[string]any) (models.Rendered, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return models.Rendered{}, err
	}
	out, err := t.Render(data)
	if err != nil {
		return models.Rendered{}, invariantToConflict(err)
	}
	return out, nil
}

func merge(f models.Fields, in UpdateInput) models.Fields {
	if in.Slug != nil {
		f.Slug = *in.Slug
	}
	if in.Name != nil {
		f.Name = *in.Name
	}
	if in.Subject != nil {
		f.Subject = *in.Subject
	}
	if in.Body != nil {
		f.Body = *in.Body
	}
	if in.Variables != nil {
		f.Variables = in.Variables
	}
	if in.Active != nil {
		f.Active = *in.Active
	}
	return f
}

func wrapTemplateErr(err error, op, slug string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, notFound)
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeConflict, "an email template with key "+strings.TrimSpace(slug)+" already exists")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "email template was modified concurrently, retry")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to "+op)
	}
}

func invariantToConflict(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeConflict, dErrors.MessageOf(err))
	}
	return err
}

func toValidation(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
	}
	return err
}
