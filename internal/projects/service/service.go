package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"opsdesk/internal/authz"
	"opsdesk/internal/docstore"
	platformmetrics "opsdesk/internal/platform/metrics"
	"opsdesk/internal/projects/models"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
	"opsdesk/pkg/platform/audit"
	"opsdesk/pkg/platform/sentinel"
	txcontext "opsdesk/pkg/platform/tx"
	"opsdesk/pkg/requestcontext"
)

const (
	resourceType = "project"
	notFound     = "Project not found"
)

type Service struct {
	projects  docstore.Store[*models.Project]
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

func New(projects docstore.Store[*models.Project], opts ...Option) *Service {
	s := &Service{
		projects: projects,
		tx:       txcontext.NoopRunner{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.emitter = audit.NewEmitter(s.logger, s.publisher)
	return s
}

type CreateInput struct {
	Name        string
	Description string
	Status      models.Status
	CustomerID  *domain.CustomerID
	BudgetCents int64
	StartDate   *time.Time
	DueDate     *time.Time
}

// UpdateInput is a partial update; nil fields are left unchanged.
type UpdateInput struct {
	Name          *string
	Description   *string
	Status        *models.Status
	CustomerID    *domain.CustomerID
	ClearCustomer bool
	OwnerID       *domain.UserID
	BudgetCents   *int64
	StartDate     *time.Time
	DueDate       *time.Time
}

type ListFilter struct {
	Status         models.Status
	OwnerID        *domain.UserID
	CustomerID     *domain.CustomerID
	IncludeDeleted bool
	Limit          int
	Offset         int
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Project, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireCreate(p); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	project, err := models.NewProject(p.TenantID, in.Name, in.Description, in.Status, in.CustomerID, in.BudgetCents, in.StartDate, in.DueDate, now, p.UserID)
	if err != nil {
		return nil, toValidation(err)
	}
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.projects.Insert(txCtx, project); err != nil {
			return wrapProjectErr(err, "create project")
		}
		return s.emitter.Record(txCtx, audit.EventProjectCreated, resourceType, project.ID.String(), project.Name)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Inc("projects", "create")
	s.logger.InfoContext(ctx, "project created",
		"request_id", requestcontext.RequestID(ctx),
		"project_id", project.ID,
		"tenant_id", project.TenantID,
	)
	return project, nil
}

func (s *Service) Get(ctx context.Context, id domain.ProjectID) (*models.Project, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireRead(p); err != nil {
		return nil, err
	}
	project, err := s.projects.Get(ctx, p.TenantID, uuid.UUID(id))
	if err != nil {
		return nil, wrapProjectErr(err, "load project")
	}
	if project.IsDeleted() {
		return nil, dErrors.New(dErrors.CodeNotFound, notFound)
	}
	return project, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]*models.Project, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireRead(p); err != nil {
		return nil, err
	}
	q := docstore.Query{IncludeDeleted: f.IncludeDeleted && p.IsAdmin(), Limit: f.Limit, Offset: f.Offset}
	if f.Status != "" {
		q = q.Where("status", f.Status)
	}
	if f.OwnerID != nil {
		q = q.Where("ownerId", *f.OwnerID)
	}
	if f.CustomerID != nil {
		q = q.Where("customerId", *f.CustomerID)
	}
	out, err := s.projects.List(ctx, p.TenantID, q)
	if err != nil {
		return nil, wrapProjectErr(err, "list projects")
	}
	return out, nil
}

// Update applies a partial change. Only the owner, an admin or a
// projects:manage holder may modify; only they may hand ownership over.
func (s *Service) Update(ctx context.Context, id domain.ProjectID, in UpdateInput) (*models.Project, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "project name is required")
	}
	now := requestcontext.Now(ctx)
	var updated *models.Project
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		project, err := s.projects.Execute(txCtx, p.TenantID, uuid.UUID(id),
			func(project *models.Project) error {
				if project.IsDeleted() {
					return dErrors.New(dErrors.CodeNotFound, notFound)
				}
				if err := models.RequireModify(p, project); err != nil {
					return err
				}
				candidate := project.Clone()
				applyUpdate(candidate, in)
				return toValidation(candidate.Check())
			},
			func(project *models.Project) {
				applyUpdate(project, in)
				project.Touch(now, p.UserID)
			},
		)
		if err != nil {
			return wrapProjectErr(err, "update project")
		}
		updated = project
		return s.emitter.Record(txCtx, audit.EventProjectUpdated, resourceType, project.ID.String(), project.Name)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Inc("projects", "update")
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id domain.ProjectID) error {
	p, err := authz.Caller(ctx)
	if err != nil {
		return err
	}
	now := requestcontext.Now(ctx)
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		project, err := s.projects.Execute(txCtx, p.TenantID, uuid.UUID(id),
			func(project *models.Project) error {
				if project.IsDeleted() {
					return dErrors.New(dErrors.CodeNotFound, notFound)
				}
				return models.RequireModify(p, project)
			},
			func(project *models.Project) { project.ApplyDelete(now, p.UserID) },
		)
		if err != nil {
			return wrapProjectErr(err, "delete project")
		}
		return s.emitter.Record(txCtx, audit.EventProjectDeleted, resourceType, project.ID.String(), project.Name)
	})
	if err != nil {
		return err
	}
	s.metrics.Inc("projects", "delete")
	return nil
}

func applyUpdate(project *models.Project, in UpdateInput) {
	if in.Name != nil {
		project.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		project.Description = strings.TrimSpace(*in.Description)
	}
	if in.Status != nil {
		project.Status = *in.Status
	}
	switch {
	case in.ClearCustomer:
		project.CustomerID = nil
	case in.CustomerID != nil:
		c := *in.CustomerID
		project.CustomerID = &c
	}
	if in.OwnerID != nil {
		project.OwnerID = *in.OwnerID
	}
	if in.BudgetCents != nil {
		project.BudgetCents = *in.BudgetCents
	}
	if in.StartDate != nil {
		d := *in.StartDate
		project.StartDate = &d
	}
	if in.DueDate != nil {
		d := *in.DueDate
		project.DueDate = &d
	}
}

func wrapProjectErr(err error, op string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, notFound)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "project was modified concurrently, retry")
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
