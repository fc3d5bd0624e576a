package service

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"opsdesk/internal/authz"
	"opsdesk/internal/dashboards/models"
	"opsdesk/internal/docstore"
	platformmetrics "opsdesk/internal/platform/metrics"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
	"opsdesk/pkg/platform/audit"
	"opsdesk/pkg/platform/sentinel"
	txcontext "opsdesk/pkg/platform/tx"
	"opsdesk/pkg/requestcontext"
)

const (
	resourceType = "dashboard"
	notFound     = "Dashboard not found"
)

type Service struct {
	dashboards docstore.Store[*models.Dashboard]
	tx         txcontext.Runner
	logger     *slog.Logger
	publisher  audit.Publisher
	emitter    *audit.Emitter
	metrics    *platformmetrics.Mutations
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

func New(dashboards docstore.Store[*models.Dashboard], opts ...Option) *Service {
	s := &Service{
		dashboards: dashboards,
		tx:         txcontext.NoopRunner{},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.emitter = audit.NewEmitter(s.logger, s.publisher)
	return s
}

type CreateInput struct {
	models.Fields
	IsDefault bool
}

type UpdateInput struct {
	Name        *string
	Description *string
	Shared      *bool
	Widgets     []models.Widget
	// OwnerID transfers the dashboard. The default flag does not follow it.
	OwnerID *domain.UserID
}

type ListFilter struct {
	OwnedOnly      bool
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// Create stores a dashboard owned by the caller. Any authenticated user may
// keep dashboards.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Dashboard, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	d, err := models.NewDashboard(p.TenantID, in.Fields, p.UserID, now)
	if err != nil {
		return nil, toValidation(err)
	}
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if in.IsDefault {
			if err := s.clearDefault(txCtx, p, p.UserID, domain.DashboardID{}); err != nil {
				return err
			}
			d.IsDefault = true
		}
		if err := s.dashboards.Insert(txCtx, d); err != nil {
			return wrapDashboardErr(err, "create dashboard")
		}
		return s.emitter.Record(txCtx, audit.EventDashboardCreated, resourceType, d.ID.String(), d.Name)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Inc("dashboards", "create")
	return d, nil
}

func (s *Service) Get(ctx context.Context, id domain.DashboardID) (*models.Dashboard, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	d, err := s.dashboards.Get(ctx, p.TenantID, uuid.UUID(id))
	if err != nil {
		return nil, wrapDashboardErr(err, "load dashboard")
	}
	if d.IsDeleted() || !models.CanView(p, d) {
		return nil, dErrors.New(dErrors.CodeNotFound, notFound)
	}
	return d, nil
}

// List returns the caller's dashboards followed by those shared by others.
// Admins see every dashboard unless OwnedOnly is set.
func (s *Service) List(ctx context.Context, f ListFilter) ([]*models.Dashboard, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	base := docstore.Query{IncludeDeleted: f.IncludeDeleted && p.IsAdmin()}
	if p.IsAdmin() && !f.OwnedOnly {
		all, err := s.dashboards.List(ctx, p.TenantID, docstore.Query{IncludeDeleted: base.IncludeDeleted, Limit: f.Limit, Offset: f.Offset})
		if err != nil {
			return nil, wrapDashboardErr(err, "list dashboards")
		}
		return all, nil
	}
	owned, err := s.dashboards.List(ctx, p.TenantID, base.Where("ownerId", p.UserID))
	if err != nil {
		return nil, wrapDashboardErr(err, "list dashboards")
	}
	if f.OwnedOnly {
		return docstore.Page(owned, f.Offset, f.Limit), nil
	}
	shared, err := s.dashboards.List(ctx, p.TenantID, base.Where("shared", true))
	if err != nil {
		return nil, wrapDashboardErr(err, "list dashboards")
	}
	out := owned
	for _, d := range shared {
		if d.OwnerID != p.UserID {
			out = append(out, d)
		}
	}
	return docstore.Page(out, f.Offset, f.Limit), nil
}

func (s *Service) Update(ctx context.Context, id domain.DashboardID, in UpdateInput) (*models.Dashboard, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	var out *models.Dashboard
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		d, err := s.dashboards.Execute(txCtx, p.TenantID, uuid.UUID(id),
			func(d *models.Dashboard) error {
				if err := s.visible(p, d); err != nil {
					return err
				}
				if err := models.RequireModify(p, d); err != nil {
					return err
				}
				if in.OwnerID != nil && in.OwnerID.IsNil() {
					return dErrors.New(dErrors.CodeValidation, "ownerId cannot be empty")
				}
				return toValidation(d.Clone().Apply(merge(d.Fields(), in)))
			},
			func(d *models.Dashboard) {
				_ = d.Apply(merge(d.Fields(), in))
				if in.OwnerID != nil && *in.OwnerID != d.OwnerID {
					d.OwnerID = *in.OwnerID
					d.IsDefault = false
				}
				d.Touch(now, p.UserID)
			},
		)
		if err != nil {
			return wrapDashboardErr(err, "update dashboard")
		}
		out = d
		return s.emitter.Record(txCtx, audit.EventDashboardUpdated, resourceType, d.ID.String(), d.Name)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Inc("dashboards", "update")
	return out, nil
}

// SetDefault makes id its owner's default dashboard and clears the previous
// one.
func (s *Service) SetDefault(ctx context.Context, id domain.DashboardID) (*models.Dashboard, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	var out *models.Dashboard
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.dashboards.Get(txCtx, p.TenantID, uuid.UUID(id))
		if err != nil {
			return wrapDashboardErr(err, "load dashboard")
		}
		if err := s.visible(p, current); err != nil {
			return err
		}
		if err := models.RequireModify(p, current); err != nil {
			return err
		}
		if err := s.clearDefault(txCtx, p, current.OwnerID, current.ID); err != nil {
			return err
		}
		d, err := s.dashboards.Execute(txCtx, p.TenantID, uuid.UUID(id),
			func(d *models.Dashboard) error { return s.visible(p, d) },
			func(d *models.Dashboard) {
				d.IsDefault = true
				d.Touch(now, p.UserID)
			},
		)
		if err != nil {
			return wrapDashboardErr(err, "set default dashboard")
		}
		out = d
		return s.emitter.Record(txCtx, audit.EventDashboardUpdated, resourceType, d.ID.String(), "default: "+d.Name)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Inc("dashboards", "set_default")
	return out, nil
}

// Default returns the caller's default dashboard.
func (s *Service) Default(ctx context.Context) (*models.Dashboard, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	found, err := s.dashboards.List(ctx, p.TenantID, docstore.Query{Limit: 1}.Where("ownerId", p.UserID).Where("isDefault", true))
	if err != nil {
		return nil, wrapDashboardErr(err, "load default dashboard")
	}
	if len(found) == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "No default dashboard")
	}
	return found[0], nil
}

func (s *Service) Delete(ctx context.Context, id domain.DashboardID) error {
	p, err := authz.Caller(ctx)
	if err != nil {
		return err
	}
	now := requestcontext.Now(ctx)
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		d, err := s.dashboards.Execute(txCtx, p.TenantID, uuid.UUID(id),
			func(d *models.Dashboard) error {
				if err := s.visible(p, d); err != nil {
					return err
				}
				return models.RequireModify(p, d)
			},
			func(d *models.Dashboard) {
				d.IsDefault = false
				d.ApplyDelete(now, p.UserID)
			},
		)
		if err != nil {
			return wrapDashboardErr(err, "delete dashboard")
		}
		return s.emitter.Record(txCtx, audit.EventDashboardDeleted, resourceType, d.ID.String(), d.Name)
	})
	if err != nil {
		return err
	}
	s.metrics.Inc("dashboards", "delete")
	return nil
}

// visible hides deleted and private foreign dashboards behind not found.
func (s *Service) visible(p domain.Principal, d *models.Dashboard) error {
	if d.IsDeleted() || !models.CanView(p, d) {
		return dErrors.New(dErrors.CodeNotFound, notFound)
	}
	return nil
}

func (s *Service) clearDefault(ctx context.Context, p domain.Principal, owner domain.UserID, keep domain.DashboardID) error {
	defaults, err := s.dashboards.List(ctx, p.TenantID, docstore.Query{}.Where("ownerId", owner).Where("isDefault", true))
	if err != nil {
		return wrapDashboardErr(err, "list default dashboards")
	}
	now := requestcontext.Now(ctx)
	for _, d := range defaults {
		if d.ID == keep {
			continue
		}
		_, err := s.dashboards.Execute(ctx, p.TenantID, uuid.UUID(d.ID),
			func(*models.Dashboard) error { return nil },
			func(d *models.Dashboard) {
				d.IsDefault = false
				d.Touch(now, p.UserID)
			},
		)
		if err != nil {
			return wrapDashboardErr(err, "clear default dashboard")
		}
	}
	return nil
}

func merge(f models.Fields, in UpdateInput) models.Fields {
	if in.Name != nil {
		f.Name = *in.Name
	}
	if in.Description != nil {
		f.Description = *in.Description
	}
	if in.Shared != nil {
		f.Shared = *in.Shared
	}
	if in.Widgets != nil {
		f.Widgets = in.Widgets
	}
	return f
}

func wrapDashboardErr(err error, op string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, notFound)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "dashboard was modified concurrently, retry")
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
