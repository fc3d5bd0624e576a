package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"opsdesk/internal/authz"
	"opsdesk/internal/docstore"
	"opsdesk/internal/permissionrequests/models"
	platformmetrics "opsdesk/internal/platform/metrics"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
	"opsdesk/pkg/platform/audit"
	"opsdesk/pkg/platform/sentinel"
	txcontext "opsdesk/pkg/platform/tx"
	"opsdesk/pkg/requestcontext"
)

const (
	resourceType      = "permission_request"
	grantResourceType = "permission_grant"
	notFound          = "Permission request not found"
)

type Service struct {
	requests  docstore.Store[*models.Request]
	grants    docstore.Store[*models.Grant]
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

func New(requests docstore.Store[*models.Request], grants docstore.Store[*models.Grant], opts ...Option) *Service {
	s := &Service{
		requests: requests,
		grants:   grants,
		tx:       txcontext.NoopRunner{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.emitter = audit.NewEmitter(s.logger, s.publisher)
	return s
}

type ListFilter struct {
	Status      models.Status
	RequesterID *domain.UserID
	Limit       int
	Offset      int
}

// Create files a request on behalf of the caller. Asking for a permission
// already held, or already pending, is a conflict.
func (s *Service) Create(ctx context.Context, permission, reason string) (*models.Request, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	req, err := models.NewRequest(p.TenantID, p.UserID, permission, reason, requestcontext.Now(ctx))
	if err != nil {
		return nil, toValidation(err)
	}
	if p.IsAdmin() || p.HasPermission(req.Permission) {
		return nil, dErrors.New(dErrors.CodeConflict, "you already hold "+req.Permission)
	}
	granted, err := s.GrantedPermissions(ctx, p.TenantID, p.UserID)
	if err != nil {
		return nil, err
	}
	if slices.Contains(granted, req.Permission) {
		return nil, dErrors.New(dErrors.CodeConflict, "you already hold "+req.Permission)
	}
	pending, err := s.requests.List(ctx, p.TenantID, docstore.Query{Limit: 1}.
		Where("requesterId", p.UserID).
		Where("permission", req.Permission).
		Where("status", models.StatusPending))
	if err != nil {
		return nil, wrapRequestErr(err, "check pending requests")
	}
	if len(pending) > 0 {
		return nil, dErrors.New(dErrors.CodeConflict, "a pending request for "+req.Permission+" already exists")
	}
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.requests.Insert(txCtx, req); err != nil {
			return wrapRequestErr(err, "create permission request")
		}
		return s.emitter.Record(txCtx, audit.EventPermissionRequested, resourceType, req.ID.String(), req.Permission)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Inc("permission_requests", "create")
	return req, nil
}

func (s *Service) Get(ctx context.Context, id domain.RequestID) (*models.Request, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	req, err := s.requests.Get(ctx, p.TenantID, uuid.UUID(id))
	if err != nil {
		return nil, wrapRequestErr(err, "load permission request")
	}
	if req.IsDeleted() || !models.CanView(p, req) {
		return nil, dErrors.New(dErrors.CodeNotFound, notFound)
	}
	return req, nil
}

// List shows admins every request and everyone else their own.
func (s *Service) List(ctx context.Context, f ListFilter) ([]*models.Request, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	q := docstore.Query{Limit: f.Limit, Offset: f.Offset}
	switch {
	case !p.IsAdmin():
		q = q.Where("requesterId", p.UserID)
	case f.RequesterID != nil:
		q = q.Where("requesterId", *f.RequesterID)
	}
	if f.Status != "" {
		q = q.Where("status", f.Status)
	}
	out, err := s.requests.List(ctx, p.TenantID, q)
	if err != nil {
		return nil, wrapRequestErr(err, "list permission requests")
	}
	return out, nil
}

// Approve resolves a pending request and records the grant in the same
// transaction. Without a transactional backend a failed grant write
// reopens the request instead.
func (s *Service) Approve(ctx context.Context, id domain.RequestID, note string) (*models.Request, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireReview(p); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	var out *models.Request
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		req, err := s.requests.Execute(txCtx, p.TenantID, uuid.UUID(id),
			func(r *models.Request) error {
				if r.IsDeleted() {
					return dErrors.New(dErrors.CodeNotFound, notFound)
				}
				return invariantToConflict(r.CanResolve())
			},
			func(r *models.Request) {
				r.ApplyReview(models.StatusApproved, p.UserID, note, now)
				r.Touch(now, p.UserID)
			},
		)
		if err != nil {
			return wrapRequestErr(err, "approve permission request")
		}
		if err := s.grants.Insert(txCtx, models.NewGrant(req, now, p.UserID)); err != nil {
			s.reopen(txCtx, p.TenantID, id)
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record permission grant")
		}
		out = req
		return s.emitter.Record(txCtx, audit.EventPermissionApproved, resourceType, req.ID.String(), req.Permission)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Inc("permission_requests", "approve")
	s.logger.InfoContext(ctx, "permission granted",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", out.RequesterID,
		"permission", out.Permission,
	)
	return out, nil
}

// reopen undoes an approval whose grant could not be written.
func (s *Service) reopen(ctx context.Context, tenantID domain.TenantID, id domain.RequestID) {
	_, err := s.requests.Execute(ctx, tenantID, uuid.UUID(id),
		func(r *models.Request) error {
			if r.Status != models.StatusApproved {
				return sentinel.ErrInvalidState
			}
			return nil
		},
		func(r *models.Request) { r.ReopenReview() },
	)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to reopen permission request",
			"request_id", requestcontext.RequestID(ctx),
			"permission_request_id", id,
			"error", err,
		)
	}
}

func (s *Service) Deny(ctx context.Context, id domain.RequestID, note string) (*models.Request, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.RequireReview(p); err != nil {
		return nil, err
	}
	return s.resolve(ctx, p, id, audit.EventPermissionDenied, "deny",
		func(*models.Request) error { return nil },
		func(r *models.Request, now time.Time) { r.ApplyReview(models.StatusDenied, p.UserID, note, now) },
	)
}

// Cancel withdraws a pending request. Only its requester (or an admin) may.
func (s *Service) Cancel(ctx context.Context, id domain.RequestID) (*models.Request, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, p, id, audit.EventPermissionCancelled, "cancel",
		func(r *models.Request) error { return models.RequireCancel(p, r) },
		func(r *models.Request, now time.Time) { r.ApplyReview(models.StatusCancelled, p.UserID, "", now) },
	)
}

// Grants lists the live grants of user.
func (s *Service) Grants(ctx context.Context, user domain.UserID) ([]*models.Grant, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if !models.CanListGrants(p, user) {
		return nil, authz.RequireAdmin(p)
	}
	out, err := s.grants.List(ctx, p.TenantID, docstore.Query{}.Where("userId", user))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list permission grants")
	}
	return out, nil
}

// Revoke soft-deletes a grant.
func (s *Service) Revoke(ctx context.Context, grantID uuid.UUID) error {
	p, err := authz.Caller(ctx)
	if err != nil {
		return err
	}
	if err := authz.RequireAdmin(p); err != nil {
		return err
	}
	now := requestcontext.Now(ctx)
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		g, err := s.grants.Execute(txCtx, p.TenantID, grantID,
			func(g *models.Grant) error { return g.CanDelete() },
			func(g *models.Grant) { g.ApplyDelete(now, p.UserID) },
		)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "Permission grant not found")
		}
		if err != nil {
			return wrapRequestErr(err, "revoke permission grant")
		}
		return s.emitter.Record(txCtx, audit.EventPermissionRevoked, grantResourceType, g.ID.String(), g.Permission)
	})
	if err != nil {
		return err
	}
	s.metrics.Inc("permission_requests", "revoke")
	return nil
}

// PurgeRevokedGrants hard-deletes grants revoked before now minus
// retention, across tenants. It runs from the scheduler.
func (s *Service) PurgeRevokedGrants(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := requestcontext.Now(ctx).Add(-retention)
	all, err := s.grants.ListAll(ctx, docstore.Query{IncludeDeleted: true})
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list permission grants")
	}
	stale := make(map[domain.TenantID][]uuid.UUID)
	for _, g := range all {
		if g.DeletedAt != nil && g.DeletedAt.Before(cutoff) {
			stale[g.TenantID] = append(stale[g.TenantID], g.ID)
		}
	}
	var purged int64
	for tenantID, keys := range stale {
		if err := ctx.Err(); err != nil {
			return purged, err
		}
		n, err := s.grants.DeleteMany(ctx, tenantID, keys)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to purge revoked grants",
				"tenant_id", tenantID,
				"count", len(keys),
				"error", err,
			)
			continue
		}
		purged += n
	}
	if purged > 0 {
		s.logger.InfoContext(ctx, "purged revoked permission grants", "count", purged)
	}
	return purged, nil
}

// PurgeJob adapts PurgeRevokedGrants to the scheduler.
func (s *Service) PurgeJob(retention time.Duration) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := s.PurgeRevokedGrants(ctx, retention)
		return err
	}
}

// GrantedPermissions returns the permissions approved for user. It does not
// authorize the caller; the auth middleware uses it to extend principals.
func (s *Service) GrantedPermissions(ctx context.Context, tenantID domain.TenantID, user domain.UserID) ([]string, error) {
	grants, err := s.grants.List(ctx, tenantID, docstore.Query{}.Where("userId", user))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list permission grants")
	}
	perms := make([]string, 0, len(grants))
	for _, g := range grants {
		if !slices.Contains(perms, g.Permission) {
			perms = append(perms, g.Permission)
		}
	}
	return perms, nil
}

func (s *Service) resolve(
	ctx context.Context,
	p domain.Principal,
	id domain.RequestID,
	event audit.AuditEvent,
	action string,
	allow func(*models.Request) error,
	apply func(*models.Request, time.Time),
) (*models.Request, error) {
	now := requestcontext.Now(ctx)
	var out *models.Request
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		req, err := s.requests.Execute(txCtx, p.TenantID, uuid.UUID(id),
			func(r *models.Request) error {
				if r.IsDeleted() || !models.CanView(p, r) {
					return dErrors.New(dErrors.CodeNotFound, notFound)
				}
				if err := allow(r); err != nil {
					return err
				}
				return invariantToConflict(r.CanResolve())
			},
			func(r *models.Request) {
				apply(r, now)
				r.Touch(now, p.UserID)
			},
		)
		if err != nil {
			return wrapRequestErr(err, action+" permission request")
		}
		out = req
		return s.emitter.Record(txCtx, event, resourceType, req.ID.String(), req.Permission)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Inc("permission_requests", action)
	return out, nil
}

func wrapRequestErr(err error, op string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, notFound)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "permission request was modified concurrently, retry")
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
