// Package service exposes the tenant's audit trail to administrators.
package service

import (
	"context"
	"io"
	"log/slog"

	"opsdesk/internal/authz"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
	"opsdesk/pkg/platform/audit"
	"opsdesk/pkg/requestcontext"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

type Service struct {
	store  audit.Store
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(store audit.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type Query struct {
	ResourceType string
	ResourceID   string
	ActorID      domain.UserID
	Action       string
	Limit        int
}

// List returns the caller's tenant events newest first. Admins only.
func (s *Service) List(ctx context.Context, q Query) ([]audit.Event, error) {
	p, err := authz.Caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := authz.RequireAdmin(p); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	events, err := s.store.List(ctx, p.TenantID, audit.Filter{
		ResourceType: q.ResourceType,
		ResourceID:   q.ResourceID,
		ActorID:      q.ActorID,
		Action:       q.Action,
		Limit:        limit,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to query audit log",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit logs")
	}
	return events, nil
}
