package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"opsdesk/internal/docstore"
	shipmetrics "opsdesk/internal/shipments/metrics"
	"opsdesk/internal/shipments/models"
	"opsdesk/internal/shipments/sla"
	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
	"opsdesk/pkg/platform/audit"
	"opsdesk/pkg/platform/sentinel"
	txcontext "opsdesk/pkg/platform/tx"
)

const resourceType = "shipment"

// SLARecalculator runs the SLA sweep for one tenant.
type SLARecalculator interface {
	RunTenant(ctx context.Context, tenantID domain.TenantID) (sla.Report, error)
}

// Service orchestrates shipment lifecycle, status history and SLA queries.
type Service struct {
	shipments  docstore.Store[*models.Shipment]
	history    docstore.Store[*models.StatusHistoryEntry]
	classifier sla.Classifier
	sweeper    SLARecalculator
	tx         txcontext.Runner
	logger     *slog.Logger
	publisher  audit.Publisher
	emitter    *audit.Emitter
	metrics    *shipmetrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

func WithMetrics(m *shipmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTx(tx txcontext.Runner) Option {
	return func(s *Service) { s.tx = tx }
}

func WithSweeper(sweeper SLARecalculator) Option {
	return func(s *Service) { s.sweeper = sweeper }
}

func New(shipments docstore.Store[*models.Shipment], history docstore.Store[*models.StatusHistoryEntry], classifier sla.Classifier, opts ...Option) *Service {
	s := &Service{
		shipments:  shipments,
		history:    history,
		classifier: classifier,
		tx:         txcontext.NoopRunner{},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.emitter = audit.NewEmitter(s.logger, s.publisher)
	if s.sweeper == nil {
		s.sweeper = sla.NewSweeper(shipments, classifier,
			sla.WithLogger(s.logger),
			sla.WithAuditPublisher(s.publisher),
			sla.WithMetrics(s.metrics),
		)
	}
	return s
}

// wrapShipmentErr maps store facts to client errors. Coded errors pass through.
func wrapShipmentErr(err error, op string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "Shipment not found")
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeConflict, "shipment reference must be unique")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "shipment was modified concurrently, retry")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to "+op)
	}
}

// invariantToConflict turns model invariant errors raised inside Execute into
// conflicts: the request was well formed but the record's state forbids it.
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

func visible(sh *models.Shipment) error {
	if sh.IsDeleted() {
		return dErrors.New(dErrors.CodeNotFound, "Shipment not found")
	}
	return nil
}

func (s *Service) recordHistory(ctx context.Context, sh *models.Shipment, from models.Status, note string, now time.Time, actor domain.UserID) error {
	entry := models.NewHistoryEntry(sh, from, note, now, actor)
	if err := s.history.Insert(ctx, entry); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record status history")
	}
	return nil
}

func uuidOf(id domain.ShipmentID) uuid.UUID { return uuid.UUID(id) }
