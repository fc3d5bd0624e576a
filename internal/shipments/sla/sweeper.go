package sla

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"opsdesk/internal/docstore"
	shipmetrics "opsdesk/internal/shipments/metrics"
	"opsdesk/internal/shipments/models"
	"opsdesk/pkg/domain"
	"opsdesk/pkg/platform/audit"
	"opsdesk/pkg/platform/sentinel"
)

// Report tallies one sweep. OnTime, Warnings and Overdue count every checked
// shipment by its classification after the sweep, changed or not.
type Report struct {
	Checked  int `json:"checked"`
	Updated  int `json:"updated"`
	OnTime   int `json:"onTime"`
	Warnings int `json:"warnings"`
	Overdue  int `json:"overdue"`
	Errors   int `json:"errors"`
}

// Sweeper recomputes stored SLA classifications.
type Sweeper struct {
	store      docstore.Store[*models.Shipment]
	classifier Classifier
	emitter    *audit.Emitter
	logger     *slog.Logger
	metrics    *shipmetrics.Metrics
	tracer     trace.Tracer
	now        func() time.Time
}

type SweeperOption func(*Sweeper)

func WithLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) { s.logger = logger }
}

func WithAuditPublisher(publisher audit.Publisher) SweeperOption {
	return func(s *Sweeper) { s.emitter = audit.NewEmitter(s.logger, publisher) }
}

func WithMetrics(m *shipmetrics.Metrics) SweeperOption {
	return func(s *Sweeper) { s.metrics = m }
}

func WithClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) { s.now = now }
}

func WithTracer(tracer trace.Tracer) SweeperOption {
	return func(s *Sweeper) { s.tracer = tracer }
}

func NewSweeper(store docstore.Store[*models.Shipment], classifier Classifier, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		store:      store,
		classifier: classifier,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:     otel.Tracer("opsdesk/shipments/sla"),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.emitter == nil {
		s.emitter = audit.NewEmitter(s.logger, nil)
	}
	return s
}

// Run sweeps every tenant. It is the scheduler entry point.
func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	return s.sweep(ctx, nil)
}

// RunTenant sweeps a single tenant.
func (s *Sweeper) RunTenant(ctx context.Context, tenantID domain.TenantID) (Report, error) {
	return s.sweep(ctx, &tenantID)
}

// Job adapts Run to the scheduler's job signature.
func (s *Sweeper) Job(ctx context.Context) error {
	_, err := s.Run(ctx)
	return err
}

func (s *Sweeper) sweep(ctx context.Context, tenantID *domain.TenantID) (Report, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "sla.sweep")
	defer span.End()

	var (
		shipments []*models.Shipment
		err       error
	)
	if tenantID != nil {
		span.SetAttributes(attribute.String("tenant_id", tenantID.String()))
		shipments, err = s.store.List(ctx, *tenantID, docstore.Query{})
	} else {
		shipments, err = s.store.ListAll(ctx, docstore.Query{})
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list shipments")
		return Report{}, err
	}

	now := s.now()
	var report Report
	for _, sh := range shipments {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !sh.TracksSLA() {
			continue
		}
		report.Checked++

		next := s.classifier.Evaluate(sh, now)
		if next != sh.SLAStatus {
			changed, err := s.update(ctx, sh, next, now)
			switch {
			case err != nil:
				report.Errors++
				s.logger.ErrorContext(ctx, "failed to update sla status",
					"tenant_id", sh.TenantID,
					"shipment_id", sh.ID,
					"error", err,
				)
				next = sh.SLAStatus
			case changed:
				report.Updated++
			}
		}

		switch next {
		case models.SLAOnTime:
			report.OnTime++
		case models.SLAWarning:
			report.Warnings++
		case models.SLAOverdue:
			report.Overdue++
		}
	}

	span.SetAttributes(
		attribute.Int("sla.checked", report.Checked),
		attribute.Int("sla.updated", report.Updated),
		attribute.Int("sla.warnings", report.Warnings),
		attribute.Int("sla.overdue", report.Overdue),
		attribute.Int("sla.errors", report.Errors),
	)
	s.metrics.ObserveSweep(start, report.OnTime, report.Warnings, report.Overdue, report.Errors)
	s.logger.InfoContext(ctx, "sla sweep finished",
		"checked", report.Checked,
		"updated", report.Updated,
		"warnings", report.Warnings,
		"overdue", report.Overdue,
		"errors", report.Errors,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return report, nil
}

// update writes next under the store lock. A shipment that stopped tracking
// SLA or already moved on since the scan is skipped without error.
func (s *Sweeper) update(ctx context.Context, sh *models.Shipment, next models.SLAStatus, now time.Time) (bool, error) {
	previous := sh.SLAStatus
	_, err := s.store.Execute(ctx, sh.TenantID, sh.Key(),
		func(cur *models.Shipment) error {
			if !cur.TracksSLA() || s.classifier.Evaluate(cur, now) == cur.SLAStatus {
				return sentinel.ErrInvalidState
			}
			return nil
		},
		func(cur *models.Shipment) {
			cur.ApplySLA(s.classifier.Evaluate(cur, now), now)
		},
	)
	if errors.Is(err, sentinel.ErrInvalidState) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	s.metrics.IncrementSLAChange(string(next))
	summary := string(previous) + " -> " + string(next)
	if previous == "" {
		summary = "unset -> " + string(next)
	}
	// The new status is already stored; a lost audit event must not count
	// the shipment as failed.
	if err := s.emitter.RecordFor(ctx, sh.TenantID, audit.EventShipmentSLAStatusChanged, "shipment", sh.ID.String(), summary); err != nil {
		s.logger.WarnContext(ctx, "sla change stored without audit event",
			"tenant_id", sh.TenantID,
			"shipment_id", sh.ID,
			"sla_change", summary,
			"error", err,
		)
	}
	return true, nil
}
