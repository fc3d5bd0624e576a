// Package compliance is the fail-closed audit publisher: Emit appends to the
// audit store synchronously, and a failed append fails the mutation that
// produced the event.
package compliance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	audit "opsdesk/pkg/platform/audit"
)

// ErrIncompleteEvent is returned for events missing a tenant or action.
var ErrIncompleteEvent = errors.New("incomplete audit event")

type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	switch {
	case event.TenantID.IsNil():
		return fmt.Errorf("%w: tenant is required", ErrIncompleteEvent)
	case event.Action == "":
		return fmt.Errorf("%w: action is required", ErrIncompleteEvent)
	}
	event = audit.Normalize(event)

	start := time.Now()
	err := p.store.Append(ctx, event)
	p.observe(event, time.Since(start), err)
	if err != nil {
		p.logger.ErrorContext(ctx, "audit append failed, rejecting mutation",
			"action", event.Action,
			"tenant_id", event.TenantID,
			"resource_type", event.ResourceType,
			"resource_id", event.ResourceID,
			"request_id", event.RequestID,
			"error", err,
		)
		return fmt.Errorf("append audit event %s: %w", event.Action, err)
	}
	return nil
}

func (p *Publisher) observe(event audit.Event, took time.Duration, err error) {
	if p.metrics == nil {
		return
	}
	if err != nil {
		p.metrics.PersistFailures.Inc()
		return
	}
	p.metrics.PersistDuration.Observe(took.Seconds())
	p.metrics.EventsEmitted.WithLabelValues(string(event.Category)).Inc()
}
