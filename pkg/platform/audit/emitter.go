package audit

import (
	"context"
	"io"
	"log/slog"

	"opsdesk/pkg/domain"
	dErrors "opsdesk/pkg/domain-errors"
)

// Emitter is the service-side helper: it logs the action and hands the event
// to the publisher. A nil publisher only logs.
type Emitter struct {
	logger    *slog.Logger
	publisher Publisher
}

func NewEmitter(logger *slog.Logger, publisher Publisher) *Emitter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Emitter{logger: logger, publisher: publisher}
}

// Record emits action on behalf of the caller on ctx.
func (e *Emitter) Record(ctx context.Context, action AuditEvent, resourceType, resourceID, summary string) error {
	return e.Emit(ctx, FromContext(ctx, action, resourceType, resourceID, summary))
}

// RecordFor emits a system action in tenantID, for jobs running without a caller.
func (e *Emitter) RecordFor(ctx context.Context, tenantID domain.TenantID, action AuditEvent, resourceType, resourceID, summary string) error {
	event := FromContext(ctx, action, resourceType, resourceID, summary)
	event.TenantID = tenantID
	return e.Emit(ctx, event)
}

// Emit publishes a fully built event. Publisher failures surface as internal
// errors so the calling mutation can roll back.
func (e *Emitter) Emit(ctx context.Context, event Event) error {
	e.logger.InfoContext(ctx, event.Action,
		"request_id", event.RequestID,
		"tenant_id", event.TenantID,
		"actor_id", event.ActorID,
		"resource_type", event.ResourceType,
		"resource_id", event.ResourceID,
	)
	if e.publisher == nil {
		return nil
	}
	if err := e.publisher.Emit(ctx, event); err != nil {
		e.logger.ErrorContext(ctx, "failed to publish audit event",
			"request_id", event.RequestID,
			"action", event.Action,
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}
	return nil
}
