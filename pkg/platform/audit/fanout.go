package audit

import (
	"context"
	"log/slog"
)

// Fanout delivers an event to a required publisher and any number of
// best-effort sinks. Only the required publisher's error is returned.
type Fanout struct {
	required   Publisher
	bestEffort []Publisher
	logger     *slog.Logger
}

// NewFanout creates a Fanout. logger may be nil.
func NewFanout(required Publisher, logger *slog.Logger, bestEffort ...Publisher) *Fanout {
	return &Fanout{required: required, bestEffort: bestEffort, logger: logger}
}

func (f *Fanout) Emit(ctx context.Context, event Event) error {
	event = Normalize(event)
	if err := f.required.Emit(ctx, event); err != nil {
		return err
	}
	for _, p := range f.bestEffort {
		if err := p.Emit(ctx, event); err != nil && f.logger != nil {
			f.logger.WarnContext(ctx, "best-effort audit sink failed",
				"action", event.Action,
				"error", err,
				"request_id", event.RequestID,
			)
		}
	}
	return nil
}
