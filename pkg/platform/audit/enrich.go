package audit

import (
	"context"

	"opsdesk/pkg/requestcontext"
)

// FromContext builds an event for action on a resource, filling tenant,
// actor, request and client metadata from ctx.
func FromContext(ctx context.Context, action AuditEvent, resourceType, resourceID, summary string) Event {
	p := requestcontext.Principal(ctx)
	return Event{
		Timestamp:    requestcontext.Now(ctx),
		TenantID:     p.TenantID,
		ActorID:      p.UserID,
		Action:       string(action),
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Summary:      summary,
		RequestID:    requestcontext.RequestID(ctx),
		ClientIP:     requestcontext.ClientIP(ctx),
		UserAgent:    requestcontext.UserAgent(ctx),
		Device:       requestcontext.Device(ctx),
	}
}
