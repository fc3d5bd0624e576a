package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"opsdesk/pkg/domain"
	audit "opsdesk/pkg/platform/audit"
	txcontext "opsdesk/pkg/platform/tx"
)

// Store implements audit.Store on the audit_events table.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// execer joins the caller's transaction when one is on the context, so an
// audit row commits or rolls back with the mutation it describes.
func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append inserts an event. Idempotent on event ID.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	event = audit.Normalize(event)

	query := `
		INSERT INTO audit_events (
			id, tenant_id, category, timestamp, actor_id, action,
			resource_type, resource_id, summary, request_id,
			client_ip, user_agent, device
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
	`

	var actorID *uuid.UUID
	if !event.ActorID.IsNil() {
		a := uuid.UUID(event.ActorID)
		actorID = &a
	}

	_, err := s.execer(ctx).ExecContext(ctx, query,
		event.ID,
		uuid.UUID(event.TenantID),
		string(event.Category),
		event.Timestamp,
		actorID,
		event.Action,
		event.ResourceType,
		event.ResourceID,
		event.Summary,
		event.RequestID,
		event.ClientIP,
		event.UserAgent,
		event.Device,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// List returns the tenant's events matching filter, newest first.
func (s *Store) List(ctx context.Context, tenantID domain.TenantID, filter audit.Filter) ([]audit.Event, error) {
	conds := []string{"tenant_id = $1"}
	args := []any{uuid.UUID(tenantID)}
	add := func(col string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if filter.ResourceType != "" {
		add("resource_type", filter.ResourceType)
	}
	if filter.ResourceID != "" {
		add("resource_id", filter.ResourceID)
	}
	if !filter.ActorID.IsNil() {
		add("actor_id", uuid.UUID(filter.ActorID))
	}
	if filter.Action != "" {
		add("action", filter.Action)
	}

	query := `
		SELECT id, tenant_id, category, timestamp, actor_id, action,
			   resource_type, resource_id, summary, request_id,
			   client_ip, user_agent, device
		FROM audit_events
		WHERE ` + strings.Join(conds, " AND ") + `
		ORDER BY timestamp DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event

	for rows.Next() {
		var (
			event    audit.Event
			tenantID uuid.UUID
			category string
			actorID  *uuid.UUID
		)
		err := rows.Scan(
			&event.ID,
			&tenantID,
			&category,
			&event.Timestamp,
			&actorID,
			&event.Action,
			&event.ResourceType,
			&event.ResourceID,
			&event.Summary,
			&event.RequestID,
			&event.ClientIP,
			&event.UserAgent,
			&event.Device,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.TenantID = domain.TenantID(tenantID)
		event.Category = audit.EventCategory(category)
		if actorID != nil {
			event.ActorID = domain.UserID(*actorID)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
