// Package postgres stores documents as JSONB rows in the shared documents
// table, keyed by (collection, tenant_id, id).
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"opsdesk/internal/docstore"
	"opsdesk/pkg/domain"
	"opsdesk/pkg/platform/sentinel"
	txcontext "opsdesk/pkg/platform/tx"
)

const uniqueViolation = "23505"

type Store[T docstore.Entity[T]] struct {
	db     *sql.DB
	schema docstore.Schema
}

func New[T docstore.Entity[T]](db *sql.DB, schema docstore.Schema) *Store[T] {
	return &Store[T]{db: db, schema: schema}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store[T]) Insert(ctx context.Context, doc T) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", s.schema.Collection, err)
	}
	return txcontext.RunInTx(ctx, s.db, func(txCtx context.Context) error {
		tx, _ := txcontext.From(txCtx)
		if err := s.checkUnique(txCtx, tx, doc, data); err != nil {
			return err
		}
		_, err := tx.ExecContext(txCtx, `
			INSERT INTO documents (collection, tenant_id, id, data, deleted, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
		`, s.schema.Collection, uuid.UUID(doc.Tenant()), doc.Key(), data, doc.IsDeleted(), time.Now().UTC())
		if err != nil {
			return translate(err, "insert "+s.schema.Collection)
		}
		return nil
	})
}

func (s *Store[T]) Get(ctx context.Context, tenantID domain.TenantID, key uuid.UUID) (T, error) {
	return s.load(ctx, s.executor(ctx), tenantID, key, false)
}

func (s *Store[T]) List(ctx context.Context, tenantID domain.TenantID, q docstore.Query) ([]T, error) {
	return s.query(ctx, &tenantID, q)
}

func (s *Store[T]) ListAll(ctx context.Context, q docstore.Query) ([]T, error) {
	return s.query(ctx, nil, q)
}

// Execute locks the row with SELECT ... FOR UPDATE for the duration of
// validate and mutate.
func (s *Store[T]) Execute(ctx context.Context, tenantID domain.TenantID, key uuid.UUID, validate func(T) error, mutate func(T)) (T, error) {
	var result T
	err := txcontext.RunInTx(ctx, s.db, func(txCtx context.Context) error {
		tx, _ := txcontext.From(txCtx)
		doc, err := s.load(txCtx, tx, tenantID, key, true)
		if err != nil {
			return err
		}
		if err := validate(doc); err != nil {
			return err
		}
		mutate(doc)

		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", s.schema.Collection, err)
		}
		if err := s.checkUnique(txCtx, tx, doc, data); err != nil {
			return err
		}
		_, err = tx.ExecContext(txCtx, `
			UPDATE documents SET data = $4, deleted = $5, updated_at = $6
			WHERE collection = $1 AND tenant_id = $2 AND id = $3
		`, s.schema.Collection, uuid.UUID(tenantID), key, data, doc.IsDeleted(), time.Now().UTC())
		if err != nil {
			return translate(err, "update "+s.schema.Collection)
		}
		result = doc
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// DeleteMany removes the keyed rows in one statement, passing the keys as a
// single array parameter.
func (s *Store[T]) DeleteMany(ctx context.Context, tenantID domain.TenantID, keys []uuid.UUID) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	ids := make([]string, len(keys))
	for i, k := range keys {
		ids[i] = k.String()
	}
	res, err := s.executor(ctx).ExecContext(ctx, `
		DELETE FROM documents
		WHERE collection = $1 AND tenant_id = $2 AND id::text = ANY($3)
	`, s.schema.Collection, uuid.UUID(tenantID), pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", s.schema.Collection, err)
	}
	return res.RowsAffected()
}

func (s *Store[T]) executor(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store[T]) load(ctx context.Context, exec dbExecutor, tenantID domain.TenantID, key uuid.UUID, forUpdate bool) (T, error) {
	var zero T
	query := `SELECT data FROM documents WHERE collection = $1 AND tenant_id = $2 AND id = $3`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var data []byte
	err := exec.QueryRowContext(ctx, query, s.schema.Collection, uuid.UUID(tenantID), key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, sentinel.ErrNotFound
	}
	if err != nil {
		return zero, fmt.Errorf("load %s: %w", s.schema.Collection, err)
	}
	var doc T
	if err := json.Unmarshal(data, &doc); err != nil {
		return zero, fmt.Errorf("decode %s: %w", s.schema.Collection, err)
	}
	return doc, nil
}

func (s *Store[T]) query(ctx context.Context, tenantID *domain.TenantID, q docstore.Query) ([]T, error) {
	args := []any{s.schema.Collection}
	where := `collection = $1`
	if tenantID != nil {
		args = append(args, uuid.UUID(*tenantID))
		where += fmt.Sprintf(` AND tenant_id = $%d`, len(args))
	}
	if !q.IncludeDeleted {
		where += ` AND NOT deleted`
	}
	if len(q.Filters) > 0 {
		containment, err := json.Marshal(q.Filters)
		if err != nil {
			return nil, fmt.Errorf("marshal filters: %w", err)
		}
		args = append(args, containment)
		where += fmt.Sprintf(` AND data @> $%d::jsonb`, len(args))
	}
	query := `SELECT data FROM documents WHERE ` + where + ` ORDER BY seq`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.schema.Collection, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.schema.Collection, err)
		}
		var doc T
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", s.schema.Collection, err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", s.schema.Collection, err)
	}
	return out, nil
}

// checkUnique serializes writers of one tenant's collection with an advisory
// lock, then looks for a live document holding any unique value.
func (s *Store[T]) checkUnique(ctx context.Context, tx *sql.Tx, doc T, data []byte) error {
	if len(s.schema.Unique) == 0 || doc.IsDeleted() {
		return nil
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decode %s: %w", s.schema.Collection, err)
	}
	lockKey := s.schema.Collection + ":" + doc.Tenant().String()
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		return fmt.Errorf("lock %s: %w", s.schema.Collection, err)
	}
	for _, field := range s.schema.Unique {
		v, ok := fields[field]
		if !ok || v == nil || v == "" {
			continue
		}
		match, err := json.Marshal(map[string]any{field: v})
		if err != nil {
			return fmt.Errorf("marshal unique match: %w", err)
		}
		var exists bool
		err = tx.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM documents
				WHERE collection = $1 AND tenant_id = $2 AND id <> $3 AND NOT deleted AND data @> $4::jsonb
			)
		`, s.schema.Collection, uuid.UUID(doc.Tenant()), doc.Key(), match).Scan(&exists)
		if err != nil {
			return fmt.Errorf("unique check %s.%s: %w", s.schema.Collection, field, err)
		}
		if exists {
			return fmt.Errorf("%s.%s: %w", s.schema.Collection, field, sentinel.ErrAlreadyUsed)
		}
	}
	return nil
}

func translate(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", op, sentinel.ErrAlreadyUsed)
	}
	return fmt.Errorf("%s: %w", op, err)
}
