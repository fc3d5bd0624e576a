// Package docstore is the tenant-scoped document persistence contract shared
// by every business module. Backends live in the memory, postgres and mongo
// subpackages; Open picks one from configuration.
package docstore

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/google/uuid"

	"opsdesk/pkg/domain"
)

// Entity is implemented by pointer model types (*Project, *Shipment, ...).
type Entity[T any] interface {
	Key() uuid.UUID
	Tenant() domain.TenantID
	IsDeleted() bool
	Clone() T
}

// Schema names a collection and the fields that must be unique among a
// tenant's live documents.
type Schema struct {
	Collection string
	Unique     []string
	Indexes    []string
}

// Query filters a List. Filters are equality matches on top-level JSON
// fields; values are strings, bools or numbers.
type Query struct {
	Filters        map[string]any
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// Where returns a copy of q with an extra equality filter.
func (q Query) Where(field string, value any) Query {
	filters := make(map[string]any, len(q.Filters)+1)
	for k, v := range q.Filters {
		filters[k] = v
	}
	filters[field] = value
	q.Filters = filters
	return q
}

// Store persists documents of one collection.
//
// Get returns soft-deleted documents too; services decide visibility.
// List and ListAll return documents in creation order.
// Execute loads the document, runs validate, then applies mutate and saves,
// all while holding the document lock. A validate error aborts the write.
// DeleteMany hard-deletes the given keys of one tenant and reports how many
// documents were removed; unknown keys are skipped.
type Store[T Entity[T]] interface {
	Insert(ctx context.Context, doc T) error
	Get(ctx context.Context, tenantID domain.TenantID, key uuid.UUID) (T, error)
	List(ctx context.Context, tenantID domain.TenantID, q Query) ([]T, error)
	ListAll(ctx context.Context, q Query) ([]T, error)
	Execute(ctx context.Context, tenantID domain.TenantID, key uuid.UUID, validate func(T) error, mutate func(T)) (T, error)
	DeleteMany(ctx context.Context, tenantID domain.TenantID, keys []uuid.UUID) (int64, error)
}

// Fields decodes a document's top-level JSON fields.
func Fields(doc any) (map[string]any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// NormalizeValue converts a filter value to its JSON-decoded form so it
// compares equal to a field produced by Fields.
func NormalizeValue(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

// MatchFields reports whether fields satisfy every filter.
func MatchFields(fields map[string]any, filters map[string]any) bool {
	for k, want := range filters {
		got, ok := fields[k]
		if !ok || !reflect.DeepEqual(got, NormalizeValue(want)) {
			return false
		}
	}
	return true
}

// Page applies offset and limit to an already filtered slice.
func Page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
