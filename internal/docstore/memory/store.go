// Package memory is the in-process document store backend.
package memory

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/google/uuid"

	"opsdesk/internal/docstore"
	"opsdesk/pkg/domain"
	"opsdesk/pkg/platform/sentinel"
)

type docKey struct {
	tenant domain.TenantID
	id     uuid.UUID
}

// Store keeps clones of documents in insertion order. A single mutex
// serializes writes, which gives Execute its atomicity.
type Store[T docstore.Entity[T]] struct {
	mu     sync.RWMutex
	schema docstore.Schema
	docs   map[docKey]T
	order  []docKey
}

func New[T docstore.Entity[T]](schema docstore.Schema) *Store[T] {
	return &Store[T]{
		schema: schema,
		docs:   make(map[docKey]T),
	}
}

func (s *Store[T]) Insert(_ context.Context, doc T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := docKey{tenant: doc.Tenant(), id: doc.Key()}
	if _, exists := s.docs[k]; exists {
		return fmt.Errorf("%s %s: %w", s.schema.Collection, k.id, sentinel.ErrAlreadyUsed)
	}
	if err := s.checkUnique(doc); err != nil {
		return err
	}
	s.docs[k] = doc.Clone()
	s.order = append(s.order, k)
	return nil
}

func (s *Store[T]) Get(_ context.Context, tenantID domain.TenantID, key uuid.UUID) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[docKey{tenant: tenantID, id: key}]
	if !ok {
		var zero T
		return zero, sentinel.ErrNotFound
	}
	return doc.Clone(), nil
}

func (s *Store[T]) List(_ context.Context, tenantID domain.TenantID, q docstore.Query) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(q, func(k docKey) bool { return k.tenant == tenantID })
}

func (s *Store[T]) ListAll(_ context.Context, q docstore.Query) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(q, func(docKey) bool { return true })
}

func (s *Store[T]) Execute(_ context.Context, tenantID domain.TenantID, key uuid.UUID, validate func(T) error, mutate func(T)) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	k := docKey{tenant: tenantID, id: key}
	current, ok := s.docs[k]
	if !ok {
		return zero, sentinel.ErrNotFound
	}
	working := current.Clone()
	if err := validate(working); err != nil {
		return zero, err
	}
	mutate(working)
	if err := s.checkUnique(working); err != nil {
		return zero, err
	}
	s.docs[k] = working.Clone()
	return working, nil
}

func (s *Store[T]) DeleteMany(_ context.Context, tenantID domain.TenantID, keys []uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for _, key := range keys {
		k := docKey{tenant: tenantID, id: key}
		if _, ok := s.docs[k]; !ok {
			continue
		}
		delete(s.docs, k)
		removed++
	}
	if removed > 0 {
		s.order = slices.DeleteFunc(s.order, func(k docKey) bool {
			_, ok := s.docs[k]
			return !ok
		})
	}
	return removed, nil
}

func (s *Store[T]) collect(q docstore.Query, include func(docKey) bool) ([]T, error) {
	var out []T
	for _, k := range s.order {
		if !include(k) {
			continue
		}
		doc := s.docs[k]
		if !q.IncludeDeleted && doc.IsDeleted() {
			continue
		}
		if len(q.Filters) > 0 {
			fields, err := docstore.Fields(doc)
			if err != nil {
				return nil, fmt.Errorf("decode %s: %w", s.schema.Collection, err)
			}
			if !docstore.MatchFields(fields, q.Filters) {
				continue
			}
		}
		out = append(out, doc.Clone())
	}
	return docstore.Page(out, q.Offset, q.Limit), nil
}

// checkUnique enforces schema.Unique among the tenant's live documents.
// Caller holds the write lock.
func (s *Store[T]) checkUnique(doc T) error {
	if len(s.schema.Unique) == 0 || doc.IsDeleted() {
		return nil
	}
	fields, err := docstore.Fields(doc)
	if err != nil {
		return fmt.Errorf("decode %s: %w", s.schema.Collection, err)
	}
	for k, other := range s.docs {
		if k.tenant != doc.Tenant() || k.id == doc.Key() || other.IsDeleted() {
			continue
		}
		otherFields, err := docstore.Fields(other)
		if err != nil {
			return fmt.Errorf("decode %s: %w", s.schema.Collection, err)
		}
		for _, field := range s.schema.Unique {
			v, ok := fields[field]
			if !ok || v == nil || v == "" {
				continue
			}
			if reflect.DeepEqual(v, otherFields[field]) {
				return fmt.Errorf("%s.%s: %w", s.schema.Collection, field, sentinel.ErrAlreadyUsed)
			}
		}
	}
	return nil
}
