// Package mongo stores each collection in its own MongoDB collection. The
// document body is kept twice: as the exact JSON encoding for decoding and as
// a BSON sub-document for filtering.
package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"opsdesk/internal/docstore"
	"opsdesk/pkg/domain"
	"opsdesk/pkg/platform/sentinel"
)

const maxExecuteAttempts = 50

type record struct {
	ID      string         `bson:"_id"`
	Tenant  string         `bson:"tenant"`
	Deleted bool           `bson:"deleted"`
	Seq     int64          `bson:"seq"`
	Version int64          `bson:"version"`
	Data    string         `bson:"data"`
	Doc     map[string]any `bson:"doc"`
}

type Store[T docstore.Entity[T]] struct {
	coll   *mongo.Collection
	schema docstore.Schema
}

// New returns a store bound to db.<schema.Collection> and ensures its indexes.
func New[T docstore.Entity[T]](ctx context.Context, db *mongo.Database, schema docstore.Schema) (*Store[T], error) {
	s := &Store[T]{coll: db.Collection(schema.Collection), schema: schema}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store[T]) ensureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "tenant", Value: 1}, {Key: "deleted", Value: 1}, {Key: "seq", Value: 1}}},
	}
	for _, field := range s.schema.Indexes {
		models = append(models, mongo.IndexModel{
			Keys: bson.D{{Key: "tenant", Value: 1}, {Key: "doc." + field, Value: 1}},
		})
	}
	for _, field := range s.schema.Unique {
		models = append(models, mongo.IndexModel{
			Keys: bson.D{{Key: "tenant", Value: 1}, {Key: "doc." + field, Value: 1}},
			Options: options.Index().
				SetName("uniq_" + field).
				SetUnique(true).
				SetPartialFilterExpression(bson.D{
					{Key: "deleted", Value: false},
					{Key: "doc." + field, Value: bson.D{{Key: "$gt", Value: ""}}},
				}),
		})
	}
	if _, err := s.coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("create %s indexes: %w", s.schema.Collection, err)
	}
	return nil
}

func (s *Store[T]) Insert(ctx context.Context, doc T) error {
	rec, err := s.encode(doc)
	if err != nil {
		return err
	}
	rec.Seq = time.Now().UnixNano()
	if _, err := s.coll.InsertOne(ctx, rec); err != nil {
		return translate(err, "insert "+s.schema.Collection)
	}
	return nil
}

func (s *Store[T]) Get(ctx context.Context, tenantID domain.TenantID, key uuid.UUID) (T, error) {
	doc, _, err := s.load(ctx, tenantID, key)
	return doc, err
}

func (s *Store[T]) List(ctx context.Context, tenantID domain.TenantID, q docstore.Query) ([]T, error) {
	return s.find(ctx, &tenantID, q)
}

func (s *Store[T]) ListAll(ctx context.Context, q docstore.Query) ([]T, error) {
	return s.find(ctx, nil, q)
}

// Execute applies mutate under optimistic concurrency: the replace only
// matches the version that was read, and a lost race reloads and retries.
func (s *Store[T]) Execute(ctx context.Context, tenantID domain.TenantID, key uuid.UUID, validate func(T) error, mutate func(T)) (T, error) {
	var zero T
	for attempt := 0; attempt < maxExecuteAttempts; attempt++ {
		doc, current, err := s.load(ctx, tenantID, key)
		if err != nil {
			return zero, err
		}
		if err := validate(doc); err != nil {
			return zero, err
		}
		mutate(doc)

		rec, err := s.encode(doc)
		if err != nil {
			return zero, err
		}
		rec.Seq = current.Seq
		rec.Version = current.Version + 1

		res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": current.ID, "version": current.Version}, rec)
		if err != nil {
			return zero, translate(err, "update "+s.schema.Collection)
		}
		if res.MatchedCount == 1 {
			return doc, nil
		}
		if err := backoff(ctx, attempt); err != nil {
			return zero, err
		}
	}
	return zero, fmt.Errorf("update %s: %w", s.schema.Collection, sentinel.ErrConflict)
}

func (s *Store[T]) DeleteMany(ctx context.Context, tenantID domain.TenantID, keys []uuid.UUID) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	ids := make([]string, len(keys))
	for i, k := range keys {
		ids[i] = k.String()
	}
	res, err := s.coll.DeleteMany(ctx, bson.M{"tenant": tenantID.String(), "_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", s.schema.Collection, err)
	}
	return res.DeletedCount, nil
}

func (s *Store[T]) load(ctx context.Context, tenantID domain.TenantID, key uuid.UUID) (T, record, error) {
	var zero T
	var rec record
	err := s.coll.FindOne(ctx, bson.M{"_id": key.String(), "tenant": tenantID.String()}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return zero, rec, sentinel.ErrNotFound
	}
	if err != nil {
		return zero, rec, fmt.Errorf("load %s: %w", s.schema.Collection, err)
	}
	doc, err := s.decode(rec)
	if err != nil {
		return zero, rec, err
	}
	return doc, rec, nil
}

func (s *Store[T]) find(ctx context.Context, tenantID *domain.TenantID, q docstore.Query) ([]T, error) {
	filter := bson.M{}
	if tenantID != nil {
		filter["tenant"] = tenantID.String()
	}
	if !q.IncludeDeleted {
		filter["deleted"] = false
	}
	for field, value := range q.Filters {
		filter["doc."+field] = docstore.NormalizeValue(value)
	}

	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}, {Key: "_id", Value: 1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	if q.Offset > 0 {
		opts.SetSkip(int64(q.Offset))
	}

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.schema.Collection, err)
	}
	defer cur.Close(ctx)

	var out []T
	for cur.Next(ctx) {
		var rec record
		if err := cur.Decode(&rec); err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.schema.Collection, err)
		}
		doc, err := s.decode(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", s.schema.Collection, err)
	}
	return out, nil
}

func (s *Store[T]) encode(doc T) (record, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return record{}, fmt.Errorf("marshal %s: %w", s.schema.Collection, err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return record{}, fmt.Errorf("marshal %s: %w", s.schema.Collection, err)
	}
	return record{
		ID:      doc.Key().String(),
		Tenant:  doc.Tenant().String(),
		Deleted: doc.IsDeleted(),
		Data:    string(data),
		Doc:     fields,
	}, nil
}

func (s *Store[T]) decode(rec record) (T, error) {
	var doc T
	if err := json.Unmarshal([]byte(rec.Data), &doc); err != nil {
		var zero T
		return zero, fmt.Errorf("decode %s: %w", s.schema.Collection, err)
	}
	return doc, nil
}

func backoff(ctx context.Context, attempt int) error {
	delay := time.Duration(attempt+1) * 2 * time.Millisecond
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func translate(err error, op string) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w", op, sentinel.ErrAlreadyUsed)
	}
	return fmt.Errorf("%s: %w", op, err)
}
