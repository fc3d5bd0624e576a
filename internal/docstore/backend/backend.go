// Package backend selects the document store implementation named by
// DOCSTORE_DRIVER and hands out typed stores per collection.
package backend

import (
	"context"
	"database/sql"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"opsdesk/internal/docstore"
	"opsdesk/internal/docstore/memory"
	mongostore "opsdesk/internal/docstore/mongo"
	pgstore "opsdesk/internal/docstore/postgres"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Backend holds the connection shared by every collection.
type Backend struct {
	driver string
	pg     *sql.DB
	mongo  *mongo.Database
}

func Memory() *Backend { return &Backend{driver: DriverMemory} }

func Postgres(db *sql.DB) *Backend { return &Backend{driver: DriverPostgres, pg: db} }

func Mongo(db *mongo.Database) *Backend { return &Backend{driver: DriverMongo, mongo: db} }

func (b *Backend) Driver() string { return b.driver }

// Open returns the store for schema on b.
func Open[T docstore.Entity[T]](ctx context.Context, b *Backend, schema docstore.Schema) (docstore.Store[T], error) {
	switch b.driver {
	case DriverMemory:
		return memory.New[T](schema), nil
	case DriverPostgres:
		return pgstore.New[T](b.pg, schema), nil
	case DriverMongo:
		return mongostore.New[T](ctx, b.mongo, schema)
	default:
		return nil, fmt.Errorf("unknown docstore driver %q", b.driver)
	}
}

// MustOpen is Open for wiring code that cannot continue without the store.
func MustOpen[T docstore.Entity[T]](ctx context.Context, b *Backend, schema docstore.Schema) docstore.Store[T] {
	s, err := Open[T](ctx, b, schema)
	if err != nil {
		panic(err)
	}
	return s
}
