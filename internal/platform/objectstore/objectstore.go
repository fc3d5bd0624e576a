// Package objectstore stores document blobs in MinIO or in memory.
package objectstore

import (
	"context"
	"io"
)

// Store is the blob contract used by the documents module.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}
