// Package counters issues monotonic per-tenant sequence numbers used for
// human-readable document numbers (INV-000001, Q-000001).
package counters

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"opsdesk/pkg/domain"
)

const (
	Invoices = "invoices"
	Quotes   = "quotes"
)

// Counter returns the next value of a named sequence. The first value is 1.
type Counter interface {
	Next(ctx context.Context, tenantID domain.TenantID, name string) (int64, error)
}

// Format renders n as PREFIX-000001.
func Format(prefix string, n int64) string {
	return fmt.Sprintf("%s-%06d", prefix, n)
}

// Memory is a process-local Counter.
type Memory struct {
	mu     sync.Mutex
	values map[string]int64
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]int64)}
}

func (m *Memory) Next(_ context.Context, tenantID domain.TenantID, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(tenantID, name)
	m.values[k]++
	return m.values[k], nil
}

// Redis keeps sequences in redis with INCR so every replica shares them.
type Redis struct {
	client redis.Cmdable
}

func NewRedis(client redis.Cmdable) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Next(ctx context.Context, tenantID domain.TenantID, name string) (int64, error) {
	n, err := r.client.Incr(ctx, key(tenantID, name)).Result()
	if err != nil {
		return 0, fmt.Errorf("incr counter %s: %w", name, err)
	}
	return n, nil
}

func key(tenantID domain.TenantID, name string) string {
	return "opsdesk:counter:" + tenantID.String() + ":" + name
}
