//go:build integration

package counters_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsdesk/internal/counters"
	"opsdesk/pkg/domain"
	"opsdesk/pkg/testutil/containers"
)

func TestRedisCounterIsSharedAcrossClients(t *testing.T) {
	rc := containers.GetRedis(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))

	tenant := domain.NewTenantID()
	a := counters.NewRedis(rc.Cmdable())
	b := counters.NewRedis(rc.Cmdable())

	var wg sync.WaitGroup
	seen := make(chan int64, 20)
	for i := range 20 {
		c := a
		if i%2 == 1 {
			c = b
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := c.Next(ctx, tenant, counters.Invoices)
			assert.NoError(t, err)
			seen <- n
		}()
	}
	wg.Wait()
	close(seen)

	got := make(map[int64]bool)
	for n := range seen {
		got[n] = true
	}
	assert.Len(t, got, 20)
	for n := int64(1); n <= 20; n++ {
		assert.True(t, got[n], "missing %d", n)
	}

	other, err := a.Next(ctx, domain.NewTenantID(), counters.Invoices)
	require.NoError(t, err)
	assert.Equal(t, int64(1), other)
}
