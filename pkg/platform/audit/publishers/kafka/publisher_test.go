package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"opsdesk/pkg/domain"
	audit "opsdesk/pkg/platform/audit"
)

type fakeProducer struct {
	mu      sync.Mutex
	records []*kgo.Record
	fail    bool
	calls   int
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		if f.fail {
			results = append(results, kgo.ProduceResult{Record: r, Err: errors.New("broker unavailable")})
			continue
		}
		f.records = append(f.records, r)
		results = append(results, kgo.ProduceResult{Record: r})
	}
	return results
}

func TestPublisherFlushesBatches(t *testing.T) {
	ctx := context.Background()
	producer := &fakeProducer{}
	metrics := NewMetrics(prometheus.NewRegistry())
	pub := New(producer, "audit", WithBatchSize(2), WithMetrics(metrics))

	tenant := domain.NewTenantID()
	for range 5 {
		require.NoError(t, pub.Emit(ctx, audit.Event{TenantID: tenant, Action: "project.created"}))
	}
	pub.Flush(ctx)

	assert.Equal(t, 0, pub.Pending())
	require.Len(t, producer.records, 5)
	assert.Equal(t, 3, producer.calls)
	assert.Equal(t, tenant.String(), string(producer.records[0].Key))
	assert.Equal(t, "audit", producer.records[0].Topic)

	var decoded audit.Event
	require.NoError(t, json.Unmarshal(producer.records[0].Value, &decoded))
	assert.Equal(t, "project.created", decoded.Action)
	assert.Equal(t, float64(5), testutil.ToFloat64(metrics.Published))
}

func TestPublisherRequeuesOnFailureAndProbesWhenOpen(t *testing.T) {
	ctx := context.Background()
	producer := &fakeProducer{fail: true}
	pub := New(producer, "audit", WithBatchSize(10))

	require.NoError(t, pub.Emit(ctx, audit.Event{Action: "a"}))
	require.NoError(t, pub.Emit(ctx, audit.Event{Action: "b"}))

	for range 3 {
		pub.Flush(ctx)
	}
	assert.Equal(t, 2, pub.Pending())
	assert.True(t, pub.breaker.IsOpen())

	producer.fail = false
	pub.Flush(ctx)
	assert.Equal(t, 0, pub.Pending())
	assert.False(t, pub.breaker.IsOpen())
	assert.Len(t, producer.records, 2)
}

func TestEmitRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pub := New(&fakeProducer{}, "audit")
	assert.ErrorIs(t, pub.Emit(ctx, audit.Event{}), context.Canceled)
}

func TestRingBufferDropsOldest(t *testing.T) {
	b := NewRingBuffer(2)
	assert.False(t, b.Enqueue(audit.Event{Action: "1"}))
	assert.False(t, b.Enqueue(audit.Event{Action: "2"}))
	assert.True(t, b.Enqueue(audit.Event{Action: "3"}))

	batch := b.DequeueBatch(10)
	require.Len(t, batch, 2)
	assert.Equal(t, "2", batch[0].Action)
	assert.Equal(t, "3", batch[1].Action)
	assert.Equal(t, int64(1), b.Dropped())
	assert.Nil(t, b.DequeueBatch(1))
}
