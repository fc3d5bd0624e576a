// Package kafka forwards audit events to a Kafka topic for downstream
// consumers. Delivery is best-effort: Emit never blocks on the broker.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "opsdesk/pkg/platform/audit"
	"opsdesk/pkg/platform/circuit"
)

// Producer is the subset of *kgo.Client used by the publisher.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Publisher buffers events and flushes them to Kafka from Run.
type Publisher struct {
	producer      Producer
	topic         string
	buffer        *RingBuffer
	breaker       *circuit.Breaker
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	metrics       *Metrics
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

func WithBufferSize(n int) Option {
	return func(p *Publisher) { p.buffer = NewRingBuffer(n) }
}

func WithBatchSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.flushInterval = d
		}
	}
}

func New(producer Producer, topic string, opts ...Option) *Publisher {
	p := &Publisher{
		producer:      producer,
		topic:         topic,
		buffer:        NewRingBuffer(10000),
		breaker:       circuit.New("audit-kafka", circuit.WithFailureThreshold(3), circuit.WithSuccessThreshold(1)),
		batchSize:     100,
		flushInterval: time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit queues the event. It only fails on context cancellation.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.buffer.Enqueue(event) && p.metrics != nil {
		p.metrics.Dropped.Inc()
	}
	return nil
}

// Run flushes the buffer every flush interval until ctx is cancelled,
// then makes a final flush attempt.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			p.Flush(drainCtx)
			cancel()
			return nil
		case <-ticker.C:
			p.Flush(ctx)
		}
	}
}

// Flush sends buffered events. While the breaker is open only a single
// event is sent as a probe.
func (p *Publisher) Flush(ctx context.Context) {
	for p.buffer.Len() > 0 {
		n := p.batchSize
		if p.breaker.IsOpen() {
			n = 1
		}
		batch := p.buffer.DequeueBatch(n)
		if err := p.send(ctx, batch); err != nil {
			p.requeue(batch)
			_, change := p.breaker.RecordFailure()
			if p.metrics != nil {
				p.metrics.Failures.Inc()
			}
			if p.logger != nil {
				p.logger.WarnContext(ctx, "audit forward failed",
					"topic", p.topic,
					"batch", len(batch),
					"breaker_opened", change.Opened,
					"error", err,
				)
			}
			return
		}
		_, change := p.breaker.RecordSuccess()
		if change.Closed && p.logger != nil {
			p.logger.InfoContext(ctx, "audit forwarder recovered", "topic", p.topic)
		}
		if p.metrics != nil {
			p.metrics.Published.Add(float64(len(batch)))
		}
	}
}

func (p *Publisher) requeue(batch []audit.Event) {
	for _, e := range batch {
		if p.buffer.Enqueue(e) && p.metrics != nil {
			p.metrics.Dropped.Inc()
		}
	}
}

func (p *Publisher) send(ctx context.Context, batch []audit.Event) error {
	records := make([]*kgo.Record, 0, len(batch))
	for _, e := range batch {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal audit event: %w", err)
		}
		records = append(records, &kgo.Record{
			Topic: p.topic,
			Key:   []byte(e.TenantID.String()),
			Value: payload,
			Headers: []kgo.RecordHeader{
				{Key: "action", Value: []byte(e.Action)},
				{Key: "category", Value: []byte(e.Category)},
			},
		})
	}
	return p.producer.ProduceSync(ctx, records...).FirstErr()
}

// Pending returns the number of events waiting to be sent.
func (p *Publisher) Pending() int {
	return p.buffer.Len()
}
