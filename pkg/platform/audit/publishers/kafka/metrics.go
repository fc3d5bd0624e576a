package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Published prometheus.Counter
	Failures  prometheus.Counter
	Dropped   prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Published: f.NewCounter(prometheus.CounterOpts{
			Name: "opsdesk_audit_forwarded_total",
			Help: "Audit events forwarded to Kafka",
		}),
		Failures: f.NewCounter(prometheus.CounterOpts{
			Name: "opsdesk_audit_forward_failures_total",
			Help: "Failed Kafka produce batches",
		}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "opsdesk_audit_forward_dropped_total",
			Help: "Audit events dropped because the forward buffer was full",
		}),
	}
}
