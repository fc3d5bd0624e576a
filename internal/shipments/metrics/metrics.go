package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers shipment lifecycle and the SLA sweep.
type Metrics struct {
	ShipmentsCreated  prometheus.Counter
	StatusTransitions *prometheus.CounterVec
	SLAChanges        *prometheus.CounterVec
	SLALastSweep      *prometheus.GaugeVec
	SweepDuration     prometheus.Histogram
	SweepErrors       prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ShipmentsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "opsdesk_shipments_created_total",
			Help: "Total number of shipments created",
		}),
		StatusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdesk_shipment_status_transitions_total",
			Help: "Shipment status changes by target status",
		}, []string{"to"}),
		SLAChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "opsdesk_shipment_sla_changes_total",
			Help: "SLA classification changes written by the sweep, by new status",
		}, []string{"status"}),
		SLALastSweep: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "opsdesk_shipment_sla_last_sweep",
			Help: "Shipments per SLA status seen by the most recent sweep",
		}, []string{"status"}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "opsdesk_shipment_sla_sweep_duration_seconds",
			Help:    "Duration of SLA sweeps",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		SweepErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "opsdesk_shipment_sla_sweep_errors_total",
			Help: "Shipments the SLA sweep failed to update",
		}),
	}
}

func (m *Metrics) IncrementCreated() {
	if m == nil {
		return
	}
	m.ShipmentsCreated.Inc()
}

func (m *Metrics) IncrementTransition(to string) {
	if m == nil {
		return
	}
	m.StatusTransitions.WithLabelValues(to).Inc()
}

func (m *Metrics) IncrementSLAChange(status string) {
	if m == nil {
		return
	}
	m.SLAChanges.WithLabelValues(status).Inc()
}

// ObserveSweep records a finished sweep. Call with time.Now() taken at the start.
func (m *Metrics) ObserveSweep(start time.Time, onTime, warnings, overdue, errors int) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(time.Since(start).Seconds())
	m.SLALastSweep.WithLabelValues("on_time").Set(float64(onTime))
	m.SLALastSweep.WithLabelValues("warning").Set(float64(warnings))
	m.SLALastSweep.WithLabelValues("overdue").Set(float64(overdue))
	m.SweepErrors.Add(float64(errors))
}
