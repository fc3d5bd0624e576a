package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Mutations counts successful writes per business module and action.
type Mutations struct {
	Total *prometheus.CounterVec
}

func NewMutations(reg prometheus.Registerer) *Mutations {
	return &Mutations{
		Total: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "opsdesk_record_mutations_total",
			Help: "Successful record mutations by module and action",
		}, []string{"module", "action"}),
	}
}

// Inc is safe on a nil receiver so services can run without metrics.
func (m *Mutations) Inc(module, action string) {
	if m == nil {
		return
	}
	m.Total.WithLabelValues(module, action).Inc()
}
