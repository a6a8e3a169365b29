package mirror

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks write-behind outcomes per operation kind.
type Metrics struct {
	// result: "ok", "failed", "dropped" (queue full), "skipped" (circuit open)
	Ops        *prometheus.CounterVec
	QueueDepth prometheus.Gauge
}

// NewMetrics registers mirror metrics on reg. A nil reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Ops: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_mirror_ops_total",
			Help: "Durable mirror write-behind operations by kind and result",
		}, []string{"kind", "result"}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "nexus_mirror_queue_depth",
			Help: "Pending write-behind operations",
		}),
	}
}

func (m *Metrics) observe(kind OpKind, result string) {
	if m != nil {
		m.Ops.WithLabelValues(string(kind), result).Inc()
	}
}

func (m *Metrics) setDepth(n int) {
	if m != nil {
		m.QueueDepth.Set(float64(n))
	}
}
