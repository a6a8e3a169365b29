package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the audit chain.
type Metrics struct {
	Appends       *prometheus.CounterVec
	Verifications *prometheus.CounterVec
	MirrorDropped prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Appends: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_audit_appends_total",
			Help: "Audit entries appended, by event category",
		}, []string{"category"}),
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_audit_verifications_total",
			Help: "Hash chain verifications by outcome",
		}, []string{"outcome"}),
		MirrorDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "nexus_audit_mirror_dropped_total",
			Help: "Audit entries that could not be queued for the durable mirror",
		}),
	}
}

func (m *Metrics) IncAppend(category EventCategory) {
	if m == nil {
		return
	}
	m.Appends.WithLabelValues(string(category)).Inc()
}

func (m *Metrics) IncVerification(intact bool) {
	if m == nil {
		return
	}
	outcome := "intact"
	if !intact {
		outcome = "broken"
	}
	m.Verifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncMirrorDropped() {
	if m == nil {
		return
	}
	m.MirrorDropped.Inc()
}
