package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the request-level Prometheus metrics for the pipeline.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestsBlocked *prometheus.CounterVec
	StageLatency    *prometheus.HistogramVec
}

// New creates and registers pipeline metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_requests_total",
			Help: "Requests processed by the trust pipeline, by outcome",
		}, []string{"outcome"}),
		RequestsBlocked: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_requests_blocked_total",
			Help: "Requests refused by the trust pipeline, by refusing stage",
		}, []string{"stage"}),
		StageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nexus_stage_duration_seconds",
			Help:    "Latency of each trust pipeline stage",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
	}
}

func (m *Metrics) IncAllowed() {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues("allowed").Inc()
}

func (m *Metrics) IncBlocked(stage string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues("blocked").Inc()
	m.RequestsBlocked.WithLabelValues(stage).Inc()
}

func (m *Metrics) IncFailed() {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues("failed").Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageLatency.WithLabelValues(stage).Observe(d.Seconds())
}

// Handler exposes everything registered on g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
