package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the guardian detectors and router.
type Metrics struct {
	// Detector votes by method and vote: "suspicious", "clear", "failed"
	DetectorVotes *prometheus.CounterVec

	// Detector latencies by method
	DetectorLatency *prometheus.HistogramVec

	// Consensus verdicts: "pass", "block"
	SentinelVerdicts *prometheus.CounterVec

	// Risk tiers assigned by the classifier, plus classifier failures
	RiskTiers        *prometheus.CounterVec
	RiskScoreFailure prometheus.Counter

	// Model selections by model and branch
	ModelRouted *prometheus.CounterVec

	// Tool-call verdicts: "ALLOW", "DENY"
	ToolVerdicts *prometheus.CounterVec
}

// New creates guardian metrics registered on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DetectorVotes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_sentinel_detector_votes_total",
			Help: "Injection detector votes by method and vote",
		}, []string{"method", "vote"}),

		DetectorLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nexus_sentinel_detector_duration_seconds",
			Help:    "Duration of each injection detector",
			Buckets: []float64{0.0005, 0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method"}),

		SentinelVerdicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_sentinel_verdicts_total",
			Help: "Injection consensus verdicts",
		}, []string{"verdict"}),

		RiskTiers: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_mars_risk_tiers_total",
			Help: "Risk tiers assigned by the classifier",
		}, []string{"tier"}),

		RiskScoreFailure: f.NewCounter(prometheus.CounterOpts{
			Name: "nexus_mars_failures_total",
			Help: "Classifier calls that fell back to the medium-risk default",
		}),

		ModelRouted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_apex_routed_total",
			Help: "Model routing decisions by model and branch",
		}, []string{"model", "branch"}),

		ToolVerdicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_vigil_verdicts_total",
			Help: "Tool-call validation verdicts",
		}, []string{"verdict"}),
	}
}

func (m *Metrics) ObserveVote(method, vote string, d time.Duration) {
	if m != nil {
		m.DetectorVotes.WithLabelValues(method, vote).Inc()
		m.DetectorLatency.WithLabelValues(method).Observe(d.Seconds())
	}
}

func (m *Metrics) IncVerdict(safe bool) {
	if m == nil {
		return
	}
	if safe {
		m.SentinelVerdicts.WithLabelValues("pass").Inc()
		return
	}
	m.SentinelVerdicts.WithLabelValues("block").Inc()
}

func (m *Metrics) IncRiskTier(tier int) {
	if m != nil {
		m.RiskTiers.WithLabelValues(strconv.Itoa(tier)).Inc()
	}
}

func (m *Metrics) IncRiskFailure() {
	if m != nil {
		m.RiskScoreFailure.Inc()
	}
}

func (m *Metrics) IncRouted(model, branch string) {
	if m != nil {
		m.ModelRouted.WithLabelValues(model, branch).Inc()
	}
}

func (m *Metrics) IncToolVerdict(verdict string) {
	if m != nil {
		m.ToolVerdicts.WithLabelValues(verdict).Inc()
	}
}
