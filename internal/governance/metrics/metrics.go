package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the privacy ledger, the policy engine
// and impact assessments.
type Metrics struct {
	// Epsilon consumed across all callers
	EpsilonConsumed prometheus.Counter

	// Consume refusals by reason: "insufficient", "invalid"
	ConsumeRefused *prometheus.CounterVec

	BudgetResets prometheus.Counter

	// Budget restores from the durable mirror: "hit", "miss", "error"
	MirrorRestores *prometheus.CounterVec

	// Policy decisions: "allowed", "denied"
	PolicyDecisions *prometheus.CounterVec

	// Policy violations by rule kind
	PolicyViolations *prometheus.CounterVec

	// Impact assessments by risk level
	Assessments *prometheus.CounterVec
}

// New creates governance metrics registered on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EpsilonConsumed: f.NewCounter(prometheus.CounterOpts{
			Name: "nexus_privacy_epsilon_consumed_total",
			Help: "Privacy budget consumed across all callers",
		}),
		ConsumeRefused: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_privacy_consume_refused_total",
			Help: "Refused privacy budget consumptions by reason",
		}, []string{"reason"}),
		BudgetResets: f.NewCounter(prometheus.CounterOpts{
			Name: "nexus_privacy_budget_resets_total",
			Help: "Privacy budget resets",
		}),
		MirrorRestores: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_privacy_mirror_restores_total",
			Help: "Budget lookups against the durable mirror by result",
		}, []string{"result"}),
		PolicyDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_policy_decisions_total",
			Help: "Policy evaluations by result",
		}, []string{"result"}),
		PolicyViolations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_policy_violations_total",
			Help: "Policy violations by rule kind",
		}, []string{"rule"}),
		Assessments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_dpia_reports_total",
			Help: "Generated impact assessments by risk level",
		}, []string{"risk_level"}),
	}
}

func (m *Metrics) AddConsumed(epsilon float64) {
	if m != nil {
		m.EpsilonConsumed.Add(epsilon)
	}
}

func (m *Metrics) IncRefused(reason string) {
	if m != nil {
		m.ConsumeRefused.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IncReset() {
	if m != nil {
		m.BudgetResets.Inc()
	}
}

func (m *Metrics) IncRestore(result string) {
	if m != nil {
		m.MirrorRestores.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncDecision(allowed bool) {
	if m == nil {
		return
	}
	result := "denied"
	if allowed {
		result = "allowed"
	}
	m.PolicyDecisions.WithLabelValues(result).Inc()
}

func (m *Metrics) IncViolation(rule string) {
	if m != nil {
		m.PolicyViolations.WithLabelValues(rule).Inc()
	}
}

func (m *Metrics) IncAssessment(riskLevel string) {
	if m != nil {
		m.Assessments.WithLabelValues(riskLevel).Inc()
	}
}
