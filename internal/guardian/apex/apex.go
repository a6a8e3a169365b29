// Package apex picks a model tier from detector confidence and the remaining
// cost budget.
package apex

import (
	"fmt"

	"nexus/internal/guardian/metrics"
)

// Cost estimates per selection, in relative units.
const (
	SmallModelCost = 0.1
	LargeModelCost = 0.5
)

// Routing branches, exposed for metrics and audit details.
const (
	BranchConfident       = "confident"
	BranchEscalated       = "escalated"
	BranchBudgetExhausted = "budget_exhausted"
)

// Decision is the router output.
type Decision struct {
	ModelSelected string  `json:"model_selected"`
	Confidence    float64 `json:"confidence"`
	CostEstimate  float64 `json:"cost_estimate"`
	Reason        string  `json:"reason"`
	Branch        string  `json:"-"`
}

// Router is a pure decision function over two configured models.
type Router struct {
	small     string
	large     string
	threshold float64
	metrics   *metrics.Metrics
}

func NewRouter(small, large string, threshold float64, m *metrics.Metrics) *Router {
	return &Router{small: small, large: large, threshold: threshold, metrics: m}
}

// Select routes confident requests to the small model, escalates the rest to
// the large model while cost budget remains, and falls back to the small model
// once it is spent.
func (r *Router) Select(confidence, budgetRemaining float64) Decision {
	var d Decision
	switch {
	case confidence >= r.threshold:
		d = Decision{
			ModelSelected: r.small,
			CostEstimate:  SmallModelCost,
			Branch:        BranchConfident,
			Reason: fmt.Sprintf("Confidence %.2f >= threshold %.2f; using cost-efficient small model.",
				confidence, r.threshold),
		}
	case budgetRemaining > 0:
		d = Decision{
			ModelSelected: r.large,
			CostEstimate:  LargeModelCost,
			Branch:        BranchEscalated,
			Reason: fmt.Sprintf("Confidence %.2f < threshold %.2f; escalating to large model (budget remaining: %.2f).",
				confidence, r.threshold, budgetRemaining),
		}
	default:
		d = Decision{
			ModelSelected: r.small,
			CostEstimate:  SmallModelCost,
			Branch:        BranchBudgetExhausted,
			Reason:        fmt.Sprintf("Budget exhausted; falling back to small model despite low confidence (%.2f).", confidence),
		}
	}
	d.Confidence = confidence
	r.metrics.IncRouted(d.ModelSelected, d.Branch)
	return d
}

// Threshold returns the configured confidence threshold.
func (r *Router) Threshold() float64 { return r.threshold }
