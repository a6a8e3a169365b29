package apex

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"nexus/internal/guardian/metrics"
)

func TestRouter_Select(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	r := NewRouter("small-7b", "large-12b", 0.85, m)

	tests := []struct {
		name       string
		confidence float64
		budget     float64
		wantModel  string
		wantCost   float64
		wantBranch string
		wantReason string
	}{
		{
			"confident", 0.9, 10, "small-7b", 0.1, BranchConfident,
			"Confidence 0.90 >= threshold 0.85; using cost-efficient small model.",
		},
		{
			"exactly at threshold", 0.85, 0, "small-7b", 0.1, BranchConfident,
			"Confidence 0.85 >= threshold 0.85; using cost-efficient small model.",
		},
		{
			"low confidence with budget", 0.7, 10, "large-12b", 0.5, BranchEscalated,
			"Confidence 0.70 < threshold 0.85; escalating to large model (budget remaining: 10.00).",
		},
		{
			"low confidence without budget", 0.7, 0, "small-7b", 0.1, BranchBudgetExhausted,
			"Budget exhausted; falling back to small model despite low confidence (0.70).",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := r.Select(tt.confidence, tt.budget)
			assert.Equal(t, tt.wantModel, d.ModelSelected)
			assert.Equal(t, tt.wantCost, d.CostEstimate)
			assert.Equal(t, tt.confidence, d.Confidence)
			assert.Equal(t, tt.wantBranch, d.Branch)
			assert.Equal(t, tt.wantReason, d.Reason)
		})
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelRouted.WithLabelValues("large-12b", BranchEscalated)))
}

func TestRouter_NilMetrics(t *testing.T) {
	d := NewRouter("s", "l", 0.85, nil).Select(0.1, -1)
	assert.Equal(t, "s", d.ModelSelected)
}

func TestCostBudget(t *testing.T) {
	b := NewCostBudget(1)
	assert.InDelta(t, 0.5, b.Spend(LargeModelCost), 1e-9)
	assert.InDelta(t, 0.4, b.Spend(SmallModelCost), 1e-9)
	assert.Equal(t, 0.0, b.Spend(5))
	assert.Equal(t, 0.0, b.Spend(-3), "negative cost never refills")
	assert.Equal(t, 0.0, NewCostBudget(-2).Remaining())
}

func TestCostBudget_Concurrent(t *testing.T) {
	b := NewCostBudget(100)
	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Spend(0.5)
		}()
	}
	wg.Wait()
	assert.InDelta(t, 50, b.Remaining(), 1e-9)
}
