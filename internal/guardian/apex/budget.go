package apex

import "sync"

// CostBudget is the process-wide pool the router escalates against. It is
// independent of any caller's privacy budget and never drops below zero.
type CostBudget struct {
	mu        sync.Mutex
	remaining float64
}

func NewCostBudget(total float64) *CostBudget {
	return &CostBudget{remaining: max(total, 0)}
}

func (b *CostBudget) Remaining() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}

// Spend deducts cost, flooring at zero, and returns what is left.
func (b *CostBudget) Spend(cost float64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cost > 0 {
		b.remaining = max(b.remaining-cost, 0)
	}
	return b.remaining
}
