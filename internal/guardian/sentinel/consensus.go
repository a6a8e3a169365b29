package sentinel

import (
	"fmt"
	"strings"
)

// DefaultThreshold is the number of agreeing detectors that blocks a request.
const DefaultThreshold = 2

// Result is the combined verdict over all detectors.
type Result struct {
	IsSafe     bool    `json:"is_safe"`
	Confidence float64 `json:"confidence"`
	// MethodResults maps method name to whether that method judged the input safe.
	MethodResults map[string]bool `json:"method_results"`
	Consensus     string          `json:"consensus"`
	// FailedMethods lists detectors that could not judge and voted safe.
	FailedMethods []string `json:"failed_methods,omitempty"`
}

// Consensus combines votes. The request is blocked when at least threshold
// votes count as suspicious. Confidence is 1-0.3n (clamped) when safe and n/3
// when blocked. Votes are reported in the order given.
func Consensus(votes []Vote, threshold int) Result {
	res := Result{MethodResults: make(map[string]bool, len(votes))}

	var flagged []string
	for _, v := range votes {
		suspicious := v.CountsAsSuspicious()
		res.MethodResults[v.Method] = !suspicious
		if suspicious {
			flagged = append(flagged, v.Method)
		}
		if v.Err != nil {
			res.FailedMethods = append(res.FailedMethods, v.Method)
		}
	}

	n := len(flagged)
	res.IsSafe = n < threshold
	if res.IsSafe {
		res.Confidence = clamp01(1 - 0.3*float64(n))
		res.Consensus = "PASS: input cleared by consensus."
		return res
	}
	res.Confidence = clamp01(float64(n) / 3)
	res.Consensus = fmt.Sprintf("BLOCK: flagged by %s (%d/3 methods).", strings.Join(flagged, ", "), n)
	return res
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
