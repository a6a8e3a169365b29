package budget

import (
	"math"
	"math/rand/v2"

	dErrors "nexus/pkg/domain-errors"
)

// AddLaplaceNoise returns a copy of values with Lap(0, 1/epsilon) noise added
// to each element, the Laplace mechanism for a sensitivity-1 query. A nil rng
// uses the global source.
func AddLaplaceNoise(values []float64, epsilon float64, rng *rand.Rand) ([]float64, error) {
	if !(epsilon > 0) || math.IsInf(epsilon, 0) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "epsilon must be positive")
	}
	uniform := rand.Float64
	if rng != nil {
		uniform = rng.Float64
	}

	scale := 1 / epsilon
	out := make([]float64, len(values))
	for i, v := range values {
		// inverse CDF with u in [-0.5, 0.5)
		u := uniform() - 0.5
		for u == -0.5 {
			u = uniform() - 0.5
		}
		out[i] = v - scale*sign(u)*math.Log(1-2*math.Abs(u))
	}
	return out, nil
}

func sign(x float64) float64 {
	if math.Signbit(x) {
		return -1
	}
	return 1
}
