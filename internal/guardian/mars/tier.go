package mars

// Risk tiers. A lower number is more dangerous.
const (
	TierCritical = 0
	TierHigh     = 1
	TierMedium   = 2
	TierLow      = 3
)

// Risk levels named by tier.
const (
	LevelCritical = "CRITICAL"
	LevelHigh     = "HIGH"
	LevelMedium   = "MEDIUM"
	LevelLow      = "LOW"
)

// ClassifyTier maps a score in [0,1] to a tier. Intervals are closed below and
// open above, except the top one which is closed on both ends:
//
//	[0.95, 1.00] -> 0
//	[0.90, 0.95) -> 1
//	[0.85, 0.90) -> 2
//	below 0.85   -> 3
func ClassifyTier(score float64) int {
	switch {
	case score >= 0.95:
		return TierCritical
	case score >= 0.90:
		return TierHigh
	case score >= 0.85:
		return TierMedium
	default:
		return TierLow
	}
}

// RiskLevel names a tier. The second result is false for tiers outside 0..3.
func RiskLevel(tier int) (string, bool) {
	switch tier {
	case TierCritical:
		return LevelCritical, true
	case TierHigh:
		return LevelHigh, true
	case TierMedium:
		return LevelMedium, true
	case TierLow:
		return LevelLow, true
	default:
		return "UNKNOWN", false
	}
}
