// Package signals derives the five normalized [0,1] signals from a canonical
// platform record. Every function here is pure.
package signals

import "math"

// Tiered normalization reaches this value at the "good" threshold.
const goodTierValue = 0.7

// Clamp01 limits x to [0,1]. NaN maps to 0.
func Clamp01(x float64) float64 {
	if math.IsNaN(x) || x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}
	return x
}

// LogScale maps x onto [0,1] as ln(x+1)/ln(base+1).
func LogScale(x, base float64) float64 {
	if math.IsNaN(x) || x <= 0 || base <= 0 {
		return 0
	}
	return Clamp01(math.Log(x+1) / math.Log(base+1))
}

// Linear maps x from [lo,hi] onto [0,1].
func Linear(x, lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	return Clamp01((x - lo) / (hi - lo))
}

// Tiered ramps linearly from 0 to 0.7 below good, from 0.7 to 1.0 between
// good and excellent, and saturates at excellent.
func Tiered(x, good, excellent float64) float64 {
	switch {
	case math.IsNaN(x) || x <= 0:
		return 0
	case x >= excellent:
		return 1
	case x < good:
		return Clamp01(goodTierValue * x / good)
	default:
		return Clamp01(goodTierValue + (1-goodTierValue)*(x-good)/(excellent-good))
	}
}
