package utils

import (
	"math"
	"math/rand"
)

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// SampleRandomFloatRange samples a float uniformly from [lo, hi) using the given rand.Rand.
func SampleRandomFloatRange(lo, hi float64, r *rand.Rand) float64 {
	return lo + r.Float64()*(hi-lo)
}
