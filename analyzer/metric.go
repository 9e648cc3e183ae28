package analyzer

import (
	"math"

	Rt "github.com/Eztof/PID/types"
)

// Known wraps a computed value
func Known(v float64) Rt.Metric {
	return Rt.Metric{Value: v, Valid: true}
}

// Unknown is the metric that could not be computed
func Unknown() Rt.Metric {
	return Rt.Metric{}
}

// FloatPrecise rounds f to p decimal places
func FloatPrecise(f float64, p int) float64 {
	scale := math.Pow(10, float64(p))
	return roundHalfUp(f*scale) / scale
}

// roundHalfUp rounds .5 toward +Inf, so -2.5 becomes -2
func roundHalfUp(f float64) float64 {
	return math.Floor(f + 0.5)
}

// values pulls the readings out of a Series
func values(series Rt.Series) []float64 {
	out := make([]float64, len(series))
	for i, s := range series {
		out[i] = s.Value
	}
	return out
}
