package analyzer

import (
	"math"

	Rt "github.com/Eztof/PID/types"
)

const (
	riseLow    = 0.1  // rise starts at 10% of span
	riseHigh   = 0.9  // and ends at 90% of span
	settleBand = 0.02 // ±2% of span around steady state
)

// Performance extracts step response metrics from an already smoothed Series.
// Every field is Unknown for an empty Series.
func Performance(pv Rt.Series) Rt.PerformanceMetrics {
	n := len(pv)
	if n == 0 {
		return Rt.PerformanceMetrics{
			SteadyState: Unknown(),
			Peak:        Unknown(),
			Trough:      Unknown(),
			RiseTime:    Unknown(),
			SettleTime:  Unknown(),
		}
	}

	// floor(n * 0.9) in integers, never past the last sample
	tailStart := n * 9 / 10
	steady := Stats(values(pv[tailStart:])).Avg

	peak, trough := pv[0].Value, pv[0].Value
	for _, s := range pv {
		if s.Value > peak {
			peak = s.Value
		}
		if s.Value < trough {
			trough = s.Value
		}
	}
	span := peak - trough

	return Rt.PerformanceMetrics{
		SteadyState: steady,
		Peak:        Known(peak),
		Trough:      Known(trough),
		RiseTime:    riseTime(pv, trough, span),
		SettleTime:  settleTime(pv, steady.Value, span),
	}
}

// riseTime walks forward once, t90 is searched from where t10 was found
func riseTime(pv Rt.Series, trough, span float64) Rt.Metric {
	if span == 0 {
		return Known(0)
	}

	lo := trough + riseLow*span
	hi := trough + riseHigh*span
	i10, i90 := -1, -1
	for j, s := range pv {
		if i10 < 0 && s.Value >= lo {
			i10 = j
		}
		if i10 >= 0 && s.Value >= hi {
			i90 = j
			break
		}
	}
	if i10 < 0 || i90 < 0 {
		return Unknown()
	}
	return Known(pv[i90].Timestamp.Sub(pv[i10].Timestamp).Seconds())
}

// settleTime finds the earliest index from the halfway point after which
// every sample stays in band. Scanning backwards for the last violation
// gives the same index as testing each candidate forward.
func settleTime(pv Rt.Series, steady, span float64) Rt.Metric {
	if span == 0 {
		return Known(0)
	}

	n := len(pv)
	band := settleBand * span
	k := n // one past the last violation
	for ; k > 0; k-- {
		if math.Abs(pv[k-1].Value-steady) > band {
			break
		}
	}

	// the search starts halfway through
	if half := n / 2; k < half {
		k = half
	}
	if k >= n {
		return Unknown()
	}
	return Known(pv[k].Timestamp.Sub(pv[0].Timestamp).Seconds())
}
