package regler

import Rt "github.com/Eztof/PID/types"

// DefaultDownsample is the point budget of a chart
const DefaultDownsample = 3000

// Downsample keeps every ceil(n/max)-th sample, starting with the first.
// A series within budget comes back as is. max <= 0 uses DefaultDownsample.
func Downsample(series Rt.Series, max int) Rt.Series {
	if max <= 0 {
		max = DefaultDownsample
	}
	n := len(series)
	if n <= max {
		return series
	}

	stride := (n + max - 1) / max
	out := make(Rt.Series, 0, (n+stride-1)/stride)
	for i := 0; i < n; i += stride {
		out = append(out, series[i])
	}
	return out
}
