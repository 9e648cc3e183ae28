package analyzer

import Rt "github.com/Eztof/PID/types"

// Stats returns min, max and average in a single pass.
// All three are Unknown for an empty slice.
func Stats(data []float64) Rt.Stats {
	if len(data) == 0 {
		return Rt.Stats{Min: Unknown(), Max: Unknown(), Avg: Unknown()}
	}

	minVal, maxVal, sum := data[0], data[0], 0.0
	for _, v := range data {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
		sum += v
	}

	return Rt.Stats{
		Min: Known(minVal),
		Max: Known(maxVal),
		Avg: Known(sum / float64(len(data))),
	}
}
