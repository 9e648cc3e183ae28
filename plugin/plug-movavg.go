package plugin

/*
	MovingAvg

	Trailing (causal) moving average over the last Window samples.
	The first Window-1 outputs average over what is available so far.
*/

import (
	Rt "github.com/Eztof/PID/types"
)

type MovingAvgPlugin struct {
	Window int
}

// NewMovingAvg returns a transformer with the given window
func NewMovingAvg(w int) *MovingAvgPlugin {
	return &MovingAvgPlugin{Window: w}
}

// Transform is the main wrapper for the interface.
func (p *MovingAvgPlugin) Transform(series Rt.Series) (Rt.Series, error) {
	return MovingAvg(series, p.Window), nil
}

// MovingAvg returns a new Series of equal length where each value
// is the mean of up to w values ending at that index.
// A ring of the last w values and a running sum keep this O(n).
func MovingAvg(series Rt.Series, w int) Rt.Series {
	out := make(Rt.Series, len(series))
	if w <= 1 {
		copy(out, series)
		return out
	}

	ring := make([]float64, w)
	head := 0  // next slot to overwrite
	count := 0 // values held, never more than w
	acc := 0.0

	for i, s := range series {
		if count == w {
			acc -= ring[head]
		} else {
			count++
		}
		ring[head] = s.Value
		head = (head + 1) % w
		acc += s.Value

		out[i] = Rt.Sample{Timestamp: s.Timestamp, Value: acc / float64(count)}
	}

	return out
}

func (p *MovingAvgPlugin) HysteresisReq() int {
	if p.Window <= 1 {
		return 0
	}
	return p.Window - 1
}

func (p *MovingAvgPlugin) Type() string { return "moving_avg" }
