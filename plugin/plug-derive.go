package plugin

/*
	Derive

	Returns the discrete time derivative of a Series,
	one sample per adjacent pair with a positive time step.

	~~~ Plugin Reference Implementation ~~~
*/

import (
	"time"

	Rt "github.com/Eztof/PID/types"
)

type DerivePlugin struct{}

// Transform is the main wrapper for the interface.
// Other calculation functions should be called from here.
func (p *DerivePlugin) Transform(series Rt.Series) (Rt.Series, error) {
	return Derive(series), nil
}

// Derive returns Δvalue/Δseconds for each adjacent pair,
// stamped with the later timestamp.
// Pairs with a zero or negative time step produce nothing.
func Derive(series Rt.Series) Rt.Series {
	if len(series) < 2 {
		return Rt.Series{}
	}

	out := make(Rt.Series, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		curr, prev := series[i], series[i-1]
		slope, ok := CalcSlope(curr.Value, prev.Value, curr.Timestamp, prev.Timestamp)
		if !ok {
			continue
		}
		out = append(out, Rt.Sample{Timestamp: curr.Timestamp, Value: slope})
	}
	return out
}

// CalcSlope is a generic rate calculator that
// receives two sequential readings and their timestamps
// and returns the change per second.
// The bool is false when the time step is not positive.
func CalcSlope(curr, prev float64, currtime, prevtime time.Time) (float64, bool) {
	dt := currtime.Sub(prevtime).Seconds()
	if dt <= 0 {
		return 0, false
	}
	return (curr - prev) / dt, true
}

func (p *DerivePlugin) HysteresisReq() int { return 1 }
func (p *DerivePlugin) Type() string       { return "derivative" }
