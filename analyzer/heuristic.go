package analyzer

import (
	"math"

	Rp "github.com/Eztof/PID/plugin"
	Rt "github.com/Eztof/PID/types"
)

// Heuristic thresholds. These are fixed, not configuration.
const (
	SmoothWindow       = 5
	OvershootLimit     = 0.2   // overshoot ratio that loosens the loop
	SluggishFraction   = 0.4   // rise time as a share of the recording
	OffsetFraction     = 0.03  // remaining offset as a share of span
	FlatSlopeLimit     = 0.001 // average |dPV/dt| below this is flat
	FlatSpanLimit      = 1.0   // and only when the span is small too
	MinDeadZone        = 0.2
	NoDataSummary      = "No data points found."
	NoSetpointSummary  = "No setpoint given."
	placeholderMissing = "—"
)

// Output ranges for the adjusted parameters
const (
	MinProportionalBand = 0.5
	MaxProportionalBand = 999.9
	MinIntegralTime     = 0.5
	MaxIntegralTime     = 99
	MinLeadTime         = 0
	MaxLeadTime         = 299
	MinDeadZoneWidth    = 0
	MaxDeadZoneWidth    = 50
)

// facts is what every rule may look at, computed once per analysis
type facts struct {
	perf     Rt.PerformanceMetrics
	stats    Rt.Stats
	span     float64 // max - min of the smoothed values, 1 when flat
	duration float64 // seconds covered by the recording
	slope    Rt.Metric
	setpoint Rt.Metric
}

// tuningRule adjusts the working parameter set. It returns the new set
// and whether it changed anything.
type tuningRule func(p Rt.TuningParameters, f facts) (Rt.TuningParameters, bool)

type namedRule struct {
	name  string
	apply tuningRule
}

// rules run in this order, later ones compound earlier ones
var rules = []namedRule{
	{name: "overshoot", apply: overshootRule},
	{name: "sluggish", apply: sluggishRule},
	{name: "offset", apply: offsetRule},
	{name: "deadzone", apply: deadZoneRule},
}

// RuleNames lists the rules in the order they run
func RuleNames() []string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.name
	}
	return names
}

// Suggest analyzes a raw PV trend and proposes new parameters.
// An invalid setpoint means none was given. The result depends only on the inputs.
func Suggest(pv Rt.Series, params Rt.TuningParameters, setpoint Rt.Metric, unit string) Rt.Suggestion {
	s, _ := SuggestWithTrace(pv, params, setpoint, unit)
	return s
}

// SuggestWithTrace is Suggest that also reports which rules fired
func SuggestWithTrace(pv Rt.Series, params Rt.TuningParameters, setpoint Rt.Metric, unit string) (Rt.Suggestion, []string) {
	if len(pv) == 0 {
		return Rt.Suggestion{
			Parameters: params,
			Summary:    []string{NoDataSummary},
			Metrics:    Performance(pv),
		}, nil
	}

	sm := Rp.MovingAvg(pv, SmoothWindow)
	f := collectFacts(sm, setpoint)

	var fired []string
	work := params
	for _, r := range rules {
		var changed bool
		work, changed = r.apply(work, f)
		if changed {
			fired = append(fired, r.name)
		}
	}

	return Rt.Suggestion{
		Parameters: Clamp(work),
		Summary:    Summary(f.perf, setpoint, unit),
		Metrics:    f.perf,
	}, fired
}

func collectFacts(sm Rt.Series, setpoint Rt.Metric) facts {
	st := Stats(values(sm))
	span := st.Max.Value - st.Min.Value
	if span == 0 {
		span = 1
	}

	slopes := Rp.Derive(sm)
	abs := make([]float64, len(slopes))
	for i, d := range slopes {
		abs[i] = math.Abs(d.Value)
	}

	return facts{
		perf:     Performance(sm),
		stats:    st,
		span:     span,
		duration: sm[len(sm)-1].Timestamp.Sub(sm[0].Timestamp).Seconds(),
		slope:    Stats(abs).Avg,
		setpoint: setpoint,
	}
}

// OvershootRatio is the excess of peak over steady state,
// relative to how far the response travelled. Zero without a steady state.
func OvershootRatio(perf Rt.PerformanceMetrics, low float64) float64 {
	if !perf.SteadyState.Valid {
		return 0
	}
	steady := perf.SteadyState.Value
	return (perf.Peak.Value - steady) / math.Max(1, math.Abs(steady-low))
}

// Large overshoot: wider band, longer reset, more lead
func overshootRule(p Rt.TuningParameters, f facts) (Rt.TuningParameters, bool) {
	if OvershootRatio(f.perf, f.stats.Min.Value) <= OvershootLimit {
		return p, false
	}
	p.ProportionalBand *= 1.25
	p.IntegralTime *= 1.2
	lead := roundHalfUp(float64(p.LeadTime)*1.2 + 1)
	p.LeadTime = int(math.Max(math.MinInt32, math.Min(math.MaxInt32, lead)))
	return p, true
}

// Slow rise compared to the recording: tighten
func sluggishRule(p Rt.TuningParameters, f facts) (Rt.TuningParameters, bool) {
	rise := f.perf.RiseTime
	if !rise.Valid || rise.Value <= SluggishFraction*f.duration {
		return p, false
	}
	p.ProportionalBand *= 0.8
	p.IntegralTime *= 0.9
	return p, true
}

// Lasting offset from the setpoint: stronger integral action
func offsetRule(p Rt.TuningParameters, f facts) (Rt.TuningParameters, bool) {
	if !f.setpoint.Valid {
		return p, false
	}
	if math.Abs(Offset(f.setpoint, f.perf.SteadyState)) <= OffsetFraction*f.span {
		return p, false
	}
	p.IntegralTime *= 0.85
	return p, true
}

// Flat, small signal: open the neutral zone
func deadZoneRule(p Rt.TuningParameters, f facts) (Rt.TuningParameters, bool) {
	if !f.slope.Valid || f.slope.Value >= FlatSlopeLimit || f.span >= FlatSpanLimit {
		return p, false
	}
	if p.DeadZone >= MinDeadZone {
		return p, false
	}
	p.DeadZone = MinDeadZone
	return p, true
}

// Offset is setpoint minus steady state, zero without a steady state
func Offset(setpoint, steady Rt.Metric) float64 {
	if !steady.Valid {
		return 0
	}
	return setpoint.Value - steady.Value
}

// Clamp limits the adjusted fields to their ranges and rounds them,
// two decimals for the continuous ones. Pass-through fields are untouched.
func Clamp(p Rt.TuningParameters) Rt.TuningParameters {
	p.ProportionalBand = FloatPrecise(clampFloat(p.ProportionalBand, MinProportionalBand, MaxProportionalBand), 2)
	p.IntegralTime = FloatPrecise(clampFloat(p.IntegralTime, MinIntegralTime, MaxIntegralTime), 2)
	p.DeadZone = FloatPrecise(clampFloat(p.DeadZone, MinDeadZoneWidth, MaxDeadZoneWidth), 2)

	switch {
	case p.LeadTime < MinLeadTime:
		p.LeadTime = MinLeadTime
	case p.LeadTime > MaxLeadTime:
		p.LeadTime = MaxLeadTime
	}
	return p
}

// clampFloat sends NaN to the lower bound
func clampFloat(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
