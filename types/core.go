package types

/*

	These are the "immutable" core types of regler,
	provided for cross-package use (e.g. Plugins) and testing.

	There are no functions defined here.
	Constructors and helpers are housed in their own packages.
	A stage receiving a Series returns a new Series, it never
	writes into the one it was given.

*/

import "time"

// Sample is one reading of the process variable.
type Sample struct {
	Timestamp time.Time `json:"t"`
	Value     float64   `json:"y"`
}

// Series is an ordered trend, non-decreasing in Timestamp.
// The caller sorts, nothing downstream re-sorts.
type Series []Sample

// Metric is a value that may not be computable.
// When Valid is false, Value carries no meaning.
type Metric struct {
	Value float64 `json:"value"`
	Valid bool    `json:"valid"`
}

// Stats is the min/max/avg summary of a sequence of numbers
type Stats struct {
	Min Metric `json:"min"`
	Max Metric `json:"max"`
	Avg Metric `json:"avg"`
}

// PerformanceMetrics describes a step response
type PerformanceMetrics struct {
	SteadyState Metric `json:"steady"` // average of the trailing 10%
	Peak        Metric `json:"peak"`
	Trough      Metric `json:"trough"`
	RiseTime    Metric `json:"rise"`   // seconds, 10% -> 90% of span
	SettleTime  Metric `json:"settle"` // seconds from the first sample
}

// TuningParameters is the controller parameter row.
// The json names follow the exported parameter CSV columns.
// DerivMin, DerivMax, Scale and Bias pass through untouched.
type TuningParameters struct {
	ProportionalBand float64 `json:"XPY1"`    // K
	IntegralTime     float64 `json:"tN"`      // minutes
	LeadTime         int     `json:"Vorhalt"` // seconds
	DeadZone         float64 `json:"xwh"`     // K
	DerivMin         float64 `json:"TVmin"`
	DerivMax         float64 `json:"TVmax"`
	Scale            float64 `json:"EF"`
	Bias             float64 `json:"KH"`
}

// Suggestion is the result of one analysis
type Suggestion struct {
	Parameters TuningParameters   `json:"suggest"`
	Summary    []string           `json:"summary"`
	Metrics    PerformanceMetrics `json:"metrics"`
}

// Trend is a single TrendObject from a trend export
type Trend struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Plain   string `json:"plain"` // PlainAddress, slash separated
	Points  Series `json:"points"`
}
