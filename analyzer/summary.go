package analyzer

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	Rt "github.com/Eztof/PID/types"
)

// Summary renders the human readable lines of an analysis, always four
func Summary(perf Rt.PerformanceMetrics, setpoint Rt.Metric, unit string) []string {
	lines := []string{
		fmt.Sprintf("Steady ≈ %s %s", FormatMetric(perf.SteadyState, 2), unit),
		fmt.Sprintf("Peak: %s / Min: %s", FormatMetric(perf.Peak, 2), FormatMetric(perf.Trough, 2)),
		fmt.Sprintf("Rise time: %s, Settle: %s", formatSeconds(perf.RiseTime), formatSeconds(perf.SettleTime)),
	}

	if setpoint.Valid {
		lines = append(lines, fmt.Sprintf("Setpoint %s %s (residual offset %s)",
			FormatFloat(setpoint.Value, 2), unit,
			FormatFloat(Offset(setpoint, perf.SteadyState), 2)))
	} else {
		lines = append(lines, NoSetpointSummary)
	}

	// an empty unit leaves a trailing space
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	return lines
}

// FormatMetric prints a metric with d decimals or "—" when unknown
func FormatMetric(m Rt.Metric, d int) string {
	if !m.Valid || math.IsNaN(m.Value) || math.IsInf(m.Value, 0) {
		return placeholderMissing
	}
	return FormatFloat(m.Value, d)
}

// FormatFloat rounds halves away from zero before printing,
// so 2.5 shows as 3 and -2.5 as -3
func FormatFloat(f float64, d int) string {
	return strconv.FormatFloat(math.Copysign(FloatPrecise(math.Abs(f), d), f), 'f', d, 64)
}

func formatSeconds(m Rt.Metric) string {
	s := FormatMetric(m, 0)
	if s == placeholderMissing {
		return s
	}
	return s + " s"
}
