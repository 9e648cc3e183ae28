package regler

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatsInternal holds the internal prometheus metrics on their own registry.
// A nil *StatsInternal records nothing.
type StatsInternal struct {
	Registry     *prometheus.Registry
	Analyses     *prometheus.CounterVec
	RuleFirings  *prometheus.CounterVec
	WWW          *prometheus.CounterVec
	AnalysisTime prometheus.Histogram
	LoadTime     prometheus.Histogram
	Trends       prometheus.Gauge
}

func NewStatsInternal() *StatsInternal {
	s := &StatsInternal{
		Registry: prometheus.NewRegistry(),
		Analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "regler",
			Name:      "analyses_total",
			Help:      "Trend analyses by outcome.",
		}, []string{"outcome"}),
		RuleFirings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "regler",
			Name:      "rule_firings_total",
			Help:      "Tuning rules that changed a parameter set.",
		}, []string{"rule"}),
		WWW: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "regler",
			Name:      "http_requests_total",
			Help:      "API requests by status code and method.",
		}, []string{"code", "method"}),
		AnalysisTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "regler",
			Name:      "analysis_seconds",
			Help:      "Time spent on one analysis.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		LoadTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "regler",
			Name:      "load_seconds",
			Help:      "Time spent loading all trend sources.",
			Buckets:   prometheus.DefBuckets,
		}),
		Trends: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "regler",
			Name:      "trends_loaded",
			Help:      "Trends currently available for analysis.",
		}),
	}

	s.Registry.MustRegister(
		s.Analyses,
		s.RuleFirings,
		s.WWW,
		s.AnalysisTime,
		s.LoadTime,
		s.Trends,
		collectors.NewGoCollector(),
	)
	return s
}

// Handler serves the registry on /metrics
func (s *StatsInternal) Handler() http.Handler {
	return promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{Registry: s.Registry})
}

// RecAnalysis counts one analysis and the rules it fired
func (s *StatsInternal) RecAnalysis(d time.Duration, outcome string, fired []string) {
	if s == nil {
		return
	}
	s.Analyses.WithLabelValues(outcome).Inc()
	s.AnalysisTime.Observe(d.Seconds())
	for _, r := range fired {
		s.RuleFirings.WithLabelValues(r).Inc()
	}
}

// RecLoad records a finished load and how many trends it left
func (s *StatsInternal) RecLoad(d time.Duration, trends int) {
	if s == nil {
		return
	}
	s.LoadTime.Observe(d.Seconds())
	s.Trends.Set(float64(trends))
}

func (s *StatsInternal) RecWWW(code, method string) {
	if s == nil {
		return
	}
	s.WWW.WithLabelValues(code, method).Inc()
}
