package regler_test

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	Ro "github.com/Eztof/PID/obvy"
)

func TestStatsInternal(t *testing.T) {
	t.Run("Counts analyses and rule firings", func(t *testing.T) {
		stats := Ro.NewStatsInternal()
		stats.RecAnalysis(2*time.Millisecond, "ok", []string{"overshoot", "offset"})
		stats.RecAnalysis(time.Millisecond, "ok", []string{"overshoot"})
		stats.RecAnalysis(time.Millisecond, "empty", nil)

		body := scrape(t, stats)
		assertStringContains(t, body, `regler_analyses_total{outcome="ok"} 2`)
		assertStringContains(t, body, `regler_analyses_total{outcome="empty"} 1`)
		assertStringContains(t, body, `regler_rule_firings_total{rule="overshoot"} 2`)
		assertStringContains(t, body, `regler_rule_firings_total{rule="offset"} 1`)
		assertStringContains(t, body, `regler_analysis_seconds_count 3`)
	})

	t.Run("Load sets the trend gauge", func(t *testing.T) {
		stats := Ro.NewStatsInternal()
		stats.RecLoad(time.Second, 12)
		stats.RecLoad(time.Second, 7)

		body := scrape(t, stats)
		assertStringContains(t, body, "regler_trends_loaded 7")
		assertStringContains(t, body, "regler_load_seconds_count 2")
	})

	t.Run("Nil stats do not panic", func(t *testing.T) {
		var stats *Ro.StatsInternal
		stats.RecAnalysis(time.Millisecond, "ok", []string{"sluggish"})
		stats.RecLoad(time.Second, 1)
		stats.RecWWW("200", "GET")
	})

	t.Run("Handler exposes the registry", func(t *testing.T) {
		stats := Ro.NewStatsInternal()
		stats.RecWWW("404", "GET")

		body := scrape(t, stats)
		assertStringContains(t, body, `regler_http_requests_total{code="404",method="GET"} 1`)
	})
}

func TestInitOTel(t *testing.T) {
	t.Run("No exporter is a no-op", func(t *testing.T) {
		shutdown, err := Ro.InitOTel(context.Background(), "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		shutdown()
	})

	t.Run("Unknown exporter errors", func(t *testing.T) {
		_, err := Ro.InitOTel(context.Background(), "zipkin")
		if err == nil {
			t.Errorf("expected an error for an unknown exporter")
		}
	})

	t.Run("Tracer is usable without a provider", func(t *testing.T) {
		_, span := Ro.Tracer().Start(context.Background(), "test")
		span.End()
	})
}

// Helpers //

func scrape(t *testing.T, stats *Ro.StatsInternal) string {
	t.Helper()
	w := httptest.NewRecorder()
	stats.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(w.Body)
	if err != nil {
		t.Fatalf("could not read metrics: %v", err)
	}
	return string(body)
}

func assertStringContains(t *testing.T, full, want string) {
	t.Helper()
	if !strings.Contains(full, want) {
		t.Errorf("Did not find %q in:\n%s", want, full)
	}
}
