package regler_test

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	Rd "github.com/Eztof/PID/display"
	Ro "github.com/Eztof/PID/obvy"
	Rs "github.com/Eztof/PID/server"
	"github.com/gdamore/tcell/v2"
)

/// Helpers

// makeStepExport is a 100 s recording that steps to 150, then settles at 100
func makeStepExport(plain string) string {
	start := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	var b strings.Builder
	fmt.Fprintf(&b, "<Export><Content><TrendObject Address=\"X1\"><PlainAddress>%s</PlainAddress>\n", plain)
	for i := 0; i < 100; i++ {
		v := 100.0
		switch {
		case i < 10:
			v = 0
		case i < 20:
			v = 150
		}
		ts := start.Add(time.Duration(i) * time.Second).Format(time.RFC3339)
		fmt.Fprintf(&b, "<Entry TimeStamp=%q Value=\"%g\"/>\n", ts, v)
	}
	b.WriteString("</TrendObject></Content></Export>")
	return b.String()
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("could not write %s: %v", name, err)
	}
	return path
}

// makeTestView loads two step trends, "Flow temp" and "Return temp",
// from one source "A" with a cache
func makeTestView(t *testing.T, screen tcell.Screen) *Rd.View {
	t.Helper()
	dir := t.TempDir()
	export := strings.Replace(makeStepExport("B01/Flow temp"), "</Content></Export>", "", 1)
	export += strings.TrimPrefix(makeStepExport("B01/Return temp"), "<Export><Content>")
	path := writeFile(t, dir, "trend.xml", export)

	store, err := Rd.InitTrendStore("", 10)
	if err != nil {
		t.Fatalf("could not open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	stats := Ro.NewStatsInternal()
	wb := Rs.NewWorkbench([]Rs.ConfigFile{{ID: "A", Source: path}}, store, stats)
	if err := wb.Load(context.Background()); err != nil {
		t.Fatalf("could not load: %v", err)
	}

	view, err := Rd.NewView(wb, screen, stats)
	if err != nil {
		t.Fatalf("could not make view: %v", err)
	}
	return view
}

func mkTestScreen(t *testing.T, charset string) tcell.SimulationScreen {
	s := tcell.NewSimulationScreen(charset)
	if s == nil {
		t.Fatalf("Failed to get SimulationScreen")
	}
	if err := s.Init(); err != nil {
		t.Fatalf("Failed to init screen: %v", err)
	}
	return s
}

// screenText returns the simulated screen row by row
func screenText(s tcell.SimulationScreen) []string {
	cells, width, height := s.GetContents()
	rows := make([]string, height)
	for y := 0; y < height; y++ {
		var b strings.Builder
		for x := 0; x < width; x++ {
			c := cells[y*width+x]
			if len(c.Runes) == 0 {
				b.WriteRune(' ')
				continue
			}
			b.WriteRune(c.Runes[0])
		}
		rows[y] = b.String()
	}
	return rows
}

func scrape(t *testing.T, stats *Ro.StatsInternal) string {
	t.Helper()
	w := httptest.NewRecorder()
	stats.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	return w.Body.String()
}


func assertError(t testing.TB, got, want error) {
	t.Helper()
	if !errors.Is(got, want) {
		t.Errorf("got error %q, want %q", got, want)
	}
}

func assertGotError(t testing.TB, got error) {
	t.Helper()
	if got == nil {
		t.Errorf("expected an error but got %q", got)
	}
}

func assertStatus(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("did not get correct status, got %d, want %d", got, want)
	}
}

func assertInt(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("got %d, want %d", got, want)
	}
}

func assertFloat(t *testing.T, got, want float64) {
	t.Helper()
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func assertString(t *testing.T, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func assertStringContains(t *testing.T, full, want string) {
	t.Helper()
	if !strings.Contains(full, want) {
		t.Errorf("Did not find %q, expected string contains %q", full, want)
	}
}
