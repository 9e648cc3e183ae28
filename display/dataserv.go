package regler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	Ra "github.com/Eztof/PID/analyzer"
	Rp "github.com/Eztof/PID/plugin"
	Rr "github.com/Eztof/PID/report"
	Rs "github.com/Eztof/PID/server"
	Rt "github.com/Eztof/PID/types"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxRequestBody limits analysis request bodies
const maxRequestBody = 1 << 20

// SetupMux handles all data serving:
// - Prometheus metric endpoint
// - Websocket analysis
// - Version for programmatic use
// - Trend browsing, analysis and export
func (v *View) SetupMux() http.Handler {
	r := mux.NewRouter()

	r.Handle("/metrics", v.Stats.Handler())
	r.HandleFunc("/ws", v.WebsocketHandler)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(v.StatsMiddleware)

	api.HandleFunc("/version", v.VersionHandler).Methods(http.MethodGet)
	api.HandleFunc("/trends", v.TrendsHandler).Methods(http.MethodGet)
	api.HandleFunc("/trends/{id:[0-9]+}", v.TrendHandler).Methods(http.MethodGet)
	api.HandleFunc("/trends/{id:[0-9]+}/defaults", v.DefaultsHandler).Methods(http.MethodGet)
	api.HandleFunc("/trends/{id:[0-9]+}/plot", v.PlotHandler).Methods(http.MethodGet)
	api.HandleFunc("/trends/{id:[0-9]+}/analyze", v.AnalyzeHandler).Methods(http.MethodPost)
	api.HandleFunc("/trends/{id:[0-9]+}/export", v.ExportHandler).Methods(http.MethodPost)
	api.HandleFunc("/trends/{id:[0-9]+}/report", v.ReportHandler).Methods(http.MethodPost)
	api.HandleFunc("/reload", v.ReloadHandler).Methods(http.MethodPost)
	api.HandleFunc("/cache", v.CacheListHandler).Methods(http.MethodGet)
	api.HandleFunc("/cache/{source}/{name}", v.CacheTrendHandler).Methods(http.MethodGet)

	return otelhttp.NewHandler(r, "regler")
}

var Version = "dev"

func (v *View) VersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": Version})
}

// TrendsHandler lists trends, filtered by ?q=
func (v *View) TrendsHandler(w http.ResponseWriter, r *http.Request) {
	found := v.Bench.Find(r.URL.Query().Get("q"))
	if found == nil {
		found = []Rs.TrendInfo{}
	}
	writeJSON(w, http.StatusOK, found)
}

// TrendHandler returns one trend, downsampled unless ?full=1.
// ?transform=moving_avg,derivative runs the named transformers first.
func (v *View) TrendHandler(w http.ResponseWriter, r *http.Request) {
	trend, ok := v.trendFromPath(w, r)
	if !ok {
		return
	}

	out := *trend
	if tr := r.URL.Query().Get("transform"); tr != "" {
		points, err := Rp.Chain(trend.Points, strings.Split(tr, ",")...)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		out.Points = points
	}

	if r.URL.Query().Get("full") == "1" {
		writeJSON(w, http.StatusOK, out)
		return
	}

	max := Rs.DefaultDownsample
	if m := r.URL.Query().Get("max"); m != "" {
		n, err := strconv.Atoi(m)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid max %q", m))
			return
		}
		max = n
	}

	out.Points = Rs.Downsample(out.Points, max)
	writeJSON(w, http.StatusOK, out)
}

// DefaultsHandler shows what an analysis would start from
func (v *View) DefaultsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := trendID(w, r)
	if !ok {
		return
	}
	params, setpoint, unit, err := v.Bench.Defaults(id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Params   Rt.TuningParameters `json:"params"`
		Setpoint Rt.Metric           `json:"setpoint"`
		Unit     string              `json:"unit"`
	}{params, setpoint, unit})
}

// PlotHandler renders the trend chart as PNG.
// The last report of the trend adds its steady state and setpoint.
func (v *View) PlotHandler(w http.ResponseWriter, r *http.Request) {
	trend, ok := v.trendFromPath(w, r)
	if !ok {
		return
	}

	steady, setpoint, unit := Ra.Unknown(), Ra.Unknown(), ""
	if rep, found := v.Bench.LastReport(trend.ID); found {
		steady = rep.Suggestion.Metrics.SteadyState
		setpoint = rep.Setpoint
		unit = rep.Unit
	}

	png, err := Rr.TrendPlot(trend, steady, setpoint, unit)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

// AnalyzeHandler runs an analysis, the body may override parameters
func (v *View) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	report, ok := v.analyze(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ExportHandler analyzes and returns the suggested parameters as CSV
func (v *View) ExportHandler(w http.ResponseWriter, r *http.Request) {
	report, ok := v.analyze(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := Rs.ExportCSV(&buf, report.Trend, report.Suggestion.Parameters); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Trend+".csv"))
	w.Write(buf.Bytes())
}

// ReportHandler analyzes and returns the PDF report
func (v *View) ReportHandler(w http.ResponseWriter, r *http.Request) {
	report, ok := v.analyze(w, r)
	if !ok {
		return
	}
	trend, err := v.Bench.Trend(report.TrendID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	var buf bytes.Buffer
	if err := Rr.BuildPDF(&buf, trend, report); err != nil {
		slog.Error("Could not build report", slog.String("trend", report.Trend), slog.Any("Error", err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Trend+".pdf"))
	w.Write(buf.Bytes())
}

// ReloadHandler re-reads every source
func (v *View) ReloadHandler(w http.ResponseWriter, r *http.Request) {
	if err := v.Reload(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"trends": len(v.Bench.List())})
}

// CacheListHandler lists cached trends starting in [from, to)
func (v *View) CacheListHandler(w http.ResponseWriter, r *http.Request) {
	from, to := time.Time{}, time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	for name, dst := range map[string]*time.Time{"from": &from, "to": &to} {
		q := r.URL.Query().Get(name)
		if q == "" {
			continue
		}
		t, err := Rs.ParseTimestamp(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid %s: %w", name, err))
			return
		}
		*dst = t
	}

	names, err := v.Bench.CachedBetween(from, to)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

// CacheTrendHandler returns a cached trend by source and name
func (v *View) CacheTrendHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	trend, err := v.Bench.CachedTrend(vars["source"], vars["name"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, trend)
}

/// Helpers

func (v *View) analyze(w http.ResponseWriter, r *http.Request) (*Rs.Report, bool) {
	id, ok := trendID(w, r)
	if !ok {
		return nil, false
	}

	var req Rs.AnalyzeRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return nil, false
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
			return nil, false
		}
	}

	report, err := v.Bench.Analyze(r.Context(), id, req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return nil, false
	}

	v.MU.Lock()
	v.Report = report
	v.MU.Unlock()
	return report, true
}

func (v *View) trendFromPath(w http.ResponseWriter, r *http.Request) (*Rt.Trend, bool) {
	id, ok := trendID(w, r)
	if !ok {
		return nil, false
	}
	trend, err := v.Bench.Trend(id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return nil, false
	}
	return trend, true
}

func trendID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid trend id: %w", err))
		return 0, false
	}
	return id, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, Rs.ErrUnknownTrend):
		return http.StatusNotFound
	case errors.Is(err, Rs.ErrBadParams):
		return http.StatusBadRequest
	case errors.Is(err, Rr.ErrNoPoints):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Could not encode response", slog.Any("Error", err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
