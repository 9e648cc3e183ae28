package regler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	Ra "github.com/Eztof/PID/analyzer"
	Ro "github.com/Eztof/PID/obvy"
	Rp "github.com/Eztof/PID/plugin"
	Rt "github.com/Eztof/PID/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrUnknownTrend = errors.New("trend not found")
	ErrNoSources    = errors.New("no trend source could be loaded")
	ErrBadParams    = errors.New("invalid tuning parameters")
)

// cacheHorizon bounds the range query that lists cached trends
var cacheHorizon = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// AnalyzeRequest overrides what the configuration provides for one analysis.
// Nil fields fall back to the parameter sheet, the config entry or the defaults.
// Params is a JSON object of TuningParameters columns, decoded over the
// resolved defaults so that columns it leaves out keep their values.
type AnalyzeRequest struct {
	Params   json.RawMessage `json:"params,omitempty"`
	Setpoint *float64        `json:"setpoint,omitempty"`
	Unit     *string         `json:"unit,omitempty"`
}

// Report is one analysis of one trend
type Report struct {
	ID         uuid.UUID           `json:"id"`
	TrendID    int                 `json:"trendId"`
	Trend      string              `json:"trend"`
	Created    time.Time           `json:"created"`
	Current    Rt.TuningParameters `json:"current"`
	Setpoint   Rt.Metric           `json:"setpoint"`
	Unit       string              `json:"unit"`
	Suggestion Rt.Suggestion       `json:"suggestion"`
	Fired      []string            `json:"fired"`
	Previous   *uuid.UUID          `json:"previous,omitempty"` // last report of the same trend
}

// TrendInfo is a trend without its points
type TrendInfo struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Plain   string `json:"plain"`
	Source  string `json:"source"`
	Points  int    `json:"points"`
}

// Workbench holds the loaded trends of all configured sources.
// Trends are replaced as a whole on every Load.
type Workbench struct {
	MU      sync.RWMutex
	Sources []ConfigFile
	Trends  []*Rt.Trend
	Store   Rp.TrendStore     // optional trend cache
	Stats   *Ro.StatsInternal // optional
	origin  map[int]int       // trend ID -> index into Sources
	params  []*ParamsTable    // per source, nil without a sheet
	last    map[string]*Report
}

func NewWorkbench(sources []ConfigFile, store Rp.TrendStore, stats *Ro.StatsInternal) *Workbench {
	return &Workbench{
		Sources: sources,
		Store:   store,
		Stats:   stats,
		origin:  make(map[int]int),
		params:  make([]*ParamsTable, len(sources)),
		last:    make(map[string]*Report),
	}
}

// Load reads every source. A source that cannot be read falls back
// to the trends cached from it earlier. Trend IDs stay unique across
// sources by offsetting each source by the highest ID of the ones before.
func (w *Workbench) Load(ctx context.Context) error {
	ctx, span := Ro.Tracer().Start(ctx, "workbench.load")
	defer span.End()
	start := time.Now()

	w.MU.RLock()
	sources := w.Sources
	oldParams := w.params
	w.MU.RUnlock()

	var trends []*Rt.Trend
	var errs []error
	origin := make(map[int]int)
	params := make([]*ParamsTable, len(sources))
	offset := 0

	for si, src := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}

		loaded, err := w.loadSource(src)
		if err != nil {
			slog.Error("Could not load source", slog.String("id", src.ID), slog.Any("Error", err))
			errs = append(errs, err)
			loaded = w.cached(src.ID)
			if len(loaded) > 0 {
				slog.Warn("Using cached trends", slog.String("id", src.ID), slog.Int("trends", len(loaded)))
			}
		}

		maxID := 0
		for _, t := range loaded {
			maxID = max(maxID, t.ID)
			t.ID += offset
			origin[t.ID] = si
		}
		offset += maxID
		trends = append(trends, loaded...)

		params[si] = w.loadParams(src)
		if params[si] == nil && si < len(oldParams) {
			params[si] = oldParams[si]
		}
	}

	if len(trends) == 0 && len(errs) > 0 {
		span.SetStatus(codes.Error, "no source loaded")
		return fmt.Errorf("%w: %w", ErrNoSources, errors.Join(errs...))
	}

	w.MU.Lock()
	w.Trends = trends
	w.origin = origin
	w.params = params
	w.MU.Unlock()

	w.Stats.RecLoad(time.Since(start), len(trends))
	span.SetAttributes(attribute.Int("trends", len(trends)), attribute.Int("failed_sources", len(errs)))
	slog.Info("Trends loaded", slog.Int("trends", len(trends)), slog.Int("sources", len(sources)))
	return nil
}

// loadSource reads and parses one export, then caches it
func (w *Workbench) loadSource(src ConfigFile) ([]*Rt.Trend, error) {
	body, err := LoadSource(src.Source)
	if err != nil {
		return nil, err
	}
	trends, err := ParseTrendXML(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src.ID, err)
	}
	w.cache(src.ID, trends)
	return trends, nil
}

func (w *Workbench) loadParams(src ConfigFile) *ParamsTable {
	if src.Params == "" {
		return nil
	}
	body, err := LoadSource(src.Params)
	if err != nil {
		slog.Warn("Parameter sheet not loaded", slog.String("id", src.ID), slog.Any("Error", err))
		return nil
	}
	table, err := ParseParamsCSV(bytes.NewReader(body))
	if err != nil {
		slog.Warn("Parameter sheet not readable", slog.String("id", src.ID), slog.Any("Error", err))
		return nil
	}
	for _, e := range table.ParseErrors {
		slog.Warn(e, slog.String("id", src.ID))
	}
	return table
}

// cacheName qualifies a trend name with its source so that
// equal names from different sources do not collide in the store
func cacheName(sourceID, name string) string {
	return sourceID + "/" + name
}

// cache replaces everything stored for sourceID with trends
func (w *Workbench) cache(sourceID string, trends []*Rt.Trend) {
	if w.Store == nil {
		return
	}
	batch := make([]*Rt.Trend, len(trends))
	for i, t := range trends {
		cp := *t
		cp.Name = cacheName(sourceID, t.Name)
		batch[i] = &cp
	}
	if err := w.Store.ReplacePrefix(cacheName(sourceID, ""), batch); err != nil {
		slog.Error("Could not cache trends", slog.String("id", sourceID), slog.Any("Error", err))
	}
}

// cached returns the stored trends of one source in ID order
func (w *Workbench) cached(sourceID string) []*Rt.Trend {
	if w.Store == nil {
		return nil
	}
	all, err := w.Store.QueryRange(time.Time{}, cacheHorizon)
	if err != nil {
		slog.Error("Could not read trend cache", slog.Any("Error", err))
		return nil
	}

	prefix := cacheName(sourceID, "")
	var out []*Rt.Trend
	for _, t := range all {
		if name, ok := strings.CutPrefix(t.Name, prefix); ok {
			t.Name = name
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CachedBetween lists the cached trends whose recording starts in [start, end)
func (w *Workbench) CachedBetween(start, end time.Time) ([]string, error) {
	if w.Store == nil {
		return nil, nil
	}
	trends, err := w.Store.QueryRange(start, end)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(trends))
	for i, t := range trends {
		names[i] = t.Name
	}
	sort.Strings(names)
	return names, nil
}

// CachedTrend reads one trend of a source back from the cache
func (w *Workbench) CachedTrend(sourceID, name string) (*Rt.Trend, error) {
	if w.Store == nil {
		return nil, fmt.Errorf("%s/%s: %w", sourceID, name, ErrUnknownTrend)
	}
	t, err := w.Store.ReadTrend(cacheName(sourceID, name))
	if errors.Is(err, Rp.ErrTrendNotFound) {
		return nil, fmt.Errorf("%s/%s: %w", sourceID, name, ErrUnknownTrend)
	}
	if err != nil {
		return nil, err
	}
	t.Name = name
	return t, nil
}

// List returns all trends in ID order
func (w *Workbench) List() []TrendInfo {
	w.MU.RLock()
	defer w.MU.RUnlock()

	out := make([]TrendInfo, len(w.Trends))
	for i, t := range w.Trends {
		out[i] = w.info(t)
	}
	return out
}

// Find matches query case-insensitively against name and address,
// sorted by name. An empty query matches everything.
func (w *Workbench) Find(query string) []TrendInfo {
	q := strings.ToLower(strings.TrimSpace(query))

	w.MU.RLock()
	var out []TrendInfo
	for _, t := range w.Trends {
		sub := t.Plain
		if sub == "" {
			sub = t.Address
		}
		hay := strings.ToLower(t.Name + " " + sub)
		if q == "" || strings.Contains(hay, q) {
			out = append(out, w.info(t))
		}
	}
	w.MU.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// info expects the read lock to be held
func (w *Workbench) info(t *Rt.Trend) TrendInfo {
	ti := TrendInfo{
		ID:      t.ID,
		Name:    t.Name,
		Address: t.Address,
		Plain:   t.Plain,
		Points:  len(t.Points),
	}
	if si, ok := w.origin[t.ID]; ok && si < len(w.Sources) {
		ti.Source = w.Sources[si].ID
	}
	return ti
}

// Trend returns a loaded trend by ID
func (w *Workbench) Trend(id int) (*Rt.Trend, error) {
	w.MU.RLock()
	defer w.MU.RUnlock()
	return w.trend(id)
}

func (w *Workbench) trend(id int) (*Rt.Trend, error) {
	for _, t := range w.Trends {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, fmt.Errorf("trend %d: %w", id, ErrUnknownTrend)
}

// Defaults resolves what an analysis of trend id would start from
func (w *Workbench) Defaults(id int) (Rt.TuningParameters, Rt.Metric, string, error) {
	w.MU.RLock()
	defer w.MU.RUnlock()

	t, err := w.trend(id)
	if err != nil {
		return Rt.TuningParameters{}, Rt.Metric{}, "", err
	}

	params := DefaultParameters()
	setpoint := Ra.Unknown()
	unit := ""
	if si, ok := w.origin[id]; ok && si < len(w.Sources) {
		src := w.Sources[si]
		params = ParamsFor(w.params[si], t.Name, params)
		if src.Setpoint != nil {
			setpoint = Ra.Known(*src.Setpoint)
		}
		unit = src.Unit
	}
	return params, setpoint, unit, nil
}

// reportKey identifies a trend across reloads, where IDs may shift
func (w *Workbench) reportKey(t *Rt.Trend) string {
	if si, ok := w.origin[t.ID]; ok && si < len(w.Sources) {
		return cacheName(w.Sources[si].ID, t.Name)
	}
	return t.Name
}

// Analyze runs the tuning heuristic on one trend.
// The trend itself is never modified.
func (w *Workbench) Analyze(ctx context.Context, id int, req AnalyzeRequest) (*Report, error) {
	_, span := Ro.Tracer().Start(ctx, "workbench.analyze",
		trace.WithAttributes(attribute.Int("trend.id", id)))
	defer span.End()
	start := time.Now()

	params, setpoint, unit, err := w.Defaults(id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown trend")
		w.Stats.RecAnalysis(time.Since(start), "unknown", nil)
		return nil, err
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			err = fmt.Errorf("%w: %w", ErrBadParams, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "invalid parameters")
			w.Stats.RecAnalysis(time.Since(start), "invalid", nil)
			return nil, err
		}
	}
	if req.Setpoint != nil {
		setpoint = Ra.Known(*req.Setpoint)
	}
	if req.Unit != nil {
		unit = *req.Unit
	}

	w.MU.RLock()
	trend, err := w.trend(id)
	var key string
	if err == nil {
		key = w.reportKey(trend)
	}
	w.MU.RUnlock()
	if err != nil {
		// reloaded between Defaults and here
		w.Stats.RecAnalysis(time.Since(start), "unknown", nil)
		return nil, err
	}

	suggestion, fired := Ra.SuggestWithTrace(trend.Points, params, setpoint, unit)

	report := &Report{
		ID:         uuid.New(),
		TrendID:    trend.ID,
		Trend:      trend.Name,
		Created:    time.Now().UTC(),
		Current:    params,
		Setpoint:   setpoint,
		Unit:       unit,
		Suggestion: suggestion,
		Fired:      fired,
	}

	w.MU.Lock()
	if prev, ok := w.last[key]; ok {
		prevID := prev.ID
		report.Previous = &prevID
	}
	w.last[key] = report
	w.MU.Unlock()

	outcome := "ok"
	if len(trend.Points) == 0 {
		outcome = "empty"
	}
	w.Stats.RecAnalysis(time.Since(start), outcome, fired)

	span.SetAttributes(
		attribute.String("trend.name", trend.Name),
		attribute.StringSlice("rules.fired", fired),
		attribute.String("report.id", report.ID.String()),
	)
	slog.Info("Trend analyzed",
		slog.String("trend", trend.Name),
		slog.Any("fired", fired),
		slog.String("report", report.ID.String()))

	return report, nil
}

// LastReport is the most recent analysis of trend id, if any
func (w *Workbench) LastReport(id int) (*Report, bool) {
	w.MU.RLock()
	defer w.MU.RUnlock()

	t, err := w.trend(id)
	if err != nil {
		return nil, false
	}
	r, ok := w.last[w.reportKey(t)]
	return r, ok
}
