package regler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	Ra "github.com/Eztof/PID/analyzer"
	Ro "github.com/Eztof/PID/obvy"
	Rs "github.com/Eztof/PID/server"
	Rt "github.com/Eztof/PID/types"
	"github.com/gdamore/tcell/v2"
)

const (
	screenGutter = 2  // rows above the trend list
	listWidth    = 32 // columns of the trend list
)

// View shows the Workbench, in a terminal and over HTTP
type View struct {
	MU         sync.Mutex         // State locks to read data
	Bench      *Rs.Workbench      // loaded trends
	Screen     tcell.Screen       // the screen itself, nil for web only
	Stats      *Ro.StatsInternal  // Internal status for prometheus
	Supervisor *ReloadSupervisor  // optional periodic reload
	server     *http.Server       // API server
	Selected   int                // index into the trend list
	Report     *Rs.Report         // last analysis of the selected trend
	Status     string             // one line of feedback at the bottom
}

// NewView attaches a Workbench to a screen, which may be nil
func NewView(bench *Rs.Workbench, screen tcell.Screen, stats *Ro.StatsInternal) (*View, error) {
	if bench == nil {
		slog.Error("Could not get a Workbench for display")
		return nil, errors.New("workbench not found")
	}
	if screen != nil {
		defStyle := tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorPink)
		screen.SetStyle(defStyle)
	}

	return &View{
		Bench:  bench,
		Screen: screen,
		Stats:  stats,
	}, nil
}

// selected returns the trend under the cursor, expects v.MU held
func (v *View) selected(list []Rs.TrendInfo) (Rs.TrendInfo, bool) {
	if len(list) == 0 {
		return Rs.TrendInfo{}, false
	}
	if v.Selected >= len(list) {
		v.Selected = len(list) - 1
	}
	if v.Selected < 0 {
		v.Selected = 0
	}
	return list[v.Selected], true
}

// Move changes the selection by delta, dropping a report of another trend
func (v *View) Move(delta int) {
	list := v.Bench.Find("")

	v.MU.Lock()
	defer v.MU.Unlock()
	if len(list) == 0 {
		return
	}
	v.Selected = min(max(v.Selected+delta, 0), len(list)-1)
	v.Report = nil
	v.Status = ""
}

// AnalyzeSelected runs an analysis of the selected trend with its defaults
func (v *View) AnalyzeSelected(ctx context.Context) {
	list := v.Bench.Find("")

	v.MU.Lock()
	ti, ok := v.selected(list)
	v.MU.Unlock()
	if !ok {
		return
	}

	report, err := v.Bench.Analyze(ctx, ti.ID, Rs.AnalyzeRequest{})

	v.MU.Lock()
	defer v.MU.Unlock()
	if err != nil {
		slog.Error("Analysis failed", slog.Int("trend", ti.ID), slog.Any("Error", err))
		v.Status = "analysis failed: " + err.Error()
		return
	}
	v.Report = report
	v.Status = "analyzed " + report.Trend
}

// Reload re-reads every source
func (v *View) Reload(ctx context.Context) error {
	err := v.Bench.Load(ctx)

	v.MU.Lock()
	defer v.MU.Unlock()
	v.Report = nil
	if err != nil {
		slog.Error("Reload failed", slog.Any("Error", err))
		v.Status = "reload failed: " + err.Error()
		return err
	}
	v.Status = fmt.Sprintf("reloaded %d trends", len(v.Bench.List()))
	return nil
}

// HandleKey acts on one key press and reports whether to quit
func (v *View) HandleKey(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true
	case tcell.KeyUp:
		v.Move(-1)
	case tcell.KeyDown:
		v.Move(1)
	case tcell.KeyCtrlL:
		v.Screen.Sync()
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q', 'Q':
			return true
		case 'a', 'A':
			v.AnalyzeSelected(context.Background())
		case 'r', 'R':
			v.Reload(context.Background())
		case 'k':
			v.Move(-1)
		case 'j':
			v.Move(1)
		}
	}
	return false
}

// DrawText displays the text string at the given (x1, y1) with box size (x2, y2)
func (v *View) DrawText(x1, y1, x2, y2 int, text string) {
	v.DrawTextStyle(x1, y1, x2, y2, text, tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorLightSteelBlue))
}

func (v *View) DrawTextStyle(x1, y1, x2, y2 int, text string, style tcell.Style) {
	row := y1
	col := x1
	for _, r := range text {
		v.Screen.SetContent(col, row, r, nil, style)
		col++
		if col >= x2 {
			row++
			col = x1
		}
		if row > y2 {
			break
		}
	}
}

// DrawViewBorder displays the outline of the View
func (v *View) DrawViewBorder(width, height int) {
	hvStyle := tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorPink)
	v.Screen.SetContent(0, 0, tcell.RuneULCorner, nil, hvStyle)
	for i := 1; i < width; i++ {
		v.Screen.SetContent(i, 0, tcell.RuneHLine, nil, hvStyle)
		v.Screen.SetContent(i, height, tcell.RuneHLine, nil, hvStyle)
	}
	v.Screen.SetContent(width, 0, tcell.RuneURCorner, nil, hvStyle)

	for i := 1; i < height; i++ {
		v.Screen.SetContent(0, i, tcell.RuneVLine, nil, hvStyle)
		v.Screen.SetContent(width, i, tcell.RuneVLine, nil, hvStyle)
	}

	v.Screen.SetContent(0, height, tcell.RuneLLCorner, nil, hvStyle)
	v.Screen.SetContent(width, height, tcell.RuneLRCorner, nil, hvStyle)
}

// sparkRunes go from lowest to highest
var sparkRunes = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// ValToRune places val between lo and hi on the eight bar heights
func ValToRune(val, lo, hi float64) rune {
	if hi <= lo || math.IsNaN(val) {
		return sparkRunes[0]
	}
	i := int((val - lo) / (hi - lo) * float64(len(sparkRunes)-1))
	return sparkRunes[min(max(i, 0), len(sparkRunes)-1)]
}

// Sparkline squeezes a series into width columns, each column
// showing the mean of the samples that fall into it
func Sparkline(series Rt.Series, width int) []rune {
	if len(series) == 0 || width <= 0 {
		return nil
	}
	cols := min(width, len(series))
	means := make([]float64, cols)
	for c := 0; c < cols; c++ {
		from := c * len(series) / cols
		to := (c + 1) * len(series) / cols
		sum := 0.0
		for _, s := range series[from:to] {
			sum += s.Value
		}
		means[c] = sum / float64(to-from)
	}

	lo, hi := means[0], means[0]
	for _, m := range means {
		lo = math.Min(lo, m)
		hi = math.Max(hi, m)
	}

	out := make([]rune, cols)
	for i, m := range means {
		out[i] = ValToRune(m, lo, hi)
	}
	return out
}

// DrawSparkline displays a series as bar heights starting at (x, y)
func (v *View) DrawSparkline(x, y, width int, series Rt.Series) {
	style := tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorMediumTurquoise)
	for i, r := range Sparkline(series, width) {
		v.Screen.SetContent(x+i, y, r, nil, style)
	}
}

// DrawWorkbench draws the trend list on the left,
// the chart, summary and parameters of the selected trend on the right
func (v *View) DrawWorkbench() {
	width, height := v.GetScreenSize()
	list := v.Bench.Find("")

	v.MU.Lock()
	ti, ok := v.selected(list)
	selected := v.Selected
	report := v.Report
	status := v.Status
	v.MU.Unlock()

	v.DrawViewBorder(width-1, height-1)
	v.DrawText(2, 1, listWidth, 1, fmt.Sprintf("TRENDS (%d)", len(list)))

	rows := height - screenGutter - 3
	first := 0
	if selected >= rows && rows > 0 {
		first = selected - rows + 1
	}
	highlight := tcell.StyleDefault.Background(tcell.ColorDarkSlateGray).Foreground(tcell.ColorWhite)
	for i := first; i < len(list) && i-first < rows; i++ {
		y := screenGutter + i - first
		label := fmt.Sprintf("%-*s", listWidth-2, truncate(list[i].Name, listWidth-2))
		if i == selected {
			WriteBar(v.Screen, 1, y, listWidth, y+1, highlight)
			v.DrawTextStyle(2, y, listWidth, y, label, highlight)
		} else {
			v.DrawText(2, y, listWidth, y, label)
		}
	}

	if ok {
		v.drawDetail(listWidth+2, width-2, ti, report)
	} else {
		v.DrawText(listWidth+2, screenGutter, width-2, screenGutter, "No trends loaded.")
	}

	v.DrawText(1, height-1, width-14, height-1, truncate(status, width-16))
	v.DrawText(width-9, height-1, width, height-1, "REGLER")
	v.DrawText(2, height-2, width-2, height-2, "↑/↓ select | a analyze | r reload | q quit")
}

func (v *View) drawDetail(x, right int, ti Rs.TrendInfo, report *Rs.Report) {
	y := screenGutter
	sub := ti.Plain
	if sub == "" {
		sub = ti.Address
	}
	v.DrawText(x, y-1, right, y-1, truncate(fmt.Sprintf("%s  %s  (%d pts)", ti.Name, sub, ti.Points), right-x))

	trend, err := v.Bench.Trend(ti.ID)
	if err == nil {
		v.DrawSparkline(x, y, right-x, trend.Points)
	}
	y += 2

	if report == nil || report.TrendID != ti.ID {
		v.DrawText(x, y, right, y, "Press a to analyze.")
		return
	}

	for _, line := range report.Suggestion.Summary {
		v.DrawText(x, y, right, y, truncate(line, right-x))
		y++
	}
	y++

	cur, sug := report.Current, report.Suggestion.Parameters
	rows := [][3]string{
		{"XPY1", Ra.FormatFloat(cur.ProportionalBand, 2), Ra.FormatFloat(sug.ProportionalBand, 2)},
		{"tN", Ra.FormatFloat(cur.IntegralTime, 2), Ra.FormatFloat(sug.IntegralTime, 2)},
		{"Vorhalt", strconv.Itoa(cur.LeadTime), strconv.Itoa(sug.LeadTime)},
		{"xwh", Ra.FormatFloat(cur.DeadZone, 2), Ra.FormatFloat(sug.DeadZone, 2)},
	}
	v.DrawText(x, y, right, y, fmt.Sprintf("%-8s %10s %10s", "", "current", "suggested"))
	y++
	changed := tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorOrange)
	for _, r := range rows {
		line := fmt.Sprintf("%-8s %10s %10s", r[0], r[1], r[2])
		if r[1] != r[2] {
			v.DrawTextStyle(x, y, right, y, line, changed)
		} else {
			v.DrawText(x, y, right, y, line)
		}
		y++
	}
	if len(report.Fired) > 0 {
		y++
		v.DrawText(x, y, right, y, truncate("rules: "+strings.Join(report.Fired, ", "), right-x))
	}
}

func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}

// GetScreenSize provides the terminal size for drawing
func (v *View) GetScreenSize() (int, int) {
	width, height := v.Screen.Size()
	return width, height
}

// ResizeScreen redraws after terminal changes
func (v *View) ResizeScreen() {
	v.Screen.Sync()
	v.UpdateScreen()
}

func (v *View) UpdateScreen() {
	v.Screen.Clear()
	v.DrawWorkbench()
	v.Screen.Show()
}

// handleKeyBoardEvent runs until a quit key, redrawing after every event
func (v *View) handleKeyBoardEvent() {
	defer func() {
		if r := recover(); r != nil {
			v.Screen.Fini()
			slog.Error("Panic in event loop", slog.Any("panic", r))
			slog.Error("Recovered from panic", slog.String("stack", string(debug.Stack())))
			panic(r)
		}
	}()

	for {
		ev := v.Screen.PollEvent()
		switch ev := ev.(type) {
		case nil:
			// screen finalized
			return
		case *tcell.EventResize:
			v.ResizeScreen()
			continue
		case *tcell.EventKey:
			if v.HandleKey(ev) {
				return
			}
		case *tcell.EventInterrupt:
			// redraw requested from another goroutine
		}
		v.UpdateScreen()
	}
}

// RespWriter is a wrapper with StatsMiddleware, used for Prometheus
type RespWriter struct {
	http.ResponseWriter
	Status int
}

// WriteHeader is a helper for StatsMiddleware, used for Prometheus
func (w *RespWriter) WriteHeader(status int) {
	w.Status = status
	w.ResponseWriter.WriteHeader(status)
}

// Write is a helper for StatsMiddleware, used for Prometheus
func (w *RespWriter) Write(b []byte) (int, error) {
	return w.ResponseWriter.Write(b)
}

func (v *View) StatsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &RespWriter{
			ResponseWriter: w,
			Status:         200,
		}
		next.ServeHTTP(wrapped, r)
		v.Stats.RecWWW(strconv.Itoa(wrapped.Status), r.Method)
	})
}

// NewAPIServer builds the API server on addr.
// The View holds it before anything serves it.
func (v *View) NewAPIServer(addr string) *http.Server {
	v.server = &http.Server{
		Addr:              addr,
		Handler:           v.SetupMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return v.server
}

// Serve runs srv until it is shut down.
// A server shut down before it started returns at once.
func Serve(srv *http.Server) error {
	slog.Info("Starting regler API", slog.String("URL", Rs.UrlCat("http://", hostOrLocal(srv.Addr), "/api/trends")))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Could not start API server", slog.Any("Error", err))
		return err
	}
	return nil
}

func hostOrLocal(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}

// Shutdown stops the API server and the reload supervisor
func (v *View) Shutdown() {
	if v.Supervisor != nil {
		v.Supervisor.Stop()
	}
	if v.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := v.server.Shutdown(ctx); err != nil {
			slog.Error("API server shutdown", slog.Any("Error", err))
		}
	}
}

// StartTerminal is called by main to run the terminal view.
// The API is served alongside on addr. reload <= 0 disables periodic reloads.
func StartTerminal(bench *Rs.Workbench, stats *Ro.StatsInternal, addr string, reload time.Duration) error {
	screen, err := GetTTY()
	if err != nil {
		slog.Error("Could not get terminal", slog.Any("Error", err))
		return err
	}

	view, err := NewView(bench, screen, stats)
	if err != nil {
		screen.Fini()
		return err
	}
	if reload > 0 {
		view.NewReloadSupervisor(reload).Start()
	}

	srv := view.NewAPIServer(addr)
	go Serve(srv)

	view.UpdateScreen()
	view.handleKeyBoardEvent()

	view.Shutdown()
	screen.Fini()
	return nil
}

// StartWebNoTUI serves the API only, blocking until the server stops
func StartWebNoTUI(bench *Rs.Workbench, stats *Ro.StatsInternal, addr string, reload time.Duration) error {
	view, err := NewView(bench, nil, stats)
	if err != nil {
		return err
	}
	if reload > 0 {
		view.NewReloadSupervisor(reload).Start()
		defer view.Supervisor.Stop()
	}
	return Serve(view.NewAPIServer(addr))
}
