package regler

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"

	Ra "github.com/Eztof/PID/analyzer"
	Rp "github.com/Eztof/PID/plugin"
	Rs "github.com/Eztof/PID/server"
	Rt "github.com/Eztof/PID/types"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var ErrNoPoints = errors.New("trend has no points")

var (
	rawColor      = color.RGBA{R: 160, G: 160, B: 160, A: 255}
	smoothColor   = color.RGBA{B: 200, A: 255}
	steadyColor   = color.RGBA{G: 150, A: 255}
	setpointColor = color.RGBA{R: 220, A: 255}
)

// Chart sizes in points
const (
	chartWidth  = 800
	chartHeight = 400
)

// TrendPlot draws the raw and smoothed trend as PNG, with horizontal
// lines for the steady state and the setpoint when they are known.
// Both curves are downsampled for drawing, smoothing uses every sample.
func TrendPlot(trend *Rt.Trend, steady, setpoint Rt.Metric, unit string) ([]byte, error) {
	if trend == nil || len(trend.Points) == 0 {
		return nil, ErrNoPoints
	}

	p := plot.New()
	p.Title.Text = trend.Name
	p.X.Label.Text = "Time"
	p.X.Tick.Marker = plot.TimeTicks{Format: "15:04:05"}
	p.Y.Label.Text = "PV"
	if unit != "" {
		p.Y.Label.Text = fmt.Sprintf("PV (%s)", unit)
	}
	p.Add(plotter.NewGrid())

	raw := Rs.Downsample(trend.Points, Rs.DefaultDownsample)
	smooth := Rs.Downsample(Rp.MovingAvg(trend.Points, Ra.SmoothWindow), Rs.DefaultDownsample)

	rawLine, err := plotter.NewLine(toXYs(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to create raw line: %w", err)
	}
	rawLine.Color = rawColor
	rawLine.LineStyle.Width = vg.Points(1)
	p.Add(rawLine)
	p.Legend.Add("raw", rawLine)

	smoothLine, err := plotter.NewLine(toXYs(smooth))
	if err != nil {
		return nil, fmt.Errorf("failed to create smoothed line: %w", err)
	}
	smoothLine.Color = smoothColor
	smoothLine.LineStyle.Width = vg.Points(1.5)
	p.Add(smoothLine)
	p.Legend.Add(fmt.Sprintf("moving average (%d)", Ra.SmoothWindow), smoothLine)

	first := unixSeconds(trend.Points[0])
	last := unixSeconds(trend.Points[len(trend.Points)-1])

	if steady.Valid {
		if err := addLevel(p, first, last, steady.Value, steadyColor, "steady state"); err != nil {
			return nil, err
		}
	}
	if setpoint.Valid {
		if err := addLevel(p, first, last, setpoint.Value, setpointColor, "setpoint"); err != nil {
			return nil, err
		}
	}

	p.Legend.Top = true
	p.Legend.XOffs = vg.Points(-10)

	writer, err := p.WriterTo(vg.Points(chartWidth), vg.Points(chartHeight), "png")
	if err != nil {
		return nil, fmt.Errorf("failed to create plot writer: %w", err)
	}
	buf := new(bytes.Buffer)
	if _, err := writer.WriteTo(buf); err != nil {
		return nil, fmt.Errorf("failed to write plot to buffer: %w", err)
	}
	return buf.Bytes(), nil
}

// addLevel draws a dashed horizontal line across the recording
func addLevel(p *plot.Plot, x0, x1, y float64, c color.Color, label string) error {
	line, err := plotter.NewLine(plotter.XYs{{X: x0, Y: y}, {X: x1, Y: y}})
	if err != nil {
		return fmt.Errorf("failed to create %s line: %w", label, err)
	}
	line.Color = c
	line.LineStyle.Dashes = []vg.Length{vg.Points(5), vg.Points(5)}
	p.Add(line)
	p.Legend.Add(label, line)
	return nil
}

func toXYs(series Rt.Series) plotter.XYs {
	pts := make(plotter.XYs, len(series))
	for i, s := range series {
		pts[i] = plotter.XY{X: unixSeconds(s), Y: s.Value}
	}
	return pts
}

func unixSeconds(s Rt.Sample) float64 {
	return float64(s.Timestamp.UnixNano()) / 1e9
}
