package regler

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	Ra "github.com/Eztof/PID/analyzer"
	Rs "github.com/Eztof/PID/server"
	Rt "github.com/Eztof/PID/types"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfMargin       = 15.0
	pdfContentWidth = 210 - 2*pdfMargin // A4 portrait
	pdfLineHeight   = 6.0
	chartImageName  = "trend-chart"
)

// pdfStyler keeps the font settings of one document in one place
type pdfStyler struct {
	pdf    *gofpdf.Fpdf
	tr     func(string) string
	styles map[string]func()
}

func newPDFStyler(pdf *gofpdf.Fpdf) *pdfStyler {
	s := &pdfStyler{
		pdf: pdf,
		tr:  pdf.UnicodeTranslatorFromDescriptor(""), // cp1252
	}
	s.styles = map[string]func(){
		"h1": func() {
			pdf.SetFont("Arial", "B", 16)
			pdf.SetTextColor(0, 0, 0)
		},
		"h2": func() {
			pdf.SetFont("Arial", "B", 12)
			pdf.SetTextColor(0, 0, 0)
		},
		"normal": func() {
			pdf.SetFont("Arial", "", 10)
			pdf.SetTextColor(0, 0, 0)
		},
		"small": func() {
			pdf.SetFont("Arial", "", 8)
			pdf.SetTextColor(90, 90, 90)
		},
		"th": func() {
			pdf.SetFont("Arial", "B", 9)
			pdf.SetFillColor(200, 200, 200)
			pdf.SetTextColor(0, 0, 0)
		},
		"td": func() {
			pdf.SetFont("Arial", "", 9)
			pdf.SetTextColor(0, 0, 0)
		},
		"changed": func() {
			pdf.SetFont("Arial", "B", 9)
			pdf.SetTextColor(200, 0, 0)
		},
	}
	return s
}

// text maps characters the core fonts lack before translating to cp1252
var pdfReplacer = strings.NewReplacer("≈", "~")

func (s *pdfStyler) text(str string) string {
	return s.tr(pdfReplacer.Replace(str))
}

func (s *pdfStyler) paragraph(str, style string) {
	s.styles[style]()
	s.pdf.MultiCell(pdfContentWidth, pdfLineHeight, s.text(str), "", "L", false)
}

func (s *pdfStyler) spacer(h float64) {
	s.pdf.Ln(h)
}

// BuildPDF writes the report of one analysis: summary lines,
// current and suggested parameters side by side, and the trend chart
func BuildPDF(w io.Writer, trend *Rt.Trend, rep *Rs.Report) error {
	if rep == nil {
		return fmt.Errorf("no report to render")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetTitle("Tuning report "+rep.Trend, true)
	pdf.SetCreator("regler", true)
	pdf.AddPage()

	s := newPDFStyler(pdf)

	s.paragraph("Tuning report: "+rep.Trend, "h1")
	s.paragraph(fmt.Sprintf("Report %s, created %s", rep.ID, rep.Created.Format("2006-01-02 15:04:05 MST")), "small")
	if rep.Previous != nil {
		s.paragraph("Follows report "+rep.Previous.String(), "small")
	}
	s.spacer(4)

	s.paragraph("Summary", "h2")
	for _, line := range rep.Suggestion.Summary {
		s.paragraph(line, "normal")
	}
	if len(rep.Fired) > 0 {
		s.paragraph("Rules applied: "+strings.Join(rep.Fired, ", "), "normal")
	} else {
		s.paragraph("Rules applied: none", "normal")
	}
	s.spacer(4)

	s.paragraph("Parameters", "h2")
	s.parameterTable(rep.Current, rep.Suggestion.Parameters)
	s.spacer(4)

	if trend != nil && len(trend.Points) > 0 {
		chart, err := TrendPlot(trend, rep.Suggestion.Metrics.SteadyState, rep.Setpoint, rep.Unit)
		if err != nil {
			return fmt.Errorf("chart: %w", err)
		}
		pdf.RegisterImageOptionsReader(chartImageName, gofpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(chart))
		height := pdfContentWidth * chartHeight / chartWidth
		if pdf.GetY()+height > 297-pdfMargin {
			pdf.AddPage()
		}
		pdf.ImageOptions(chartImageName, pdfMargin, pdf.GetY(), pdfContentWidth, height, true, gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("building pdf: %w", err)
	}
	return pdf.Output(w)
}

type paramRow struct {
	name               string
	current, suggested string
}

func paramRows(cur, sug Rt.TuningParameters) []paramRow {
	f := func(v float64) string { return Ra.FormatFloat(v, 2) }
	return []paramRow{
		{"XPY1 (proportional band)", f(cur.ProportionalBand), f(sug.ProportionalBand)},
		{"tN (reset time)", f(cur.IntegralTime), f(sug.IntegralTime)},
		{"Vorhalt (lead time)", strconv.Itoa(cur.LeadTime), strconv.Itoa(sug.LeadTime)},
		{"xwh (neutral zone)", f(cur.DeadZone), f(sug.DeadZone)},
		{"TVmin", f(cur.DerivMin), f(sug.DerivMin)},
		{"TVmax", f(cur.DerivMax), f(sug.DerivMax)},
		{"EF", f(cur.Scale), f(sug.Scale)},
		{"KH", f(cur.Bias), f(sug.Bias)},
	}
}

func (s *pdfStyler) parameterTable(cur, sug Rt.TuningParameters) {
	widths := []float64{pdfContentWidth * 0.5, pdfContentWidth * 0.25, pdfContentWidth * 0.25}

	s.styles["th"]()
	for i, h := range []string{"Parameter", "Current", "Suggested"} {
		s.pdf.CellFormat(widths[i], pdfLineHeight, h, "1", 0, "C", true, 0, "")
	}
	s.pdf.Ln(-1)

	for _, r := range paramRows(cur, sug) {
		s.styles["td"]()
		s.pdf.CellFormat(widths[0], pdfLineHeight, s.text(r.name), "1", 0, "L", false, 0, "")
		s.pdf.CellFormat(widths[1], pdfLineHeight, r.current, "1", 0, "R", false, 0, "")
		if r.current != r.suggested {
			s.styles["changed"]()
		}
		s.pdf.CellFormat(widths[2], pdfLineHeight, r.suggested, "1", 0, "R", false, 0, "")
		s.pdf.Ln(-1)
	}
}
