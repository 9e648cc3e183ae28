package regler

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"

	Rt "github.com/Eztof/PID/types"
)

// ExportHeader is the column order of an exported parameter row
var ExportHeader = []string{"Tag", "XPY1", "tN", "Vorhalt", "xwh", "TVmin", "TVmax", "EF", "KH"}

// DefaultParameters are used for trends without a parameter row
func DefaultParameters() Rt.TuningParameters {
	return Rt.TuningParameters{
		ProportionalBand: 50,
		IntegralTime:     3,
		LeadTime:         0,
		DeadZone:         0,
		DerivMin:         20,
		DerivMax:         95,
		Scale:            1.5,
		Bias:             0,
	}
}

// ParamsTable holds parameter rows keyed by Tag (or PlainAddress).
// ParseErrors collects the non-fatal problems met while reading.
type ParamsTable struct {
	Rows        map[string]map[string]string
	ParseErrors []string
}

// ParseParamsCSV reads a parameter sheet with a header row.
// Rows without a key are skipped, a repeated key replaces the earlier row.
func ParseParamsCSV(r io.Reader) (*ParamsTable, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parameter sheet: %w", io.ErrUnexpectedEOF)
	}
	if err != nil {
		return nil, fmt.Errorf("parameter sheet header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	table := &ParamsTable{Rows: make(map[string]map[string]string)}
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("parameter sheet line %d: %w", line, err)
		}
		if isBlank(record) {
			continue
		}

		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(record) {
				row[name] = record[i]
			}
		}

		key := strings.TrimSpace(row["Tag"])
		if key == "" {
			key = strings.TrimSpace(row["PlainAddress"])
		}
		if key == "" {
			table.ParseErrors = append(table.ParseErrors, fmt.Sprintf("Warning: line %d has neither Tag nor PlainAddress, skipped.", line))
			continue
		}
		table.Rows[key] = row
	}

	return table, nil
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// ParamsFor starts from defaults and fills in every non-empty column
// of the row stored for name. Unreadable numbers keep the default.
func ParamsFor(table *ParamsTable, name string, defaults Rt.TuningParameters) Rt.TuningParameters {
	p := defaults
	if table == nil {
		return p
	}
	row, ok := table.Rows[name]
	if !ok {
		return p
	}

	setFloat := func(dst *float64, columns ...string) {
		for _, c := range columns {
			raw := strings.TrimSpace(row[c])
			if raw == "" {
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				slog.Warn("Unreadable parameter", slog.String("trend", name), slog.String("column", c), slog.String("value", raw))
				return
			}
			*dst = v
			return
		}
	}

	setFloat(&p.ProportionalBand, "XPY1")
	setFloat(&p.IntegralTime, "TN", "tN")
	lead := float64(p.LeadTime)
	setFloat(&lead, "Vorhalt")
	p.LeadTime = int(math.Round(math.Max(math.MinInt32, math.Min(math.MaxInt32, lead))))
	setFloat(&p.DeadZone, "xwh")
	setFloat(&p.DerivMin, "TVmin")
	setFloat(&p.DerivMax, "TVmax")
	setFloat(&p.Scale, "EF")
	setFloat(&p.Bias, "KH")

	return p
}

// ExportCSV writes the header and one parameter row for the named trend
func ExportCSV(w io.Writer, name string, p Rt.TuningParameters) error {
	cw := csv.NewWriter(w)
	records := [][]string{
		ExportHeader,
		{
			name,
			formatParam(p.ProportionalBand),
			formatParam(p.IntegralTime),
			strconv.Itoa(p.LeadTime),
			formatParam(p.DeadZone),
			formatParam(p.DerivMin),
			formatParam(p.DerivMax),
			formatParam(p.Scale),
			formatParam(p.Bias),
		},
	}
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("writing parameter row: %w", err)
	}
	return nil
}

// shortest form that reads back to the same value
func formatParam(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
