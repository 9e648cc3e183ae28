package regler

/*
	Trend exports are XML documents with a Content element
	holding one TrendObject per recorded signal:

	<Content>
	  <TrendObject Address="B01.TT01">
	    <PlainAddress>Plant/AHU1/Supply air</PlainAddress>
	    <Entry TimeStamp="2025-03-01T08:00:00Z" Value="21.4"/>
	    ...
*/

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	Rt "github.com/Eztof/PID/types"
)

// Accepted TimeStamp layouts, tried in order.
// Layouts without a zone are read as local time.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
}

type trendObject struct {
	Address   string
	Plain     string
	plainSeen bool
	Entries   []trendEntry
}

type trendEntry struct {
	TimeStamp string
	Value     string
}

// UnmarshalXML picks up the first PlainAddress and every Entry
// at any depth below the TrendObject
func (o *trendObject) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	o.Address = attrValue(start, "Address")

	depth := 0
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "PlainAddress":
				if !o.plainSeen {
					var text string
					if err := d.DecodeElement(&text, &el); err != nil {
						return err
					}
					o.Plain = strings.TrimSpace(text)
					o.plainSeen = true
					continue
				}
			case "Entry":
				o.Entries = append(o.Entries, trendEntry{
					TimeStamp: attrValue(el, "TimeStamp"),
					Value:     attrValue(el, "Value"),
				})
			}
			depth++
		case xml.EndElement:
			if depth == 0 {
				return nil
			}
			depth--
		}
	}
}

func attrValue(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// ParseTrendXML reads every TrendObject that is a direct child of a Content element.
// Entries with an unreadable TimeStamp or Value are skipped,
// objects left without entries are dropped. IDs count from 1 in document order,
// dropped objects keep their number.
func ParseTrendXML(r io.Reader) ([]*Rt.Trend, error) {
	d := xml.NewDecoder(r)

	var trends []*Rt.Trend
	var parents []string
	index := 0

	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			slog.Error("Could not read trend export", slog.Any("Error", err))
			return nil, fmt.Errorf("trend export: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Local == "TrendObject" && len(parents) > 0 && parents[len(parents)-1] == "Content" {
				index++
				var obj trendObject
				if err := d.DecodeElement(&obj, &el); err != nil {
					return nil, fmt.Errorf("trend object %d: %w", index, err)
				}
				if t := obj.toTrend(index); t != nil {
					trends = append(trends, t)
				}
				continue
			}
			parents = append(parents, el.Name.Local)
		case xml.EndElement:
			if len(parents) > 0 {
				parents = parents[:len(parents)-1]
			}
		}
	}

	slog.Info("Trend export read", slog.Int("objects", index), slog.Int("trends", len(trends)))
	return trends, nil
}

func (o *trendObject) toTrend(id int) *Rt.Trend {
	points := make(Rt.Series, 0, len(o.Entries))
	skipped := 0
	for _, e := range o.Entries {
		ts, err := ParseTimestamp(e.TimeStamp)
		if err != nil {
			skipped++
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(e.Value), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			skipped++
			continue
		}
		points = append(points, Rt.Sample{Timestamp: ts, Value: v})
	}

	name := trendName(o.Plain, o.Address, id)
	if skipped > 0 {
		slog.Warn("Skipped unreadable entries", slog.String("trend", name), slog.Int("skipped", skipped))
	}
	if len(points) == 0 {
		return nil
	}

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})

	return &Rt.Trend{
		ID:      id,
		Name:    name,
		Address: o.Address,
		Plain:   o.Plain,
		Points:  points,
	}
}

// trendName is the last segment of the plain address,
// then the address, then a numbered fallback
func trendName(plain, address string, id int) string {
	if plain != "" {
		parts := strings.Split(plain, "/")
		if last := parts[len(parts)-1]; last != "" {
			return last
		}
	}
	if address != "" {
		return address
	}
	return "Trend " + strconv.Itoa(id)
}

// ParseTimestamp reads an ISO 8601 timestamp, a bare date is midnight UTC
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return ts, nil
		}
	}
	if ts, err := time.Parse(time.DateOnly, s); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("unreadable timestamp %q", s)
}
