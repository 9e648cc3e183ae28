package regler_test

import (
	"strings"
	"testing"
	"time"

	Rs "github.com/Eztof/PID/server"
)

const trendExport = `<?xml version="1.0" encoding="utf-8"?>
<TrendExport>
  <Content>
    <TrendObject Address="B01.TT01">
      <PlainAddress> Plant/AHU1/Supply air </PlainAddress>
      <Entries>
        <Entry TimeStamp="2025-03-01T08:00:02Z" Value="21.8"/>
        <Entry TimeStamp="2025-03-01T08:00:00Z" Value="21.4"/>
        <Entry TimeStamp="2025-03-01T08:00:01Z" Value="21.6"/>
      </Entries>
    </TrendObject>
    <TrendObject Address="B01.TT02">
      <Entry TimeStamp="2025-03-01T08:00:00Z" Value="n/a"/>
      <Entry TimeStamp="yesterday" Value="3"/>
    </TrendObject>
    <TrendObject Address="B01.PT03">
      <Entry TimeStamp="2025-03-01T08:00:00Z" Value="1.25"/>
      <Entry TimeStamp="2025-03-01T08:00:05Z" Value=""/>
    </TrendObject>
    <TrendObject>
      <PlainAddress></PlainAddress>
      <Entry TimeStamp="2025-03-01" Value="-4e1"/>
    </TrendObject>
  </Content>
  <TrendObject Address="OUTSIDE">
    <Entry TimeStamp="2025-03-01T08:00:00Z" Value="1"/>
  </TrendObject>
</TrendExport>`

func TestParseTrendXML(t *testing.T) {
	trends, err := Rs.ParseTrendXML(strings.NewReader(trendExport))
	assertError(t, err, nil)

	t.Run("Objects without readable entries are dropped", func(t *testing.T) {
		assertInt(t, len(trends), 3)
	})

	t.Run("IDs follow document order", func(t *testing.T) {
		ids := []int{trends[0].ID, trends[1].ID, trends[2].ID}
		want := []int{1, 3, 4}
		for i := range want {
			assertInt(t, ids[i], want[i])
		}
	})

	t.Run("Name is the last segment of the plain address", func(t *testing.T) {
		assertString(t, trends[0].Name, "Supply air")
		assertString(t, trends[0].Plain, "Plant/AHU1/Supply air")
		assertString(t, trends[0].Address, "B01.TT01")
	})

	t.Run("Name falls back to address then number", func(t *testing.T) {
		assertString(t, trends[1].Name, "B01.PT03")
		assertString(t, trends[2].Name, "Trend 4")
	})

	t.Run("Entries are sorted by time", func(t *testing.T) {
		pts := trends[0].Points
		assertInt(t, len(pts), 3)
		assertFloat(t, pts[0].Value, 21.4)
		assertFloat(t, pts[1].Value, 21.6)
		assertFloat(t, pts[2].Value, 21.8)
		for i := 1; i < len(pts); i++ {
			if pts[i].Timestamp.Before(pts[i-1].Timestamp) {
				t.Errorf("point %d is out of order", i)
			}
		}
	})

	t.Run("Empty values are skipped", func(t *testing.T) {
		assertInt(t, len(trends[1].Points), 1)
	})

	t.Run("Scientific notation and bare dates are read", func(t *testing.T) {
		p := trends[2].Points[0]
		assertFloat(t, p.Value, -40)
		if !p.Timestamp.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("got %v, want midnight UTC", p.Timestamp)
		}
	})

	t.Run("Malformed XML errors", func(t *testing.T) {
		_, err := Rs.ParseTrendXML(strings.NewReader(`<Content><TrendObject Address="x">`))
		assertGotError(t, err)
	})

	t.Run("A document without Content has no trends", func(t *testing.T) {
		got, err := Rs.ParseTrendXML(strings.NewReader(`<Other><TrendObject/></Other>`))
		assertError(t, err, nil)
		assertInt(t, len(got), 0)
	})
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name string
		in   string
		ok   bool
	}{
		{"RFC3339 with zone", "2025-03-01T08:00:00+01:00", true},
		{"Fractional seconds", "2025-03-01T08:00:00.250Z", true},
		{"Local without zone", "2025-03-01T08:00:00", true},
		{"Space separated", "2025-03-01 08:00:00", true},
		{"Date only", "2025-03-01", true},
		{"Garbage", "next tuesday", false},
		{"Empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Rs.ParseTimestamp(tt.in)
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Errorf("expected an error for %q", tt.in)
			}
		})
	}
}
