package plugin

/*

	The Adapter sits aside /regler/
	Contains core interfaces for Plugin

*/

import (
	"time"

	Rt "github.com/Eztof/PID/types"
)

// SeriesTransformer turns one Series into another.
// HysteresisReq is how many past samples a single output needs,
// for instance the moving average over 5 needs 4,
// the derivative needs 1.
type SeriesTransformer interface {
	Transform(series Rt.Series) (Rt.Series, error)
	HysteresisReq() int                                   // Required samples in the past needed for one output
	Type() string                                          // Unique ID for the transformer
}

// TrendStore is where imported trends are cached between loads,
// trend-by-trend or in batches if supported by the store.
type TrendStore interface {
	WriteTrend(trend *Rt.Trend) error                      // Write singleton trend
	WriteBatch(trends []*Rt.Trend) error                   // Write batches of trends
	ReplacePrefix(prefix string, trends []*Rt.Trend) error // Replace every trend under a name prefix
	ReadTrend(name string) (*Rt.Trend, error)              // Single trend by name
	QueryRange(start, end time.Time) ([]*Rt.Trend, error)  // Trends starting inside a time range
	Flush() error                                          // Flush any buffered data
	Close() error                                          // Close the store and release resources
	Type() string                                          // ID for store
}
