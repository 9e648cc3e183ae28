package plugin

import (
	"fmt"

	Rt "github.com/Eztof/PID/types"
)

// DefaultWindow is the moving average window used by the tuning heuristic
const DefaultWindow = 5

// Transformers is a global map of SeriesTransformer plugins.
var Transformers = map[string]func() SeriesTransformer{
	"moving_avg": func() SeriesTransformer {
		return NewMovingAvg(DefaultWindow)
	},
	"derivative": func() SeriesTransformer {
		return &DerivePlugin{}
	},
}

func TransformerLookup(name string) (SeriesTransformer, error) {
	factory, ok := Transformers[name]
	if !ok {
		return nil, fmt.Errorf("unknown transformer: %s", name)
	}
	return factory(), nil
}

// Chain runs the named transformers in order over a Series
func Chain(series Rt.Series, names ...string) (Rt.Series, error) {
	out := series
	for _, name := range names {
		tr, err := TransformerLookup(name)
		if err != nil {
			return nil, err
		}
		out, err = tr.Transform(out)
		if err != nil {
			return nil, fmt.Errorf("transformer %s: %w", name, err)
		}
	}
	return out, nil
}
