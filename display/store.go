package regler

import (
	"log/slog"

	Rp "github.com/Eztof/PID/plugin"
)

// InitTrendStore opens the trend cache.
// An empty path keeps the cache in memory for the life of the process.
func InitTrendStore(path string, batch int) (Rp.TrendStore, error) {
	store, err := Rp.NewBadgerStore(path, batch)
	if err != nil {
		slog.Error("Could not open trend cache", slog.String("path", path), slog.Any("Error", err))
		return nil, err
	}
	where := path
	if where == "" {
		where = "memory"
	}
	slog.Info("Trend cache open", slog.String("type", store.Type()), slog.String("path", where))
	return store, nil
}
