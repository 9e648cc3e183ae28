package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	Rd "github.com/Eztof/PID/display"
	Ro "github.com/Eztof/PID/obvy"
	Rs "github.com/Eztof/PID/server"
)

func main() {
	configFile := Rs.FillEnvVarDefault("REGLER_CONFIG", "regler.json")
	addr := Rs.FillEnvVarDefault("REGLER_ADDR", ":8090")
	ui := Rs.FillEnvVarDefault("REGLER_UI", "tui")
	storePath := Rs.FillEnvVarDefault("REGLER_STORE_PATH", "")
	reload := time.Duration(Rs.FillEnvVarInt("REGLER_RELOAD_SECONDS", 0)) * time.Second

	ctx := context.Background()

	shutdown, err := Ro.InitOTel(ctx, Rs.FillEnvVar("REGLER_OTEL"))
	if err != nil {
		slog.Error("Could not start tracing", slog.Any("Error", err))
		os.Exit(1)
	}
	defer shutdown()

	config, err := Rs.LoadConfigFileName(configFile)
	if err != nil {
		slog.Error("Could not load config", slog.String("file", configFile), slog.Any("Error", err))
		os.Exit(1)
	}

	store, err := Rd.InitTrendStore(storePath, 100)
	if err != nil {
		os.Exit(1)
	}
	defer store.Close()

	stats := Ro.NewStatsInternal()
	bench := Rs.NewWorkbench(config, store, stats)
	if err := bench.Load(ctx); err != nil {
		// a previous cache may still serve, keep going while anything loaded
		slog.Error("Initial load failed", slog.Any("Error", err))
		if len(bench.List()) == 0 {
			os.Exit(1)
		}
	}

	switch ui {
	case "web":
		err = Rd.StartWebNoTUI(bench, stats, addr, reload)
	default:
		err = Rd.StartTerminal(bench, stats, addr, reload)
	}
	if err != nil {
		slog.Error("regler stopped", slog.Any("Error", err))
		shutdown()
		store.Close()
		os.Exit(1)
	}
}
