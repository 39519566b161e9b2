// Command tribelands runs the world-state store and its ops API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tribelands/server/internal/api"
	"github.com/tribelands/server/internal/persistence"
	"github.com/tribelands/server/internal/world"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := persistence.LoadConfig()
	if err != nil {
		slog.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	ctrl := persistence.NewController(cfg)
	if err := ctrl.Initialize(ctx); err != nil {
		slog.Error("storage initialization failed", "error", err)
		os.Exit(1)
	}
	defer ctrl.Close()

	ws, err := ctrl.GetWorldState(ctx)
	if err != nil {
		slog.Error("world state unreadable", "error", err)
		os.Exit(1)
	}

	if ws != nil {
		counts := world.TerrainCounts(world.Index(ws.Hexes, ws.GenSettings.Radius))
		for t, c := range counts {
			slog.Info("terrain", "type", world.TerrainName(t), "count", c)
		}
		slog.Info("world loaded",
			"turn", ws.Turn,
			"tribes", len(ws.Tribes),
			"hexes", len(ws.Hexes),
			"mode", persistence.ModeName(ctrl.Mode()),
		)
	} else {
		slog.Info("no world persisted yet", "mode", persistence.ModeName(ctrl.Mode()))
	}

	apiServer := &api.Server{
		Ctrl:     ctrl,
		Port:     cfg.Port,
		AdminKey: cfg.AdminKey,
	}
	apiServer.Start()

	fmt.Printf("Tribelands store is up (%s mode). Ops API: http://localhost:%d/api/v1/status\n",
		persistence.ModeName(ctrl.Mode()), cfg.Port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down", "signal", sig)
}
