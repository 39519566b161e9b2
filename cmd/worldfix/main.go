// Command worldfix is the maintenance CLI for world-state repairs:
// diagnostics, garrison coordinate backup/restore/fix, and fortified
// outpost ownership reconciliation.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/tribelands/server/internal/game"
	"github.com/tribelands/server/internal/persistence"
	"github.com/tribelands/server/internal/repair"
	"github.com/tribelands/server/internal/world"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: worldfix <command> [args]

commands:
  diagnose               print a read-only integrity report
  backup                 snapshot garrison coordinates to a timestamped file
  restore                restore garrison coordinates from the latest snapshot
  fixcoords              repair legacy raw-axial garrison keys (backs up first)
  reconcile [location]   fix fortified-outpost ownership (all, or one hex)
`)
	os.Exit(2)
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		usage()
	}
	command := os.Args[1]

	cfg, err := persistence.LoadConfig()
	if err != nil {
		fatal("configuration invalid", err)
	}

	ctx := context.Background()
	ctrl := persistence.NewController(cfg)
	if err := ctrl.Initialize(ctx); err != nil {
		fatal("storage initialization failed", err)
	}
	defer ctrl.Close()

	ws, err := ctrl.GetWorldState(ctx)
	if err != nil {
		fatal("world state unreadable", err)
	}
	if ws == nil {
		fatal("no world state persisted", nil)
	}

	switch command {
	case "diagnose":
		report := repair.Diagnose(ws, 50)
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(out))

	case "backup":
		path, err := repair.BackupGarrisonCoords(ws, ctrl.BackupDir())
		if err != nil {
			fatal("backup failed", err)
		}
		fmt.Println(path)

	case "restore":
		n, err := repair.RestoreGarrisonCoords(ws, ctrl.BackupDir())
		if err != nil {
			fatal("restore failed", err)
		}
		persist(ctx, ctrl, ws)
		fmt.Printf("restored %d garrisons\n", n)

	case "fixcoords":
		n, err := repair.FixGarrisonCoords(ws, ctrl.BackupDir())
		if err != nil {
			fatal("coordinate fix failed", err)
		}
		if n > 0 {
			persist(ctx, ctrl, ws)
		}
		fmt.Printf("repaired %d garrison keys\n", n)

	case "reconcile":
		changed := reconcile(ws, os.Args[2:])
		if changed > 0 {
			persist(ctx, ctrl, ws)
		}
		fmt.Printf("%d ownership corrections\n", changed)

	default:
		usage()
	}
}

func reconcile(ws *game.WorldState, args []string) int {
	if len(args) == 0 {
		return repair.ReconcileAllOwnership(ws)
	}
	coord, err := world.ParseLocation(args[0])
	if err != nil {
		fatal("bad location key", err)
	}
	hex := ws.HexAt(coord)
	if hex == nil {
		fatal(fmt.Sprintf("no hex at %s", args[0]), nil)
	}
	if repair.ReconcileHexOwnership(ws, hex) {
		return 1
	}
	return 0
}

func persist(ctx context.Context, ctrl *persistence.Controller, ws *game.WorldState) {
	// Validation already ran when this state was loaded.
	if err := ctrl.PersistWorldState(ctx, ws, persistence.PersistOptions{SkipValidation: true}); err != nil {
		fatal("persist failed", err)
	}
}

func fatal(msg string, err error) {
	if err != nil {
		slog.Error(msg, "error", err)
	} else {
		slog.Error(msg)
	}
	os.Exit(1)
}
