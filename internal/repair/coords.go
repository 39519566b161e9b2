package repair

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tribelands/server/internal/game"
	"github.com/tribelands/server/internal/world"
)

const backupPrefix = "coordbackup-"

// coordSnapshot is one timestamped garrison-coordinate backup file.
type coordSnapshot struct {
	TakenAt time.Time       `json:"taken_at"`
	Entries []snapshotEntry `json:"entries"`
}

type snapshotEntry struct {
	Tribe    string        `json:"tribe"`
	Location string        `json:"location"`
	Garrison game.Garrison `json:"garrison"`
}

// BackupGarrisonCoords snapshots every garrison's current location (with
// owning tribe and payload) to a timestamped file in dir. Returns the
// written path.
func BackupGarrisonCoords(ws *game.WorldState, dir string) (string, error) {
	snap := coordSnapshot{TakenAt: time.Now().UTC()}
	for _, t := range ws.Tribes {
		for key, g := range t.Garrisons {
			snap.Entries = append(snap.Entries, snapshotEntry{
				Tribe:    t.Name,
				Location: key,
				Garrison: *g,
			})
		}
	}
	sort.Slice(snap.Entries, func(i, j int) bool {
		if snap.Entries[i].Tribe != snap.Entries[j].Tribe {
			return snap.Entries[i].Tribe < snap.Entries[j].Tribe
		}
		return snap.Entries[i].Location < snap.Entries[j].Location
	})

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("backup dir: %w", err)
	}
	path := filepath.Join(dir, backupPrefix+snap.TakenAt.Format("20060102-150405")+".json")
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode backup: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}

	slog.Info("garrison coordinate backup written", "path", path, "entries", len(snap.Entries))
	return path, nil
}

// latestBackup finds the most recent coordinate backup in dir.
func latestBackup(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), backupPrefix) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no coordinate backups in %s", dir)
	}
	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}

// RestoreGarrisonCoords reads the most recent snapshot and writes the
// recorded garrison locations back verbatim, replacing the garrison map
// of every tribe present in the snapshot. Returns the number of
// garrisons restored.
func RestoreGarrisonCoords(ws *game.WorldState, dir string) (int, error) {
	path, err := latestBackup(dir)
	if err != nil {
		return 0, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read backup: %w", err)
	}
	var snap coordSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return 0, fmt.Errorf("decode backup %s: %w", path, err)
	}

	touched := make(map[string]bool)
	restored := 0
	for _, e := range snap.Entries {
		t := ws.TribeByName(e.Tribe)
		if t == nil {
			slog.Warn("backup names unknown tribe, entry skipped", "tribe", e.Tribe, "location", e.Location)
			continue
		}
		if !touched[t.Name] {
			t.Garrisons = make(map[string]*game.Garrison)
			touched[t.Name] = true
		}
		g := e.Garrison
		t.Garrisons[e.Location] = &g
		restored++
	}

	slog.Info("garrison coordinates restored", "path", path, "garrisons", restored)
	return restored, nil
}

// FixGarrisonCoords repairs garrison keys written in the legacy raw
// axial form ("-23.4" instead of "027.054") by earlier translation
// bugs. It refuses to touch anything unless a fresh backup has been
// written first.
func FixGarrisonCoords(ws *game.WorldState, dir string) (int, error) {
	if _, err := BackupGarrisonCoords(ws, dir); err != nil {
		return 0, fmt.Errorf("refusing coordinate fix, backup failed: %w", err)
	}

	fixed := 0
	for _, t := range ws.Tribes {
		for key, g := range t.Garrisons {
			if _, err := world.ParseLocation(key); err == nil {
				continue // already canonical
			}
			coord, ok := parseRawAxial(key)
			if !ok {
				slog.Error("garrison key unrepairable, left as-is", "tribe", t.Name, "key", key)
				continue
			}
			canonical, err := world.FormatLocation(coord.Q, coord.R)
			if err != nil {
				slog.Error("garrison key out of range, left as-is", "tribe", t.Name, "key", key, "error", err)
				continue
			}
			if existing := t.Garrisons[canonical]; existing != nil {
				slog.Warn("canonical key already occupied, raw key dropped",
					"tribe", t.Name, "raw", key, "canonical", canonical)
				delete(t.Garrisons, key)
				continue
			}
			delete(t.Garrisons, key)
			t.Garrisons[canonical] = g
			fixed++
			slog.Info("garrison key repaired", "tribe", t.Name, "raw", key, "canonical", canonical)
		}
	}
	return fixed, nil
}

// parseRawAxial interprets a key as two signed decimal integers with no
// offset or padding, the shape produced by the historical bug.
func parseRawAxial(key string) (world.HexCoord, bool) {
	parts := strings.Split(key, ".")
	if len(parts) != 2 {
		return world.HexCoord{}, false
	}
	q, err1 := strconv.Atoi(parts[0])
	r, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return world.HexCoord{}, false
	}
	return world.HexCoord{Q: q, R: r}, true
}
