package repair

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tribelands/server/internal/game"
)

func coordWorld(t *testing.T) *game.WorldState {
	t.Helper()
	return &game.WorldState{
		Tribes: []*game.Tribe{
			{
				Name: "Ashfolk",
				IsAI: true,
				Garrisons: map[string]*game.Garrison{
					mustKey(t, 0, 0): {Troops: 120, Weapons: 30},
					mustKey(t, 1, 0): {Troops: 40},
				},
			},
			{
				Name: "Boarclan",
				IsAI: true,
				Garrisons: map[string]*game.Garrison{
					mustKey(t, 0, 1): {Troops: 90},
				},
			},
		},
	}
}

func TestBackupAndRestoreGarrisonCoords(t *testing.T) {
	dir := t.TempDir()
	ws := coordWorld(t)

	want := map[string]map[string]*game.Garrison{}
	for _, tr := range ws.Tribes {
		m := map[string]*game.Garrison{}
		for k, g := range tr.Garrisons {
			cp := *g
			m[k] = &cp
		}
		want[tr.Name] = m
	}

	path, err := BackupGarrisonCoords(ws, dir)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(path), backupPrefix) {
		t.Fatalf("backup file %q lacks the %q prefix", path, backupPrefix)
	}

	// Scramble everything, then restore.
	for _, tr := range ws.Tribes {
		tr.Garrisons = map[string]*game.Garrison{
			mustKey(t, 9, 9): {Troops: 1},
		}
	}

	n, err := RestoreGarrisonCoords(ws, dir)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if n != 3 {
		t.Fatalf("restored=%d, want 3", n)
	}
	for _, tr := range ws.Tribes {
		if diff := cmp.Diff(want[tr.Name], tr.Garrisons); diff != "" {
			t.Errorf("%s garrisons after restore (-want +got):\n%s", tr.Name, diff)
		}
	}
}

func TestRestore_NoBackupsFails(t *testing.T) {
	if _, err := RestoreGarrisonCoords(coordWorld(t), t.TempDir()); err == nil {
		t.Fatal("restore succeeded with no backups present")
	}
}

func TestFixGarrisonCoords_RepairsRawAxialKeys(t *testing.T) {
	dir := t.TempDir()
	ws := coordWorld(t)
	ash := ws.TribeByName("Ashfolk")
	ash.Garrisons["-3.4"] = &game.Garrison{Troops: 15, Weapons: 2}

	n, err := FixGarrisonCoords(ws, dir)
	if err != nil {
		t.Fatalf("fix: %v", err)
	}
	if n != 1 {
		t.Fatalf("repaired=%d, want 1", n)
	}

	if ash.Garrisons["-3.4"] != nil {
		t.Error("raw key still present after fix")
	}
	g := ash.Garrisons[mustKey(t, -3, 4)]
	if g == nil {
		t.Fatal("canonical key missing after fix")
	}
	if g.Troops != 15 || g.Weapons != 2 {
		t.Errorf("garrison payload changed during re-key: %+v", g)
	}

	// A backup was taken before anything moved.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read backup dir: %v", err)
	}
	found := false
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), backupPrefix) {
			found = true
		}
	}
	if !found {
		t.Error("no backup written before the fix")
	}
}

func TestFixGarrisonCoords_OccupiedCanonicalDropsRaw(t *testing.T) {
	dir := t.TempDir()
	ws := coordWorld(t)
	ash := ws.TribeByName("Ashfolk")
	// Raw form of (0, 0), whose canonical key is already occupied.
	ash.Garrisons["0.0"] = &game.Garrison{Troops: 1}

	n, err := FixGarrisonCoords(ws, dir)
	if err != nil {
		t.Fatalf("fix: %v", err)
	}
	if n != 0 {
		t.Fatalf("repaired=%d, want 0 (drop, not repair)", n)
	}
	if ash.Garrisons["0.0"] != nil {
		t.Error("raw duplicate key still present")
	}
	if g := ash.Garrisons[mustKey(t, 0, 0)]; g == nil || g.Troops != 120 {
		t.Errorf("existing canonical garrison disturbed: %+v", g)
	}
}

func TestFixGarrisonCoords_RefusesWithoutBackup(t *testing.T) {
	// A regular file where the backup directory should be makes the
	// backup fail.
	blocked := filepath.Join(t.TempDir(), "blocked")
	if err := os.WriteFile(blocked, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}

	ws := coordWorld(t)
	ws.Tribes[0].Garrisons["-3.4"] = &game.Garrison{Troops: 15}

	if _, err := FixGarrisonCoords(ws, filepath.Join(blocked, "backups")); err == nil {
		t.Fatal("fix ran without a backup")
	}
	if ws.Tribes[0].Garrisons["-3.4"] == nil {
		t.Error("garrisons mutated despite refused fix")
	}
}

func TestFixGarrisonCoords_LeavesMalformedKeys(t *testing.T) {
	dir := t.TempDir()
	ws := coordWorld(t)
	ws.Tribes[0].Garrisons["garbage"] = &game.Garrison{Troops: 3}

	n, err := FixGarrisonCoords(ws, dir)
	if err != nil {
		t.Fatalf("fix: %v", err)
	}
	if n != 0 {
		t.Fatalf("repaired=%d, want 0", n)
	}
	if ws.Tribes[0].Garrisons["garbage"] == nil {
		t.Error("unrepairable key removed instead of left as-is")
	}
}

func TestClassifyKey(t *testing.T) {
	cases := map[string]KeyClass{
		"050.050": KeyCanonical,
		"027.054": KeyCanonical,
		"-3.4":    KeyRawAxial,
		"0.0":     KeyRawAxial,
		"12.7":    KeyRawAxial,
		"garbage": KeyMalformed,
		"":        KeyMalformed,
		"a.b":     KeyMalformed,
	}
	for key, want := range cases {
		if got := ClassifyKey(key); got != want {
			t.Errorf("ClassifyKey(%q)=%s, want %s", key, got, want)
		}
	}
}

