package persistence

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/tribelands/server/internal/game"
)

func TestWriteJSONAtomic_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	fs := newFileStore(dir)

	if err := fs.writeJSONAtomic(fs.path("doc.json"), map[string]int{"a": 1}); err != nil {
		t.Fatalf("write: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}

	var got map[string]int
	if err := fs.readJSON(fs.path("doc.json"), &got); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if got["a"] != 1 {
		t.Fatalf("read back %v", got)
	}
}

func TestSaveWorld_ArchivesPreviousDocument(t *testing.T) {
	dir := t.TempDir()
	fs := newFileStore(dir)
	if err := fs.ensureDefaults(); err != nil {
		t.Fatalf("ensure defaults: %v", err)
	}

	first := &worldDoc{World: &game.WorldState{Turn: 1}}
	if err := fs.saveWorld(first); err != nil {
		t.Fatalf("first save: %v", err)
	}
	// First save has nothing to archive.
	if _, err := os.Stat(fs.path(archiveDir)); err == nil {
		entries, _ := os.ReadDir(fs.path(archiveDir))
		if len(entries) != 0 {
			t.Fatalf("archive created on first save: %d entries", len(entries))
		}
	}

	second := &worldDoc{World: &game.WorldState{Turn: 2}}
	if err := fs.saveWorld(second); err != nil {
		t.Fatalf("second save: %v", err)
	}

	entries, err := os.ReadDir(fs.path(archiveDir))
	if err != nil {
		t.Fatalf("read archive dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("archives=%d, want 1", len(entries))
	}

	// The archived copy must decompress back to the previous document.
	f, err := os.Open(filepath.Join(fs.path(archiveDir), entries[0].Name()))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer dec.Close()
	data, err := io.ReadAll(dec)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	var archived worldDoc
	if err := json.Unmarshal(data, &archived); err != nil {
		t.Fatalf("decode archive: %v", err)
	}
	if archived.World == nil || archived.World.Turn != 1 {
		t.Fatalf("archived document is not the pre-rewrite state: %+v", archived.World)
	}

	// The live document is the new one.
	doc, err := fs.loadWorld()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc.World.Turn != 2 {
		t.Fatalf("live turn=%d, want 2", doc.World.Turn)
	}
}

func TestEnsureDefaults_DoesNotOverwrite(t *testing.T) {
	dir := t.TempDir()
	fs := newFileStore(dir)
	if err := fs.ensureDefaults(); err != nil {
		t.Fatalf("ensure defaults: %v", err)
	}

	want := []game.DiploMessage{{From: "Ashfolk", To: "Boarclan", Body: "hold", Turn: 1}}
	if err := fs.saveMessages(want); err != nil {
		t.Fatalf("save: %v", err)
	}

	// A second initialization must not reset existing documents.
	if err := fs.ensureDefaults(); err != nil {
		t.Fatalf("second ensure defaults: %v", err)
	}
	got, err := fs.loadMessages()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[0].Body != "hold" {
		t.Fatalf("messages reset by re-initialization: %+v", got)
	}
}
