package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/tribelands/server/internal/game"
	"github.com/tribelands/server/internal/users"
)

// File names inside the data directory.
const (
	worldFile      = "world.json"
	newsletterFile = "newsletter.json"
	deadlineFile   = "deadline.json"
	messagesFile   = "messages.json"
)

// worldDoc is the file-mode world document: the full aggregate plus the
// user list, persisted as one JSON file.
type worldDoc struct {
	World *game.WorldState `json:"worldState"`
	Users []*users.User    `json:"users"`
}

// fileStore is the flat-file backend: the fallback when the relational
// store is unavailable, and the mirror half of every dual write.
type fileStore struct {
	dir string
}

func newFileStore(dir string) *fileStore {
	return &fileStore{dir: dir}
}

func (f *fileStore) path(name string) string {
	return filepath.Join(f.dir, name)
}

// ensureDefaults creates the data directory and seeds the satellite
// files with empty defaults when absent. The world document itself is
// only created on first persist.
func (f *fileStore) ensureDefaults() error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	defaults := map[string]any{
		newsletterFile: game.NewsletterState{Newsletters: []game.Newsletter{}},
		deadlineFile:   game.TurnDeadline{},
		messagesFile:   []game.DiploMessage{},
	}
	for name, doc := range defaults {
		p := f.path(name)
		if _, err := os.Stat(p); err == nil {
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("stat %s: %w", name, err)
		}
		if err := f.writeJSONAtomic(p, doc); err != nil {
			return fmt.Errorf("seed %s: %w", name, err)
		}
	}
	return nil
}

// writeJSONAtomic writes to a temp path in the same directory and
// renames over the target, so readers never observe a partial document.
func (f *fileStore) writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}

	slog.Debug("file written", "path", path, "size", humanize.Bytes(uint64(len(data))))
	return nil
}

func (f *fileStore) readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

// loadWorld reads the file-mode world document. Returns fs.ErrNotExist
// (wrapped) when no world has been persisted yet.
func (f *fileStore) loadWorld() (*worldDoc, error) {
	var doc worldDoc
	if err := f.readJSON(f.path(worldFile), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// saveWorld archives the previous document, then atomically replaces it.
func (f *fileStore) saveWorld(doc *worldDoc) error {
	if err := f.archiveWorld(); err != nil {
		slog.Warn("pre-rewrite archive failed", "error", err)
	}
	return f.writeJSONAtomic(f.path(worldFile), doc)
}

// Satellite documents (the file half of every dual write).

func (f *fileStore) loadNewsletter() (game.NewsletterState, error) {
	var ns game.NewsletterState
	err := f.readJSON(f.path(newsletterFile), &ns)
	return ns, err
}

func (f *fileStore) saveNewsletter(ns game.NewsletterState) error {
	return f.writeJSONAtomic(f.path(newsletterFile), ns)
}

func (f *fileStore) loadDeadline() (game.TurnDeadline, error) {
	var td game.TurnDeadline
	err := f.readJSON(f.path(deadlineFile), &td)
	return td, err
}

func (f *fileStore) saveDeadline(td game.TurnDeadline) error {
	return f.writeJSONAtomic(f.path(deadlineFile), td)
}

func (f *fileStore) loadMessages() ([]game.DiploMessage, error) {
	var msgs []game.DiploMessage
	err := f.readJSON(f.path(messagesFile), &msgs)
	return msgs, err
}

func (f *fileStore) saveMessages(msgs []game.DiploMessage) error {
	return f.writeJSONAtomic(f.path(messagesFile), msgs)
}
