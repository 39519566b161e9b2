package persistence

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	archiveDir  = "archive"
	archiveKeep = 5
)

// archiveWorld compresses the current world document into the archive
// directory before it is overwritten, and prunes old copies. A missing
// world document (first persist) is not an error.
func (f *fileStore) archiveWorld() error {
	src, err := os.Open(f.path(worldFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	defer src.Close()

	dir := f.path(archiveDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	name := fmt.Sprintf("world-%s.json.zst", time.Now().UTC().Format("20060102-150405"))
	dst, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	defer dst.Close()

	enc, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if _, err := io.Copy(enc, src); err != nil {
		enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}

	return f.pruneArchives()
}

func (f *fileStore) pruneArchives() error {
	entries, err := os.ReadDir(f.path(archiveDir))
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".zst" {
			names = append(names, e.Name())
		}
	}
	if len(names) <= archiveKeep {
		return nil
	}
	// Timestamped names sort chronologically.
	sort.Strings(names)
	for _, name := range names[:len(names)-archiveKeep] {
		if err := os.Remove(filepath.Join(f.path(archiveDir), name)); err != nil {
			return err
		}
	}
	return nil
}
