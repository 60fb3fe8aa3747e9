package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Holder publishes the current catalog to concurrent readers. Reads vastly
// outnumber swaps (a swap only happens when operators edit the price
// sheet), so the whole catalog is replaced atomically instead of locking.
type Holder struct {
	current atomic.Pointer[Catalog]
}

// NewHolder creates a Holder seeded with c.
func NewHolder(c Catalog) *Holder {
	h := &Holder{}
	h.Replace(c)
	return h
}

// Current returns the catalog as of this call.
func (h *Holder) Current() Catalog {
	return *h.current.Load()
}

// Replace swaps in a new catalog.
func (h *Holder) Replace(c Catalog) {
	h.current.Store(&c)
}

// WatchCatalogFile reloads path into h whenever the file changes, until
// ctx is cancelled. A payload that fails schema validation is logged and
// skipped; the previous catalog stays live.
//
// The watch is on the parent directory, not the file: editors and
// configmap updates replace the file by renaming a temp file over it,
// which would orphan a watch attached to the old inode.
func WatchCatalogFile(ctx context.Context, path string, h *Holder, log *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("catalog watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("catalog watcher: %w", err)
	}
	name := filepath.Base(path)

	go func() {
		defer func() { _ = watcher.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != name {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				c, err := LoadCatalogFile(path)
				if err != nil {
					log.Warn("catalog reload rejected", "path", path, "error", err)
					continue
				}
				h.Replace(c)
				log.Info("catalog reloaded", "path", path, "models", len(c))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("catalog watcher error", "error", err)
			}
		}
	}()
	return nil
}
