// Package watcher reloads the notebook when the file changes on disk
// (an external editor or a kernel save), replacing the document and
// pushing the new content to subscribers.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"nbcopilot/internal/notebook"
	"nbcopilot/internal/protocol"
)

// debounceWindow coalesces the burst of write events most editors
// emit for a single save.
const debounceWindow = 250 * time.Millisecond

// Watcher ties a notebook file to the store.
type Watcher struct {
	path        string
	store       *notebook.Store
	broadcaster notebook.Broadcaster
	logger      *zap.Logger

	// OnReload runs after a successful reload, before the broadcast.
	// The server hooks the search reindex here. May be nil.
	OnReload func(doc notebook.Document)
}

// New creates a watcher for the notebook at path.
func New(path string, store *notebook.Store, b notebook.Broadcaster, logger *zap.Logger) *Watcher {
	return &Watcher{
		path:        path,
		store:       store,
		broadcaster: b,
		logger:      logger.Named("watcher"),
	}
}

// LoadOnce reads the file and replaces the document without watching.
func (w *Watcher) LoadOnce() error {
	return w.reload()
}

// Run watches until ctx ends. The parent directory is watched rather
// than the file itself: editors that save via rename would otherwise
// drop the watch.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	w.logger.Info("watching notebook", zap.String("path", w.path))

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerC = timer.C
			} else {
				timer.Reset(debounceWindow)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			if err := w.reload(); err != nil {
				w.logger.Error("reload failed", zap.Error(err))
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() error {
	raw, err := os.ReadFile(w.path)
	if err != nil {
		return err
	}
	if err := w.store.ReplaceWire(raw); err != nil {
		return err
	}

	if w.OnReload != nil {
		w.OnReload(w.store.Snapshot())
	}
	w.broadcaster.Broadcast(protocol.NotebookUpdate{Type: protocol.TypeNotebookUpdate, Content: raw})
	w.logger.Info("notebook reloaded", zap.String("path", w.path))
	return nil
}
