package construction

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher hot-reloads the catalog when its source file changes on disk, so
// operators can edit constructions without restarting the agent.
type Watcher struct {
	catalog *Catalog
	fsw     *fsnotify.Watcher
	logger  *zap.Logger
}

// NewWatcher starts watching the catalog's source file. Returns nil with no
// error when the catalog was not loaded from a file.
func NewWatcher(catalog *Catalog, logger *zap.Logger) (*Watcher, error) {
	if catalog.sourcePath == "" {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating catalog watcher: %w", err)
	}
	if err := fsw.Add(catalog.sourcePath); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", catalog.sourcePath, err)
	}
	return &Watcher{catalog: catalog, fsw: fsw, logger: logger.Named("catalog-watcher")}, nil
}

// Run processes file events until the context is cancelled. Reloads are
// debounced because editors emit bursts of write events for one save.
func (w *Watcher) Run(ctx context.Context) {
	const debounce = 250 * time.Millisecond
	var pending *time.Timer
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			if pending != nil {
				pending.Stop()
			}
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(debounce, func() {
				if err := w.catalog.Reload(); err != nil {
					w.logger.Warn("catalog reload failed", zap.Error(err))
					return
				}
				w.logger.Info("catalog reloaded", zap.Int("constructions", w.catalog.Len()))
			})
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("catalog watch error", zap.Error(err))
		}
	}
}
