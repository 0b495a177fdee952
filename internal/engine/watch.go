package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"issueline/internal/events"
)

const watchDebounce = 100 * time.Millisecond

// Watch refreshes the index whenever another process writes to the event
// log. It blocks until ctx is done.
func (e *Engine) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()
	if err := watcher.Add(e.storeDir); err != nil {
		return fmt.Errorf("watch %s: %w", e.storeDir, err)
	}

	timer := time.NewTimer(watchDebounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != events.FileName {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				timer.Reset(watchDebounce)
			}
		case <-timer.C:
			before := e.Sequence()
			if err := e.Refresh(ctx); err != nil {
				e.Logger.Error("refresh after external write", "error", err)
				continue
			}
			if after := e.Sequence(); after != before {
				e.Logger.Info("index refreshed", "from_seq", before, "to_seq", after)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			e.Logger.Warn("watcher error", "error", err)
		}
	}
}
