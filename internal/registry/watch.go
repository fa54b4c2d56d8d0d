package registry

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jcdickinson/doxylink/internal/tagfile"
)

// DefaultWatchDelay is how long a tag file must be quiet before it is
// reloaded. Doxygen writes tag files in several chunks.
const DefaultWatchDelay = 500 * time.Millisecond

// debouncer runs the last triggered function once delay has passed
// without another trigger.
type debouncer struct {
	delay time.Duration
	mu    sync.Mutex
	timer *time.Timer
}

func (d *debouncer) trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, fn)
}

func (d *debouncer) cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Watch reloads roles whose local tag file is written or replaced, until
// ctx is cancelled. Remote tag files are not watched. The directories of
// the tag files are watched rather than the files, so editors and tools
// that replace the file by rename are noticed.
func (reg *Registry) Watch(ctx context.Context, delay time.Duration) error {
	byPath := make(map[string]string)
	dirs := make(map[string]bool)
	for _, r := range reg.Roles() {
		if tagfile.IsRemote(r.Config.TagFile) {
			continue
		}
		abs, err := filepath.Abs(r.Config.TagFile)
		if err != nil {
			return fmt.Errorf("role %q: %w", r.Name, err)
		}
		byPath[abs] = r.Name
		dirs[filepath.Dir(abs)] = true
	}
	if len(byPath) == 0 {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			w.Close()
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}

	debouncers := make(map[string]*debouncer, len(byPath))
	for _, role := range byPath {
		debouncers[role] = &debouncer{delay: delay}
	}

	go func() {
		defer w.Close()
		defer func() {
			for _, d := range debouncers {
				d.cancel()
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				role, ok := byPath[filepath.Clean(ev.Name)]
				if !ok {
					continue
				}
				debouncers[role].trigger(func() {
					slog.Info("tag file changed, reloading", "role", role, "path", ev.Name)
					if _, err := reg.Reload(ctx, role); err != nil {
						slog.Error("reload failed", "role", role, "error", err)
					}
				})
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("watcher error", "error", err)
			}
		}
	}()

	slog.Info("watching tag files", "count", len(byPath))
	return nil
}
