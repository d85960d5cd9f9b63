package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce coalesces the burst of events one save produces.
const DefaultWatchDebounce = 500 * time.Millisecond

// FileWatcher calls onChange after any of a fixed set of files is written,
// created, renamed or removed. The parent directories are watched so
// editors that save by renaming a temp file are seen too.
type FileWatcher struct {
	files    map[string]bool
	dirs     []string
	debounce time.Duration
	onChange func(ctx context.Context)
}

// NewFileWatcher watches files. A non-positive debounce uses
// DefaultWatchDebounce.
func NewFileWatcher(files []string, debounce time.Duration, onChange func(ctx context.Context)) (*FileWatcher, error) {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	w := &FileWatcher{files: make(map[string]bool), debounce: debounce, onChange: onChange}

	seen := make(map[string]bool)
	for _, f := range files {
		if f == "" {
			continue
		}
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", f, err)
		}
		w.files[abs] = true
		if dir := filepath.Dir(abs); !seen[dir] {
			seen[dir] = true
			w.dirs = append(w.dirs, dir)
		}
	}
	return w, nil
}

// Run watches until ctx is cancelled. onChange runs on the watcher's
// goroutine, so changes arriving meanwhile fold into the next call.
func (w *FileWatcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fsw.Close()

	for _, dir := range w.dirs {
		if err := fsw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	slog.Debug("File watch started", slog.Int("files", len(w.files)), slog.Any("dirs", w.dirs))

	// Armed only by a relevant event.
	debounce := time.NewTimer(w.debounce)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			slog.Debug("Watched file changed", slog.String("path", event.Name), slog.String("op", event.Op.String()))
			debounce.Reset(w.debounce)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("File watch error", slog.String("error", err.Error()))
		case <-debounce.C:
			w.onChange(ctx)
		}
	}
}

func (w *FileWatcher) relevant(event fsnotify.Event) bool {
	if !w.files[filepath.Clean(event.Name)] {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove)
}
