package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a reload runs.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads the catalog when Beacon documents change on disk. Bursts of
// events are collapsed into a single reload once the directory is quiet.
type Watcher struct {
	dir      string
	debounce time.Duration
	reload   func(context.Context) error
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	timer   *time.Timer
}

// NewWatcher watches dir (recursively) and calls reload after debounce of
// quiet. A zero debounce uses DefaultDebounce.
func NewWatcher(dir string, debounce time.Duration, reload func(context.Context) error, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		reload:   reload,
		logger:   logger.With(slog.String("component", "catalog.watcher")),
	}
}

// LoaderReload adapts a Loader to the reload callback.
func LoaderReload(l *Loader) func(context.Context) error {
	return func(ctx context.Context) error {
		report, err := l.Load(ctx)
		if err != nil {
			return err
		}
		return report.Err()
	}
}

// Run blocks until ctx is cancelled, reloading on relevant file events.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer func() {
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
		w.running = false
		w.mu.Unlock()
		_ = fsw.Close()
	}()

	if err := w.addTree(fsw, w.dir); err != nil {
		return err
	}
	w.logger.InfoContext(ctx, "catalog watcher started",
		slog.String("dir", w.dir), slog.Duration("debounce", w.debounce))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("catalog watcher stopped")
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(fsw, event.Name); err != nil {
						w.logger.Warn("watch new directory", slog.String("dir", event.Name), slog.Any("error", err))
					}
					continue
				}
			}
			if !relevant(event) {
				continue
			}
			w.logger.Debug("catalog document changed",
				slog.String("path", event.Name), slog.String("op", event.Op.String()))
			w.schedule(ctx)
		case err, ok := <-fsw.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			w.logger.Error("catalog watcher error", slog.Any("error", err))
		}
	}
}

func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		if err := w.reload(ctx); err != nil {
			w.logger.Error("catalog reload failed", slog.Any("error", err))
		}
	})
}

func (w *Watcher) addTree(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// relevant filters out chmod events, sidecars and in-flight temp files.
func relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	return relevantName(event.Name)
}

func relevantName(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || strings.Contains(base, ".tmp-") {
		return false
	}
	return strings.HasSuffix(base, ".json")
}
