package procedure

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/vetlab/backend/pkg/logger"
)

const defaultDebounce = 250 * time.Millisecond

// Watcher triggers a reload when procedure files in a directory change.
// Bursts of events (editors write files in several steps) collapse into one reload.
type Watcher struct {
	dir      string
	debounce time.Duration
	watcher  *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer
}

func NewWatcher(dir string, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", dir, err)
	}

	return &Watcher{dir: dir, debounce: debounce, watcher: w}, nil
}

// Run blocks until ctx is cancelled, calling onReload after each debounced burst of changes.
func (w *Watcher) Run(ctx context.Context, onReload func() error) error {
	defer w.stopTimer()

	logger.Info("Procedure watcher started", zap.String("dir", w.dir), zap.Duration("debounce", w.debounce))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Procedure watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !relevant(event) {
				continue
			}
			logger.Debug("Procedure file event", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			w.schedule(onReload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			logger.Error("Procedure watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) Close() error {
	w.stopTimer()
	return w.watcher.Close()
}

func (w *Watcher) schedule(onReload func() error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if err := onReload(); err != nil {
			logger.Error("Procedure reload failed", zap.Error(err))
		}
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return supportedExtensions[strings.ToLower(filepath.Ext(base))]
}
