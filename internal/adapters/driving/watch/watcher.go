// Package watch turns files dropped into an inbox directory into
// captured items. Each file is read once it settles, routed to a
// content kind by extension, and run through the processing pipeline.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mnemo-labs/mnemo/internal/core/domain"
	"github.com/mnemo-labs/mnemo/internal/core/ports/driving"
	"github.com/mnemo-labs/mnemo/internal/logger"
)

// settleDelay is how long a file must stay quiet after its last write
// event before it is captured. Editors and browsers write in bursts.
const settleDelay = 500 * time.Millisecond

// kindByExtension routes file extensions to content kinds.
var kindByExtension = map[string]domain.ContentKind{
	".html":     domain.KindWebPage,
	".htm":      domain.KindWebPage,
	".md":       domain.KindNote,
	".markdown": domain.KindNote,
	".txt":      domain.KindFile,
	".text":     domain.KindFile,
}

// Watcher captures files dropped into an inbox directory.
type Watcher struct {
	processor driving.ItemProcessor
	dir       string

	mu       sync.Mutex
	pending  map[string]*time.Timer
	captured map[string]bool
}

// New creates a watcher over the given inbox directory.
func New(processor driving.ItemProcessor, dir string) (*Watcher, error) {
	if processor == nil {
		return nil, fmt.Errorf("watch: processor is required")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("watch: inbox directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch: %s is not a directory", dir)
	}
	return &Watcher{
		processor: processor,
		dir:       dir,
		pending:   make(map[string]*time.Timer),
		captured:  make(map[string]bool),
	}, nil
}

// Run watches the inbox until the context is cancelled. Files already
// present when the watcher starts are captured first.
func (w *Watcher) Run(ctx context.Context) error {
	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: creating watcher: %w", err)
	}
	defer notifier.Close()

	if err := notifier.Add(w.dir); err != nil {
		return fmt.Errorf("watch: watching %s: %w", w.dir, err)
	}

	if err := w.ScanExisting(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-notifier.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.schedule(ctx, event.Name)

		case err, ok := <-notifier.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watch error: %v", err)
		}
	}
}

// ScanExisting captures eligible files already present in the inbox.
func (w *Watcher) ScanExisting(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("watch: reading inbox: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		if err := w.CaptureFile(ctx, path); err != nil {
			logger.Warn("Capture %s failed: %v", path, err)
		}
	}
	return nil
}

// schedule (re)arms the settle timer for a path. The file is captured
// once no further write events arrive within the settle delay.
func (w *Watcher) schedule(ctx context.Context, path string) {
	if KindForPath(path) == "" {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Reset(settleDelay)
		return
	}
	w.pending[path] = time.AfterFunc(settleDelay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		if err := w.CaptureFile(ctx, path); err != nil {
			logger.Warn("Capture %s failed: %v", path, err)
		}
	})
}

// CaptureFile reads a file and captures it as an item. Files with
// unknown extensions, hidden files, and files captured before are
// skipped without error.
func (w *Watcher) CaptureFile(ctx context.Context, path string) error {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return nil
	}
	kind := KindForPath(path)
	if kind == "" {
		return nil
	}

	w.mu.Lock()
	if w.captured[path] {
		w.mu.Unlock()
		return nil
	}
	w.captured[path] = true
	w.mu.Unlock()

	content, err := os.ReadFile(path)
	if err != nil {
		w.forget(path)
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		return nil
	}

	title := strings.TrimSuffix(name, filepath.Ext(name))
	item, err := w.processor.Capture(ctx, title, string(content), kind, path)
	if err != nil {
		w.forget(path)
		return err
	}

	logger.Info("Captured %s as item %s (%s)", name, item.ID, item.Status)
	return nil
}

// forget clears the captured mark so a failed file can be retried.
func (w *Watcher) forget(path string) {
	w.mu.Lock()
	delete(w.captured, path)
	w.mu.Unlock()
}

// KindForPath returns the content kind for a file path, or "" when the
// extension is not captured.
func KindForPath(path string) domain.ContentKind {
	return kindByExtension[strings.ToLower(filepath.Ext(path))]
}
