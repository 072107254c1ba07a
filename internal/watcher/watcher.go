// Package watcher reports source changes to the build loop.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/assetpack/internal/telemetry"
)

const DefaultDebounce = 100 * time.Millisecond

var skipNames = map[string]bool{
	"node_modules":     true,
	"bower_components": true,
}

type Options struct {
	// Root is watched recursively.
	Root string
	// Files are watched individually, e.g. the project config.
	Files []string
	// Skip lists directories below Root that are never watched.
	Skip     []string
	Debounce time.Duration
	Logger   zerolog.Logger
}

// Watcher coalesces file system events into batches of changed paths.
type Watcher struct {
	opts    Options
	watcher *fsnotify.Watcher
	files   map[string]bool
	ready   chan struct{}
	once    sync.Once
}

func New(opts Options) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	opts.Root = filepath.Clean(opts.Root)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		opts:    opts,
		watcher: fw,
		files:   map[string]bool{},
		ready:   make(chan struct{}),
	}

	if err := w.addTree(opts.Root); err != nil {
		_ = fw.Close()
		return nil, err
	}

	for _, f := range opts.Files {
		f = filepath.Clean(f)
		w.files[f] = true
		if err := fw.Add(filepath.Dir(f)); err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", f, err)
		}
	}

	return w, nil
}

func (w *Watcher) skipped(path string) bool {
	if path == w.opts.Root {
		return false
	}
	name := filepath.Base(path)
	if skipNames[name] || strings.HasPrefix(name, ".") {
		return true
	}
	for _, dir := range w.opts.Skip {
		if path == filepath.Clean(dir) || strings.HasPrefix(path, filepath.Clean(dir)+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// vanished while walking
			if errors.Is(err, fs.ErrNotExist) && path != root {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.skipped(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// inTree reports whether path is below Root and not skipped.
func (w *Watcher) inTree(path string) bool {
	rel, err := filepath.Rel(w.opts.Root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	for dir := path; dir != w.opts.Root && dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
		if w.skipped(dir) {
			return false
		}
	}
	return true
}

// Ready is closed once Run is receiving events.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Run calls fn with the sorted set of changed paths after each burst of
// events settles. It blocks until ctx is cancelled and fn is never called
// concurrently.
func (w *Watcher) Run(ctx context.Context, fn func(changed []string)) error {
	defer w.watcher.Close()

	w.once.Do(func() { close(w.ready) })

	pending := map[string]bool{}
	timer := time.NewTimer(w.opts.Debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && w.inTree(event.Name) {
					if err := w.addTree(event.Name); err != nil {
						w.opts.Logger.Warn().Err(err).Str("path", event.Name).Msg("Failed to watch new directory")
					}
				}
			}

			pending[event.Name] = true
			timer.Reset(w.opts.Debounce)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			slices.Sort(changed)
			clear(pending)

			telemetry.GetMetrics().WatchEventsTotal.Add(ctx, 1)
			w.opts.Logger.Debug().Strs("changed", changed).Msg("Sources changed")
			fn(changed)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.opts.Logger.Warn().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	path := filepath.Clean(event.Name)
	return w.files[path] || w.inTree(path)
}
