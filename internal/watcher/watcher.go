// Package watcher reports changed files under a local folder, batched once
// the folder has been quiet for the debounce interval.
package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/fsync/internal/log"
)

// Watcher monitors a local folder and sends batches of changed files.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	cfg       Config
	logger    *log.Logger
	pending   map[string]struct{}
	onChange  chan []string
	done      chan struct{}
}

// Config holds watcher configuration options.
type Config struct {
	// Root is the folder to watch.
	Root string
	// Recursive also watches every subfolder, including ones created later.
	Recursive   bool
	DebounceDur time.Duration
	// SkipSuffixes and SkipContains filter temporary files by base name.
	SkipSuffixes []string
	SkipContains []string
}

// DefaultConfig returns sensible defaults for the watcher.
func DefaultConfig(root string) Config {
	return Config{
		Root:         root,
		DebounceDur:  100 * time.Millisecond,
		SkipSuffixes: []string{".tmp"},
		SkipContains: []string{"~"},
	}
}

// New creates a new folder watcher.
func New(cfg Config, logger *log.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &Watcher{
		fsWatcher: fsw,
		cfg:       cfg,
		logger:    logger,
		pending:   make(map[string]struct{}),
		onChange:  make(chan []string, 1),
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching the folder.
// Returns a channel that receives the changed files, relative to Root with
// forward slashes, sorted.
func (w *Watcher) Start() (<-chan []string, error) {
	if err := w.addTree(w.cfg.Root); err != nil {
		return nil, err
	}

	w.logger.Info(log.CatWatcher, "Watching folder", "root", w.cfg.Root, "recursive", w.cfg.Recursive)
	go w.loop()

	return w.onChange, nil
}

// Stop terminates the watcher and releases resources.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsWatcher.Close()
}

// Skip reports whether a file name marks a temporary file.
func (w *Watcher) Skip(name string) bool {
	base := filepath.Base(name)
	for _, suffix := range w.cfg.SkipSuffixes {
		if strings.HasSuffix(strings.ToLower(base), strings.ToLower(suffix)) {
			return true
		}
	}
	for _, s := range w.cfg.SkipContains {
		if strings.Contains(base, s) {
			return true
		}
	}
	return false
}

func (w *Watcher) addTree(root string) error {
	if !w.cfg.Recursive {
		if err := w.fsWatcher.Add(root); err != nil {
			return fmt.Errorf("watching directory %s: %w", root, err)
		}
		return nil
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsWatcher.Add(path); err != nil {
			return fmt.Errorf("watching directory %s: %w", path, err)
		}
		return nil
	})
}

// loop processes file system events with debouncing.
func (w *Watcher) loop() {
	var timer *time.Timer

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			if !w.record(event) {
				continue
			}

			if timer == nil {
				timer = time.NewTimer(w.cfg.DebounceDur)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.cfg.DebounceDur)
			}

		case <-func() <-chan time.Time {
			if timer != nil {
				return timer.C
			}
			return nil
		}():
			batch := w.flush()
			if len(batch) == 0 {
				continue
			}
			select {
			case w.onChange <- batch:
			default:
				// Receiver is busy with the previous batch; keep these for later.
				for _, rel := range batch {
					w.pending[rel] = struct{}{}
				}
				timer.Reset(w.cfg.DebounceDur)
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.ErrorErr(log.CatWatcher, "Watcher error", err, "root", w.cfg.Root)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// record adds the event's file to the pending set and reports whether it was
// relevant.
func (w *Watcher) record(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return false
	}
	if w.Skip(event.Name) {
		w.logger.Debug(log.CatWatcher, "Skipping temporary file", "path", event.Name)
		return false
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return false
	}
	if info.IsDir() {
		if event.Op&fsnotify.Create != 0 && w.cfg.Recursive {
			return w.adoptDir(event.Name)
		}
		return false
	}

	return w.add(event.Name)
}

// adoptDir watches a new subfolder and queues the files already in it.
func (w *Watcher) adoptDir(dir string) bool {
	if err := w.addTree(dir); err != nil {
		w.logger.ErrorErr(log.CatWatcher, "Failed to watch new directory", err, "dir", dir)
		return false
	}
	added := false
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() && !w.Skip(path) && w.add(path) {
			added = true
		}
		return nil
	})
	return added
}

func (w *Watcher) add(path string) bool {
	rel, err := filepath.Rel(w.cfg.Root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	w.pending[filepath.ToSlash(rel)] = struct{}{}
	return true
}

// flush returns the pending files that still exist and clears the set.
func (w *Watcher) flush() []string {
	batch := make([]string, 0, len(w.pending))
	for rel := range w.pending {
		info, err := os.Stat(filepath.Join(w.cfg.Root, filepath.FromSlash(rel)))
		if err == nil && !info.IsDir() {
			batch = append(batch, rel)
		}
	}
	clear(w.pending)
	sort.Strings(batch)
	return batch
}
