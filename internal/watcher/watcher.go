// Package watcher turns filesystem events under a workspace into debounced
// rebuild triggers.
package watcher

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Options configures a Watcher.
type Options struct {
	Root       string
	Extensions []string // dotted, compared case-insensitively
	IgnoreDirs []string // directory names skipped at any depth
	Debounce   time.Duration
}

// Qualifies reports whether an event on path with op should cause a rebuild.
func (o Options) Qualifies(path string, op fsnotify.Op) bool {
	if !op.Has(fsnotify.Write) && !op.Has(fsnotify.Remove) && !op.Has(fsnotify.Rename) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !slices.ContainsFunc(o.Extensions, func(e string) bool { return strings.ToLower(e) == ext }) {
		return false
	}
	return !o.ignored(path)
}

func (o Options) ignored(path string) bool {
	rel := path
	if o.Root != "" {
		if r, err := filepath.Rel(o.Root, path); err == nil {
			rel = r
		}
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		for _, d := range o.IgnoreDirs {
			if strings.EqualFold(seg, d) {
				return true
			}
		}
	}
	return false
}

// Watcher watches Root recursively and calls trigger once per burst of
// qualifying events.
type Watcher struct {
	opts    Options
	trigger func()
	fsw     *fsnotify.Watcher

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Watcher. Nothing is watched until Start.
func New(opts Options, trigger func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 200 * time.Millisecond
	}
	return &Watcher{
		opts:    opts,
		trigger: trigger,
		fsw:     fsw,
		done:    make(chan struct{}),
	}, nil
}

// Start adds watches for Root and its subdirectories and begins processing
// events in the background.
func (w *Watcher) Start() error {
	if err := w.addRecursive(w.opts.Root); err != nil {
		return fmt.Errorf("watching %s: %w", w.opts.Root, err)
	}
	w.wg.Add(1)
	go w.loop()
	log.Printf("[watcher] watching %s (debounce %s)", w.opts.Root, w.opts.Debounce)
	return nil
}

// Stop closes the underlying watcher and drops any pending trigger. No
// trigger runs after Stop returns. Calling Stop again is a no-op.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.stopped = true
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()

		close(w.done)
		err = w.fsw.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.opts.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			log.Printf("[watcher] cannot watch %s: %v", path, err)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("[watcher] error: %v", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() && !w.opts.ignored(ev.Name) {
			if err := w.addRecursive(ev.Name); err != nil {
				log.Printf("[watcher] cannot watch new directory %s: %v", ev.Name, err)
			}
			return
		}
	}
	if w.opts.Qualifies(ev.Name, ev.Op) {
		w.schedule()
	}
}

// schedule restarts the debounce timer.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.opts.Debounce, w.fire)
}

// fire holds mu while triggering so Stop cannot return mid-call.
func (w *Watcher) fire() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.trigger()
}
