// Package watch re-runs a conversion when the sources of a root map change
// and, optionally, on a fixed interval.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/dita2docbook/internal/logfields"
)

// DefaultDebounce collapses bursts of editor writes into one run.
const DefaultDebounce = 2 * time.Second

// RunFunc performs one conversion. reason describes what triggered it.
type RunFunc func(ctx context.Context, reason string) error

// Watcher monitors a source directory tree.
type Watcher struct {
	dir      string
	run      RunFunc
	debounce time.Duration
	interval time.Duration
	ignore   []string
	logger   *slog.Logger

	watcher   *fsnotify.Watcher
	scheduler gocron.Scheduler
	tick      chan string
	runs      atomic.Int64
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period after the last change before a run.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithInterval additionally runs the conversion every d. Zero disables it.
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) { w.interval = d }
}

// WithIgnore excludes directories, typically the output directory, so a
// run's own writes do not trigger the next one.
func WithIgnore(dirs ...string) Option {
	return func(w *Watcher) {
		for _, d := range dirs {
			if abs, err := filepath.Abs(d); err == nil {
				w.ignore = append(w.ignore, abs)
			}
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a watcher for dir.
func New(dir string, run RunFunc, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve watch directory: %w", err)
	}
	w := &Watcher{
		dir:      abs,
		run:      run,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		tick:     make(chan string, 1),
	}
	for _, o := range opts {
		o(w)
	}
	return w, nil
}

// Runs returns how many conversions have been started.
func (w *Watcher) Runs() int64 { return w.runs.Load() }

// Run converts once, then keeps converting on changes until ctx ends.
// Conversions never overlap.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	w.watcher = fw
	defer func() {
		if err := fw.Close(); err != nil {
			w.logger.Error("Error closing file watcher", logfields.Error(err))
		}
	}()
	if err := w.addTree(w.dir); err != nil {
		return err
	}

	if w.interval > 0 {
		if err := w.startScheduler(); err != nil {
			return err
		}
		defer func() {
			if err := w.scheduler.Shutdown(); err != nil {
				w.logger.Error("Error stopping scheduler", logfields.Error(err))
			}
		}()
	}

	w.logger.Info("Watching for changes", logfields.Path(w.dir), slog.Duration("debounce", w.debounce), slog.Duration("interval", w.interval))
	w.execute(ctx, "initial")

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	var pending string
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			w.logger.Info("Stopped watching", logfields.Path(w.dir))
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			if ev.Op.Has(fsnotify.Create) {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					if err := w.addTree(ev.Name); err != nil {
						w.logger.Warn("Cannot watch new directory", logfields.Path(ev.Name), logfields.Error(err))
					}
				}
			}
			w.logger.Debug("Change detected", logfields.File(ev.Name), slog.String("op", ev.Op.String()))
			pending = ev.Name
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("Watcher error", logfields.Error(err))
		case <-timer.C:
			w.execute(ctx, "change: "+pending)
		case reason := <-w.tick:
			w.execute(ctx, reason)
		}
	}
}

func (w *Watcher) startScheduler() error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(w.interval),
		gocron.NewTask(func() {
			select {
			case w.tick <- "interval":
			default:
				// a run is already queued
			}
		}),
		gocron.WithName("periodic-conversion"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("failed to create periodic conversion job: %w", err)
	}
	s.Start()
	w.scheduler = s
	return nil
}

func (w *Watcher) execute(ctx context.Context, reason string) {
	if ctx.Err() != nil {
		return
	}
	n := w.runs.Add(1)
	start := time.Now()
	w.logger.Info("Running conversion", slog.String("reason", reason), slog.Int64("run", n))
	if err := w.run(ctx, reason); err != nil {
		w.logger.Error("Conversion failed", slog.String("reason", reason), logfields.Error(err))
		return
	}
	w.logger.Info("Conversion done", logfields.DurationMS(float64(time.Since(start).Milliseconds())))
}

// addTree watches root and every directory below it that is not ignored.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(p) || (p != w.dir && strings.HasPrefix(d.Name(), ".")) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		return nil
	})
}

func (w *Watcher) ignored(p string) bool {
	for _, ig := range w.ignore {
		if p == ig || strings.HasPrefix(p, ig+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	base := filepath.Base(ev.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	return !w.ignored(ev.Name)
}
