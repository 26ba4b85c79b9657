package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/duomark/internal/logging"
	"github.com/dshills/duomark/internal/notify"
)

// DefaultReloadDelay coalesces the burst of events an editor save makes.
const DefaultReloadDelay = 100 * time.Millisecond

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithReloadDelay sets how long the watcher waits after the last event
// before reloading.
func WithReloadDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d >= 0 {
			w.delay = d
		}
	}
}

// WithWatcherLogger sets the watcher's logger.
func WithWatcherLogger(l *logging.Logger) WatcherOption {
	return func(w *Watcher) {
		w.log = logging.OrNop(l).WithComponent("config")
	}
}

// WithEnv sets the environment applied on every reload. Defaults to the
// process environment.
func WithEnv(environ []string) WatcherOption {
	return func(w *Watcher) {
		w.environ = environ
	}
}

// Watcher reloads a config file when it changes and notifies observers
// with each valid result. Invalid files are reported to error observers
// and the previous configuration stays current.
type Watcher struct {
	mu      sync.Mutex
	path    string
	environ []string
	delay   time.Duration
	log     *logging.Logger

	fsw     *fsnotify.Watcher
	timer   *time.Timer
	current *Config
	reloads int
	closed  bool

	configs *notify.Set[*Config]
	errs    *notify.Set[error]

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWatcher loads path and starts watching it. The directory is watched
// so that files replaced by rename are picked up.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:    abs,
		environ: os.Environ(),
		delay:   DefaultReloadDelay,
		log:     logging.Nop(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.configs = notify.NewSet[*Config](w.log)
	w.errs = notify.NewSet[error](w.log)

	cfg, err := LoadWithEnv(abs, w.environ)
	if err != nil {
		return nil, err
	}
	w.current = cfg

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	w.fsw = fsw

	w.wg.Add(1)
	go w.processLoop()
	return w, nil
}

// Current returns the last valid configuration.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Reloads returns the number of successful reloads.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// Subscribe registers an observer for reloaded configurations.
func (w *Watcher) Subscribe(observer notify.Observer[*Config]) *notify.Subscription {
	return w.configs.Subscribe(observer)
}

// OnError registers an observer for reload failures.
func (w *Watcher) OnError(observer notify.Observer[error]) *notify.Subscription {
	return w.errs.Subscribe(observer)
}

func (w *Watcher) processLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error: %v", err)
			w.errs.Notify(err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, w.Reload)
}

// Reload re-reads the file now. On failure the previous configuration
// stays current and error observers are notified.
func (w *Watcher) Reload() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	cfg, err := LoadWithEnv(w.path, w.environ)
	if err != nil {
		w.log.Warn("reload %s: %v", w.path, err)
		w.errs.Notify(err)
		return
	}

	w.mu.Lock()
	w.current = cfg
	w.reloads++
	w.mu.Unlock()

	w.log.Info("reloaded %s", w.path)
	w.configs.Notify(cfg)
}

// Close stops watching. Pending reloads are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	close(w.done)
	w.mu.Unlock()

	err := w.fsw.Close()
	w.wg.Wait()
	return err
}
