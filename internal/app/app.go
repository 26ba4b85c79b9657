package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/duomark/internal/config"
	"github.com/dshills/duomark/internal/logging"
	"github.com/dshills/duomark/internal/memory"
	"github.com/dshills/duomark/internal/notify"
	"github.com/dshills/duomark/internal/pipeline"
	"github.com/dshills/duomark/internal/schedule"
	"github.com/dshills/duomark/internal/surface"
	"github.com/dshills/duomark/internal/transform"
)

// Options configures the application. Non-empty fields override the
// configuration file.
type Options struct {
	// ConfigPath is a TOML or YAML configuration file.
	ConfigPath string

	// Path is the file to edit. Empty opens a scratch buffer.
	Path string

	// Mode is "markdown" or "html".
	Mode string

	// Script is a Lua preview transform.
	Script string

	// LogLevel sets the logging verbosity.
	LogLevel string

	// LogFile receives logs. Logging is off without one since the
	// terminal owns stderr.
	LogFile string

	// ReadOnly rejects edits and saves.
	ReadOnly bool

	// Watch reloads the configuration file when it changes.
	Watch bool
}

// Application wires a document, a pipeline session and a terminal.
type Application struct {
	mu sync.Mutex

	opts    Options
	cfg     *config.Config
	logger  *logging.Logger
	logFile *os.File

	loop  *schedule.Loop
	sched schedule.Scheduler
	// post runs fn on the loop goroutine.
	post func(fn func()) error

	term    *surface.Terminal
	session *pipeline.Session
	lua     *transform.Lua
	watcher *config.Watcher
	subs    []*notify.Subscription

	doc     *Document
	content string

	running  atomic.Bool
	shutdown sync.Once
}

// New loads configuration, the document and the preview script. The
// session is built once a screen is attached.
func New(opts Options) (*Application, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := applyOverrides(cfg, opts); err != nil {
		return nil, err
	}

	app := &Application{opts: opts, cfg: cfg, logger: logging.Nop()}
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, &FileError{Op: "open", Path: cfg.Logging.File, Err: err}
		}
		app.logFile = f
		lc := logging.DefaultConfig()
		lc.Level = cfg.LogLevel()
		lc.Output = f
		app.logger = logging.New(lc)
	}

	doc, content, err := OpenDocument(opts.Path, opts.ReadOnly)
	if err != nil {
		app.closeLog()
		return nil, err
	}
	app.doc, app.content = doc, content

	if cfg.Preview.Script != "" {
		lua, err := transform.LoadLua(cfg.Preview.Script, transform.WithLogger(app.logger.WithComponent("lua")))
		if err != nil {
			app.closeLog()
			return nil, err
		}
		app.lua = lua
	}

	app.loop = schedule.NewLoop(
		schedule.WithFrameInterval(cfg.Render.FrameInterval.Std()),
		schedule.WithLogger(app.logger.WithComponent("loop")),
	)
	app.sched = app.loop
	app.post = app.loop.Post
	return app, nil
}

func applyOverrides(cfg *config.Config, opts Options) error {
	if opts.Mode != "" {
		cfg.Mode = opts.Mode
	}
	if opts.Script != "" {
		cfg.Preview.Script = opts.Script
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if opts.LogFile != "" {
		cfg.Logging.File = opts.LogFile
	}
	return cfg.Validate()
}

// SetScreen attaches an initialized screen and builds the session.
func (app *Application) SetScreen(screen tcell.Screen) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	app.term = surface.NewTerminal(screen,
		surface.WithSplit(app.cfg.Render.Split),
		surface.WithPreview(app.cfg.Render.ShowPreview),
	)

	deps := pipeline.Deps{
		Scheduler: app.sched,
		Surface:   &cursorSurface{app: app, Terminal: app.term},
		Probe:     memory.NewRuntime(app.cfg.Chunks.MemoryLimit()),
		Logger:    app.logger,
	}
	if app.lua != nil {
		deps.Transform = app.lua.Transform
	}

	cfg := app.cfg.Clone()
	cfg.Viewport.ContainerHeight = float64(app.term.EditorRows()) * cfg.Viewport.ItemHeight
	session, err := pipeline.New(cfg, deps)
	if err != nil {
		return err
	}
	if err := session.SetContent(app.content); err != nil {
		_ = session.Close()
		return err
	}
	app.session = session
	app.updateStatusLocked("")
	return nil
}

// Session returns the pipeline session, nil before SetScreen.
func (app *Application) Session() *pipeline.Session {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.session
}

// Document returns the document being edited.
func (app *Application) Document() *Document {
	return app.doc
}

// IsRunning reports whether Run is in progress.
func (app *Application) IsRunning() bool {
	return app.running.Load()
}

// Run processes terminal events until quit or ctx is done. It returns
// ErrQuit after a quit key.
func (app *Application) Run(ctx context.Context) error {
	if !app.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer app.running.Store(false)

	app.mu.Lock()
	term := app.term
	app.mu.Unlock()
	if term == nil {
		return ErrNoScreen
	}

	if err := app.startWatcher(); err != nil {
		app.logger.Warn("config watch disabled: %v", err)
	}

	var quit atomic.Bool
	go func() {
		for {
			ev := term.Screen().PollEvent()
			if ev == nil {
				return
			}
			err := app.loop.Post(func() {
				if errors.Is(app.HandleEvent(ev), ErrQuit) {
					quit.Store(true)
					app.loop.Stop()
				}
			})
			if err != nil {
				return
			}
		}
	}()

	err := app.loop.Run(ctx)
	if quit.Load() {
		return ErrQuit
	}
	return err
}

func (app *Application) startWatcher() error {
	if !app.opts.Watch || app.opts.ConfigPath == "" {
		return nil
	}
	w, err := config.NewWatcher(app.opts.ConfigPath, config.WithWatcherLogger(app.logger))
	if err != nil {
		return err
	}

	app.mu.Lock()
	defer app.mu.Unlock()
	app.watcher = w
	app.subs = append(app.subs,
		w.Subscribe(notify.Func[*config.Config](func(cfg *config.Config) {
			if err := app.post(func() { app.ApplyConfig(cfg) }); err != nil {
				app.logger.Debug("config reload dropped: %v", err)
			}
		})),
		w.OnError(notify.Func[error](func(err error) {
			app.logger.Warn("config reload failed: %v", err)
			_ = app.post(func() { app.setStatus("config error: %v", err) })
		})),
	)
	return nil
}

// ApplyConfig applies a reloaded configuration. Command-line overrides
// and the current mode are kept.
func (app *Application) ApplyConfig(cfg *config.Config) {
	next := cfg.Clone()
	if err := applyOverrides(next, app.opts); err != nil {
		app.setStatus("config error: %v", err)
		return
	}

	app.mu.Lock()
	session, term := app.session, app.term
	app.mu.Unlock()
	if session == nil {
		return
	}

	next.Mode = string(session.Mode())
	next.Viewport.ContainerHeight = float64(term.EditorRows()) * next.Viewport.ItemHeight
	if err := session.ApplyConfig(next); err != nil {
		app.setStatus("config error: %v", err)
		return
	}
	app.logger.SetLevel(next.LogLevel())

	app.mu.Lock()
	app.cfg = next
	app.mu.Unlock()
	app.setStatus("config reloaded")
}

// Shutdown stops the loop and releases everything. It is idempotent.
func (app *Application) Shutdown() {
	app.shutdown.Do(func() {
		app.mu.Lock()
		watcher, subs := app.watcher, app.subs
		session, term := app.session, app.term
		app.mu.Unlock()

		for _, sub := range subs {
			sub.Unsubscribe()
		}
		if watcher != nil {
			_ = watcher.Close()
		}
		app.loop.Stop()
		if session != nil {
			if err := session.Close(); err != nil && !errors.Is(err, pipeline.ErrClosed) {
				app.logger.Warn("closing session: %v", err)
			}
		}
		if app.lua != nil {
			_ = app.lua.Close()
		}
		if term != nil {
			term.Screen().Fini()
		}
		app.closeLog()
	})
}

func (app *Application) closeLog() {
	if app.logFile != nil {
		_ = app.logFile.Close()
		app.logFile = nil
	}
}

func (app *Application) setStatus(format string, args ...any) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.updateStatusLocked(fmt.Sprintf(format, args...))
}

// updateStatusLocked redraws the status line, appending msg when set.
func (app *Application) updateStatusLocked(msg string) {
	if app.term == nil || app.session == nil {
		return
	}
	name := app.doc.Name()
	if app.doc.modified {
		name += " [+]"
	}
	if app.doc.ReadOnly {
		name += " [ro]"
	}
	line, col := app.session.LineCol(app.doc.cursor)
	status := fmt.Sprintf(" %s | %s | %d:%d", name, app.session.Mode(), line+1, col+1)
	if app.session.Virtualized() {
		status += " | virtual"
	}
	if msg != "" {
		status += " | " + msg
	}
	app.term.SetStatus("%s", status)
}

// cursorSurface re-places the cursor after each window render and keeps it
// in view once queued edits are applied.
type cursorSurface struct {
	*surface.Terminal
	app *Application
}

func (c *cursorSurface) RenderWindow(w surface.Window) {
	c.Terminal.RenderWindow(w)

	c.app.mu.Lock()
	session, cursor := c.app.session, c.app.doc.cursor
	c.app.mu.Unlock()
	if session == nil {
		return
	}
	line, col := session.LineCol(cursor)
	c.Terminal.SetCursor(line, col)
	// Edits batched since the last keystroke are applied now, so the
	// cursor line is final.
	c.app.scrollToCursor()
}

var _ surface.Surface = (*cursorSurface)(nil)

// toggleMode switches between markdown and html.
func (app *Application) toggleMode() error {
	mode := app.session.Mode().Toggle()
	if err := app.session.SetMode(mode); err != nil {
		return err
	}
	app.logger.Info("mode %s", mode)
	return nil
}
