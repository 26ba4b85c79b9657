// Package pipeline wires the editing pipeline of one document.
//
// A Session owns the document text and drives it through every stage:
// edits are batched by the input scheduler, applied, re-chunked, indexed
// into lines and windowed by the viewport. Rendering goes through the
// mutation batcher once per frame, and the preview is produced by the
// debounced transform cache. Every stage is timed by the telemetry
// monitor, whose render warnings switch the session to virtualized
// rendering.
package pipeline

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/dshills/duomark/internal/chunk"
	"github.com/dshills/duomark/internal/config"
	"github.com/dshills/duomark/internal/input"
	"github.com/dshills/duomark/internal/logging"
	"github.com/dshills/duomark/internal/memory"
	"github.com/dshills/duomark/internal/mutation"
	"github.com/dshills/duomark/internal/notify"
	"github.com/dshills/duomark/internal/preview"
	"github.com/dshills/duomark/internal/schedule"
	"github.com/dshills/duomark/internal/surface"
	"github.com/dshills/duomark/internal/telemetry"
	"github.com/dshills/duomark/internal/transform"
	"github.com/dshills/duomark/internal/viewport"
)

// Timed operation names.
const (
	OpInputApply    = "input.apply"
	OpInputLatency  = "input.latency"
	OpRenderWindow  = "render.window"
	OpRenderPreview = "render.preview"
)

// Deps are the collaborators a session is built on.
type Deps struct {
	// Scheduler runs all deferred work. Required.
	Scheduler schedule.Scheduler
	// Surface receives render output. Required.
	Surface surface.Surface
	// Transform produces the preview. Defaults to transform.Plain.
	// Panics are rendered into the preview.
	Transform preview.Transform
	// Probe reports memory pressure. Nil disables eviction.
	Probe memory.Probe
	// Logger receives pipeline logs.
	Logger *logging.Logger
}

// Stats is a snapshot of every stage.
type Stats struct {
	Runes       int
	Lines       int
	Mode        preview.Mode
	Virtualized bool
	Viewport    viewport.State
	Input       input.Stats
	Mutations   mutation.Stats
	Chunks      chunk.Stats
	Preview     preview.Stats
	Telemetry   telemetry.Summary

	// BatchesApplied counts batches applied to the text.
	BatchesApplied uint64
	// BatchesFailed counts batches rejected by Apply.
	BatchesFailed uint64
	// Renders counts window renders.
	Renders uint64
}

// Session is the pipeline for one open document.
type Session struct {
	mu        sync.Mutex
	cfg       *config.Config
	sched     schedule.Scheduler
	surf      surface.Surface
	transform preview.Transform
	probe     memory.Probe
	logger    *logging.Logger
	log       *logging.Logger

	mutations *mutation.Batcher
	monitor   *telemetry.Monitor
	view      *viewport.Calculator
	store     *chunk.Store
	input     *input.Scheduler
	cache     *preview.Cache

	text      []rune
	lines     lineIndex
	projected int
	mode      preview.Mode
	policy    string

	renderQueued atomic.Bool
	forced       atomic.Bool

	inputSub *notify.Subscription
	viewSub  *notify.Subscription
	warnSub  *notify.Subscription
	memTimer schedule.Handle

	applied uint64
	failed  uint64
	renders uint64
	closed  bool
}

// New builds a session from cfg. A nil cfg uses config.Default.
func New(cfg *config.Config, deps Deps) (*Session, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Scheduler == nil {
		return nil, fmt.Errorf("%w: scheduler", ErrMissingDependency)
	}
	if deps.Surface == nil {
		return nil, fmt.Errorf("%w: surface", ErrMissingDependency)
	}

	logger := logging.OrNop(deps.Logger)
	fn := deps.Transform
	if fn == nil {
		fn = transform.Plain
	}

	s := &Session{
		cfg:       cfg.Clone(),
		sched:     deps.Scheduler,
		surf:      deps.Surface,
		transform: transform.Safe(fn, logger),
		probe:     deps.Probe,
		logger:    logger,
		log:       logger.WithComponent("session"),
		mode:      cfg.EditMode(),
		policy:    cfg.Render.Virtualize,
	}
	s.mutations = mutation.New(s.sched, logger)

	monitorOpts := cfg.Telemetry.Options()
	monitorOpts.Clock = s.sched
	monitorOpts.Probe = s.probe
	monitorOpts.Logger = logger
	s.monitor = telemetry.New(monitorOpts)
	s.warnSub = s.monitor.OnWarning(notify.Func[telemetry.Warning](s.onWarning))

	var err error
	if s.view, err = s.newViewport(cfg.Viewport, cfg.Viewport.ContainerHeight, 0); err != nil {
		return nil, err
	}
	if s.store, err = s.newStore(cfg.Chunks); err != nil {
		return nil, err
	}
	if s.input, err = s.newInput(cfg.Input); err != nil {
		return nil, err
	}
	if s.cache, err = s.newCache(cfg.Preview); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.reindexLocked()
	s.startMemoryChecksLocked()
	s.mu.Unlock()
	return s, nil
}

func (s *Session) newViewport(vc config.ViewportConfig, height, offset float64) (*viewport.Calculator, error) {
	opts := vc.Options()
	opts.ContainerHeight = height
	view, err := viewport.New(opts)
	if err != nil {
		return nil, err
	}
	view.UpdateScrollOffset(offset)
	if s.viewSub != nil {
		s.viewSub.Unsubscribe()
	}
	s.viewSub = view.Subscribe(notify.Func[viewport.State](func(viewport.State) { s.requestRender() }))
	return view, nil
}

func (s *Session) newStore(cc config.ChunkConfig) (*chunk.Store, error) {
	opts := cc.Options()
	opts.Probe = s.probe
	opts.Logger = s.logger
	return chunk.New(opts)
}

func (s *Session) newInput(ic config.InputConfig) (*input.Scheduler, error) {
	opts := ic.Options()
	opts.Logger = s.logger
	in, err := input.New(s.sched, opts)
	if err != nil {
		return nil, err
	}
	if s.inputSub != nil {
		s.inputSub.Unsubscribe()
	}
	s.inputSub = in.Subscribe(notify.Func[input.Batch](s.onBatch))
	return in, nil
}

func (s *Session) newCache(pc config.PreviewConfig) (*preview.Cache, error) {
	opts := pc.Options()
	opts.Logger = s.logger
	return preview.New(s.transform, s.sched, opts)
}

// SetContent replaces the document. Pending edits are applied first. The
// preview is computed immediately.
func (s *Session) SetContent(text string) error {
	if err := s.flushInput(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.text = []rune(text)
	s.projected = len(s.text)
	content := s.reindexLocked()
	mode, cache := s.mode, s.cache
	s.mu.Unlock()

	s.requestRender()
	s.paintPreview(cache, content, mode)
	return nil
}

// Insert queues an insertion of text at rune offset pos.
func (s *Session) Insert(pos int, text string) error {
	return s.submit(input.Insert(pos, text))
}

// Delete queues removal of n runes at pos.
func (s *Session) Delete(pos, n int) error {
	return s.submit(input.Delete(pos, n))
}

// Replace queues replacement of n runes at pos with text.
func (s *Session) Replace(pos, n int, text string) error {
	return s.submit(input.Replace(pos, n, text))
}

// submit checks op against the length the text will have once every
// queued edit is applied, then queues it.
func (s *Session) submit(op input.EditOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if op.Position < 0 || op.Position > s.projected {
		return fmt.Errorf("%w: %s at %d of %d", input.ErrInvalidPosition, op.Kind, op.Position, s.projected)
	}
	if op.Kind != input.KindInsert && (op.Length < 0 || op.Position+op.Length > s.projected) {
		return fmt.Errorf("%w: %s of %d at %d of %d", input.ErrInvalidPosition, op.Kind, op.Length, op.Position, s.projected)
	}

	if err := s.input.ProcessInput(op); err != nil {
		return err
	}
	s.projected += utf8.RuneCountInString(op.Payload) - op.Length
	return nil
}

// onBatch applies a delivered batch.
func (s *Session) onBatch(b input.Batch) {
	m := telemetry.MeasureInputLatency(s.monitor, OpInputApply, func() error {
		return s.apply(b)
	})
	if m.Result != nil {
		s.log.Error("batch %d (%s): %v", b.Seq(), b.ID(), m.Result)
		return
	}
	if b.Len() > 0 {
		s.monitor.Record(OpInputLatency, s.sched.Now().Sub(b.At(0).Timestamp))
	}
}

func (s *Session) apply(b input.Batch) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	text, err := input.Apply(s.text, b)
	if err != nil {
		s.failed++
		s.mu.Unlock()
		return err
	}
	s.text = text
	s.applied++
	content := s.reindexLocked()
	mode, cache := s.mode, s.cache
	s.mu.Unlock()

	s.requestRender()
	cache.UpdatePreview(content, mode, s.queuePreview)
	return nil
}

// reindexLocked re-chunks the text, rebuilds the line index and resizes
// the viewport. It returns the text as a string. Must be called with mu
// held.
func (s *Session) reindexLocked() string {
	content := string(s.text)
	s.store.SetContent(content)
	s.lines = buildLineIndex(s.text)
	s.view.UpdateTotalItems(s.lines.count())
	return content
}

// paintPreview computes the preview synchronously and queues its render.
func (s *Session) paintPreview(cache *preview.Cache, content string, mode preview.Mode) {
	s.queuePreview(cache.UpdatePreviewImmediate(content, mode))
}

func (s *Session) queuePreview(result string) {
	err := s.mutations.QueueFunc(func() {
		stop := s.monitor.StartTiming(OpRenderPreview)
		s.surf.RenderPreview(result)
		stop()
	})
	if err != nil {
		s.log.Debug("preview dropped: %v", err)
	}
}

// requestRender queues one window render for the next frame. Requests
// made before it runs are coalesced.
func (s *Session) requestRender() {
	if !s.renderQueued.CompareAndSwap(false, true) {
		return
	}
	if err := s.mutations.Queue(s.renderWindow); err != nil {
		s.renderQueued.Store(false)
	}
}

func (s *Session) renderWindow() error {
	s.renderQueued.Store(false)

	stop := s.monitor.StartTiming(OpRenderWindow)
	win, err := s.window()
	if err != nil {
		stop()
		return err
	}
	s.surf.RenderWindow(win)
	stop()

	s.mu.Lock()
	s.renders++
	s.mu.Unlock()
	return nil
}

// window reads the lines to render. Eviction is left to the memory checks
// so a window read never undoes the previous one.
func (s *Session) window() (surface.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return surface.Window{}, ErrClosed
	}

	st := s.view.State()
	total := s.lines.count()
	virtual := s.virtualizedLocked()

	from, to, offset := 0, total, 0.0
	if virtual && st.TotalCount > 0 {
		from, to, offset = st.StartIndex, min(st.EndIndex+1, total), st.RenderOffset
	}
	lines, err := s.readLinesLocked(from, to)
	if err != nil {
		return surface.Window{}, err
	}

	scroll := int(st.ScrollOffset / s.view.ItemHeight())
	return surface.Window{
		RenderOffset: offset,
		StartLine:    from,
		ScrollLine:   min(max(scroll, 0), total-1),
		Lines:        lines,
		TotalLines:   total,
		Virtualized:  virtual,
	}, nil
}

// readLinesLocked returns lines [from, to) read through the chunk store.
// Evicted chunks are restored by re-chunking the text once.
func (s *Session) readLinesLocked(from, to int) ([]string, error) {
	if from >= to {
		return nil, nil
	}
	start, _ := s.lines.bounds(from)
	_, end := s.lines.bounds(to - 1)

	text, err := s.store.Range(start, end)
	if errors.Is(err, chunk.ErrChunkEvicted) {
		s.log.Debug("lines %d-%d hit evicted chunks, re-chunking", from, to)
		s.store.SetContent(string(s.text))
		text, err = s.store.Range(start, end)
	}
	if err != nil {
		return nil, fmt.Errorf("reading lines %d-%d: %w", from, to, err)
	}
	return strings.Split(text, "\n"), nil
}

func (s *Session) virtualizedLocked() bool {
	switch s.policy {
	case config.VirtualizeAlways:
		return true
	case config.VirtualizeNever:
		return false
	default:
		return s.view.ShouldVirtualize() || s.forced.Load()
	}
}

// onWarning switches to virtualized rendering after a slow render and
// sheds chunks when memory runs high.
func (s *Session) onWarning(w telemetry.Warning) {
	switch w.Threshold {
	case telemetry.ThresholdRenderTime:
		if s.forced.CompareAndSwap(false, true) {
			s.log.Info("%s took %v, switching to virtualized rendering", w.Sample.Operation, w.Sample.Duration)
			s.requestRender()
		}
	case telemetry.ThresholdMemory:
		s.mu.Lock()
		store := s.store
		s.mu.Unlock()
		store.CheckMemoryPressure()
	}
}

// startMemoryChecksLocked schedules periodic memory sampling. Must be
// called with mu held.
func (s *Session) startMemoryChecksLocked() {
	if s.memTimer != 0 {
		s.sched.CancelTimer(s.memTimer)
		s.memTimer = 0
	}
	if interval := s.cfg.Telemetry.MemoryCheckInterval.Std(); interval > 0 && s.probe != nil {
		s.memTimer = s.sched.After(interval, s.onMemoryTick)
	}
}

func (s *Session) onMemoryTick() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.memTimer = 0
	store := s.store
	s.startMemoryChecksLocked()
	s.mu.Unlock()

	s.monitor.CheckMemory()
	store.CheckMemoryPressure()
}

// ScrollTo makes line the first visible line.
func (s *Session) ScrollTo(line int) {
	s.mu.Lock()
	view := s.view
	s.mu.Unlock()
	view.ScrollToIndex(line)
}

// ScrollLines scrolls by delta lines, clamped to the document.
func (s *Session) ScrollLines(delta int) {
	s.mu.Lock()
	view := s.view
	last := s.lines.count() - 1
	s.mu.Unlock()

	h := view.ItemHeight()
	offset := view.State().ScrollOffset + float64(delta)*h
	offset = min(max(offset, 0), float64(last)*h)
	view.UpdateScrollOffset(offset)
}

// Resize sets the number of visible rows.
func (s *Session) Resize(rows int) {
	s.mu.Lock()
	view := s.view
	s.mu.Unlock()
	view.UpdateContainerHeight(float64(max(rows, 0)) * view.ItemHeight())
}

// SetMode switches the preview mode and repaints the preview.
func (s *Session) SetMode(mode preview.Mode) error {
	if _, err := preview.ParseMode(string(mode)); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mode = mode
	content, cache := string(s.text), s.cache
	s.mu.Unlock()

	s.paintPreview(cache, content, mode)
	return nil
}

// Mode returns the preview mode.
func (s *Session) Mode() preview.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Content returns the document text with every queued edit applied.
func (s *Session) Content() string {
	_ = s.flushInput()
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.text)
}

// Len returns the rune length the document has once queued edits apply.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projected
}

// LineCol returns the line and column of rune offset off in the applied
// text.
func (s *Session) LineCol(off int) (line, col int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines.lineOf(off)
}

// Offset returns the rune offset of line and col in the applied text.
func (s *Session) Offset(line, col int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines.offset(line, col)
}

// LineCount returns the number of lines in the applied text.
func (s *Session) LineCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines.count()
}

// Viewport returns the current viewport window.
func (s *Session) Viewport() viewport.State {
	s.mu.Lock()
	view := s.view
	s.mu.Unlock()
	return view.State()
}

// Virtualized reports whether rendering is windowed.
func (s *Session) Virtualized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.virtualizedLocked()
}

// Monitor returns the session's telemetry monitor.
func (s *Session) Monitor() *telemetry.Monitor {
	return s.monitor
}

// Flush applies queued edits and runs queued renders now.
func (s *Session) Flush() {
	_ = s.flushInput()
	s.mutations.Flush()
}

func (s *Session) flushInput() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	in := s.input
	s.mu.Unlock()
	in.Flush()
	return nil
}

// Stats returns a snapshot of every stage.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	st := Stats{
		Runes:          len(s.text),
		Lines:          s.lines.count(),
		Mode:           s.mode,
		Virtualized:    s.virtualizedLocked(),
		BatchesApplied: s.applied,
		BatchesFailed:  s.failed,
		Renders:        s.renders,
	}
	view, store, in, cache := s.view, s.store, s.input, s.cache
	s.mu.Unlock()

	st.Viewport = view.State()
	st.Input = in.Stats()
	st.Chunks = store.Stats()
	st.Preview = cache.Stats()
	st.Mutations = s.mutations.Stats()
	st.Telemetry = s.monitor.Summary()
	return st
}

// ApplyConfig applies a reloaded configuration. Components whose settings
// changed are rebuilt in place; the document, scroll position and mode
// are kept.
func (s *Session) ApplyConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := s.flushInput(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	old := s.cfg
	var retired []func()

	if cfg.Viewport != old.Viewport {
		st := s.view.State()
		line := math.Floor(st.ScrollOffset / s.view.ItemHeight())
		h := cfg.Viewport.ItemHeight
		view, err := s.newViewport(cfg.Viewport, float64(st.VisibleCount)*h, line*h)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		retired = append(retired, s.view.Close)
		s.view = view
	}

	if cfg.Chunks != old.Chunks {
		store, err := s.newStore(cfg.Chunks)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		s.store = store
	}

	if cfg.Input != old.Input {
		in, err := s.newInput(cfg.Input)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		retired = append(retired, s.input.Close)
		s.input = in
	}

	repaint := false
	if cfg.Preview != old.Preview {
		cache, err := s.newCache(cfg.Preview)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		retired = append(retired, s.cache.Close)
		s.cache = cache
		repaint = true
	}

	if cfg.Telemetry != old.Telemetry {
		s.monitor.SetThresholds(cfg.Telemetry.Thresholds())
	}
	if cfg.Render.Virtualize != old.Render.Virtualize {
		s.policy = cfg.Render.Virtualize
		s.forced.Store(false)
	}
	s.logger.SetLevel(cfg.LogLevel())

	s.cfg = cfg.Clone()
	s.startMemoryChecksLocked()
	content := s.reindexLocked()
	mode, cache := s.mode, s.cache
	s.mu.Unlock()

	for _, fn := range retired {
		fn()
	}
	s.log.Info("configuration applied")
	s.requestRender()
	if repaint {
		s.paintPreview(cache, content, mode)
	}
	return nil
}

// Close applies queued edits, runs queued renders and releases every
// component. Later calls fail with ErrClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	in := s.input
	s.mu.Unlock()

	in.Close()
	s.mutations.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.memTimer != 0 {
		s.sched.CancelTimer(s.memTimer)
		s.memTimer = 0
	}
	s.cache.Close()
	s.view.Close()
	s.monitor.Close()
	for _, sub := range []*notify.Subscription{s.inputSub, s.viewSub, s.warnSub} {
		sub.Unsubscribe()
	}
	return nil
}
