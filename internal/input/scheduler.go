// Package input coalesces rapid edit operations into frame-aligned batches.
//
// The Scheduler tracks how fast edits arrive and adapts its flush delay:
// bursts of typing are grouped, while an isolated edit after a pause is
// delivered on the next frame. Batches are delivered to observers in order,
// at most once per frame.
package input

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/duomark/internal/logging"
	"github.com/dshills/duomark/internal/notify"
	"github.com/dshills/duomark/internal/schedule"
)

// Defaults used by DefaultOptions.
const (
	DefaultBatchSize    = 10
	DefaultBaseDelay    = 16 * time.Millisecond
	DefaultMinDelay     = 4 * time.Millisecond
	DefaultLowActivity  = 0.1
	DefaultFastInputGap = 100 * time.Millisecond
	DefaultSmoothing    = 0.2
)

// Options configures a Scheduler.
type Options struct {
	// BatchSize flushes immediately once this many operations are pending.
	BatchSize int
	// BaseDelay is the flush delay at zero typing frequency.
	BaseDelay time.Duration
	// MinDelay bounds the adaptive delay from below.
	MinDelay time.Duration
	// LowActivity is the frequency under which an edit following a pause
	// flushes immediately.
	LowActivity float64
	// FastInputGap is the largest gap still counted as continuous typing.
	FastInputGap time.Duration
	// Smoothing is the weight of each new observation in the frequency
	// estimate, in (0, 1].
	Smoothing float64
	// NewID generates batch identifiers. Defaults to random UUIDs.
	NewID func() string
	// Logger receives observer failures.
	Logger *logging.Logger
}

// DefaultOptions returns the default scheduler options.
func DefaultOptions() Options {
	return Options{
		BatchSize:    DefaultBatchSize,
		BaseDelay:    DefaultBaseDelay,
		MinDelay:     DefaultMinDelay,
		LowActivity:  DefaultLowActivity,
		FastInputGap: DefaultFastInputGap,
		Smoothing:    DefaultSmoothing,
	}
}

// Validate reports unusable options.
func (o Options) Validate() error {
	switch {
	case o.BatchSize <= 0:
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidConfig, o.BatchSize)
	case o.BaseDelay < 0 || o.MinDelay < 0:
		return fmt.Errorf("%w: delays must not be negative", ErrInvalidConfig)
	case o.LowActivity < 0 || o.LowActivity > 1:
		return fmt.Errorf("%w: low activity level must be in [0,1], got %v", ErrInvalidConfig, o.LowActivity)
	case o.FastInputGap <= 0:
		return fmt.Errorf("%w: fast input gap must be positive", ErrInvalidConfig)
	case o.Smoothing <= 0 || o.Smoothing > 1:
		return fmt.Errorf("%w: smoothing must be in (0,1], got %v", ErrInvalidConfig, o.Smoothing)
	}
	return nil
}

// Stats describes scheduler activity.
type Stats struct {
	Batches           uint64
	Operations        uint64
	SizeFlushes       uint64
	PauseFlushes      uint64
	TimerFlushes      uint64
	ForcedFlushes     uint64
	FrameReplacements uint64
}

// Scheduler batches edit operations.
type Scheduler struct {
	mu    sync.Mutex
	sched schedule.Scheduler
	opts  Options
	log   *logging.Logger

	pending []EditOperation
	ready   []Batch
	timer   schedule.Handle
	frame   schedule.Handle

	frequency float64
	lastInput time.Time
	hasInput  bool

	seq    uint64
	closed bool
	stats  Stats

	observers *notify.Set[Batch]
}

// New creates a scheduler driven by sched.
func New(sched schedule.Scheduler, opts Options) (*Scheduler, error) {
	if sched == nil {
		return nil, fmt.Errorf("%w: scheduler is required", ErrInvalidConfig)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	log := logging.OrNop(opts.Logger).WithComponent("input")
	return &Scheduler{
		sched:     sched,
		opts:      opts,
		log:       log,
		observers: notify.NewSet[Batch](log),
	}, nil
}

// Subscribe registers an observer for delivered batches.
func (s *Scheduler) Subscribe(observer notify.Observer[Batch]) *notify.Subscription {
	return s.observers.Subscribe(observer)
}

// ProcessInput timestamps op, updates the typing frequency and queues it.
func (s *Scheduler) ProcessInput(op EditOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	now := s.sched.Now()
	op.Timestamp = now

	paused := false
	if s.hasInput {
		alpha := s.opts.Smoothing
		if now.Sub(s.lastInput) < s.opts.FastInputGap {
			s.frequency += alpha * (1 - s.frequency)
		} else {
			s.frequency *= 1 - alpha
			paused = true
		}
		s.frequency = clamp01(s.frequency)
	}
	s.lastInput = now
	s.hasInput = true

	s.pending = append(s.pending, op)

	switch {
	case len(s.pending) >= s.opts.BatchSize:
		s.stats.SizeFlushes++
		s.flushLocked()
	case paused && s.frequency < s.opts.LowActivity:
		s.stats.PauseFlushes++
		s.flushLocked()
	default:
		if s.timer != 0 {
			s.sched.CancelTimer(s.timer)
		}
		s.timer = s.sched.After(s.adaptiveDelayLocked(), s.onTimer)
	}
	return nil
}

func (s *Scheduler) onTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.timer = 0
	if len(s.pending) > 0 {
		s.stats.TimerFlushes++
		s.flushLocked()
	}
}

// cutBatch moves pending operations into the ready list and cancels the
// flush timer. Must be called with mu held.
func (s *Scheduler) cutBatch() {
	if s.timer != 0 {
		s.sched.CancelTimer(s.timer)
		s.timer = 0
	}
	if len(s.pending) == 0 {
		return
	}

	s.seq++
	b := Batch{
		id:        s.opts.NewID(),
		seq:       s.seq,
		timestamp: s.sched.Now(),
		ops:       s.pending,
	}
	s.pending = nil
	s.ready = append(s.ready, b)
	s.stats.Batches++
	s.stats.Operations += uint64(len(b.ops))
}

// flushLocked cuts a batch and (re)requests the delivery frame, replacing
// any request already outstanding. Must be called with mu held.
func (s *Scheduler) flushLocked() {
	s.cutBatch()
	if s.frame != 0 {
		s.sched.CancelFrame(s.frame)
		s.stats.FrameReplacements++
	}
	s.frame = s.sched.RequestFrame(s.deliver)
}

// deliver runs in the frame and hands every ready batch to observers.
func (s *Scheduler) deliver() {
	s.mu.Lock()
	s.frame = 0
	ready := s.ready
	s.ready = nil
	s.mu.Unlock()

	for _, b := range ready {
		s.observers.Notify(b)
	}
}

// Flush synchronously delivers pending operations and any batch still
// waiting for its frame.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	if len(s.pending) > 0 {
		s.stats.ForcedFlushes++
	}
	s.cutBatch()
	if s.frame != 0 {
		s.sched.CancelFrame(s.frame)
		s.frame = 0
	}
	ready := s.ready
	s.ready = nil
	s.mu.Unlock()

	for _, b := range ready {
		s.observers.Notify(b)
	}
}

// Close flushes, cancels all deferred work and drops observers.
// Further input fails with ErrClosed.
func (s *Scheduler) Close() {
	s.Flush()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.observers.Clear()
}

// Frequency returns the smoothed typing frequency in [0,1].
func (s *Scheduler) Frequency() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frequency
}

// Pending returns the number of operations not yet cut into a batch.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// AdaptiveDelay returns the delay the next scheduled flush would use.
func (s *Scheduler) AdaptiveDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adaptiveDelayLocked()
}

func (s *Scheduler) adaptiveDelayLocked() time.Duration {
	d := time.Duration(float64(s.opts.BaseDelay) * (1 - 0.5*s.frequency))
	return max(d, s.opts.MinDelay)
}

// Stats returns scheduler statistics.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func clamp01(f float64) float64 {
	return min(max(f, 0), 1)
}
