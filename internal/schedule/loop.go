package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dshills/duomark/internal/logging"
)

// DefaultFrameInterval is the frame tick of a Loop (60 Hz).
const DefaultFrameInterval = time.Second / 60

// ErrLoopStopped is returned when work is posted to a stopped loop.
var ErrLoopStopped = errors.New("schedule: loop stopped")

// Loop is a single-goroutine event loop implementing Scheduler.
//
// Frame callbacks run on each tick, timer callbacks run when their
// time.Timer fires, and hosts Post arbitrary work. All of it executes on
// the goroutine calling Run, so the components driven by a Loop observe a
// single thread of control.
type Loop struct {
	mu       sync.Mutex
	next     Handle
	frames   []manualFrame
	timers   map[Handle]*time.Timer
	interval time.Duration
	logger   *logging.Logger

	tasks    chan func()
	done     chan struct{}
	stopOnce sync.Once

	frameCount uint64
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithFrameInterval sets the frame tick.
func WithFrameInterval(d time.Duration) LoopOption {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithLogger sets the logger used for recovered panics.
func WithLogger(logger *logging.Logger) LoopOption {
	return func(l *Loop) {
		l.logger = logging.OrNop(logger)
	}
}

// WithQueueSize sets the capacity of the posted-work queue.
func WithQueueSize(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.tasks = make(chan func(), n)
		}
	}
}

// NewLoop creates a loop. It does nothing until Run is called.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{
		timers:   make(map[Handle]*time.Timer),
		interval: DefaultFrameInterval,
		logger:   logging.Nop(),
		tasks:    make(chan func(), 1024),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now returns the wall clock time.
func (l *Loop) Now() time.Time {
	return time.Now()
}

// Post queues fn to run on the loop goroutine. It blocks while the queue
// is full and fails once the loop has stopped.
func (l *Loop) Post(fn func()) error {
	select {
	case <-l.done:
		return ErrLoopStopped
	default:
	}
	select {
	case l.tasks <- fn:
		return nil
	case <-l.done:
		return ErrLoopStopped
	}
}

// RequestFrame schedules fn for the next frame tick.
func (l *Loop) RequestFrame(fn func()) Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	l.frames = append(l.frames, manualFrame{handle: l.next, fn: fn})
	return l.next
}

// CancelFrame cancels a pending frame callback.
func (l *Loop) CancelFrame(h Handle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, f := range l.frames {
		if f.handle == h {
			l.frames = append(l.frames[:i:i], l.frames[i+1:]...)
			return
		}
	}
}

// After schedules fn to run on the loop goroutine after d.
func (l *Loop) After(d time.Duration, fn func()) Handle {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.next++
	h := l.next
	l.timers[h] = time.AfterFunc(d, func() {
		_ = l.Post(func() {
			// The timer may have been cancelled after it fired but
			// before the loop picked it up.
			if l.claimTimer(h) {
				fn()
			}
		})
	})
	return h
}

// CancelTimer cancels a pending timer.
func (l *Loop) CancelTimer(h Handle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t, ok := l.timers[h]; ok {
		t.Stop()
		delete(l.timers, h)
	}
}

func (l *Loop) claimTimer(h Handle) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.timers[h]; !ok {
		return false
	}
	delete(l.timers, h)
	return true
}

// Run processes posted work, timers and frames until ctx is done or Stop
// is called. It returns ctx.Err() on cancellation and nil on Stop.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.Stop()
			return ctx.Err()
		case <-l.done:
			return nil
		case fn := <-l.tasks:
			run(l.logger, "task", fn)
		case <-ticker.C:
			l.runFrame()
		}
	}
}

func (l *Loop) runFrame() {
	l.mu.Lock()
	frames := l.frames
	l.frames = nil
	l.frameCount++
	l.mu.Unlock()

	for _, f := range frames {
		run(l.logger, "frame", f.fn)
	}
}

// Stop stops the loop and cancels every pending timer and frame. It is
// safe to call more than once.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)

		l.mu.Lock()
		defer l.mu.Unlock()
		for h, t := range l.timers {
			t.Stop()
			delete(l.timers, h)
		}
		l.frames = nil
	})
}

// Done returns a channel closed when the loop stops.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// FrameCount returns the number of frames processed.
func (l *Loop) FrameCount() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frameCount
}
