// Package mutation queues render side effects and drains them once per
// frame.
package mutation

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/dshills/duomark/internal/logging"
	"github.com/dshills/duomark/internal/schedule"
)

// ErrClosed is returned when queuing on a closed batcher.
var ErrClosed = errors.New("mutation: batcher closed")

// Func is a queued side effect. A returned error is logged and counted.
type Func func() error

// Stats describes batcher activity.
type Stats struct {
	Queued   uint64
	Ran      uint64
	Failed   uint64
	Drains   uint64
	Pending  int
	MaxDrain int
}

// Batcher collects mutations and runs them together in one frame.
type Batcher struct {
	mu     sync.Mutex
	frames schedule.FrameScheduler
	log    *logging.Logger

	queue  []Func
	frame  schedule.Handle
	closed bool
	stats  Stats
}

// New creates a batcher drained by frames.
func New(frames schedule.FrameScheduler, logger *logging.Logger) *Batcher {
	return &Batcher{
		frames: frames,
		log:    logging.OrNop(logger).WithComponent("mutation"),
	}
}

// Queue appends fn and schedules a drain if none is pending.
func (b *Batcher) Queue(fn Func) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	b.queue = append(b.queue, fn)
	b.stats.Queued++
	if b.frame == 0 {
		b.frame = b.frames.RequestFrame(b.drain)
	}
	return nil
}

// QueueFunc queues a side effect that cannot fail.
func (b *Batcher) QueueFunc(fn func()) error {
	return b.Queue(func() error {
		fn()
		return nil
	})
}

func (b *Batcher) drain() {
	b.mu.Lock()
	b.frame = 0
	queue := b.queue
	b.queue = nil
	b.mu.Unlock()

	b.runAll(queue)
}

// runAll executes queue in order; mutations queued meanwhile wait for the
// next frame.
func (b *Batcher) runAll(queue []Func) {
	if len(queue) == 0 {
		return
	}

	var ran, failed uint64
	for i, fn := range queue {
		if err := b.runOne(fn); err != nil {
			failed++
			b.log.Error("mutation %d of %d failed: %v", i+1, len(queue), err)
		}
		ran++
	}

	b.mu.Lock()
	b.stats.Ran += ran
	b.stats.Failed += failed
	b.stats.Drains++
	b.stats.MaxDrain = max(b.stats.MaxDrain, len(queue))
	b.mu.Unlock()
}

func (b *Batcher) runOne(fn Func) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn()
}

// Flush cancels the pending frame and drains synchronously.
func (b *Batcher) Flush() {
	b.mu.Lock()
	if b.frame != 0 {
		b.frames.CancelFrame(b.frame)
		b.frame = 0
	}
	queue := b.queue
	b.queue = nil
	b.mu.Unlock()

	b.runAll(queue)
}

// Close flushes and rejects further mutations.
func (b *Batcher) Close() {
	b.Flush()
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

// Pending returns the number of queued mutations.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Stats returns batcher statistics.
func (b *Batcher) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.Pending = len(b.queue)
	return s
}
