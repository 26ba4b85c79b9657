package schedule

import (
	"sync"
	"time"

	"github.com/dshills/duomark/internal/logging"
)

type manualTimer struct {
	handle Handle
	due    time.Time
	fn     func()
}

type manualFrame struct {
	handle Handle
	fn     func()
}

// Manual is a deterministic Scheduler driven by a virtual clock.
//
// Timers fire only from Advance, frame callbacks only from RunFrame, and
// both run synchronously on the calling goroutine.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	next   Handle
	frames []manualFrame
	timers []manualTimer
	logger *logging.Logger

	framesRun int
	panics    int
}

// NewManual creates a manual scheduler whose clock starts at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start, logger: logging.Nop()}
}

// SetLogger sets the logger used for recovered panics.
func (m *Manual) SetLogger(l *logging.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = logging.OrNop(l)
}

// Now returns the virtual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// RequestFrame queues fn for the next RunFrame.
func (m *Manual) RequestFrame(fn func()) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	m.frames = append(m.frames, manualFrame{handle: m.next, fn: fn})
	return m.next
}

// CancelFrame removes a queued frame callback.
func (m *Manual) CancelFrame(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, f := range m.frames {
		if f.handle == h {
			m.frames = append(m.frames[:i:i], m.frames[i+1:]...)
			return
		}
	}
}

// After queues fn to fire once the virtual clock reaches now+d.
func (m *Manual) After(d time.Duration, fn func()) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d < 0 {
		d = 0
	}
	m.next++
	m.timers = append(m.timers, manualTimer{handle: m.next, due: m.now.Add(d), fn: fn})
	return m.next
}

// CancelTimer removes a pending timer.
func (m *Manual) CancelTimer(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.timers {
		if t.handle == h {
			m.timers = append(m.timers[:i:i], m.timers[i+1:]...)
			return
		}
	}
}

// RunFrame runs every frame callback queued before the call, in request
// order. Callbacks requested while the frame runs wait for the next one.
// It returns the number of callbacks run.
func (m *Manual) RunFrame() int {
	m.mu.Lock()
	frames := m.frames
	m.frames = nil
	m.framesRun++
	logger := m.logger
	m.mu.Unlock()

	for _, f := range frames {
		if !run(logger, "frame", f.fn) {
			m.mu.Lock()
			m.panics++
			m.mu.Unlock()
		}
	}
	return len(frames)
}

// Advance moves the virtual clock forward by d, firing due timers in
// deadline order. The clock reads each timer's deadline while it runs.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()
	m.AdvanceTo(target)
}

// AdvanceTo moves the virtual clock to t, firing due timers in order.
// Timers scheduled by a firing timer fire too when they fall before t.
func (m *Manual) AdvanceTo(t time.Time) {
	for {
		m.mu.Lock()
		idx := m.earliestDue(t)
		if idx < 0 {
			if t.After(m.now) {
				m.now = t
			}
			m.mu.Unlock()
			return
		}
		timer := m.timers[idx]
		m.timers = append(m.timers[:idx:idx], m.timers[idx+1:]...)
		if timer.due.After(m.now) {
			m.now = timer.due
		}
		logger := m.logger
		m.mu.Unlock()

		if !run(logger, "timer", timer.fn) {
			m.mu.Lock()
			m.panics++
			m.mu.Unlock()
		}
	}
}

// earliestDue returns the index of the earliest timer due at or before t,
// or -1. Ties keep scheduling order. Must be called with mu held.
func (m *Manual) earliestDue(t time.Time) int {
	idx := -1
	for i, timer := range m.timers {
		if timer.due.After(t) {
			continue
		}
		if idx < 0 || timer.due.Before(m.timers[idx].due) {
			idx = i
		}
	}
	return idx
}

// PendingFrames returns the number of queued frame callbacks.
func (m *Manual) PendingFrames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}

// PendingTimers returns the number of pending timers.
func (m *Manual) PendingTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// NextDeadline returns the earliest pending timer deadline.
func (m *Manual) NextDeadline() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.timers) == 0 {
		return time.Time{}, false
	}
	due := m.timers[0].due
	for _, t := range m.timers[1:] {
		if t.due.Before(due) {
			due = t.due
		}
	}
	return due, true
}

// Panics returns the number of callbacks that panicked.
func (m *Manual) Panics() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.panics
}

// FramesRun returns how many times RunFrame has been called.
func (m *Manual) FramesRun() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.framesRun
}
