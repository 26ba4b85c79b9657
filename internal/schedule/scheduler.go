package schedule

import (
	"runtime/debug"
	"time"

	"github.com/dshills/duomark/internal/logging"
)

// Handle identifies a scheduled callback. The zero Handle is never issued.
type Handle uint64

// FrameScheduler schedules work before the next rendering frame.
type FrameScheduler interface {
	// RequestFrame schedules fn to run once in the next frame.
	RequestFrame(fn func()) Handle
	// CancelFrame cancels a pending frame callback. Unknown or already
	// executed handles are ignored.
	CancelFrame(h Handle)
}

// TimerScheduler schedules work after a delay.
type TimerScheduler interface {
	// After schedules fn to run once after d.
	After(d time.Duration, fn func()) Handle
	// CancelTimer cancels a pending timer. Unknown or already fired
	// handles are ignored.
	CancelTimer(h Handle)
}

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// Scheduler combines the frame, timer and clock primitives.
type Scheduler interface {
	FrameScheduler
	TimerScheduler
	Clock
}

// run executes fn, recovering and logging a panic. It reports whether fn
// completed normally.
func run(logger *logging.Logger, kind string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logging.OrNop(logger).Error("%s callback panicked: %v\n%s", kind, r, debug.Stack())
			ok = false
		}
	}()
	fn()
	return true
}
