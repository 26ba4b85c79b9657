// Package memory reports how close the process is to its memory limit.
package memory

import (
	"math"
	"runtime"
	"runtime/debug"
	"sync"
)

// Probe reports memory usage as a percentage of the configured limit.
// ok is false when no limit is known; callers must then skip any
// pressure-driven behavior.
type Probe interface {
	UsagePercent() (percent float64, ok bool)
}

// Usage samples p, treating a nil probe as unavailable.
func Usage(p Probe) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return p.UsagePercent()
}

// Runtime measures the Go heap against a byte limit.
//
// When Limit is zero the soft limit set with debug.SetMemoryLimit (or
// GOMEMLIMIT) is used; without either, the probe is unavailable.
type Runtime struct {
	Limit uint64

	// read is swapped in tests.
	read func(*runtime.MemStats)
}

// NewRuntime creates a runtime probe with an explicit byte limit.
func NewRuntime(limit uint64) *Runtime {
	return &Runtime{Limit: limit}
}

// UsagePercent returns heap in use as a percentage of the limit.
func (r *Runtime) UsagePercent() (float64, bool) {
	limit := r.Limit
	if limit == 0 {
		soft := debug.SetMemoryLimit(-1)
		if soft <= 0 || soft == math.MaxInt64 {
			return 0, false
		}
		limit = uint64(soft)
	}

	var ms runtime.MemStats
	read := r.read
	if read == nil {
		read = runtime.ReadMemStats
	}
	read(&ms)

	return float64(ms.HeapInuse) / float64(limit) * 100, true
}

// Static is a settable probe for simulations and tests.
type Static struct {
	mu        sync.Mutex
	percent   float64
	available bool
}

// NewStatic creates an available probe reporting percent.
func NewStatic(percent float64) *Static {
	return &Static{percent: percent, available: true}
}

// Set changes the reported percentage and marks the probe available.
func (s *Static) Set(percent float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.percent = percent
	s.available = true
}

// SetUnavailable makes the probe report no metric.
func (s *Static) SetUnavailable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.available = false
}

// UsagePercent returns the configured value.
func (s *Static) UsagePercent() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.percent, s.available
}
