// Package telemetry times named pipeline operations, keeps rolling
// averages and raises warnings when an operation breaches its threshold.
//
// Operations are classified by name prefix: names starting with "render"
// are compared against MaxRenderTime and names starting with "input"
// against MaxInputLatency. Memory usage is compared by CheckMemory.
package telemetry

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dshills/duomark/internal/logging"
	"github.com/dshills/duomark/internal/memory"
	"github.com/dshills/duomark/internal/notify"
	"github.com/dshills/duomark/internal/schedule"
)

// Threshold names a configured limit.
type Threshold string

const (
	// ThresholdNone marks operations without a limit.
	ThresholdNone Threshold = ""
	// ThresholdRenderTime applies to render operations.
	ThresholdRenderTime Threshold = "maxRenderTime"
	// ThresholdInputLatency applies to input operations.
	ThresholdInputLatency Threshold = "maxInputLatency"
	// ThresholdMemory applies to memory checks.
	ThresholdMemory Threshold = "memoryWarning"
)

// MemoryOperation is the operation name of memory samples.
const MemoryOperation = "memory"

// DefaultWindow is the default number of samples kept per operation.
const DefaultWindow = 100

// Thresholds are the warning limits. A zero value disables that limit.
type Thresholds struct {
	MaxRenderTime        time.Duration
	MaxInputLatency      time.Duration
	MemoryWarningPercent float64
}

// DefaultThresholds returns limits suited to a 60 Hz host.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxRenderTime:        16 * time.Millisecond,
		MaxInputLatency:      50 * time.Millisecond,
		MemoryWarningPercent: 80,
	}
}

// Sample is one measurement.
type Sample struct {
	Operation string
	Duration  time.Duration
	Timestamp time.Time
	// Percent is set on memory samples.
	Percent float64
}

// Warning reports a sample that breached a threshold.
type Warning struct {
	Sample    Sample
	Threshold Threshold
}

// Options configures a Monitor.
type Options struct {
	// Window is the number of samples kept per operation.
	Window int
	// Thresholds are the warning limits.
	Thresholds Thresholds
	// Clock times operations. Defaults to the wall clock.
	Clock schedule.Clock
	// Probe supplies memory usage for CheckMemory.
	Probe memory.Probe
	// Logger receives warnings at warn level.
	Logger *logging.Logger
}

// Classify returns the threshold that applies to an operation name.
func Classify(name string) Threshold {
	switch {
	case strings.HasPrefix(name, "render"):
		return ThresholdRenderTime
	case strings.HasPrefix(name, "input"):
		return ThresholdInputLatency
	default:
		return ThresholdNone
	}
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// ring is a bounded window of samples, oldest overwritten first.
type ring struct {
	samples []Sample
	next    int
	total   uint64
}

func (r *ring) add(s Sample, window int) {
	r.total++
	if len(r.samples) < window {
		r.samples = append(r.samples, s)
		return
	}
	r.samples[r.next] = s
	r.next = (r.next + 1) % window
}

func (r *ring) last() Sample {
	if len(r.samples) < cap(r.samples) || r.next == 0 {
		return r.samples[len(r.samples)-1]
	}
	return r.samples[r.next-1]
}

// Monitor collects samples and fires warnings.
type Monitor struct {
	mu         sync.Mutex
	window     int
	thresholds Thresholds
	clock      schedule.Clock
	probe      memory.Probe
	log        *logging.Logger

	ops      map[string]*ring
	warnings map[Threshold]uint64
	memory   float64

	observers *notify.Set[Warning]
}

// New creates a monitor.
func New(opts Options) *Monitor {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Clock == nil {
		opts.Clock = wallClock{}
	}
	log := logging.OrNop(opts.Logger).WithComponent("telemetry")
	return &Monitor{
		window:     opts.Window,
		thresholds: opts.Thresholds,
		clock:      opts.Clock,
		probe:      opts.Probe,
		log:        log,
		ops:        make(map[string]*ring),
		warnings:   make(map[Threshold]uint64),
		observers:  notify.NewSet[Warning](log),
	}
}

// OnWarning registers an observer for threshold breaches.
func (m *Monitor) OnWarning(observer notify.Observer[Warning]) *notify.Subscription {
	return m.observers.Subscribe(observer)
}

// SetThresholds replaces the warning limits.
func (m *Monitor) SetThresholds(t Thresholds) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholds = t
}

// Thresholds returns the warning limits.
func (m *Monitor) Thresholds() Thresholds {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.thresholds
}

// StartTiming starts timing name. Calling the returned function stops the
// timer, records the sample and returns it. Only the first call records.
func (m *Monitor) StartTiming(name string) func() Sample {
	start := m.clock.Now()
	var once sync.Once
	var sample Sample
	return func() Sample {
		once.Do(func() {
			now := m.clock.Now()
			sample = m.record(Sample{Operation: name, Duration: now.Sub(start), Timestamp: now})
		})
		return sample
	}
}

// Record stores an externally measured duration.
func (m *Monitor) Record(name string, d time.Duration) Sample {
	return m.record(Sample{Operation: name, Duration: d, Timestamp: m.clock.Now()})
}

func (m *Monitor) record(s Sample) Sample {
	m.mu.Lock()
	r, ok := m.ops[s.Operation]
	if !ok {
		r = &ring{samples: make([]Sample, 0, m.window)}
		m.ops[s.Operation] = r
	}
	r.add(s, m.window)

	threshold := Classify(s.Operation)
	breached := false
	switch threshold {
	case ThresholdRenderTime:
		breached = m.thresholds.MaxRenderTime > 0 && s.Duration > m.thresholds.MaxRenderTime
	case ThresholdInputLatency:
		breached = m.thresholds.MaxInputLatency > 0 && s.Duration > m.thresholds.MaxInputLatency
	}
	if breached {
		m.warnings[threshold]++
	}
	m.mu.Unlock()

	if breached {
		m.warn(Warning{Sample: s, Threshold: threshold})
	}
	return s
}

func (m *Monitor) warn(w Warning) {
	if w.Threshold == ThresholdMemory {
		m.log.Warn("memory at %.1f%% over %s", w.Sample.Percent, w.Threshold)
	} else {
		m.log.Warn("%s took %v over %s", w.Sample.Operation, w.Sample.Duration, w.Threshold)
	}
	m.observers.Notify(w)
}

// CheckMemory samples the probe and warns when usage exceeds the memory
// threshold. ok is false when no metric is available.
func (m *Monitor) CheckMemory() (percent float64, ok bool) {
	percent, ok = memory.Usage(m.probe)
	if !ok {
		return 0, false
	}

	s := Sample{Operation: MemoryOperation, Timestamp: m.clock.Now(), Percent: percent}

	m.mu.Lock()
	m.memory = percent
	limit := m.thresholds.MemoryWarningPercent
	breached := limit > 0 && percent > limit
	if breached {
		m.warnings[ThresholdMemory]++
	}
	m.mu.Unlock()

	if breached {
		m.warn(Warning{Sample: s, Threshold: ThresholdMemory})
	}
	return percent, true
}

// Average returns the rolling average duration of name.
func (m *Monitor) Average(name string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.ops[name]
	if !ok {
		return 0
	}
	return average(r.samples)
}

// AverageRenderTime returns the rolling average of the named render
// operation, or of every render operation when name is empty.
func (m *Monitor) AverageRenderTime(name string) time.Duration {
	if name != "" {
		return m.Average(name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var all []Sample
	for op, r := range m.ops {
		if Classify(op) == ThresholdRenderTime {
			all = append(all, r.samples...)
		}
	}
	return average(all)
}

func average(samples []Sample) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	var sum time.Duration
	for _, s := range samples {
		sum += s.Duration
	}
	return sum / time.Duration(len(samples))
}

// OperationSummary describes one operation's window.
type OperationSummary struct {
	Name    string
	Total   uint64
	Samples int
	Average time.Duration
	Min     time.Duration
	Max     time.Duration
	Last    time.Duration
}

// Summary is a snapshot of every operation.
type Summary struct {
	Operations    []OperationSummary
	Warnings      map[Threshold]uint64
	MemoryPercent float64
}

// Operation returns the summary of name.
func (s Summary) Operation(name string) (OperationSummary, bool) {
	for _, op := range s.Operations {
		if op.Name == name {
			return op, true
		}
	}
	return OperationSummary{}, false
}

// Summary returns a snapshot sorted by operation name.
func (m *Monitor) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := Summary{
		Operations:    make([]OperationSummary, 0, len(m.ops)),
		Warnings:      make(map[Threshold]uint64, len(m.warnings)),
		MemoryPercent: m.memory,
	}
	for name, r := range m.ops {
		op := OperationSummary{
			Name:    name,
			Total:   r.total,
			Samples: len(r.samples),
			Average: average(r.samples),
			Last:    r.last().Duration,
		}
		for i, s := range r.samples {
			if i == 0 || s.Duration < op.Min {
				op.Min = s.Duration
			}
			if s.Duration > op.Max {
				op.Max = s.Duration
			}
		}
		out.Operations = append(out.Operations, op)
	}
	sort.Slice(out.Operations, func(i, j int) bool {
		return out.Operations[i].Name < out.Operations[j].Name
	})
	for k, v := range m.warnings {
		out.Warnings[k] = v
	}
	return out
}

// Reset drops every sample and warning count.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = make(map[string]*ring)
	m.warnings = make(map[Threshold]uint64)
	m.memory = 0
}

// Close drops every warning observer.
func (m *Monitor) Close() {
	m.observers.Clear()
}

// Measured is the result of MeasureInputLatency.
type Measured[T any] struct {
	Result       T
	InputLatency time.Duration
}

// MeasureInputLatency runs fn synchronously, recording its duration
// under name.
func MeasureInputLatency[T any](m *Monitor, name string, fn func() T) Measured[T] {
	stop := m.StartTiming(name)
	result := fn()
	return Measured[T]{Result: result, InputLatency: stop().Duration}
}
