// Package preview debounces and memoizes the content-to-preview transform.
//
// UpdatePreview is a trailing-edge debounce: the transform runs once the
// input has been quiet for the debounce interval, with the arguments of the
// last call. Results are cached by content and mode and evicted least
// recently used first.
package preview

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/duomark/internal/logging"
	"github.com/dshills/duomark/internal/schedule"
)

var (
	// ErrInvalidConfig is returned for unusable cache options.
	ErrInvalidConfig = errors.New("preview: invalid configuration")
)

// Transform renders content in mode. It must be synchronous, pure and
// total; failures should be rendered into the returned string.
type Transform func(content string, mode Mode) string

// Defaults used by DefaultOptions.
const (
	DefaultDebounce     = 300 * time.Millisecond
	DefaultMaxCacheSize = 50
)

// Options configures a Cache.
type Options struct {
	// Debounce is the quiet period before a deferred transform runs.
	Debounce time.Duration
	// MaxWait caps how long continuous input can defer the transform.
	// Zero means no cap.
	MaxWait time.Duration
	// EnableMemoization caches transform results.
	EnableMemoization bool
	// MaxCacheSize is the number of cached results.
	MaxCacheSize int
	// Logger receives debug output.
	Logger *logging.Logger
}

// DefaultOptions returns the default cache options.
func DefaultOptions() Options {
	return Options{
		Debounce:          DefaultDebounce,
		EnableMemoization: true,
		MaxCacheSize:      DefaultMaxCacheSize,
	}
}

// Entry is one cached result.
type Entry struct {
	Key        uint64
	Source     string
	Mode       Mode
	Result     string
	LastAccess time.Time
}

// Stats describes cache activity.
type Stats struct {
	Size       int
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Transforms uint64
	Replaced   uint64
	Deferred   uint64
}

type request struct {
	content  string
	mode     Mode
	callback func(string)
}

// Cache debounces and memoizes a Transform.
type Cache struct {
	mu        sync.Mutex
	transform Transform
	sched     schedule.Scheduler
	opts      Options
	log       *logging.Logger

	entries *lru.Cache[uint64, *Entry]

	pending      *request
	pendingSince time.Time
	timer        schedule.Handle

	stats Stats
}

// New creates a cache around transform.
func New(transform Transform, sched schedule.Scheduler, opts Options) (*Cache, error) {
	if transform == nil {
		return nil, fmt.Errorf("%w: transform is required", ErrInvalidConfig)
	}
	if sched == nil {
		return nil, fmt.Errorf("%w: scheduler is required", ErrInvalidConfig)
	}
	if opts.Debounce < 0 || opts.MaxWait < 0 {
		return nil, fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	}

	c := &Cache{
		transform: transform,
		sched:     sched,
		opts:      opts,
		log:       logging.OrNop(opts.Logger).WithComponent("preview"),
	}
	if opts.EnableMemoization {
		entries, err := lru.New[uint64, *Entry](opts.MaxCacheSize)
		if err != nil {
			return nil, fmt.Errorf("%w: cache size %d: %v", ErrInvalidConfig, opts.MaxCacheSize, err)
		}
		c.entries = entries
	}
	return c, nil
}

// Key returns the cache key of content in mode.
func Key(content string, mode Mode) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(string(mode))
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(content)
	return d.Sum64()
}

// UpdatePreview schedules a transform of content once input is quiet for
// the debounce interval. A call while one is pending replaces its
// arguments and callback and restarts the interval, bounded by MaxWait.
func (c *Cache) UpdatePreview(content string, mode Mode, callback func(string)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.sched.Now()
	if c.pending == nil {
		c.pendingSince = now
	} else {
		c.stats.Replaced++
	}
	c.pending = &request{content: content, mode: mode, callback: callback}

	if c.timer != 0 {
		c.sched.CancelTimer(c.timer)
	}

	delay := c.opts.Debounce
	if c.opts.MaxWait > 0 {
		remaining := c.pendingSince.Add(c.opts.MaxWait).Sub(now)
		delay = max(min(delay, remaining), 0)
	}
	c.timer = c.sched.After(delay, c.fire)
}

func (c *Cache) fire() {
	c.mu.Lock()
	req := c.pending
	c.pending = nil
	c.timer = 0
	if req != nil {
		c.stats.Deferred++
	}
	c.mu.Unlock()

	if req == nil {
		return
	}
	result := c.process(req.content, req.mode)
	if req.callback != nil {
		req.callback(result)
	}
}

// UpdatePreviewImmediate transforms content synchronously through the
// cache. A pending deferred update is left in place.
func (c *Cache) UpdatePreviewImmediate(content string, mode Mode) string {
	return c.process(content, mode)
}

// process returns the cached result or computes and stores it. Transform
// panics propagate to the caller.
func (c *Cache) process(content string, mode Mode) string {
	if c.entries == nil {
		c.mu.Lock()
		c.stats.Transforms++
		c.mu.Unlock()
		return c.transform(content, mode)
	}

	key := Key(content, mode)

	c.mu.Lock()
	if e, ok := c.entries.Get(key); ok && e.Mode == mode && e.Source == content {
		e.LastAccess = c.sched.Now()
		c.stats.Hits++
		result := e.Result
		c.mu.Unlock()
		return result
	}
	c.stats.Misses++
	c.stats.Transforms++
	c.mu.Unlock()

	result := c.transform(content, mode)

	c.mu.Lock()
	defer c.mu.Unlock()
	entry := &Entry{Key: key, Source: content, Mode: mode, Result: result, LastAccess: c.sched.Now()}
	if c.entries.Add(key, entry) {
		c.stats.Evictions++
	}
	return result
}

// Lookup returns a cached entry without refreshing its recency.
func (c *Cache) Lookup(content string, mode Mode) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		return Entry{}, false
	}
	e, ok := c.entries.Peek(Key(content, mode))
	if !ok || e.Mode != mode || e.Source != content {
		return Entry{}, false
	}
	return *e, true
}

// Pending reports whether a deferred update is waiting.
func (c *Cache) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// Flush runs a pending deferred update immediately.
func (c *Cache) Flush() {
	c.mu.Lock()
	if c.timer != 0 {
		c.sched.CancelTimer(c.timer)
	}
	c.mu.Unlock()
	c.fire()
}

// Clear drops every cached result.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries != nil {
		c.entries.Purge()
	}
}

// Len returns the number of cached results.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		return 0
	}
	return c.entries.Len()
}

// Stats returns cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	if c.entries != nil {
		s.Size = c.entries.Len()
	}
	return s
}

// Close cancels any pending deferred update without running it.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != 0 {
		c.sched.CancelTimer(c.timer)
		c.timer = 0
	}
	if c.pending != nil {
		c.log.Debug("dropping pending preview update on close")
	}
	c.pending = nil
}
