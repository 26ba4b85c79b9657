// Package viewport computes the window of items a host needs to render for
// a scroll position.
//
// Items have a uniform height. Given the scroll offset, the container
// height and the number of items, the Calculator derives the first and last
// index to render (including overscan) and the offset at which the first
// rendered item is drawn.
package viewport

import (
	"fmt"
	"math"
	"sync"

	"github.com/dshills/duomark/internal/notify"
)

// Config configures a Calculator.
type Config struct {
	// ItemHeight is the height of every item. Must be positive.
	ItemHeight float64
	// ContainerHeight is the height of the visible area.
	ContainerHeight float64
	// Overscan is the number of extra items rendered on each side.
	Overscan int
	// Threshold is the item count above which virtualization is useful.
	Threshold int
}

// DefaultConfig returns a configuration for a terminal host where one
// line is one unit tall.
func DefaultConfig() Config {
	return Config{
		ItemHeight:      1,
		ContainerHeight: 24,
		Overscan:        5,
		Threshold:       1000,
	}
}

// Validate reports configurations that cannot produce a window.
func (c Config) Validate() error {
	if !(c.ItemHeight > 0) || math.IsInf(c.ItemHeight, 0) {
		return fmt.Errorf("%w: item height must be positive, got %v", ErrInvalidConfig, c.ItemHeight)
	}
	if c.ContainerHeight < 0 || math.IsNaN(c.ContainerHeight) {
		return fmt.Errorf("%w: container height must not be negative, got %v", ErrInvalidConfig, c.ContainerHeight)
	}
	if c.Overscan < 0 {
		return fmt.Errorf("%w: overscan must not be negative, got %d", ErrInvalidConfig, c.Overscan)
	}
	if c.Threshold < 0 {
		return fmt.Errorf("%w: threshold must not be negative, got %d", ErrInvalidConfig, c.Threshold)
	}
	return nil
}

// State is a computed viewport window.
type State struct {
	ScrollOffset float64
	StartIndex   int
	EndIndex     int
	VisibleCount int
	TotalCount   int
	RenderOffset float64
}

// Count returns the number of items in the window, zero when empty.
func (s State) Count() int {
	if s.TotalCount == 0 {
		return 0
	}
	return s.EndIndex - s.StartIndex + 1
}

// Calculator tracks scroll position and derives the render window.
// Every update recomputes the state and notifies observers synchronously.
type Calculator struct {
	mu sync.Mutex

	itemHeight      float64
	containerHeight float64
	overscan        int
	threshold       int

	scrollOffset float64
	totalItems   int

	state     State
	observers notify.Set[State]
}

// New creates a calculator. A non-positive item height fails fast.
func New(cfg Config) (*Calculator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Calculator{
		itemHeight:      cfg.ItemHeight,
		containerHeight: cfg.ContainerHeight,
		overscan:        cfg.Overscan,
		threshold:       cfg.Threshold,
	}
	c.state = c.compute()
	return c, nil
}

// Compute returns the window for the given inputs without any state.
// A configuration failing Validate yields the empty window.
func Compute(cfg Config, scrollOffset float64, totalItems int) State {
	if cfg.Validate() != nil {
		return State{}
	}
	visible := int(math.Ceil(cfg.ContainerHeight / cfg.ItemHeight))
	if visible < 0 {
		visible = 0
	}
	if scrollOffset < 0 || math.IsNaN(scrollOffset) {
		scrollOffset = 0
	}

	s := State{
		ScrollOffset: scrollOffset,
		VisibleCount: visible,
		TotalCount:   totalItems,
	}
	if totalItems <= 0 {
		s.TotalCount = 0
		return s
	}

	first := math.Floor(scrollOffset / cfg.ItemHeight)
	if first > float64(totalItems-1) {
		first = float64(totalItems - 1)
	}
	start := int(first) - cfg.Overscan
	if start < 0 {
		start = 0
	}
	end := start + visible + 2*cfg.Overscan
	if end > totalItems-1 {
		end = totalItems - 1
	}

	s.StartIndex = start
	s.EndIndex = end
	s.RenderOffset = float64(start) * cfg.ItemHeight
	return s
}

func (c *Calculator) config() Config {
	return Config{
		ItemHeight:      c.itemHeight,
		ContainerHeight: c.containerHeight,
		Overscan:        c.overscan,
		Threshold:       c.threshold,
	}
}

// compute must be called with mu held.
func (c *Calculator) compute() State {
	return Compute(c.config(), c.scrollOffset, c.totalItems)
}

// update applies mutate under the lock, recomputes, and notifies observers
// when the window changed.
func (c *Calculator) update(mutate func()) State {
	c.mu.Lock()
	mutate()
	prev := c.state
	c.state = c.compute()
	state := c.state
	c.mu.Unlock()

	if state != prev {
		c.observers.Notify(state)
	}
	return state
}

// UpdateScrollOffset sets the scroll offset. Negative offsets clamp to 0.
func (c *Calculator) UpdateScrollOffset(offset float64) State {
	return c.update(func() {
		if offset < 0 || math.IsNaN(offset) {
			offset = 0
		}
		c.scrollOffset = offset
	})
}

// UpdateTotalItems sets the number of items.
func (c *Calculator) UpdateTotalItems(n int) State {
	return c.update(func() {
		if n < 0 {
			n = 0
		}
		c.totalItems = n
	})
}

// UpdateContainerHeight sets the height of the visible area.
func (c *Calculator) UpdateContainerHeight(h float64) State {
	return c.update(func() {
		if h < 0 || math.IsNaN(h) {
			h = 0
		}
		c.containerHeight = h
	})
}

// SetOverscan changes the overscan.
func (c *Calculator) SetOverscan(n int) State {
	return c.update(func() {
		if n < 0 {
			n = 0
		}
		c.overscan = n
	})
}

// ScrollToIndex scrolls so item i is the first visible item.
func (c *Calculator) ScrollToIndex(i int) State {
	return c.update(func() {
		if i < 0 {
			i = 0
		}
		if c.totalItems > 0 && i > c.totalItems-1 {
			i = c.totalItems - 1
		}
		c.scrollOffset = float64(i) * c.itemHeight
	})
}

// ShouldVirtualize reports whether the item count exceeds the threshold.
func (c *Calculator) ShouldVirtualize() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalItems > c.threshold
}

// State returns the current window.
func (c *Calculator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ItemHeight returns the configured item height.
func (c *Calculator) ItemHeight() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.itemHeight
}

// ItemOffset returns the offset of item i from the top of the content.
func (c *Calculator) ItemOffset(i int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return float64(i) * c.itemHeight
}

// TotalHeight returns the height of all items.
func (c *Calculator) TotalHeight() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return float64(c.totalItems) * c.itemHeight
}

// IsVisible reports whether item i is inside the render window.
func (c *Calculator) IsVisible(i int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.TotalCount > 0 && i >= c.state.StartIndex && i <= c.state.EndIndex
}

// Subscribe registers an observer notified after every change of window.
func (c *Calculator) Subscribe(observer notify.Observer[State]) *notify.Subscription {
	return c.observers.Subscribe(observer)
}

// Close drops every observer.
func (c *Calculator) Close() {
	c.observers.Clear()
}
