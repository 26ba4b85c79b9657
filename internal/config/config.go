// Package config loads duomark settings from TOML or YAML files and
// DUOMARK_ environment variables.
//
// Settings start from Default, are overlaid by the file and then by the
// environment, and are validated as a whole. A Watcher reloads the file
// when it changes.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/duomark/internal/logging"
	"github.com/dshills/duomark/internal/preview"
)

// Duration is a time.Duration written as a string such as "300ms".
type Duration time.Duration

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the time.Duration value.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String implements fmt.Stringer.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// Virtualization policies for RenderConfig.Virtualize.
const (
	VirtualizeAuto   = "auto"
	VirtualizeAlways = "always"
	VirtualizeNever  = "never"
)

// Config is the complete duomark configuration.
type Config struct {
	// Mode is the initial editing mode, "markdown" or "html".
	Mode string `toml:"mode" yaml:"mode"`

	Viewport  ViewportConfig  `toml:"viewport" yaml:"viewport"`
	Chunks    ChunkConfig     `toml:"chunks" yaml:"chunks"`
	Input     InputConfig     `toml:"input" yaml:"input"`
	Telemetry TelemetryConfig `toml:"telemetry" yaml:"telemetry"`
	Preview   PreviewConfig   `toml:"preview" yaml:"preview"`
	Render    RenderConfig    `toml:"render" yaml:"render"`
	Logging   LoggingConfig   `toml:"logging" yaml:"logging"`
}

// ViewportConfig configures the visible window calculation.
type ViewportConfig struct {
	// ItemHeight is the height of one line.
	ItemHeight float64 `toml:"item_height" yaml:"item_height"`
	// ContainerHeight is the visible height. Hosts usually override it
	// with the terminal size.
	ContainerHeight float64 `toml:"container_height" yaml:"container_height"`
	// Overscan is the number of extra lines rendered above and below.
	Overscan int `toml:"overscan" yaml:"overscan"`
	// Threshold is the line count above which rendering is virtualized.
	Threshold int `toml:"threshold" yaml:"threshold"`
}

// ChunkConfig configures the content chunk store.
type ChunkConfig struct {
	// Size is the number of runes per chunk.
	Size int `toml:"size" yaml:"size"`
	// RetainChunks is the number of chunks kept under memory pressure.
	RetainChunks int `toml:"retain_chunks" yaml:"retain_chunks"`
	// GCThreshold is the memory usage percent that triggers eviction.
	GCThreshold float64 `toml:"gc_threshold" yaml:"gc_threshold"`
	// MemoryLimitMB is the heap budget memory usage is measured against.
	// Zero uses the runtime's soft memory limit.
	MemoryLimitMB int `toml:"memory_limit_mb" yaml:"memory_limit_mb"`
}

// InputConfig configures edit batching.
type InputConfig struct {
	BatchSize    int      `toml:"batch_size" yaml:"batch_size"`
	BaseDelay    Duration `toml:"base_delay" yaml:"base_delay"`
	MinDelay     Duration `toml:"min_delay" yaml:"min_delay"`
	LowActivity  float64  `toml:"low_activity" yaml:"low_activity"`
	FastInputGap Duration `toml:"fast_input_gap" yaml:"fast_input_gap"`
	Smoothing    float64  `toml:"smoothing" yaml:"smoothing"`
}

// TelemetryConfig configures performance monitoring.
type TelemetryConfig struct {
	// Window is the number of samples kept per operation.
	Window               int      `toml:"window" yaml:"window"`
	MaxRenderTime        Duration `toml:"max_render_time" yaml:"max_render_time"`
	MaxInputLatency      Duration `toml:"max_input_latency" yaml:"max_input_latency"`
	MemoryWarningPercent float64  `toml:"memory_warning_percent" yaml:"memory_warning_percent"`
	// MemoryCheckInterval is how often memory pressure is sampled. Zero
	// disables periodic checks.
	MemoryCheckInterval Duration `toml:"memory_check_interval" yaml:"memory_check_interval"`
}

// PreviewConfig configures the preview transform and its cache.
type PreviewConfig struct {
	Debounce  Duration `toml:"debounce" yaml:"debounce"`
	MaxWait   Duration `toml:"max_wait" yaml:"max_wait"`
	Memoize   bool     `toml:"memoize" yaml:"memoize"`
	CacheSize int      `toml:"cache_size" yaml:"cache_size"`
	// Script is a Lua file defining transform(content, mode).
	Script string `toml:"script" yaml:"script"`
}

// RenderConfig configures the host surface.
type RenderConfig struct {
	// FrameInterval is the event loop frame period.
	FrameInterval Duration `toml:"frame_interval" yaml:"frame_interval"`
	// Virtualize is "auto", "always" or "never".
	Virtualize string `toml:"virtualize" yaml:"virtualize"`
	// Split is the editor pane's share of the terminal width.
	Split float64 `toml:"split" yaml:"split"`
	// ShowPreview shows the preview pane.
	ShowPreview bool `toml:"show_preview" yaml:"show_preview"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level string `toml:"level" yaml:"level"`
	// File receives log output. Empty discards logs.
	File string `toml:"file" yaml:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Mode: string(preview.ModeMarkdown),
		Viewport: ViewportConfig{
			ItemHeight:      1,
			ContainerHeight: 24,
			Overscan:        5,
			Threshold:       1000,
		},
		Chunks: ChunkConfig{
			Size:         4096,
			RetainChunks: 256,
			GCThreshold:  80,
		},
		Input: InputConfig{
			BatchSize:    10,
			BaseDelay:    Duration(16 * time.Millisecond),
			MinDelay:     Duration(4 * time.Millisecond),
			LowActivity:  0.1,
			FastInputGap: Duration(100 * time.Millisecond),
			Smoothing:    0.2,
		},
		Telemetry: TelemetryConfig{
			Window:               100,
			MaxRenderTime:        Duration(16 * time.Millisecond),
			MaxInputLatency:      Duration(50 * time.Millisecond),
			MemoryWarningPercent: 80,
			MemoryCheckInterval:  Duration(5 * time.Second),
		},
		Preview: PreviewConfig{
			Debounce:  Duration(300 * time.Millisecond),
			Memoize:   true,
			CacheSize: 50,
		},
		Render: RenderConfig{
			FrameInterval: Duration(16 * time.Millisecond),
			Virtualize:    VirtualizeAuto,
			Split:         0.5,
			ShowPreview:   true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Clone returns a copy of c.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// Validate reports every unusable setting.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if _, err := preview.ParseMode(c.Mode); err != nil {
		add(invalid("mode", "unknown mode %q", c.Mode))
	}

	v := c.Viewport
	if v.ItemHeight <= 0 {
		add(invalid("viewport.item_height", "must be positive, got %v", v.ItemHeight))
	}
	if v.ContainerHeight < 0 {
		add(invalid("viewport.container_height", "must not be negative, got %v", v.ContainerHeight))
	}
	if v.Overscan < 0 {
		add(invalid("viewport.overscan", "must not be negative, got %d", v.Overscan))
	}
	if v.Threshold < 0 {
		add(invalid("viewport.threshold", "must not be negative, got %d", v.Threshold))
	}

	ch := c.Chunks
	if ch.Size <= 0 {
		add(invalid("chunks.size", "must be positive, got %d", ch.Size))
	}
	if ch.RetainChunks < 0 {
		add(invalid("chunks.retain_chunks", "must not be negative, got %d", ch.RetainChunks))
	}
	if ch.GCThreshold < 0 || ch.GCThreshold > 100 {
		add(invalid("chunks.gc_threshold", "must be a percentage, got %v", ch.GCThreshold))
	}
	if ch.MemoryLimitMB < 0 {
		add(invalid("chunks.memory_limit_mb", "must not be negative, got %d", ch.MemoryLimitMB))
	}

	in := c.Input
	if in.BatchSize <= 0 {
		add(invalid("input.batch_size", "must be positive, got %d", in.BatchSize))
	}
	if in.BaseDelay < 0 || in.MinDelay < 0 {
		add(invalid("input.base_delay", "delays must not be negative"))
	}
	if in.LowActivity < 0 || in.LowActivity > 1 {
		add(invalid("input.low_activity", "must be in [0,1], got %v", in.LowActivity))
	}
	if in.FastInputGap <= 0 {
		add(invalid("input.fast_input_gap", "must be positive, got %v", in.FastInputGap))
	}
	if in.Smoothing <= 0 || in.Smoothing > 1 {
		add(invalid("input.smoothing", "must be in (0,1], got %v", in.Smoothing))
	}

	t := c.Telemetry
	if t.Window <= 0 {
		add(invalid("telemetry.window", "must be positive, got %d", t.Window))
	}
	if t.MaxRenderTime < 0 || t.MaxInputLatency < 0 || t.MemoryCheckInterval < 0 {
		add(invalid("telemetry", "durations must not be negative"))
	}
	if t.MemoryWarningPercent < 0 || t.MemoryWarningPercent > 100 {
		add(invalid("telemetry.memory_warning_percent", "must be a percentage, got %v", t.MemoryWarningPercent))
	}

	p := c.Preview
	if p.Debounce < 0 || p.MaxWait < 0 {
		add(invalid("preview", "durations must not be negative"))
	}
	if p.Memoize && p.CacheSize <= 0 {
		add(invalid("preview.cache_size", "must be positive when memoizing, got %d", p.CacheSize))
	}

	r := c.Render
	if r.FrameInterval <= 0 {
		add(invalid("render.frame_interval", "must be positive, got %v", r.FrameInterval))
	}
	switch r.Virtualize {
	case VirtualizeAuto, VirtualizeAlways, VirtualizeNever:
	default:
		add(invalid("render.virtualize", "must be auto, always or never, got %q", r.Virtualize))
	}
	if r.Split <= 0 || r.Split >= 1 {
		add(invalid("render.split", "must be in (0,1), got %v", r.Split))
	}

	if _, err := parseLevel(c.Logging.Level); err != nil {
		add(invalid("logging.level", "%v", err))
	}

	return errors.Join(errs...)
}

// EditMode returns the configured mode.
func (c *Config) EditMode() preview.Mode {
	m, err := preview.ParseMode(c.Mode)
	if err != nil {
		return preview.ModeMarkdown
	}
	return m
}

// LogLevel returns the configured log level.
func (c *Config) LogLevel() logging.Level {
	l, err := parseLevel(c.Logging.Level)
	if err != nil {
		return logging.LevelInfo
	}
	return l
}

func parseLevel(s string) (logging.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "info", "warn", "warning", "error", "":
		return logging.ParseLevel(s), nil
	}
	return logging.LevelInfo, fmt.Errorf("unknown level %q", s)
}
