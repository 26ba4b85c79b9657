package config

import (
	"github.com/dshills/duomark/internal/chunk"
	"github.com/dshills/duomark/internal/input"
	"github.com/dshills/duomark/internal/preview"
	"github.com/dshills/duomark/internal/telemetry"
	"github.com/dshills/duomark/internal/viewport"
)

// Component options built from a Config. Loggers, probes and clocks are
// wired by the caller.

// Options returns the viewport configuration.
func (v ViewportConfig) Options() viewport.Config {
	return viewport.Config{
		ItemHeight:      v.ItemHeight,
		ContainerHeight: v.ContainerHeight,
		Overscan:        v.Overscan,
		Threshold:       v.Threshold,
	}
}

// Options returns the chunk store options.
func (c ChunkConfig) Options() chunk.Options {
	return chunk.Options{
		ChunkSize:    c.Size,
		RetainChunks: c.RetainChunks,
		GCThreshold:  c.GCThreshold,
	}
}

// MemoryLimit returns the configured heap budget in bytes.
func (c ChunkConfig) MemoryLimit() uint64 {
	return uint64(c.MemoryLimitMB) << 20
}

// Options returns the input scheduler options.
func (i InputConfig) Options() input.Options {
	return input.Options{
		BatchSize:    i.BatchSize,
		BaseDelay:    i.BaseDelay.Std(),
		MinDelay:     i.MinDelay.Std(),
		LowActivity:  i.LowActivity,
		FastInputGap: i.FastInputGap.Std(),
		Smoothing:    i.Smoothing,
	}
}

// Thresholds returns the telemetry warning limits.
func (t TelemetryConfig) Thresholds() telemetry.Thresholds {
	return telemetry.Thresholds{
		MaxRenderTime:        t.MaxRenderTime.Std(),
		MaxInputLatency:      t.MaxInputLatency.Std(),
		MemoryWarningPercent: t.MemoryWarningPercent,
	}
}

// Options returns the telemetry monitor options.
func (t TelemetryConfig) Options() telemetry.Options {
	return telemetry.Options{
		Window:     t.Window,
		Thresholds: t.Thresholds(),
	}
}

// Options returns the preview cache options.
func (p PreviewConfig) Options() preview.Options {
	return preview.Options{
		Debounce:          p.Debounce.Std(),
		MaxWait:           p.MaxWait.Std(),
		EnableMemoization: p.Memoize,
		MaxCacheSize:      p.CacheSize,
	}
}
