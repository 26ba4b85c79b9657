package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dshills/duomark/internal/logging"
	"github.com/dshills/duomark/internal/preview"
)

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.EditMode() != preview.ModeMarkdown {
		t.Errorf("EditMode() = %q", cfg.EditMode())
	}
	if cfg.LogLevel() != logging.LevelInfo {
		t.Errorf("LogLevel() = %v", cfg.LogLevel())
	}
}

func TestValidate_Aggregates(t *testing.T) {
	cfg := Default()
	cfg.Chunks.Size = 0
	cfg.Render.Virtualize = "sometimes"
	cfg.Input.Smoothing = 2
	cfg.Mode = "rtf"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
	for _, path := range []string{"chunks.size", "render.virtualize", "input.smoothing", "mode"} {
		if !strings.Contains(err.Error(), path) {
			t.Errorf("error should mention %s: %v", path, err)
		}
	}
}

func TestValidate_Cases(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"item height", func(c *Config) { c.Viewport.ItemHeight = 0 }},
		{"overscan", func(c *Config) { c.Viewport.Overscan = -1 }},
		{"retain", func(c *Config) { c.Chunks.RetainChunks = -1 }},
		{"gc threshold", func(c *Config) { c.Chunks.GCThreshold = 120 }},
		{"batch size", func(c *Config) { c.Input.BatchSize = 0 }},
		{"low activity", func(c *Config) { c.Input.LowActivity = 1.5 }},
		{"fast gap", func(c *Config) { c.Input.FastInputGap = 0 }},
		{"window", func(c *Config) { c.Telemetry.Window = 0 }},
		{"memory warning", func(c *Config) { c.Telemetry.MemoryWarningPercent = -1 }},
		{"cache size", func(c *Config) { c.Preview.CacheSize = 0 }},
		{"debounce", func(c *Config) { c.Preview.Debounce = Duration(-time.Second) }},
		{"frame interval", func(c *Config) { c.Render.FrameInterval = 0 }},
		{"split", func(c *Config) { c.Render.Split = 1 }},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestValidate_CacheSizeIgnoredWithoutMemoization(t *testing.T) {
	cfg := Default()
	cfg.Preview.Memoize = false
	cfg.Preview.CacheSize = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("cache size is unused without memoization: %v", err)
	}
}

func TestDuration(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte(" 250ms ")); err != nil {
		t.Fatal(err)
	}
	if d.Std() != 250*time.Millisecond {
		t.Errorf("Std() = %v", d.Std())
	}
	text, _ := d.MarshalText()
	if string(text) != "250ms" || d.String() != "250ms" {
		t.Errorf("MarshalText() = %q", text)
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Error("expected a parse error")
	}
}

func TestClone(t *testing.T) {
	cfg := Default()
	cp := cfg.Clone()
	cp.Viewport.Overscan = 99
	if cfg.Viewport.Overscan == 99 {
		t.Error("Clone should not share sections")
	}
}

func TestOptions(t *testing.T) {
	cfg := Default()
	cfg.Chunks.MemoryLimitMB = 2

	if got := cfg.Viewport.Options(); got.Threshold != 1000 || got.Overscan != 5 {
		t.Errorf("viewport options %+v", got)
	}
	if err := cfg.Viewport.Options().Validate(); err != nil {
		t.Errorf("viewport options should validate: %v", err)
	}
	if got := cfg.Chunks.Options(); got.ChunkSize != 4096 || got.RetainChunks != 256 {
		t.Errorf("chunk options %+v", got)
	}
	if cfg.Chunks.MemoryLimit() != 2<<20 {
		t.Errorf("MemoryLimit() = %d", cfg.Chunks.MemoryLimit())
	}
	if err := cfg.Input.Options().Validate(); err != nil {
		t.Errorf("input options should validate: %v", err)
	}
	if got := cfg.Preview.Options(); got.Debounce != 300*time.Millisecond || !got.EnableMemoization {
		t.Errorf("preview options %+v", got)
	}
	if got := cfg.Telemetry.Options(); got.Thresholds.MaxRenderTime != 16*time.Millisecond {
		t.Errorf("telemetry options %+v", got)
	}
}
