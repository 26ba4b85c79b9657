package config

import (
	"testing"
	"time"
)

func TestEnvLoader_Apply(t *testing.T) {
	environ := []string{
		"DUOMARK_PREVIEW_DEBOUNCE=50ms",
		"DUOMARK_PREVIEW_CACHE_SIZE=7",
		"DUOMARK_VIEWPORT_OVERSCAN=3",
		"DUOMARK_CHUNKS_GC_THRESHOLD=90",
		"DUOMARK_RENDER_SHOW_PREVIEW=false",
		"DUOMARK_MODE=html",
		"DUOMARK_LOG_LEVEL=debug",
		"DUOMARK_CONFIG=/etc/duomark.toml",
		"HOME=/root",
	}
	cfg, err := LoadWithEnv("", environ)
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}

	if cfg.Preview.Debounce.Std() != 50*time.Millisecond || cfg.Preview.CacheSize != 7 {
		t.Errorf("preview section %+v", cfg.Preview)
	}
	if cfg.Viewport.Overscan != 3 {
		t.Errorf("overscan = %d", cfg.Viewport.Overscan)
	}
	if cfg.Chunks.GCThreshold != 90 {
		t.Errorf("gc threshold = %v", cfg.Chunks.GCThreshold)
	}
	if cfg.Render.ShowPreview {
		t.Error("show_preview should be false")
	}
	if cfg.Mode != "html" || cfg.Logging.Level != "debug" {
		t.Errorf("mapped settings: mode=%q level=%q", cfg.Mode, cfg.Logging.Level)
	}
}

func TestEnvLoader_OverridesFile(t *testing.T) {
	path := writeFile(t, "duomark.toml", "[viewport]\noverscan = 2\nthreshold = 10\n")
	cfg, err := LoadWithEnv(path, []string{"DUOMARK_VIEWPORT_OVERSCAN=9"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Viewport.Overscan != 9 || cfg.Viewport.Threshold != 10 {
		t.Errorf("env should override only what it sets: %+v", cfg.Viewport)
	}
}

func TestEnvLoader_Values(t *testing.T) {
	l := NewEnvLoader(EnvPrefix)
	l.AddMapping("DUOMARK_DEBOUNCE", "preview.debounce")

	values := l.Values([]string{"DUOMARK_DEBOUNCE=1s", "DUOMARK_INPUT_FAST_INPUT_GAP=80ms", "DUOMARK_CONFIG=x"})
	preview, _ := values["preview"].(map[string]any)
	if preview["debounce"] != "1s" {
		t.Errorf("custom mapping not applied: %v", values)
	}
	input, _ := values["input"].(map[string]any)
	if input["fast_input_gap"] != "80ms" {
		t.Errorf("multi-word setting not mapped: %v", values)
	}
	if _, ok := values["config"]; ok {
		t.Error("DUOMARK_CONFIG is not a setting")
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"true", true},
		{"off", false},
		{"1", int64(1)},
		{"0.5", 0.5},
		{"100ms", "100ms"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := parseValue(tt.in); got != tt.want {
			t.Errorf("parseValue(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestEnvLoader_BadValue(t *testing.T) {
	if _, err := LoadWithEnv("", []string{"DUOMARK_INPUT_BASE_DELAY=fast"}); err == nil {
		t.Error("expected an error for an unparsable duration")
	}
}
