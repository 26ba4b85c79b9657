package logging

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func fixedNow() time.Time {
	return time.Date(2026, 1, 2, 3, 4, 5, 6_000_000, time.UTC)
}

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("Level(%d).String() = %q, expected %q", tt.level, got, tt.expected)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{" info ", LevelInfo},
		{"warn", LevelWarn},
		{"WARNING", LevelWarn},
		{"error", LevelError},
		{"bogus", LevelInfo},
		{"", LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.expected {
			t.Errorf("ParseLevel(%q) = %v, expected %v", tt.input, got, tt.expected)
		}
	}
}

func TestLogger_Format(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelDebug, Output: &buf, Prefix: "test", Now: fixedNow})

	l.Info("hello %s", "world")

	want := "2026-01-02T03:04:05.006 [INFO] test: hello world\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelWarn, Output: &buf, Now: fixedNow})

	l.Debug("debug")
	l.Info("info")
	l.Warn("warn")
	l.Error("error")

	out := buf.String()
	if strings.Contains(out, "debug") || strings.Contains(out, "info") {
		t.Errorf("messages below warn should be filtered: %q", out)
	}
	if !strings.Contains(out, "[WARN] warn") || !strings.Contains(out, "[ERROR] error") {
		t.Errorf("warn and error should be written: %q", out)
	}
}

func TestLogger_FieldsSorted(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelDebug, Output: &buf, Now: fixedNow})

	l.WithField("zeta", 1).WithComponent("chunk").WithField("alpha", "x").Info("msg")

	if !strings.Contains(buf.String(), "msg {alpha=x, component=chunk, zeta=1}") {
		t.Errorf("unexpected field rendering: %q", buf.String())
	}
}

func TestLogger_DerivedShareLevel(t *testing.T) {
	var buf bytes.Buffer
	root := New(Config{Level: LevelInfo, Output: &buf, Now: fixedNow})
	child := root.WithComponent("input")

	root.SetLevel(LevelError)
	child.Warn("dropped")
	if buf.Len() != 0 {
		t.Errorf("child should inherit level change, got %q", buf.String())
	}
	if child.Enabled(LevelWarn) {
		t.Error("warn should not be enabled at error level")
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Error("nothing")
	if l.Enabled(LevelError) {
		t.Error("nop logger should never be enabled")
	}
	if OrNop(nil) == nil {
		t.Error("OrNop(nil) should return a logger")
	}
}
