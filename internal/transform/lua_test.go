package transform

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dshills/duomark/internal/preview"
)

const upperScript = `
function transform(content, mode)
  if mode == "html" then
    return "<html>" .. string.upper(content)
  end
  return string.upper(content)
end
`

func TestLua_Transform(t *testing.T) {
	l, err := NewLua(upperScript)
	if err != nil {
		t.Fatalf("NewLua: %v", err)
	}
	defer l.Close()

	if got := l.Transform("abc", preview.ModeMarkdown); got != "ABC" {
		t.Errorf("markdown = %q", got)
	}
	if got := l.Transform("abc", preview.ModeHTML); got != "<html>ABC" {
		t.Errorf("html = %q", got)
	}
	if calls, fails := l.Calls(); calls != 2 || fails != 0 {
		t.Errorf("Calls() = %d, %d", calls, fails)
	}
}

func TestLua_LoadErrors(t *testing.T) {
	tests := []struct {
		name   string
		script string
		is     error
	}{
		{"syntax", "function transform(", nil},
		{"missing function", "x = 1", ErrNoTransformFunc},
		{"not a function", "transform = 42", ErrNoTransformFunc},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLua(tt.script)
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("expected %v, got %v", tt.is, err)
			}
		})
	}
}

func TestLua_ScriptErrorsRender(t *testing.T) {
	l, err := NewLua(`function transform(c, m) error("nope") end`)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	got := l.Transform("x", preview.ModeMarkdown)
	if !strings.HasPrefix(got, "[preview error:") || !strings.Contains(got, "nope") {
		t.Errorf("error should render into the preview, got %q", got)
	}
	if _, fails := l.Calls(); fails != 1 {
		t.Errorf("expected one failure, got %d", fails)
	}

	// The state stays usable after a failed call.
	if _, err := l.Call("x", preview.ModeMarkdown); err == nil {
		t.Error("expected the script to keep failing")
	}
}

func TestLua_WrongReturnType(t *testing.T) {
	l, err := NewLua(`function transform(c, m) return {} end`)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	if _, err := l.Call("x", preview.ModeHTML); err == nil {
		t.Error("a table result should be rejected")
	}
}

func TestLua_NilReturnIsEmpty(t *testing.T) {
	l, err := NewLua(`function transform(c, m) end`)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	out, err := l.Call("x", preview.ModeHTML)
	if err != nil || out != "" {
		t.Errorf("Call() = %q, %v", out, err)
	}
}

func TestLua_Sandbox(t *testing.T) {
	for _, global := range []string{"io", "os", "dofile", "loadfile", "load", "loadstring", "require", "debug"} {
		t.Run(global, func(t *testing.T) {
			l, err := NewLua(`function transform(c, m) return tostring(` + global + ` == nil) end`)
			if err != nil {
				t.Fatal(err)
			}
			defer l.Close()
			if got := l.Transform("", preview.ModeMarkdown); got != "true" {
				t.Errorf("%s should not be reachable from a script", global)
			}
		})
	}
}

func TestLua_Timeout(t *testing.T) {
	l, err := NewLua(`function transform(c, m) while true do end end`, WithTimeout(20*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	done := make(chan error, 1)
	go func() {
		_, err := l.Call("x", preview.ModeMarkdown)
		done <- err
	}()
	select {
	case err := <-done:
		if err == nil {
			t.Error("expected a timeout error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("script was not interrupted")
	}
}

func TestLua_Closed(t *testing.T) {
	l, err := NewLua(upperScript)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Error("second Close should be a no-op")
	}
	if _, err := l.Call("x", preview.ModeMarkdown); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestLoadLua(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preview.lua")
	if err := os.WriteFile(path, []byte(upperScript), 0o644); err != nil {
		t.Fatal(err)
	}
	l, err := LoadLua(path)
	if err != nil {
		t.Fatalf("LoadLua: %v", err)
	}
	defer l.Close()
	if got := l.Transform("hi", preview.ModeMarkdown); got != "HI" {
		t.Errorf("got %q", got)
	}

	if _, err := LoadLua(filepath.Join(t.TempDir(), "missing.lua")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
