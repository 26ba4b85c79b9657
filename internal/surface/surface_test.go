package surface

import "testing"

func TestWindow_Line(t *testing.T) {
	w := Window{StartLine: 10, Lines: []string{"a", "b"}, TotalLines: 50}
	if w.EndLine() != 12 {
		t.Errorf("EndLine() = %d", w.EndLine())
	}
	tests := []struct {
		i    int
		want string
		ok   bool
	}{
		{9, "", false},
		{10, "a", true},
		{11, "b", true},
		{12, "", false},
	}
	for _, tt := range tests {
		got, ok := w.Line(tt.i)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Line(%d) = %q, %v", tt.i, got, ok)
		}
	}
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	if _, ok := r.LastWindow(); ok {
		t.Error("empty recorder has no window")
	}
	if _, ok := r.LastPreview(); ok {
		t.Error("empty recorder has no preview")
	}

	lines := []string{"x", "y"}
	r.RenderWindow(Window{Lines: lines, TotalLines: 2})
	lines[0] = "mutated"
	r.RenderPreview("one")
	r.RenderPreview("two")

	w, ok := r.LastWindow()
	if !ok || w.Lines[0] != "x" {
		t.Errorf("recorder should copy lines, got %v", w.Lines)
	}
	if p, _ := r.LastPreview(); p != "two" {
		t.Errorf("LastPreview() = %q", p)
	}
	if len(r.Windows()) != 1 || len(r.Previews()) != 2 {
		t.Errorf("unexpected history %d windows, %d previews", len(r.Windows()), len(r.Previews()))
	}

	r.Reset()
	if len(r.Windows()) != 0 || len(r.Previews()) != 0 {
		t.Error("Reset should drop history")
	}
}

var _ Surface = (*Recorder)(nil)
var _ Surface = (*Terminal)(nil)
