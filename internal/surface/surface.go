// Package surface defines where the pipeline draws the visible document
// window and the preview output.
package surface

import "sync"

// Window is the slice of the document to draw.
type Window struct {
	// RenderOffset is the vertical offset of the first line, in item units.
	RenderOffset float64
	// StartLine is the document line index of Lines[0].
	StartLine int
	// ScrollLine is the first line inside the visible area. Lines before
	// it are overscan.
	ScrollLine int
	// Lines holds the text of the window, one entry per line.
	Lines []string
	// TotalLines is the line count of the whole document.
	TotalLines int
	// Virtualized reports whether Lines is a window or the whole document.
	Virtualized bool
}

// EndLine returns the index one past the last line in the window.
func (w Window) EndLine() int {
	return w.StartLine + len(w.Lines)
}

// Line returns document line i if it is inside the window.
func (w Window) Line(i int) (string, bool) {
	if i < w.StartLine || i >= w.EndLine() {
		return "", false
	}
	return w.Lines[i-w.StartLine], true
}

// Surface receives render output. Calls arrive from the mutation batcher's
// frame drain.
type Surface interface {
	RenderWindow(w Window)
	RenderPreview(text string)
}

// Recorder is an in-memory Surface that keeps every render.
type Recorder struct {
	mu       sync.Mutex
	windows  []Window
	previews []string
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// RenderWindow records w.
func (r *Recorder) RenderWindow(w Window) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w.Lines = append([]string(nil), w.Lines...)
	r.windows = append(r.windows, w)
}

// RenderPreview records text.
func (r *Recorder) RenderPreview(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.previews = append(r.previews, text)
}

// Windows returns every recorded window, oldest first.
func (r *Recorder) Windows() []Window {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Window(nil), r.windows...)
}

// Previews returns every recorded preview, oldest first.
func (r *Recorder) Previews() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.previews...)
}

// LastWindow returns the most recent window.
func (r *Recorder) LastWindow() (Window, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.windows) == 0 {
		return Window{}, false
	}
	return r.windows[len(r.windows)-1], true
}

// LastPreview returns the most recent preview.
func (r *Recorder) LastPreview() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.previews) == 0 {
		return "", false
	}
	return r.previews[len(r.previews)-1], true
}

// Reset drops everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.windows = nil
	r.previews = nil
}
