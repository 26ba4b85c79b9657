package surface

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
)

const tabWidth = 4

// Styles used by the terminal surface.
var (
	styleText    = tcell.StyleDefault
	styleGutter  = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleDivider = tcell.StyleDefault.Foreground(tcell.ColorDarkGray)
	styleStatus  = tcell.StyleDefault.Reverse(true)
	stylePreview = tcell.StyleDefault.Foreground(tcell.ColorSilver)
)

// Terminal draws the document window on the left and the preview on the
// right of a tcell screen, with a status line at the bottom.
type Terminal struct {
	mu     sync.Mutex
	screen tcell.Screen

	window  Window
	preview string
	status  string

	cursorLine, cursorCol int
	cursorSet             bool

	// split is the fraction of the width given to the editor pane.
	split       float64
	showPreview bool
}

// TerminalOption configures a Terminal.
type TerminalOption func(*Terminal)

// WithSplit sets the editor pane's share of the width, between 0.2 and 0.8.
func WithSplit(f float64) TerminalOption {
	return func(t *Terminal) {
		t.split = min(max(f, 0.2), 0.8)
	}
}

// WithPreview shows or hides the preview pane.
func WithPreview(show bool) TerminalOption {
	return func(t *Terminal) {
		t.showPreview = show
	}
}

// NewTerminal wraps an initialized screen.
func NewTerminal(screen tcell.Screen, opts ...TerminalOption) *Terminal {
	t := &Terminal{screen: screen, split: 0.5, showPreview: true}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Screen returns the underlying screen.
func (t *Terminal) Screen() tcell.Screen {
	return t.screen
}

// EditorRows returns the rows available to the document window.
func (t *Terminal) EditorRows() int {
	_, h := t.screen.Size()
	return max(h-1, 0)
}

// RenderWindow draws w.
func (t *Terminal) RenderWindow(w Window) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.window = w
	t.drawLocked()
}

// RenderPreview draws the preview pane.
func (t *Terminal) RenderPreview(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.preview = text
	t.drawLocked()
}

// SetStatus sets the status line text.
func (t *Terminal) SetStatus(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = fmt.Sprintf(format, args...)
	t.drawLocked()
}

// SetCursor places the cursor at a document line and rune column. It is
// hidden while the line is outside the visible rows.
func (t *Terminal) SetCursor(line, col int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cursorLine, t.cursorCol, t.cursorSet = line, col, true
	t.drawLocked()
}

// TogglePreview flips the preview pane.
func (t *Terminal) TogglePreview() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.showPreview = !t.showPreview
	t.drawLocked()
	return t.showPreview
}

// Redraw repaints everything, for example after a resize.
func (t *Terminal) Redraw() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.screen.Sync()
	t.drawLocked()
}

func (t *Terminal) drawLocked() {
	t.screen.Clear()
	width, height := t.screen.Size()
	if width <= 0 || height <= 0 {
		return
	}
	rows := height - 1

	editorWidth := width
	if t.showPreview {
		editorWidth = int(float64(width) * t.split)
	}

	gutter := len(fmt.Sprint(max(t.window.TotalLines, 1))) + 1
	textX := gutter
	textWidth := max(editorWidth-gutter, 0)

	t.screen.HideCursor()
	for row := 0; row < rows; row++ {
		lineNo := t.window.ScrollLine + row
		text, ok := t.window.Line(lineNo)
		if !ok {
			continue
		}
		t.putString(0, row, gutter, fmt.Sprintf("%*d ", gutter-1, lineNo+1), styleGutter)
		t.putString(textX, row, textWidth, text, styleText)

		if t.cursorSet && lineNo == t.cursorLine {
			x := textX + displayWidth(text, t.cursorCol)
			if x < editorWidth {
				t.screen.ShowCursor(x, row)
			}
		}
	}

	if t.showPreview && editorWidth < width {
		for row := 0; row < rows; row++ {
			t.screen.SetContent(editorWidth, row, '│', nil, styleDivider)
		}
		px := editorWidth + 2
		pw := max(width-px, 0)
		for row, line := range strings.SplitN(t.preview, "\n", rows+1) {
			if row >= rows {
				break
			}
			t.putString(px, row, pw, line, stylePreview)
		}
	}

	for x := 0; x < width; x++ {
		t.screen.SetContent(x, rows, ' ', nil, styleStatus)
	}
	t.putString(0, rows, width, t.status, styleStatus)

	t.screen.Show()
}

// putString draws s from (x, y), clipped to maxWidth cells.
func (t *Terminal) putString(x, y, maxWidth int, s string, style tcell.Style) {
	s = expandTabs(s)
	if runewidth.StringWidth(s) > maxWidth {
		s = runewidth.Truncate(s, maxWidth, "…")
	}
	col := x
	for _, r := range s {
		w := runewidth.RuneWidth(r)
		if w == 0 {
			continue
		}
		t.screen.SetContent(col, y, r, nil, style)
		col += w
	}
}

// displayWidth returns the cell width of the first n runes of s.
func displayWidth(s string, n int) int {
	width := 0
	for i, r := range []rune(s) {
		if i >= n {
			break
		}
		if r == '\t' {
			width += tabWidth
			continue
		}
		width += runewidth.RuneWidth(r)
	}
	return width
}

func expandTabs(s string) string {
	if !strings.ContainsRune(s, '\t') {
		return s
	}
	return strings.ReplaceAll(s, "\t", strings.Repeat(" ", tabWidth))
}
