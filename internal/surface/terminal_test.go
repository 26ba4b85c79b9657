package surface

import (
	"strings"
	"testing"

	"github.com/gdamore/tcell/v2"
)

func newSimTerminal(t *testing.T, w, h int, opts ...TerminalOption) (*Terminal, tcell.SimulationScreen) {
	t.Helper()
	sim := tcell.NewSimulationScreen("UTF-8")
	if err := sim.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(sim.Fini)
	sim.SetSize(w, h)
	return NewTerminal(sim, opts...), sim
}

// cellsText returns the runes of row y between columns from and to.
func cellsText(sim tcell.SimulationScreen, y, from, to int) string {
	cells, width, _ := sim.GetContents()
	var b strings.Builder
	for x := from; x < to && x < width; x++ {
		c := cells[y*width+x]
		if len(c.Runes) == 0 {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(c.Runes[0])
	}
	return strings.TrimRight(b.String(), " ")
}

func TestTerminal_SplitPane(t *testing.T) {
	term, sim := newSimTerminal(t, 40, 6)

	term.RenderWindow(Window{Lines: []string{"alpha", "beta", "gamma"}, TotalLines: 3})
	term.RenderPreview("# Title\nbody")
	term.SetStatus("%s mode", "markdown")

	if got := cellsText(sim, 0, 0, 20); got != "1 alpha" {
		t.Errorf("row 0 editor = %q", got)
	}
	if got := cellsText(sim, 2, 0, 20); got != "3 gamma" {
		t.Errorf("row 2 editor = %q", got)
	}
	if got := cellsText(sim, 3, 0, 20); got != "" {
		t.Errorf("rows past the document should be blank, got %q", got)
	}
	if got := cellsText(sim, 0, 20, 21); got != "│" {
		t.Errorf("divider = %q", got)
	}
	if got := cellsText(sim, 0, 22, 40); got != "# Title" {
		t.Errorf("preview row 0 = %q", got)
	}
	if got := cellsText(sim, 1, 22, 40); got != "body" {
		t.Errorf("preview row 1 = %q", got)
	}
	if got := cellsText(sim, 5, 0, 40); got != "markdown mode" {
		t.Errorf("status = %q", got)
	}
}

func TestTerminal_ScrolledWindow(t *testing.T) {
	term, sim := newSimTerminal(t, 30, 4, WithPreview(false))

	lines := make([]string, 8)
	for i := range lines {
		lines[i] = "line" + string(rune('a'+i))
	}
	// Lines 5..12 are in the window, line 7 is the first visible row.
	term.RenderWindow(Window{StartLine: 5, ScrollLine: 7, Lines: lines, TotalLines: 100, Virtualized: true})

	want := []string{"  8 linec", "  9 lined", " 10 linee"}
	for row, w := range want {
		if got := cellsText(sim, row, 0, 30); got != w {
			t.Errorf("row %d = %q, want %q", row, got, w)
		}
	}
}

func TestTerminal_Truncates(t *testing.T) {
	term, sim := newSimTerminal(t, 20, 3, WithPreview(false))
	term.RenderWindow(Window{Lines: []string{strings.Repeat("x", 40)}, TotalLines: 1})

	got := cellsText(sim, 0, 0, 20)
	if got != "1 "+strings.Repeat("x", 17)+"…" {
		t.Errorf("long line = %q", got)
	}
}

func TestTerminal_Cursor(t *testing.T) {
	term, sim := newSimTerminal(t, 40, 5)
	term.RenderWindow(Window{Lines: []string{"a\tb", "second"}, TotalLines: 2})

	term.SetCursor(0, 2)
	x, y, visible := sim.GetCursor()
	if !visible || x != 2+1+tabWidth || y != 0 {
		t.Errorf("cursor at (%d,%d) visible=%v", x, y, visible)
	}

	term.SetCursor(1, 3)
	x, y, _ = sim.GetCursor()
	if x != 5 || y != 1 {
		t.Errorf("cursor at (%d,%d), want (5,1)", x, y)
	}

	term.SetCursor(9, 0)
	if x, y, visible := sim.GetCursor(); visible && x >= 0 && y >= 0 {
		t.Error("cursor on a line outside the window should be hidden")
	}
}

func TestTerminal_TogglePreview(t *testing.T) {
	term, sim := newSimTerminal(t, 40, 4)
	term.RenderPreview("shown")
	if got := cellsText(sim, 0, 22, 40); got != "shown" {
		t.Fatalf("preview = %q", got)
	}
	if term.TogglePreview() {
		t.Error("TogglePreview should report the pane hidden")
	}
	if got := cellsText(sim, 0, 0, 40); strings.Contains(got, "shown") {
		t.Errorf("hidden preview still drawn: %q", got)
	}
	if term.EditorRows() != 3 {
		t.Errorf("EditorRows() = %d", term.EditorRows())
	}
}
