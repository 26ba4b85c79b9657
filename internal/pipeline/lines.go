package pipeline

import "sort"

// lineIndex holds the rune offset at which each line starts. A document
// always has at least one line.
type lineIndex struct {
	starts []int
	length int
}

func buildLineIndex(text []rune) lineIndex {
	starts := []int{0}
	for i, r := range text {
		if r == '\n' {
			starts = append(starts, i+1)
		}
	}
	return lineIndex{starts: starts, length: len(text)}
}

// count returns the number of lines.
func (x lineIndex) count() int {
	return len(x.starts)
}

// bounds returns the rune range of line i, without its newline.
func (x lineIndex) bounds(i int) (start, end int) {
	start = x.starts[i]
	if i+1 < len(x.starts) {
		return start, x.starts[i+1] - 1
	}
	return start, x.length
}

// lineOf returns the line holding rune offset off and the column in it.
func (x lineIndex) lineOf(off int) (line, col int) {
	off = min(max(off, 0), x.length)
	line = sort.Search(len(x.starts), func(i int) bool { return x.starts[i] > off }) - 1
	return line, off - x.starts[line]
}

// offset returns the rune offset of a line and column, clamped to the
// document and to the line's length.
func (x lineIndex) offset(line, col int) int {
	line = min(max(line, 0), len(x.starts)-1)
	start, end := x.bounds(line)
	return start + min(max(col, 0), end-start)
}
