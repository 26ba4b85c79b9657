package preview

import (
	"fmt"
	"strings"
)

// Mode is the editing mode a document is previewed in.
type Mode string

const (
	// ModeMarkdown previews Markdown source.
	ModeMarkdown Mode = "markdown"
	// ModeHTML previews HTML source.
	ModeHTML Mode = "html"
)

// ParseMode parses a mode name. "md" is accepted for Markdown.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "markdown", "md":
		return ModeMarkdown, nil
	case "html", "htm":
		return ModeHTML, nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, s)
	}
}

// Toggle returns the other mode.
func (m Mode) Toggle() Mode {
	if m == ModeHTML {
		return ModeMarkdown
	}
	return ModeHTML
}
