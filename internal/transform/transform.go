// Package transform provides preview transforms for the preview cache.
//
// Transforms are synchronous and total. Plain extracts readable text,
// Lua runs a user script in a sandboxed interpreter, and Safe turns panics
// into an error string rendered in the preview.
package transform

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/dshills/duomark/internal/logging"
	"github.com/dshills/duomark/internal/preview"
)

// ErrorText formats a failure as preview output.
func ErrorText(err any) string {
	return fmt.Sprintf("[preview error: %v]", err)
}

// Safe wraps fn so a panic renders as an error string instead of
// escaping to the caller.
func Safe(fn preview.Transform, logger *logging.Logger) preview.Transform {
	log := logging.OrNop(logger).WithComponent("transform")
	return func(content string, mode preview.Mode) (out string) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("transform panic in %s mode: %v", mode, r)
				out = ErrorText(r)
			}
		}()
		return fn(content, mode)
	}
}

// Identity returns content unchanged.
func Identity(content string, _ preview.Mode) string {
	return content
}

// Plain renders Markdown source as-is and HTML as its text content.
func Plain(content string, mode preview.Mode) string {
	if mode != preview.ModeHTML {
		return content
	}
	return HTMLText(content)
}

// blockTags end a line of text when opened or closed.
var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"br": true, "dd": true, "div": true, "dl": true, "dt": true,
	"footer": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"h5": true, "h6": true, "header": true, "hr": true, "li": true,
	"main": true, "nav": true, "ol": true, "p": true, "pre": true,
	"section": true, "table": true, "tr": true, "ul": true,
}

// skipTags have content that is never shown.
var skipTags = map[string]bool{"head": true, "script": true, "style": true, "template": true}

// HTMLText extracts the visible text of an HTML fragment, one line per
// block element. Runs of whitespace inside a line collapse to one space.
func HTMLText(src string) string {
	z := html.NewTokenizer(strings.NewReader(src))

	var (
		out  strings.Builder
		line strings.Builder
		skip int
		pre  int
	)
	endLine := func() {
		text := line.String()
		if pre == 0 {
			text = strings.Join(strings.Fields(text), " ")
		}
		if text != "" {
			out.WriteString(text)
			out.WriteByte('\n')
		}
		line.Reset()
	}

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			endLine()
			return strings.TrimRight(out.String(), "\n")
		case html.TextToken:
			if skip == 0 {
				line.Write(z.Text())
			}
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skipTags[tag] && tt != html.SelfClosingTagToken {
				if tt == html.StartTagToken {
					skip++
				} else if skip > 0 {
					skip--
				}
				continue
			}
			if tag == "pre" && tt != html.SelfClosingTagToken {
				if tt == html.StartTagToken {
					endLine()
					pre++
					continue
				}
				endLine()
				if pre > 0 {
					pre--
				}
				continue
			}
			if blockTags[tag] {
				endLine()
			}
		}
	}
}
