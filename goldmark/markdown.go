// Package goldmark renders markdown with goldmark: ANSI-styled terminal
// output (styled with lipgloss) for the chat view, and HTML for exported
// transcripts.
package goldmark

import (
	"bytes"
	"fmt"

	"github.com/fwojciec/margin"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Render formats an assistant reply for the chat pane. Paragraphs and list
// items are word-wrapped to width; code blocks and tables keep their lines.
func Render(source string, width int, theme margin.Theme) string {
	if source == "" {
		return ""
	}
	if width <= 0 {
		width = 80
	}
	return renderReply([]byte(source), width, theme)
}

// htmlMarkdown converts GitHub-flavored markdown. Raw HTML in the source
// is omitted.
var htmlMarkdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// HTML converts markdown source to an HTML fragment.
func HTML(source string) (string, error) {
	var buf bytes.Buffer
	if err := htmlMarkdown.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return buf.String(), nil
}
