package bubbletea

import (
	"fmt"
	"strings"

	"github.com/rivo/uniseg"
)

// alignStatus places left and right on one line of the given width,
// truncating left by grapheme clusters when both do not fit.
func alignStatus(left, right string, width int) (string, string) {
	rw := uniseg.StringWidth(right)
	avail := width - rw - 1
	if avail < 0 {
		return "", right
	}
	if uniseg.StringWidth(left) > avail {
		left = truncate(left, avail)
	}
	gap := width - uniseg.StringWidth(left) - rw
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap), right
}

// truncate shortens s to at most width cells, ending with an ellipsis.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	var b strings.Builder
	used := 0
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		w := g.Width()
		if used+w > width-1 {
			break
		}
		b.WriteString(g.Str())
		used += w
	}
	return b.String() + "…"
}

func (m Model) statusLine() string {
	if m.err != nil {
		return m.styles.Error.Render(fmt.Sprintf("Error: %v", m.err))
	}
	left := fmt.Sprintf("%s · %d messages · ~%d tokens", m.session.Name, len(m.session.Messages), m.session.Tokens())
	right := "Enter to send, /help, Ctrl+C to quit"
	if m.running {
		right = "Generating..."
	}
	l, r := alignStatus(left, right, m.Viewport.Width)
	return m.styles.Accent.Render(l) + m.styles.Muted.Render(r)
}
