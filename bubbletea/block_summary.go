package bubbletea

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var _ MessageBlock = (*SummaryBlock)(nil)

// SummaryBlock marks the point where older history was compacted. It
// starts collapsed; expanding it shows the running summary that replaced
// that history.
type SummaryBlock struct {
	summary   string
	collapsed bool
	styles    Styles
}

// NewSummaryBlock creates a collapsed SummaryBlock.
func NewSummaryBlock(summary string, styles Styles) *SummaryBlock {
	return &SummaryBlock{summary: summary, collapsed: true, styles: styles}
}

// Collapsed reports whether the summary text is hidden.
func (b *SummaryBlock) Collapsed() bool { return b.collapsed }

func (b *SummaryBlock) Update(msg tea.Msg) (MessageBlock, tea.Cmd) {
	if _, ok := msg.(ToggleMsg); ok {
		b.collapsed = !b.collapsed
	}
	return b, nil
}

func (b *SummaryBlock) View(width int) string {
	wrap := lipgloss.NewStyle().Width(width)

	indicator := "▶"
	if !b.collapsed {
		indicator = "▼"
	}
	header := b.styles.Summary.Render(wrap.Render(indicator + " Earlier messages summarized"))
	if b.collapsed {
		return header
	}
	return header + "\n" + b.styles.Summary.Render(wrap.Render(b.summary))
}
