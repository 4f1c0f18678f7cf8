package bubbletea

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/margin"
	"github.com/fwojciec/margin/goldmark"
)

var _ MessageBlock = (*AssistantTextBlock)(nil)

// AssistantTextBlock renders an assistant reply as markdown. Rendering is
// cached per width since replies never change once received.
type AssistantTextBlock struct {
	content string
	theme   margin.Theme
	byWidth map[int]string
}

// NewAssistantTextBlock creates a block for a complete assistant reply.
func NewAssistantTextBlock(content string, theme margin.Theme) *AssistantTextBlock {
	return &AssistantTextBlock{
		content: Sanitize(content),
		theme:   theme,
		byWidth: make(map[int]string),
	}
}

func (b *AssistantTextBlock) Update(msg tea.Msg) (MessageBlock, tea.Cmd) {
	return b, nil
}

func (b *AssistantTextBlock) View(width int) string {
	if cached, ok := b.byWidth[width]; ok {
		return cached
	}
	rendered := goldmark.Render(b.content, width, b.theme)
	b.byWidth[width] = rendered
	return rendered
}
