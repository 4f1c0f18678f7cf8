package bubbletea

// RenderContent exports renderContent for testing.
func RenderContent(m Model) string {
	return m.renderContent()
}

// StatusLine exports statusLine for testing.
func StatusLine(m Model) string {
	return m.statusLine()
}

// AlignStatus exports alignStatus for testing.
var AlignStatus = alignStatus

// BlockCount returns the number of rendered blocks.
func BlockCount(m Model) int {
	return len(m.blocks)
}
