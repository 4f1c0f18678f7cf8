package margin

// Theme maps semantic roles to ANSI color indices (0-15), so the terminal's
// own palette decides the actual colors. A negative index means no color.
type Theme struct {
	User    int // user message label
	Summary int // running summary and compaction notices
	Error   int // failed turns
	Muted   int // status bar, placeholders
	Accent  int // headings, links, session name
}

// DefaultTheme returns the default ANSI color mapping.
func DefaultTheme() Theme {
	return Theme{
		User:    4,
		Summary: 3,
		Error:   1,
		Muted:   8,
		Accent:  5,
	}
}
