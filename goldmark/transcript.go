package goldmark

import (
	"fmt"
	"html"
	"strings"

	"github.com/fwojciec/margin"
)

const timeLayout = "2006-01-02 15:04"

// Transcript renders a session as a markdown document: a title, the
// document it belongs to, the seed context as a quote and every message
// under a speaker heading.
func Transcript(s margin.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", s.Name)
	fmt.Fprintf(&b, "Document: `%s`  \n", s.DocumentRef)
	fmt.Fprintf(&b, "Started: %s\n", s.CreatedAt.Format(timeLayout))
	if s.SeedContext != "" {
		b.WriteString("\n")
		for _, line := range strings.Split(strings.TrimRight(s.SeedContext, "\n"), "\n") {
			if line == "" {
				b.WriteString(">\n")
				continue
			}
			b.WriteString("> " + line + "\n")
		}
	}
	for _, m := range s.Messages {
		fmt.Fprintf(&b, "\n## %s\n\n", speaker(m.Role))
		b.WriteString(strings.TrimRight(m.Content, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}

// TranscriptHTML renders a session as a standalone HTML page.
func TranscriptHTML(s margin.Session) (string, error) {
	body, err := HTML(Transcript(s))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(s.Name))
	b.WriteString("</head>\n<body>\n")
	b.WriteString(body)
	b.WriteString("</body>\n</html>\n")
	return b.String(), nil
}

func speaker(r margin.Role) string {
	switch r {
	case margin.RoleUser:
		return "You"
	case margin.RoleAssistant:
		return "Assistant"
	default:
		return "System"
	}
}
