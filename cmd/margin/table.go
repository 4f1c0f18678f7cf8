package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/margin"
	"github.com/mattn/go-runewidth"
)

const nameWidth = 32

var headerStyle = lipgloss.NewStyle().Bold(true)

// sessionTable renders sessions as aligned columns. Names are padded and
// truncated by display width so wide characters keep the columns straight.
func sessionTable(sessions []margin.Session) string {
	idWidth := len("ID")
	for _, s := range sessions {
		idWidth = max(idWidth, runewidth.StringWidth(s.ID))
	}

	var b strings.Builder
	header := fmt.Sprintf("%s  %s  %8s  %7s  %s",
		runewidth.FillRight("ID", idWidth),
		runewidth.FillRight("NAME", nameWidth),
		"MESSAGES", "TOKENS", "UPDATED")
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")
	for _, s := range sessions {
		name := runewidth.Truncate(s.Name, nameWidth, "…")
		fmt.Fprintf(&b, "%s  %s  %8d  %7d  %s\n",
			runewidth.FillRight(s.ID, idWidth),
			runewidth.FillRight(name, nameWidth),
			len(s.Messages),
			s.Tokens(),
			s.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return b.String()
}
