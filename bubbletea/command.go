package bubbletea

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fwojciec/margin"
)

const helpText = `Commands:
  /sessions       list sessions for this document
  /new [name]     start a new session
  /switch <n|id>  switch to a listed session
  /rename <name>  rename the current session
  /delete         delete the current session
  /reset          forget the running summary
  /help           show this help`

// command is a parsed slash command.
type command struct {
	name string
	arg  string
}

// parseCommand splits "/name rest of line". It reports false for text that
// is not a command.
func parseCommand(text string) (command, bool) {
	if !strings.HasPrefix(text, "/") {
		return command{}, false
	}
	name, arg, _ := strings.Cut(text[1:], " ")
	return command{name: strings.ToLower(name), arg: strings.TrimSpace(arg)}, true
}

// runCommand executes a slash command against the chat.
func (m Model) runCommand(cmd command) Model {
	ctx := context.Background()
	doc := m.session.DocumentRef
	switch cmd.name {
	case "help", "?":
		m.blocks = append(m.blocks, NewNoticeBlock(helpText, m.styles))

	case "sessions", "ls":
		m.blocks = append(m.blocks, NewNoticeBlock(m.sessionList(ctx), m.styles))

	case "new":
		s := m.chat.CreateSession(ctx, doc, m.session.SeedContext, cmd.arg)
		m = m.loadSession(s)
		m.blocks = append(m.blocks, NewNoticeBlock("Started "+s.Name, m.styles))

	case "switch":
		s, err := m.resolveSession(ctx, cmd.arg)
		if err == nil {
			s, err = m.chat.SwitchSession(ctx, doc, s.ID)
		}
		if err != nil {
			m.err = err
			return m
		}
		m = m.loadSession(s)

	case "rename":
		if cmd.arg == "" {
			m.err = errors.New("usage: /rename <name>")
			return m
		}
		if !m.chat.RenameSession(ctx, doc, m.session.ID, cmd.arg) {
			m.err = fmt.Errorf("%s: %w", m.session.ID, margin.ErrSessionNotFound)
			return m
		}
		m.session.Name = cmd.arg

	case "delete":
		s, err := m.chat.DeleteSession(ctx, doc, m.session.ID)
		if errors.Is(err, margin.ErrLastSession) {
			m.err = errors.New("cannot delete the only session")
			return m
		}
		if err != nil {
			m.err = err
			return m
		}
		m = m.loadSession(s)

	case "reset":
		m.chat.ResetRunningSummary()
		m.summary = ""
		m.blocks = append(m.blocks, NewNoticeBlock("Running summary cleared", m.styles))

	default:
		m.err = fmt.Errorf("unknown command /%s (try /help)", cmd.name)
	}
	return m
}

func (m Model) sessionList(ctx context.Context) string {
	sessions := m.chat.ListSessions(ctx, m.session.DocumentRef)
	var b strings.Builder
	for i, s := range sessions {
		marker := " "
		if s.ID == m.session.ID {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s %d. %s (%d messages)", marker, i+1, s.Name, len(s.Messages))
		if i < len(sessions)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// resolveSession accepts a 1-based position in the session list or an ID.
func (m Model) resolveSession(ctx context.Context, arg string) (margin.Session, error) {
	if arg == "" {
		return margin.Session{}, errors.New("usage: /switch <n|id>")
	}
	sessions := m.chat.ListSessions(ctx, m.session.DocumentRef)
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(sessions) {
			return margin.Session{}, fmt.Errorf("no session %d: %w", n, margin.ErrSessionNotFound)
		}
		return sessions[n-1], nil
	}
	for _, s := range sessions {
		if s.ID == arg {
			return s, nil
		}
	}
	return margin.Session{}, fmt.Errorf("%s: %w", arg, margin.ErrSessionNotFound)
}
