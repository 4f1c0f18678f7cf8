// Package bubbletea provides a Bubble Tea TUI for chatting about a document.
package bubbletea

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/margin"
)

// Chat is the subset of [margin.Chat] the TUI drives.
type Chat interface {
	SendMessage(ctx context.Context, documentRef, sessionID, text string) (string, error)
	Session(ctx context.Context, documentRef, sessionID string) (margin.Session, bool)
	ListSessions(ctx context.Context, documentRef string) []margin.Session
	CreateSession(ctx context.Context, documentRef, seedContext, name string) margin.Session
	SwitchSession(ctx context.Context, documentRef, sessionID string) (margin.Session, error)
	RenameSession(ctx context.Context, documentRef, sessionID, name string) bool
	DeleteSession(ctx context.Context, documentRef, sessionID string) (margin.Session, error)
	ResetRunningSummary()
	RunningSummary() string
}

// Interface compliance check.
var _ Chat = (*margin.Chat)(nil)

// Run creates and runs the Bubble Tea TUI program. It blocks until the program
// exits. The context is used for graceful shutdown: when cancelled, the
// program quits.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	_, err := p.Run()
	return err
}

// ReplyMsg carries the outcome of one chat turn back to the model.
type ReplyMsg struct {
	SessionID string
	Text      string
	Err       error
}
