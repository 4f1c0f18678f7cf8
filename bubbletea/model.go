package bubbletea

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fwojciec/margin"
)

var _ tea.Model = Model{}

// Model is the Bubble Tea model for the chat TUI.
type Model struct {
	// Input is the text input component. Exported for test access.
	Input textinput.Model
	// Viewport is the scrollable output area. Exported for test access.
	Viewport viewport.Model

	chat    Chat
	session margin.Session
	theme   margin.Theme
	styles  Styles

	blocks     []MessageBlock
	blockFocus int // index of the focused summary block (-1 = none)
	summary    string

	running bool
	cancel  context.CancelFunc
	err     error
	ready   bool
}

// New creates a TUI Model showing session, which should already be the
// active session of chat.
func New(chat Chat, session margin.Session, theme margin.Theme) Model {
	ti := textinput.New()
	ti.Placeholder = "Ask about the document, or /help"
	ti.Prompt = ""
	ti.Focus()
	ti.CharLimit = 0

	return Model{
		Input:      ti,
		chat:       chat,
		session:    session,
		theme:      theme,
		styles:     NewStyles(theme),
		blockFocus: -1,
		summary:    chat.RunningSummary(),
	}
}

// Running returns whether a turn is in flight.
func (m Model) Running() bool { return m.running }

// Err returns the last error, if any.
func (m Model) Err() error { return m.err }

// Session returns the session shown.
func (m Model) Session() margin.Session { return m.session }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m = m.handleWindowSize(msg)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case ReplyMsg:
		return m.handleReply(msg)
	}

	// Viewport always receives messages for scrolling (keyboard and mouse).
	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	cmds = append(cmds, cmd)

	if !m.running {
		m.Input, cmd = m.Input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder
	b.WriteString(m.Viewport.View())
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(m.Input.View())
	return b.String()
}

func (m Model) handleWindowSize(msg tea.WindowSizeMsg) Model {
	inputH := 1
	statusHeight := 1
	borderHeight := 2 // newlines between sections
	vpHeight := msg.Height - inputH - statusHeight - borderHeight
	if vpHeight < 1 {
		vpHeight = 1
	}

	if !m.ready {
		m.Viewport = viewport.New(msg.Width, vpHeight)
		m = m.renderSession()
		m.ready = true
	} else {
		m.Viewport.Width = msg.Width
		m.Viewport.Height = vpHeight
		m.Viewport.SetContent(m.renderContent())
	}

	m.Input.Width = msg.Width
	return m
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.running {
			if m.cancel != nil {
				m.cancel()
			}
			return m, nil
		}
		return m, tea.Quit

	case tea.KeyEnter:
		if m.running {
			return m, nil
		}
		text := strings.TrimSpace(m.Input.Value())
		if text == "" {
			return m, nil
		}
		m.Input.SetValue("")
		m.err = nil
		if cmd, ok := parseCommand(text); ok {
			m = m.runCommand(cmd)
			m = m.refresh()
			return m, nil
		}
		return m.submit(text)

	case tea.KeyTab:
		if !m.running && m.blockFocus >= 0 {
			block, cmd := m.blocks[m.blockFocus].Update(ToggleMsg{})
			m.blocks[m.blockFocus] = block
			m.Viewport.SetContent(m.renderContent())
			return m, cmd
		}
		return m, nil
	}

	// When idle, forward non-character keys to the viewport for scrolling
	// and all keys to the input.
	if !m.running {
		var cmd tea.Cmd
		var cmds []tea.Cmd

		if msg.Type != tea.KeyRunes {
			m.Viewport, cmd = m.Viewport.Update(msg)
			cmds = append(cmds, cmd)
		}

		m.Input, cmd = m.Input.Update(msg)
		cmds = append(cmds, cmd)

		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m Model) submit(text string) (tea.Model, tea.Cmd) {
	m.blocks = append(m.blocks, NewUserMessageBlock(text, m.styles))
	m.Viewport.SetContent(m.renderContent())
	m.Viewport.GotoBottom()

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true
	m.Input.Blur()

	return m, send(ctx, m.chat, m.session.DocumentRef, m.session.ID, text)
}

func (m Model) handleReply(msg ReplyMsg) (tea.Model, tea.Cmd) {
	m.running = false
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if msg.SessionID != m.session.ID {
		cmd := m.Input.Focus()
		return m, cmd
	}
	if msg.Err != nil {
		if !errors.Is(msg.Err, context.Canceled) {
			m.err = msg.Err
			m.blocks = append(m.blocks, NewErrorBlock(msg.Err, m.styles))
		}
	} else {
		if s := m.chat.RunningSummary(); s != "" && s != m.summary {
			m.summary = s
			m.blocks = append(m.blocks, NewSummaryBlock(s, m.styles))
		}
		m.blocks = append(m.blocks, NewAssistantTextBlock(msg.Text, m.theme))
	}
	if s, ok := m.chat.Session(context.Background(), m.session.DocumentRef, m.session.ID); ok {
		m.session = s
	}
	m = m.updateBlockFocus()
	m.Viewport.SetContent(m.renderContent())
	m.Viewport.GotoBottom()
	cmd := m.Input.Focus()
	return m, cmd
}

// loadSession replaces the transcript with s.
func (m Model) loadSession(s margin.Session) Model {
	m.session = s
	m.blocks = nil
	m.summary = m.chat.RunningSummary()
	return m.renderSession()
}

// refresh re-renders after a command changed blocks or the session.
func (m Model) refresh() Model {
	m = m.updateBlockFocus()
	m.Viewport.SetContent(m.renderContent())
	m.Viewport.GotoBottom()
	return m
}

// renderSession creates blocks from the stored session messages.
func (m Model) renderSession() Model {
	for _, msg := range m.session.Messages {
		switch msg.Role {
		case margin.RoleUser:
			m.blocks = append(m.blocks, NewUserMessageBlock(msg.Content, m.styles))
		case margin.RoleAssistant:
			m.blocks = append(m.blocks, NewAssistantTextBlock(msg.Content, m.theme))
		}
	}
	return m.refresh()
}

func (m Model) renderContent() string {
	if len(m.blocks) == 0 {
		return ""
	}
	var b strings.Builder
	for i, block := range m.blocks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(block.View(m.Viewport.Width))
	}
	return b.String()
}

// updateBlockFocus focuses the last summary block, the only collapsible
// block type.
func (m Model) updateBlockFocus() Model {
	m.blockFocus = -1
	for i := len(m.blocks) - 1; i >= 0; i-- {
		if _, ok := m.blocks[i].(*SummaryBlock); ok {
			m.blockFocus = i
			return m
		}
	}
	return m
}

// send runs one chat turn off the UI goroutine.
func send(ctx context.Context, chat Chat, documentRef, sessionID, text string) tea.Cmd {
	return func() tea.Msg {
		reply, err := chat.SendMessage(ctx, documentRef, sessionID, text)
		return ReplyMsg{SessionID: sessionID, Text: reply, Err: err}
	}
}
