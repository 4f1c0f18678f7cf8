package margin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

const (
	// DefaultModel is the general-purpose model used when none is set.
	DefaultModel = "anthropic/claude-3.5-sonnet"

	chatTemperature = 0.7
	chatMaxTokens   = 2000
)

// Settings configures the chat model and credential.
type Settings struct {
	APIKey string
	// Keyless marks backends that need no credential (a local model
	// server). When false, an empty APIKey fails every turn.
	Keyless bool
	// Model is the general-purpose model.
	Model string
	// ChatModel overrides Model for chat turns when set.
	ChatModel string
}

// ChatModelID returns the model used for chat turns.
func (s Settings) ChatModelID() string {
	switch {
	case s.ChatModel != "":
		return s.ChatModel
	case s.Model != "":
		return s.Model
	default:
		return DefaultModel
	}
}

// Chat is the entry point for a UI: it owns the active conversation,
// builds each request through a ContextBuilder, calls the Completer and
// records both sides of every successful turn in the SessionStore.
//
// The store must not be mutated by anything other than this Chat for the
// sessions it serves.
type Chat struct {
	store     SessionStore
	completer Completer
	builder   *ContextBuilder
	settings  Settings
	logger    *slog.Logger

	mu       sync.Mutex
	active   *Conversation
	epoch    uint64 // bumped whenever the active conversation is reset or replaced
	inflight map[string]struct{}
}

// ChatOption configures a Chat.
type ChatOption func(*Chat)

// WithContextBuilder replaces the default ContextBuilder, which summarizes
// with DefaultSummaryModel through the chat Completer.
func WithContextBuilder(b *ContextBuilder) ChatOption {
	return func(c *Chat) { c.builder = b }
}

// WithChatLogger sets the logger for turn diagnostics.
func WithChatLogger(l *slog.Logger) ChatOption {
	return func(c *Chat) { c.logger = l }
}

// NewChat creates a Chat over store and completer.
func NewChat(store SessionStore, completer Completer, settings Settings, opts ...ChatOption) *Chat {
	c := &Chat{
		store:     store,
		completer: completer,
		settings:  settings,
		logger:    slog.Default(),
		inflight:  make(map[string]struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if c.builder == nil {
		c.builder = NewContextBuilder(NewSummarizer(completer, ""), WithBuilderLogger(c.logger))
	}
	return c
}

// GetOrCreateSession loads the registry, returns the most recently updated
// session of the document (creating one if there is none) and makes it the
// active session.
func (c *Chat) GetOrCreateSession(ctx context.Context, documentRef, seedContext string) Session {
	c.store.Load(ctx)
	s := c.store.GetOrCreate(ctx, documentRef, seedContext)
	c.activate(documentRef, s.ID)
	return s
}

// ListSessions returns the sessions of a document.
func (c *Chat) ListSessions(ctx context.Context, documentRef string) []Session {
	return c.store.SessionsFor(ctx, documentRef)
}

// Session returns one session.
func (c *Chat) Session(ctx context.Context, documentRef, sessionID string) (Session, bool) {
	return c.store.Get(ctx, documentRef, sessionID)
}

// CreateSession creates a session and makes it the active session.
func (c *Chat) CreateSession(ctx context.Context, documentRef, seedContext, name string) Session {
	s := c.store.Create(ctx, documentRef, seedContext, name)
	c.activate(documentRef, s.ID)
	return s
}

// SwitchSession makes an existing session the active session.
func (c *Chat) SwitchSession(ctx context.Context, documentRef, sessionID string) (Session, error) {
	s, ok := c.store.Get(ctx, documentRef, sessionID)
	if !ok {
		return Session{}, fmt.Errorf("%s/%s: %w", documentRef, sessionID, ErrSessionNotFound)
	}
	c.activate(documentRef, sessionID)
	return s, nil
}

// RenameSession renames a session and reports whether it exists.
func (c *Chat) RenameSession(ctx context.Context, documentRef, sessionID, name string) bool {
	return c.store.Rename(ctx, documentRef, sessionID, name)
}

// DeleteSession deletes a session and returns the fallback session: the
// most recently updated remaining one, which becomes active if the deleted
// session was. Deleting the
// only session of a document fails with ErrLastSession.
func (c *Chat) DeleteSession(ctx context.Context, documentRef, sessionID string) (Session, error) {
	sessions := c.store.SessionsFor(ctx, documentRef)
	found := false
	for _, s := range sessions {
		if s.ID == sessionID {
			found = true
			break
		}
	}
	if !found {
		return Session{}, fmt.Errorf("%s/%s: %w", documentRef, sessionID, ErrSessionNotFound)
	}
	if len(sessions) <= 1 {
		return Session{}, ErrLastSession
	}
	if !c.store.Delete(ctx, documentRef, sessionID) {
		return Session{}, fmt.Errorf("%s/%s: %w", documentRef, sessionID, ErrSessionNotFound)
	}
	// At least one session remains, so this never creates.
	fallback := c.store.GetOrCreate(ctx, documentRef, "")
	c.replace(documentRef, sessionID, fallback.ID)
	return fallback, nil
}

// ResetRunningSummary drops the running summary of the active session.
func (c *Chat) ResetRunningSummary() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		c.active.Reset()
		c.epoch++
	}
}

// RunningSummary returns the running summary of the active session.
func (c *Chat) RunningSummary() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return ""
	}
	return c.active.Summary
}

// SendMessage runs one chat turn and returns the assistant's reply.
//
// The user message is persisted before the completion call. On failure
// nothing else is appended, so the transcript ends with the unanswered
// question. Failures wrap ErrNotConfigured, ErrTransport or
// ErrEmptyResponse; a failed turn must be resubmitted as a new call.
func (c *Chat) SendMessage(ctx context.Context, documentRef, sessionID, text string) (string, error) {
	if c.settings.APIKey == "" && !c.settings.Keyless {
		return "", ErrNotConfigured
	}
	if err := c.acquire(documentRef, sessionID); err != nil {
		return "", err
	}
	defer c.release(documentRef, sessionID)

	if _, ok := c.store.Append(ctx, documentRef, sessionID, RoleUser, text); !ok {
		return "", fmt.Errorf("%s/%s: %w", documentRef, sessionID, ErrSessionNotFound)
	}
	session, ok := c.store.Get(ctx, documentRef, sessionID)
	if !ok {
		return "", fmt.Errorf("%s/%s: %w", documentRef, sessionID, ErrSessionNotFound)
	}
	// The builder adds text as the final message itself.
	session.Messages = session.Messages[:len(session.Messages)-1]

	conv, epoch := c.conversation(documentRef, sessionID)
	window, err := c.builder.Build(ctx, &conv, session, text)
	if err != nil {
		return "", err
	}
	if window.Summarized {
		c.commit(conv, epoch)
	}

	req := CompletionRequest{
		Model:       c.settings.ChatModelID(),
		Messages:    window.Messages,
		Temperature: chatTemperature,
		MaxTokens:   chatMaxTokens,
	}
	if err := req.Validate(); err != nil {
		return "", err
	}
	resp, err := c.completer.Complete(ctx, req)
	if err != nil {
		if !errors.Is(err, ErrTransport) {
			err = fmt.Errorf("%w: %w", ErrTransport, err)
		}
		return "", err
	}
	if resp.Outcome != OutcomeContent {
		return "", ErrEmptyResponse
	}
	c.logger.Debug("chat turn complete",
		"document", documentRef,
		"session", sessionID,
		"model", req.Model,
		"estimate", window.Estimate,
		"compacted", window.Compacted,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens)

	if _, ok := c.store.Append(ctx, documentRef, sessionID, RoleAssistant, resp.Content); !ok {
		return "", fmt.Errorf("%s/%s: %w", documentRef, sessionID, ErrSessionNotFound)
	}
	return resp.Content, nil
}

// activate makes the session active, starting a fresh conversation unless
// it is already the active one.
func (c *Chat) activate(documentRef, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil && c.active.Bound(documentRef, sessionID) {
		return
	}
	c.active = NewConversation(documentRef, sessionID)
	c.epoch++
}

// replace activates newID only while oldID is the active session.
func (c *Chat) replace(documentRef, oldID, newID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || !c.active.Bound(documentRef, oldID) {
		return
	}
	c.active = NewConversation(documentRef, newID)
	c.epoch++
}

// conversation returns a copy of the session's conversation for one build,
// replacing the active conversation if the session changed.
func (c *Chat) conversation(documentRef, sessionID string) (Conversation, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || !c.active.Bound(documentRef, sessionID) {
		c.active = NewConversation(documentRef, sessionID)
		c.epoch++
	}
	return *c.active, c.epoch
}

// commit stores a summary produced during a build, unless the conversation
// was reset or replaced while the build ran.
func (c *Chat) commit(conv Conversation, epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch || c.active == nil || !c.active.Bound(conv.DocumentRef, conv.SessionID) {
		return
	}
	*c.active = conv
}

func (c *Chat) acquire(documentRef, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := documentRef + "\x00" + sessionID
	if _, busy := c.inflight[key]; busy {
		return fmt.Errorf("%s/%s: %w", documentRef, sessionID, ErrSessionBusy)
	}
	c.inflight[key] = struct{}{}
	return nil
}

func (c *Chat) release(documentRef, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, documentRef+"\x00"+sessionID)
}
