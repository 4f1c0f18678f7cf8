package margin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const (
	// DefaultTokenThreshold is the estimated prompt size above which older
	// history is compacted into a summary.
	DefaultTokenThreshold = 10000

	// DefaultTailSize is the number of most recent history messages that
	// are always sent verbatim.
	DefaultTailSize = 4

	// DefaultPreamble opens every system message.
	DefaultPreamble = "You are a helpful AI assistant. The user is working on a document."
)

// Policy holds the compaction constants.
type Policy struct {
	Threshold int    // compaction triggers when the estimate exceeds this
	TailSize  int    // history messages kept verbatim after compaction
	Preamble  string // fixed assistant instructions
}

// DefaultPolicy returns the reference compaction policy.
func DefaultPolicy() Policy {
	return Policy{
		Threshold: DefaultTokenThreshold,
		TailSize:  DefaultTailSize,
		Preamble:  DefaultPreamble,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.Threshold <= 0 {
		p.Threshold = d.Threshold
	}
	if p.TailSize <= 0 {
		p.TailSize = d.TailSize
	}
	if p.Preamble == "" {
		p.Preamble = d.Preamble
	}
	return p
}

// Window is the message list for one completion call.
type Window struct {
	Messages []ChatMessage
	// Estimate is the estimated token total that was checked against the
	// threshold: system message, full history and the new user message.
	Estimate int
	// Compacted is set when history older than the tail was left out.
	Compacted bool
	// Summarized is set when a new summary was produced during this build.
	Summarized bool
}

// ContextBuilder produces the ordered message list for a new user turn,
// keeping the estimated prompt size under the policy threshold by
// summarizing older history.
type ContextBuilder struct {
	summarizer Summarizer
	policy     Policy
	logger     *slog.Logger
}

// BuilderOption configures a ContextBuilder.
type BuilderOption func(*ContextBuilder)

// WithPolicy overrides the compaction policy. Zero fields keep defaults.
func WithPolicy(p Policy) BuilderOption {
	return func(b *ContextBuilder) { b.policy = p.withDefaults() }
}

// WithBuilderLogger sets the logger used to report absorbed summarization
// failures.
func WithBuilderLogger(l *slog.Logger) BuilderOption {
	return func(b *ContextBuilder) { b.logger = l }
}

// NewContextBuilder creates a ContextBuilder compacting through summarizer.
func NewContextBuilder(summarizer Summarizer, opts ...BuilderOption) *ContextBuilder {
	b := &ContextBuilder{
		summarizer: summarizer,
		policy:     DefaultPolicy(),
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Policy returns the active compaction policy.
func (b *ContextBuilder) Policy() Policy { return b.policy }

// Build returns the messages to send for text, given the session history
// (which must not already contain text) and the session's conversation.
//
// When the estimate exceeds the threshold and the history is longer than
// the tail, everything but the tail is summarized at most once, and the new
// summary is stored on conv. A failed summarization keeps the previous
// summary; the turn is never failed because of it.
func (b *ContextBuilder) Build(ctx context.Context, conv *Conversation, session Session, text string) (Window, error) {
	if conv == nil {
		return Window{}, fmt.Errorf("conversation is required: %w", ErrValidation)
	}
	if !conv.Bound(session.DocumentRef, session.ID) {
		return Window{}, fmt.Errorf("conversation belongs to session %q, not %q: %w", conv.SessionID, session.ID, ErrValidation)
	}

	system := SystemPrompt(b.policy.Preamble, session.SeedContext, conv.Summary)
	total := EstimateTokens(system)

	history := make([]ChatMessage, 0, len(session.Messages))
	for _, m := range session.Messages {
		if m.Role == RoleSystem {
			continue
		}
		history = append(history, ChatMessage{Role: m.Role, Content: m.Content})
		total += EstimateTokens(m.Content)
	}
	total += EstimateTokens(text)

	w := Window{Estimate: total}
	tail := b.policy.TailSize
	if total > b.policy.Threshold && len(history) > tail {
		older := history[:len(history)-tail]
		summary, err := b.summarizer.Summarize(ctx, older)
		if err != nil {
			b.logger.Warn("compaction skipped, keeping previous summary",
				"document", session.DocumentRef,
				"session", session.ID,
				"messages", len(older),
				"error", err)
		} else {
			conv.Summary = summary
			conv.Compactions++
			w.Summarized = true
		}
		system = SystemPrompt(b.policy.Preamble, session.SeedContext, conv.Summary)
		history = history[len(history)-tail:]
		w.Compacted = true
	}

	w.Messages = make([]ChatMessage, 0, len(history)+2)
	w.Messages = append(w.Messages, ChatMessage{Role: RoleSystem, Content: system})
	w.Messages = append(w.Messages, history...)
	w.Messages = append(w.Messages, ChatMessage{Role: RoleUser, Content: text})
	return w, nil
}

// SystemPrompt composes the system message from the preamble, the seed
// context and the running summary. Empty parts are omitted.
func SystemPrompt(preamble, seedContext, summary string) string {
	var b strings.Builder
	b.WriteString(preamble)
	if seedContext != "" {
		b.WriteString("\n\nHere is the relevant context from the user's document:\n\n")
		b.WriteString(seedContext)
	}
	if summary != "" {
		b.WriteString("\n\nSummary of previous conversation:\n")
		b.WriteString(summary)
	}
	return b.String()
}
