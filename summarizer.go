package margin

import (
	"context"
	"fmt"
	"strings"
)

// Summarizer compresses a prefix of conversation history into prose.
type Summarizer interface {
	Summarize(ctx context.Context, msgs []ChatMessage) (string, error)
}

const (
	// DefaultSummaryModel is a small, fast model used for compaction.
	DefaultSummaryModel = "anthropic/claude-3-haiku-20240307"

	summaryTemperature = 0.3
	summaryMaxTokens   = 500
)

// Interface compliance check.
var _ Summarizer = (*ModelSummarizer)(nil)

// ModelSummarizer implements Summarizer with a single completion call to a
// (typically cheaper) model than the one used for chat.
type ModelSummarizer struct {
	completer Completer
	model     string
}

// NewSummarizer creates a ModelSummarizer. An empty model selects
// DefaultSummaryModel.
func NewSummarizer(completer Completer, model string) *ModelSummarizer {
	if model == "" {
		model = DefaultSummaryModel
	}
	return &ModelSummarizer{completer: completer, model: model}
}

// Model returns the model used for summaries.
func (s *ModelSummarizer) Model() string { return s.model }

// Summarize implements Summarizer. All failures wrap ErrSummarization.
func (s *ModelSummarizer) Summarize(ctx context.Context, msgs []ChatMessage) (string, error) {
	if len(msgs) == 0 {
		return "", fmt.Errorf("%w: no messages", ErrSummarization)
	}
	resp, err := s.completer.Complete(ctx, CompletionRequest{
		Model:       s.model,
		Messages:    []ChatMessage{{Role: RoleUser, Content: SummaryPrompt(msgs)}},
		Temperature: summaryTemperature,
		MaxTokens:   summaryMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSummarization, err)
	}
	if resp.Outcome != OutcomeContent {
		return "", fmt.Errorf("%w: %w", ErrSummarization, ErrEmptyResponse)
	}
	return resp.Content, nil
}

// SummaryPrompt renders the instruction and transcript sent to the
// summarization model.
func SummaryPrompt(msgs []ChatMessage) string {
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		lines[i] = strings.ToUpper(string(m.Role)) + ": " + m.Content
	}
	var b strings.Builder
	b.WriteString("Please provide a concise summary of the following conversation, ")
	b.WriteString("capturing the key points, decisions made, and important context ")
	b.WriteString("that should be remembered for the continuation of this discussion:\n\n")
	b.WriteString(strings.Join(lines, "\n\n"))
	b.WriteString("\n\nProvide only the summary, no additional commentary.")
	return b.String()
}
