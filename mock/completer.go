// Package mock provides test doubles for margin interfaces using function fields.
package mock

import (
	"context"

	"github.com/fwojciec/margin"
)

// Interface compliance checks.
var (
	_ margin.Completer    = (*Completer)(nil)
	_ margin.Summarizer   = (*Summarizer)(nil)
	_ margin.Backend      = (*Backend)(nil)
	_ margin.SessionStore = (*SessionStore)(nil)
)

// Completer is a test double for margin.Completer.
// Set CompleteFn before calling Complete.
type Completer struct {
	CompleteFn func(ctx context.Context, req margin.CompletionRequest) (margin.Completion, error)
}

// Complete delegates to CompleteFn.
func (c *Completer) Complete(ctx context.Context, req margin.CompletionRequest) (margin.Completion, error) {
	return c.CompleteFn(ctx, req)
}

// Summarizer is a test double for margin.Summarizer.
type Summarizer struct {
	SummarizeFn func(ctx context.Context, msgs []margin.ChatMessage) (string, error)
}

// Summarize delegates to SummarizeFn.
func (s *Summarizer) Summarize(ctx context.Context, msgs []margin.ChatMessage) (string, error) {
	return s.SummarizeFn(ctx, msgs)
}
