// Package langchaingo implements [margin.Completer] over any
// github.com/tmc/langchaingo model, which gives margin local models through
// Ollama and OpenAI-compatible endpoints.
package langchaingo

import (
	"context"
	"fmt"

	"github.com/fwojciec/margin"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Interface compliance check.
var _ margin.Completer = (*Client)(nil)

// Client adapts an llms.Model to [margin.Completer].
type Client struct {
	llm   llms.Model
	model string
}

// New wraps llm. model names the backend's default model and is reported
// on completions when a request names none.
func New(llm llms.Model, model string) *Client {
	return &Client{llm: llm, model: model}
}

// NewOllama returns a Client for an Ollama server. An empty serverURL uses
// the library default.
func NewOllama(model, serverURL string) (*Client, error) {
	opts := []ollama.Option{ollama.WithModel(model)}
	if serverURL != "" {
		opts = append(opts, ollama.WithServerURL(serverURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create ollama model: %w", err)
	}
	return New(llm, model), nil
}

// NewOpenAI returns a Client for an OpenAI-compatible endpoint. An empty
// baseURL uses the OpenAI API.
func NewOpenAI(token, model, baseURL string) (*Client, error) {
	opts := []openai.Option{openai.WithToken(token), openai.WithModel(model)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai model: %w", err)
	}
	return New(llm, model), nil
}

// Complete implements [margin.Completer].
func (c *Client) Complete(ctx context.Context, req margin.CompletionRequest) (margin.Completion, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if model != "" {
		opts = append(opts, llms.WithModel(model))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}

	resp, err := c.llm.GenerateContent(ctx, ConvertMessages(req.Messages), opts...)
	if err != nil {
		return margin.Completion{}, fmt.Errorf("langchaingo: %w: %w", margin.ErrTransport, err)
	}
	var content string
	if resp != nil && len(resp.Choices) > 0 && resp.Choices[0] != nil {
		content = resp.Choices[0].Content
	}
	out := margin.ContentCompletion(content)
	out.Model = model
	return out, nil
}

// ConvertMessages converts margin chat messages to langchaingo message
// content. Exported for testing.
func ConvertMessages(msgs []margin.ChatMessage) []llms.MessageContent {
	out := make([]llms.MessageContent, len(msgs))
	for i, m := range msgs {
		out[i] = llms.TextParts(messageType(m.Role), m.Content)
	}
	return out
}

func messageType(r margin.Role) llms.ChatMessageType {
	switch r {
	case margin.RoleSystem:
		return llms.ChatMessageTypeSystem
	case margin.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
