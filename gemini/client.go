package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fwojciec/margin"
	"google.golang.org/genai"
)

// Interface compliance check.
var _ margin.Completer = (*Client)(nil)

// Client implements [margin.Completer] for the Google Gemini API.
type Client struct {
	client *genai.Client
	model  string
}

// Option configures a [Client].
type Option func(*Client)

// WithModel sets the model used when a request names none. Default is
// gemini-2.5-flash.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// New creates a new Gemini [Client] with the given API key and options.
// A non-empty baseURL overrides the API endpoint.
func New(ctx context.Context, apiKey, baseURL string, opts ...Option) (*Client, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	gc, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	c := &Client{
		client: gc,
		model:  defaultModel,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Complete sends a non-streaming GenerateContent request.
func (c *Client) Complete(ctx context.Context, req margin.CompletionRequest) (margin.Completion, error) {
	model := strings.TrimPrefix(req.Model, modelPrefix)
	if model == "" {
		model = c.model
	}
	system, contents := ConvertMessages(req.Messages)
	resp, err := c.client.Models.GenerateContent(ctx, model, contents, BuildConfig(req, system))
	if err != nil {
		return margin.Completion{}, fmt.Errorf("gemini: %w", convertError(err))
	}
	return ConvertResponse(resp), nil
}

// BuildConfig returns the generation config for req. Exported for testing.
func BuildConfig(req margin.CompletionRequest, system *genai.Content) *genai.GenerateContentConfig {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	temp := float32(req.Temperature)
	return &genai.GenerateContentConfig{
		MaxOutputTokens:   int32(maxTokens),
		Temperature:       &temp,
		SystemInstruction: system,
	}
}

// ConvertMessages converts margin chat messages to a system instruction
// (nil when there are no system messages) and genai Contents.
// Exported for testing.
func ConvertMessages(msgs []margin.ChatMessage) (*genai.Content, []*genai.Content) {
	var system *genai.Content
	var result []*genai.Content
	for _, m := range msgs {
		part := &genai.Part{Text: m.Content}
		switch m.Role {
		case margin.RoleSystem:
			if system == nil {
				system = &genai.Content{}
			}
			system.Parts = append(system.Parts, part)
		case margin.RoleAssistant:
			result = append(result, &genai.Content{Role: "model", Parts: []*genai.Part{part}})
		default:
			result = append(result, &genai.Content{Role: "user", Parts: []*genai.Part{part}})
		}
	}
	return system, result
}

// ConvertResponse extracts the text of the first candidate, skipping
// thought parts. Exported for testing.
func ConvertResponse(resp *genai.GenerateContentResponse) margin.Completion {
	if resp == nil {
		return margin.ContentCompletion("")
	}
	var b strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, p := range resp.Candidates[0].Content.Parts {
			if p == nil || p.Thought {
				continue
			}
			b.WriteString(p.Text)
		}
	}
	out := margin.ContentCompletion(b.String())
	out.Model = resp.ModelVersion
	if u := resp.UsageMetadata; u != nil {
		out.Usage = margin.Usage{
			InputTokens:  int(u.PromptTokenCount),
			OutputTokens: int(u.CandidatesTokenCount),
		}
	}
	return out
}

func convertError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &margin.HTTPError{StatusCode: apiErr.Code, Message: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &margin.HTTPError{StatusCode: apiErrPtr.Code, Message: apiErrPtr.Message}
	}
	return fmt.Errorf("%w: %w", margin.ErrTransport, err)
}
