package langchaingo_test

import (
	"context"
	"errors"
	"testing"

	"github.com/fwojciec/margin"
	"github.com/fwojciec/margin/langchaingo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// fakeModel records the last call and answers with a fixed response.
type fakeModel struct {
	resp *llms.ContentResponse
	err  error

	messages []llms.MessageContent
	opts     llms.CallOptions
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	for _, o := range options {
		o(&f.opts)
	}
	return f.resp, f.err
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func answer(text string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text}}}
}

func TestClient_Complete(t *testing.T) {
	t.Parallel()
	fake := &fakeModel{resp: answer("Hi there")}
	client := langchaingo.New(fake, "llama3")

	got, err := client.Complete(context.Background(), margin.CompletionRequest{
		Messages: []margin.ChatMessage{
			{Role: margin.RoleSystem, Content: "You are helpful."},
			{Role: margin.RoleUser, Content: "Hello"},
			{Role: margin.RoleAssistant, Content: "Hey"},
		},
		Temperature: 0.7,
		MaxTokens:   2000,
	})
	require.NoError(t, err)
	assert.Equal(t, margin.OutcomeContent, got.Outcome)
	assert.Equal(t, "Hi there", got.Content)
	assert.Equal(t, "llama3", got.Model)

	assert.Equal(t, "llama3", fake.opts.Model)
	assert.InDelta(t, 0.7, fake.opts.Temperature, 1e-9)
	assert.Equal(t, 2000, fake.opts.MaxTokens)

	require.Len(t, fake.messages, 3)
	assert.Equal(t, llms.ChatMessageTypeSystem, fake.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, fake.messages[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, fake.messages[2].Role)
	require.Len(t, fake.messages[1].Parts, 1)
	assert.Equal(t, llms.TextContent{Text: "Hello"}, fake.messages[1].Parts[0])
}

func TestClient_RequestModelWins(t *testing.T) {
	t.Parallel()
	fake := &fakeModel{resp: answer("ok")}
	got, err := langchaingo.New(fake, "llama3").Complete(context.Background(), margin.CompletionRequest{
		Model:    "mistral",
		Messages: []margin.ChatMessage{{Role: margin.RoleUser, Content: "x"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "mistral", fake.opts.Model)
	assert.Equal(t, "mistral", got.Model)
	assert.Zero(t, fake.opts.MaxTokens)
}

func TestClient_EmptyResponses(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		resp *llms.ContentResponse
	}{
		{"nil response", nil},
		{"no choices", &llms.ContentResponse{}},
		{"empty content", answer("")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := langchaingo.New(&fakeModel{resp: tt.resp}, "m").Complete(context.Background(), margin.CompletionRequest{
				Messages: []margin.ChatMessage{{Role: margin.RoleUser, Content: "x"}},
			})
			require.NoError(t, err)
			assert.Equal(t, margin.OutcomeEmpty, got.Outcome)
		})
	}
}

func TestClient_ErrorIsTransport(t *testing.T) {
	t.Parallel()
	boom := errors.New("connection refused")
	_, err := langchaingo.New(&fakeModel{err: boom}, "m").Complete(context.Background(), margin.CompletionRequest{
		Messages: []margin.ChatMessage{{Role: margin.RoleUser, Content: "x"}},
	})
	assert.ErrorIs(t, err, margin.ErrTransport)
	assert.ErrorIs(t, err, boom)
}

func TestNewOllama(t *testing.T) {
	t.Parallel()
	client, err := langchaingo.NewOllama("llama3", "http://127.0.0.1:11434")
	require.NoError(t, err)
	assert.NotNil(t, client)
}
