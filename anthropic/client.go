package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fwojciec/margin"
)

// Interface compliance check.
var _ margin.Completer = (*Client)(nil)

// Client implements [margin.Completer] for the Anthropic Messages API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL sets the API base URL. Useful for testing with httptest.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a new Anthropic [Client] with the given API key and options.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Complete sends a request to the Anthropic Messages API.
func (c *Client) Complete(ctx context.Context, req margin.CompletionRequest) (margin.Completion, error) {
	body, err := json.Marshal(buildRequest(req))
	if err != nil {
		return margin.Completion{}, fmt.Errorf("anthropic: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+messagesPath, bytes.NewReader(body))
	if err != nil {
		return margin.Completion{}, fmt.Errorf("anthropic: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", c.apiKey)
	httpReq.Header.Set("Anthropic-Version", apiVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return margin.Completion{}, fmt.Errorf("anthropic: %w: %w", margin.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return margin.Completion{}, fmt.Errorf("anthropic: %w", parseHTTPError(resp))
	}

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return margin.Completion{}, fmt.Errorf("anthropic: decode response: %w: %w", margin.ErrTransport, err)
	}
	return convertResponse(apiResp), nil
}

func buildRequest(req margin.CompletionRequest) apiRequest {
	model := strings.TrimPrefix(req.Model, modelPrefix)
	if model == "" {
		model = defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	system, msgs := convertMessages(req.Messages)
	apiReq := apiRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		System:      system,
		Messages:    msgs,
		Temperature: req.Temperature,
	}
	injectCacheMarker(&apiReq)
	return apiReq
}

// convertMessages splits system messages from the conversation. Consecutive
// messages with the same role are merged, since the API requires
// alternation.
func convertMessages(msgs []margin.ChatMessage) ([]apiContentBlock, []apiMessage) {
	var system []apiContentBlock
	var result []apiMessage
	for _, m := range msgs {
		block := apiContentBlock{Type: "text", Text: m.Content}
		if m.Role == margin.RoleSystem {
			system = append(system, block)
			continue
		}
		role := string(m.Role)
		if n := len(result); n > 0 && result[n-1].Role == role {
			result[n-1].Content = append(result[n-1].Content, block)
			continue
		}
		result = append(result, apiMessage{Role: role, Content: []apiContentBlock{block}})
	}
	return system, result
}

// injectCacheMarker sets a cache breakpoint on the last system block.
func injectCacheMarker(req *apiRequest) {
	if len(req.System) > 0 {
		req.System[len(req.System)-1].CacheControl = &apiCacheControl{Type: "ephemeral"}
	}
}

func convertResponse(resp apiResponse) margin.Completion {
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	out := margin.ContentCompletion(b.String())
	out.Model = resp.Model
	out.Usage = margin.Usage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
	return out
}

func parseHTTPError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &margin.HTTPError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read body: %v", err)}
	}
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Error.Message == "" {
		return &margin.HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return &margin.HTTPError{StatusCode: resp.StatusCode, Message: apiErr.Error.Type + ": " + apiErr.Error.Message}
}
