package openrouter

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

// Client implements [margin.Completer] for OpenRouter.
type Client struct {
	apiKey     string
	baseURL    string
	referer    string
	title      string
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

// WithAttribution sets the HTTP-Referer and X-Title headers OpenRouter uses
// to attribute traffic.
func WithAttribution(referer, title string) Option {
	return func(c *Client) {
		c.referer = referer
		c.title = title
	}
}

// New creates a new OpenRouter [Client] with the given API key and options.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		referer:    defaultReferer,
		title:      defaultTitle,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Complete sends one non-streaming chat completion request.
func (c *Client) Complete(ctx context.Context, req margin.CompletionRequest) (margin.Completion, error) {
	body, err := json.Marshal(buildRequest(req))
	if err != nil {
		return margin.Completion{}, fmt.Errorf("openrouter: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionsPath, bytes.NewReader(body))
	if err != nil {
		return margin.Completion{}, fmt.Errorf("openrouter: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("HTTP-Referer", c.referer)
	httpReq.Header.Set("X-Title", c.title)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return margin.Completion{}, fmt.Errorf("openrouter: %w: %w", margin.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return margin.Completion{}, fmt.Errorf("openrouter: %w", parseHTTPError(resp))
	}

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return margin.Completion{}, fmt.Errorf("openrouter: decode response: %w: %w", margin.ErrTransport, err)
	}
	if apiResp.Error != nil {
		code := apiResp.Error.Code
		if code == 0 {
			code = resp.StatusCode
		}
		return margin.Completion{}, fmt.Errorf("openrouter: %w", &margin.HTTPError{StatusCode: code, Message: apiResp.Error.Message})
	}
	return convertResponse(apiResp), nil
}

func buildRequest(req margin.CompletionRequest) apiRequest {
	msgs := make([]apiMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = apiMessage{Role: string(m.Role), Content: m.Content}
	}
	return apiRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
}

func convertResponse(resp apiResponse) margin.Completion {
	var content string
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}
	out := margin.ContentCompletion(content)
	out.Model = resp.Model
	if resp.Usage != nil {
		out.Usage = margin.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}
	return out
}

func parseHTTPError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &margin.HTTPError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read body: %v", err)}
	}
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return &margin.HTTPError{StatusCode: resp.StatusCode, Message: apiErr.Error.Message}
	}
	return &margin.HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}
