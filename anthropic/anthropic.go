// Package anthropic implements [margin.Completer] for the Anthropic Messages
// API.
//
// Requests are sent without streaming; the full reply is decoded once into
// a [margin.Completion]. System messages are lifted out of the message list
// into the top-level system field, which carries a prompt-cache breakpoint
// because the seed context repeats on every turn.
package anthropic

const (
	defaultBaseURL   = "https://api.anthropic.com"
	defaultModel     = "claude-3-5-sonnet-latest"
	defaultMaxTokens = 2000
	apiVersion       = "2023-06-01"
	messagesPath     = "/v1/messages"

	// modelPrefix is stripped from OpenRouter-style model IDs.
	modelPrefix = "anthropic/"
)

// apiCacheControl specifies a cache breakpoint for prompt caching.
type apiCacheControl struct {
	Type string `json:"type"` // always "ephemeral"
}

// apiRequest is the JSON body sent to the Anthropic Messages API.
type apiRequest struct {
	Model       string            `json:"model"`
	MaxTokens   int               `json:"max_tokens"`
	System      []apiContentBlock `json:"system,omitempty"`
	Messages    []apiMessage      `json:"messages"`
	Temperature float64           `json:"temperature"`
}

type apiMessage struct {
	Role    string            `json:"role"`
	Content []apiContentBlock `json:"content"`
}

type apiContentBlock struct {
	Type         string           `json:"type"`
	Text         string           `json:"text,omitempty"`
	CacheControl *apiCacheControl `json:"cache_control,omitempty"`
}

// apiResponse is the non-streaming Messages API reply.
type apiResponse struct {
	ID         string            `json:"id"`
	Model      string            `json:"model"`
	Content    []apiContentBlock `json:"content"`
	StopReason *string           `json:"stop_reason"`
	Usage      apiUsage          `json:"usage"`
}

type apiUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type apiErrorResponse struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
