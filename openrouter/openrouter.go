// Package openrouter implements [margin.Completer] for the OpenRouter chat
// completions API.
package openrouter

const (
	defaultBaseURL  = "https://openrouter.ai/api/v1"
	completionsPath = "/chat/completions"
	defaultReferer  = "https://github.com/fwojciec/margin"
	defaultTitle    = "Margin"
)

type apiRequest struct {
	Model       string       `json:"model"`
	Messages    []apiMessage `json:"messages"`
	Temperature float64      `json:"temperature"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiResponse struct {
	ID      string      `json:"id"`
	Model   string      `json:"model"`
	Choices []apiChoice `json:"choices"`
	Usage   *apiUsage   `json:"usage"`
	Error   *apiError   `json:"error"`
}

type apiChoice struct {
	Message      apiMessage `json:"message"`
	FinishReason *string    `json:"finish_reason"`
}

type apiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}
