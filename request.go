package margin

// ChatMessage is the wire form of a message sent to a completion endpoint.
type ChatMessage struct {
	Role    Role
	Content string
}

// CompletionRequest carries model selection, the ordered message list and
// generation parameters for one completion call.
type CompletionRequest struct {
	Model       string // model ID, backend-specific; empty = backend default
	Messages    []ChatMessage
	Temperature float64
	MaxTokens   int // 0 = backend default
}
