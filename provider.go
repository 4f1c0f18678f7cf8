package margin

import "context"

// Outcome tags a successful completion call.
type Outcome int

const (
	// OutcomeContent means the endpoint returned usable text.
	OutcomeContent Outcome = iota + 1
	// OutcomeEmpty means the call succeeded but carried no usable text
	// (no choices, no message, or empty content).
	OutcomeEmpty
)

func (o Outcome) String() string {
	switch o {
	case OutcomeContent:
		return "content"
	case OutcomeEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// Completion is a completion response decoded once at the backend boundary.
// Transport failures are reported through the error return of Complete,
// never through Completion.
type Completion struct {
	Outcome Outcome
	Content string
	Model   string
	Usage   Usage
}

// Completer is the completion-call port: one request, one response.
//
// Implementations return an error wrapping ErrTransport for network
// failures and non-success statuses, and a Completion with OutcomeEmpty
// when the response has no usable content.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}

// ContentCompletion builds a Completion for text, tagging empty text as
// OutcomeEmpty.
func ContentCompletion(text string) Completion {
	if text == "" {
		return Completion{Outcome: OutcomeEmpty}
	}
	return Completion{Outcome: OutcomeContent, Content: text}
}
