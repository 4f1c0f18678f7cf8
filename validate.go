package margin

import "fmt"

// Validate checks universal constraints on CompletionRequest.
// Backends may apply additional backend-specific validation.
func (r CompletionRequest) Validate() error {
	if r.Temperature < 0 || r.Temperature > 2 {
		return fmt.Errorf("temperature must be in [0, 2], got %g: %w", r.Temperature, ErrValidation)
	}
	if r.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative, got %d: %w", r.MaxTokens, ErrValidation)
	}
	if len(r.Messages) == 0 {
		return fmt.Errorf("at least one message is required: %w", ErrValidation)
	}
	for i, m := range r.Messages {
		if err := ValidateChatMessage(m); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
	}
	return nil
}

// ValidateChatMessage checks that a wire message has a known role.
func ValidateChatMessage(m ChatMessage) error {
	if !m.Role.Valid() {
		return fmt.Errorf("unknown role %q: %w", m.Role, ErrValidation)
	}
	return nil
}
