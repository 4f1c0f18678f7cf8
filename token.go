package margin

import "unicode/utf8"

// charsPerToken is the coarse ratio used by EstimateTokens.
const charsPerToken = 4

// EstimateTokens returns an approximate token count for text: one token per
// four characters, rounded up. It does not model any real tokenizer; it is
// a stable, monotonic proxy for how much context text consumes.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + charsPerToken - 1) / charsPerToken
}
