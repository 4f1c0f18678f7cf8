// Package gemini implements [margin.Completer] for the Google Gemini API.
//
// It wraps the google.golang.org/genai SDK, translating between margin's
// chat messages and the Gemini API types. System messages become the
// request's system instruction.
package gemini

const (
	defaultModel     = "gemini-2.5-flash"
	defaultMaxTokens = 2000

	// modelPrefix is stripped from OpenRouter-style model IDs.
	modelPrefix = "google/"
)
