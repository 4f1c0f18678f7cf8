package margin

import "time"

// Session is one named conversation attached to a document. Messages are
// append-only and kept in conversation order.
type Session struct {
	ID          string
	Name        string
	DocumentRef string
	Messages    []Message
	// SeedContext is the selection or document text captured when the
	// session was created. It is always part of the system preamble.
	SeedContext string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Clone returns a copy of s that shares no mutable state with it.
func (s Session) Clone() Session {
	if s.Messages != nil {
		msgs := make([]Message, len(s.Messages))
		copy(msgs, s.Messages)
		s.Messages = msgs
	}
	return s
}

// Tokens returns the sum of the estimated token counts of all messages.
func (s Session) Tokens() int {
	var n int
	for _, m := range s.Messages {
		n += m.TokenCount
	}
	return n
}
