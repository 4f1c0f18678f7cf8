package margin

import "time"

// Message is a single turn in a session transcript. Messages are immutable
// once appended to a session.
type Message struct {
	Role       Role
	Content    string
	CreatedAt  time.Time
	TokenCount int
}

// NewMessage creates a Message stamped with now and its estimated token
// count.
func NewMessage(role Role, content string, now time.Time) Message {
	return Message{
		Role:       role,
		Content:    content,
		CreatedAt:  now,
		TokenCount: EstimateTokens(content),
	}
}
