package margin

// Conversation is the ephemeral state of the active session: the running
// summary that stands in for compacted history. It is bound to exactly one
// (document, session) pair and is never persisted. Switching sessions means
// starting a new Conversation, so a summary cannot leak into an unrelated
// session's prompt.
type Conversation struct {
	DocumentRef string
	SessionID   string
	// Summary is the compressed prefix of the session history; empty means
	// no summary has been produced yet.
	Summary string
	// Compactions counts successful summarizations in this conversation.
	Compactions int
}

// NewConversation returns an empty Conversation bound to a session.
func NewConversation(documentRef, sessionID string) *Conversation {
	return &Conversation{DocumentRef: documentRef, SessionID: sessionID}
}

// Bound reports whether c belongs to the given session.
func (c *Conversation) Bound(documentRef, sessionID string) bool {
	return c.DocumentRef == documentRef && c.SessionID == sessionID
}

// Reset drops the running summary.
func (c *Conversation) Reset() {
	c.Summary = ""
	c.Compactions = 0
}
