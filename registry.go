package margin

import "sort"

// Registry is the in-memory session registry: every session of every
// document, keyed by document reference. Within a document, sessions keep
// insertion order. Session IDs are unique across all documents.
type Registry struct {
	Sessions map[string][]Session
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{Sessions: make(map[string][]Session)}
}

// Documents returns the sorted references of documents that own at least
// one session.
func (r *Registry) Documents() []string {
	docs := make([]string, 0, len(r.Sessions))
	for doc, sessions := range r.Sessions {
		if len(sessions) > 0 {
			docs = append(docs, doc)
		}
	}
	sort.Strings(docs)
	return docs
}

// List returns copies of the sessions of documentRef in insertion order.
func (r *Registry) List(documentRef string) []Session {
	sessions := r.Sessions[documentRef]
	out := make([]Session, len(sessions))
	for i, s := range sessions {
		out[i] = s.Clone()
	}
	return out
}

// Lookup returns a pointer to the stored session for in-place mutation, or
// nil if it does not exist.
func (r *Registry) Lookup(documentRef, sessionID string) *Session {
	sessions := r.Sessions[documentRef]
	for i := range sessions {
		if sessions[i].ID == sessionID {
			return &sessions[i]
		}
	}
	return nil
}

// Contains reports whether any document owns a session with id.
func (r *Registry) Contains(id string) bool {
	for _, sessions := range r.Sessions {
		for _, s := range sessions {
			if s.ID == id {
				return true
			}
		}
	}
	return false
}

// Insert appends s to the sessions of its document.
func (r *Registry) Insert(s Session) {
	if r.Sessions == nil {
		r.Sessions = make(map[string][]Session)
	}
	r.Sessions[s.DocumentRef] = append(r.Sessions[s.DocumentRef], s)
}

// Remove deletes the session and reports whether it existed. A document
// left with no sessions is dropped from the registry.
func (r *Registry) Remove(documentRef, sessionID string) bool {
	sessions := r.Sessions[documentRef]
	for i := range sessions {
		if sessions[i].ID != sessionID {
			continue
		}
		sessions = append(sessions[:i:i], sessions[i+1:]...)
		if len(sessions) == 0 {
			delete(r.Sessions, documentRef)
		} else {
			r.Sessions[documentRef] = sessions
		}
		return true
	}
	return false
}

// MostRecent returns the most recently updated session of documentRef.
// Equal UpdatedAt values resolve to the session inserted first.
func (r *Registry) MostRecent(documentRef string) (Session, bool) {
	sessions := r.Sessions[documentRef]
	if len(sessions) == 0 {
		return Session{}, false
	}
	best := 0
	for i := 1; i < len(sessions); i++ {
		if sessions[i].UpdatedAt.After(sessions[best].UpdatedAt) {
			best = i
		}
	}
	return sessions[best].Clone(), true
}
