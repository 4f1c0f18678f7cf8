package margin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionStore is the durable registry of conversations keyed by
// (document, session). Operations never fail the caller: read failures fall
// back to an empty registry and write failures are logged while the
// in-memory state stays authoritative.
type SessionStore interface {
	// Load acquires the persisted registry. Calling it again once loaded is
	// a no-op. Other operations load lazily.
	Load(ctx context.Context)
	// Documents returns the sorted references of documents with sessions.
	Documents(ctx context.Context) []string
	// SessionsFor returns the sessions of a document in insertion order.
	SessionsFor(ctx context.Context, documentRef string) []Session
	Get(ctx context.Context, documentRef, sessionID string) (Session, bool)
	// Create allocates a new session. An empty name defaults to one derived
	// from the creation time.
	Create(ctx context.Context, documentRef, seedContext, name string) Session
	// Append adds a message to a session and reports false if the session
	// does not exist.
	Append(ctx context.Context, documentRef, sessionID string, role Role, content string) (Message, bool)
	Rename(ctx context.Context, documentRef, sessionID, name string) bool
	Delete(ctx context.Context, documentRef, sessionID string) bool
	// GetOrCreate returns the most recently updated session of the
	// document, creating one seeded with seedContext if none exist.
	GetOrCreate(ctx context.Context, documentRef, seedContext string) Session
}

// ChangeOp names a registry mutation.
type ChangeOp string

const (
	ChangeCreate ChangeOp = "create"
	ChangeAppend ChangeOp = "append"
	ChangeRename ChangeOp = "rename"
	ChangeDelete ChangeOp = "delete"
)

// Change describes the mutation that triggered a registry write. Message is
// set for ChangeAppend only.
type Change struct {
	Op          ChangeOp
	DocumentRef string
	SessionID   string
	Message     Message
}

// Backend reads and writes the registry to durable storage.
//
// WriteRegistry receives the full registry after the mutation has been
// applied in memory. Whole-document backends rewrite everything; incremental
// backends may apply only the described Change, but must do so atomically.
// A change whose write failed is delivered again before the next one, with
// reg already reflecting the later mutations, so applying it must be
// idempotent.
type Backend interface {
	ReadRegistry(ctx context.Context) (*Registry, error)
	WriteRegistry(ctx context.Context, reg *Registry, change Change) error
}

// Interface compliance check.
var _ SessionStore = (*Store)(nil)

// Store implements SessionStore over a Backend. All operations are
// serialized behind one lock: Store is the single writer of the registry.
type Store struct {
	backend Backend
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string

	mu     sync.Mutex
	reg    *Registry
	loaded bool
	// Changes not yet accepted by the backend, oldest first.
	pending []Change
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets the logger used to report persistence failures.
func WithStoreLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// WithClock sets the time source for timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator sets the session ID generator.
func WithIDGenerator(fn func() string) StoreOption {
	return func(s *Store) { s.newID = fn }
}

// NewStore creates a Store persisting through backend.
func NewStore(backend Backend, opts ...StoreOption) *Store {
	s := &Store{
		backend: backend,
		logger:  slog.Default(),
		now:     time.Now,
		newID:   uuid.NewString,
		reg:     NewRegistry(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load implements SessionStore.
func (s *Store) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load(ctx)
}

func (s *Store) load(ctx context.Context) {
	if s.loaded {
		return
	}
	reg, err := s.backend.ReadRegistry(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled before the read finished; try again next call
			// rather than adopting an empty registry.
			return
		}
		s.logger.Warn("load session registry, starting empty",
			"error", fmt.Errorf("%w: %w", ErrPersistence, err))
		reg = nil
	}
	if reg == nil {
		reg = NewRegistry()
	}
	if reg.Sessions == nil {
		reg.Sessions = make(map[string][]Session)
	}
	s.reg = reg
	s.loaded = true
}

// loadForWrite loads the registry ignoring cancellation so that a mutation
// never lands in the placeholder registry a later load would replace.
func (s *Store) loadForWrite(ctx context.Context) {
	s.load(context.WithoutCancel(ctx))
}

// persist queues change and writes every queued change in order. The first
// failure stops the replay and leaves the rest queued for the next mutation.
func (s *Store) persist(ctx context.Context, change Change) {
	s.pending = append(s.pending, change)
	for len(s.pending) > 0 {
		next := s.pending[0]
		if err := s.backend.WriteRegistry(ctx, s.reg, next); err != nil {
			s.logger.Error("persist session registry",
				"op", string(next.Op),
				"document", next.DocumentRef,
				"session", next.SessionID,
				"pending", len(s.pending),
				"error", fmt.Errorf("%w: %w", ErrPersistence, err))
			return
		}
		s.pending = s.pending[1:]
	}
	s.pending = nil
}

// Documents implements SessionStore.
func (s *Store) Documents(ctx context.Context) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load(ctx)
	return s.reg.Documents()
}

// SessionsFor implements SessionStore.
func (s *Store) SessionsFor(ctx context.Context, documentRef string) []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load(ctx)
	return s.reg.List(documentRef)
}

// Get implements SessionStore.
func (s *Store) Get(ctx context.Context, documentRef, sessionID string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load(ctx)
	sess := s.reg.Lookup(documentRef, sessionID)
	if sess == nil {
		return Session{}, false
	}
	return sess.Clone(), true
}

// Create implements SessionStore.
func (s *Store) Create(ctx context.Context, documentRef, seedContext, name string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadForWrite(ctx)
	return s.create(ctx, documentRef, seedContext, name)
}

func (s *Store) create(ctx context.Context, documentRef, seedContext, name string) Session {
	now := s.now()
	if name == "" {
		name = DefaultSessionName(now)
	}
	id := s.newID()
	for s.reg.Contains(id) {
		id = s.newID()
	}
	sess := Session{
		ID:          id,
		Name:        name,
		DocumentRef: documentRef,
		SeedContext: seedContext,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.reg.Insert(sess)
	s.persist(ctx, Change{Op: ChangeCreate, DocumentRef: documentRef, SessionID: id})
	return sess.Clone()
}

// Append implements SessionStore.
func (s *Store) Append(ctx context.Context, documentRef, sessionID string, role Role, content string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadForWrite(ctx)
	sess := s.reg.Lookup(documentRef, sessionID)
	if sess == nil {
		return Message{}, false
	}
	now := s.now()
	msg := NewMessage(role, content, now)
	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = now
	s.persist(ctx, Change{Op: ChangeAppend, DocumentRef: documentRef, SessionID: sessionID, Message: msg})
	return msg, true
}

// Rename implements SessionStore.
func (s *Store) Rename(ctx context.Context, documentRef, sessionID, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadForWrite(ctx)
	sess := s.reg.Lookup(documentRef, sessionID)
	if sess == nil {
		return false
	}
	sess.Name = name
	sess.UpdatedAt = s.now()
	s.persist(ctx, Change{Op: ChangeRename, DocumentRef: documentRef, SessionID: sessionID})
	return true
}

// Delete implements SessionStore.
func (s *Store) Delete(ctx context.Context, documentRef, sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadForWrite(ctx)
	if !s.reg.Remove(documentRef, sessionID) {
		return false
	}
	s.persist(ctx, Change{Op: ChangeDelete, DocumentRef: documentRef, SessionID: sessionID})
	return true
}

// GetOrCreate implements SessionStore.
func (s *Store) GetOrCreate(ctx context.Context, documentRef, seedContext string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadForWrite(ctx)
	if sess, ok := s.reg.MostRecent(documentRef); ok {
		return sess
	}
	return s.create(ctx, documentRef, seedContext, "")
}

// DefaultSessionName derives a display name from the creation time.
func DefaultSessionName(t time.Time) string {
	return "Chat " + t.Format("Jan 2, 2006 3:04:05 PM")
}
