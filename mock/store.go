package mock

import (
	"context"

	"github.com/fwojciec/margin"
)

// Backend is a test double for margin.Backend.
type Backend struct {
	ReadRegistryFn  func(ctx context.Context) (*margin.Registry, error)
	WriteRegistryFn func(ctx context.Context, reg *margin.Registry, change margin.Change) error
}

// ReadRegistry delegates to ReadRegistryFn.
func (b *Backend) ReadRegistry(ctx context.Context) (*margin.Registry, error) {
	return b.ReadRegistryFn(ctx)
}

// WriteRegistry delegates to WriteRegistryFn.
func (b *Backend) WriteRegistry(ctx context.Context, reg *margin.Registry, change margin.Change) error {
	return b.WriteRegistryFn(ctx, reg, change)
}

// SessionStore is a test double for margin.SessionStore.
// Set the function fields for the methods you need.
type SessionStore struct {
	LoadFn        func(ctx context.Context)
	DocumentsFn   func(ctx context.Context) []string
	SessionsForFn func(ctx context.Context, documentRef string) []margin.Session
	GetFn         func(ctx context.Context, documentRef, sessionID string) (margin.Session, bool)
	CreateFn      func(ctx context.Context, documentRef, seedContext, name string) margin.Session
	AppendFn      func(ctx context.Context, documentRef, sessionID string, role margin.Role, content string) (margin.Message, bool)
	RenameFn      func(ctx context.Context, documentRef, sessionID, name string) bool
	DeleteFn      func(ctx context.Context, documentRef, sessionID string) bool
	GetOrCreateFn func(ctx context.Context, documentRef, seedContext string) margin.Session
}

// Load delegates to LoadFn.
func (s *SessionStore) Load(ctx context.Context) {
	s.LoadFn(ctx)
}

// Documents delegates to DocumentsFn.
func (s *SessionStore) Documents(ctx context.Context) []string {
	return s.DocumentsFn(ctx)
}

// SessionsFor delegates to SessionsForFn.
func (s *SessionStore) SessionsFor(ctx context.Context, documentRef string) []margin.Session {
	return s.SessionsForFn(ctx, documentRef)
}

// Get delegates to GetFn.
func (s *SessionStore) Get(ctx context.Context, documentRef, sessionID string) (margin.Session, bool) {
	return s.GetFn(ctx, documentRef, sessionID)
}

// Create delegates to CreateFn.
func (s *SessionStore) Create(ctx context.Context, documentRef, seedContext, name string) margin.Session {
	return s.CreateFn(ctx, documentRef, seedContext, name)
}

// Append delegates to AppendFn.
func (s *SessionStore) Append(ctx context.Context, documentRef, sessionID string, role margin.Role, content string) (margin.Message, bool) {
	return s.AppendFn(ctx, documentRef, sessionID, role, content)
}

// Rename delegates to RenameFn.
func (s *SessionStore) Rename(ctx context.Context, documentRef, sessionID, name string) bool {
	return s.RenameFn(ctx, documentRef, sessionID, name)
}

// Delete delegates to DeleteFn.
func (s *SessionStore) Delete(ctx context.Context, documentRef, sessionID string) bool {
	return s.DeleteFn(ctx, documentRef, sessionID)
}

// GetOrCreate delegates to GetOrCreateFn.
func (s *SessionStore) GetOrCreate(ctx context.Context, documentRef, seedContext string) margin.Session {
	return s.GetOrCreateFn(ctx, documentRef, seedContext)
}

// MemoryBackend returns a Backend that keeps the registry in memory and
// records every Change it is asked to write.
func MemoryBackend(changes *[]margin.Change) *Backend {
	var saved *margin.Registry
	return &Backend{
		ReadRegistryFn: func(ctx context.Context) (*margin.Registry, error) {
			if saved == nil {
				return margin.NewRegistry(), nil
			}
			return saved, nil
		},
		WriteRegistryFn: func(ctx context.Context, reg *margin.Registry, change margin.Change) error {
			saved = reg
			if changes != nil {
				*changes = append(*changes, change)
			}
			return nil
		},
	}
}
