// Package memory provides an in-process session store. Snapshots live only
// as long as the process; use it for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/ashita-ai/kenkyu/internal/model"
)

// Store is a concurrency-safe map of session snapshots.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]model.Session
}

// New creates an empty Store.
func New() *Store {
	return &Store{sessions: make(map[string]model.Session)}
}

// Put stores a copy of s, replacing any previous snapshot with the same ID.
func (s *Store) Put(_ context.Context, sess model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

// Get returns a copy of the snapshot for id.
func (s *Store) Get(_ context.Context, id string) (model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return model.Session{}, model.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// Len returns the number of stored sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }
