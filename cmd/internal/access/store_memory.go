package access

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for tests and DB-less development.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[pairKey]Session
}

type pairKey struct {
	userID    string
	projectID string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[pairKey]Session)}
}

// Get loads the session for (user, project).
func (s *MemoryStore) Get(ctx context.Context, userID, projectID string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[pairKey{userID, projectID}]
	if !ok {
		return Session{}, ErrNotFound
	}
	return sess, nil
}

// Put inserts or updates the session for (user, project).
func (s *MemoryStore) Put(ctx context.Context, rec Session) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	if rec.UserID == "" || rec.ProjectID == "" {
		return Session{}, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{rec.UserID, rec.ProjectID}
	if existing, ok := s.sessions[key]; ok {
		// The pair is unique; a concurrent create collapses onto the
		// existing row, only the expiry moves.
		existing.ExpiresAt = rec.ExpiresAt
		s.sessions[key] = existing
		return existing, nil
	}
	s.sessions[key] = rec
	return rec, nil
}

// DeleteByProject drops every session of a project (cascade helper for the
// in-memory project store).
func (s *MemoryStore) DeleteByProject(ctx context.Context, projectID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.sessions {
		if key.projectID == projectID {
			delete(s.sessions, key)
		}
	}
	return nil
}
