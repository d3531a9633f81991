package identity

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and DB-less development.
type MemoryStore struct {
	mu     sync.Mutex
	users  map[string]User        // id -> user
	emails map[string]string      // email_norm -> id
	tokens map[string]TokenRecord // token_hash -> record
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[string]User),
		emails: make(map[string]string),
		tokens: make(map[string]TokenRecord),
	}
}

// CreateUser inserts a user, enforcing email uniqueness.
func (s *MemoryStore) CreateUser(ctx context.Context, rec UserRecord) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.emails[rec.EmailNorm]; exists {
		return User{}, ConflictError{Op: "identity.CreateUser", Field: "email"}
	}

	u := User{
		ID:           rec.ID,
		Email:        rec.Email,
		EmailNorm:    rec.EmailNorm,
		DisplayName:  rec.DisplayName,
		PasswordHash: rec.PasswordHash,
		CreatedAt:    rec.CreatedAt,
	}
	s.users[u.ID] = u
	s.emails[u.EmailNorm] = u.ID
	return u, nil
}

// GetByID loads a user by id.
func (s *MemoryStore) GetByID(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return User{}, NotFoundError{Op: "identity.GetByID", Resource: "user"}
	}
	return u, nil
}

// GetByEmail loads a user by normalized email.
func (s *MemoryStore) GetByEmail(ctx context.Context, emailNorm string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.emails[emailNorm]
	if !ok {
		return User{}, NotFoundError{Op: "identity.GetByEmail", Resource: "user"}
	}
	return s.users[id], nil
}

// Search matches users by email or display name substring.
func (s *MemoryStore) Search(ctx context.Context, query string, limit int) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" || limit <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []User
	for _, u := range s.users {
		if strings.Contains(u.EmailNorm, q) || strings.Contains(strings.ToLower(u.DisplayName), q) {
			out = append(out, u)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// CreateToken inserts an API token record.
func (s *MemoryStore) CreateToken(ctx context.Context, rec TokenRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[rec.TokenHash]; exists {
		return ConflictError{Op: "identity.CreateToken", Field: "token"}
	}
	if _, ok := s.users[rec.UserID]; !ok {
		return NotFoundError{Op: "identity.CreateToken", Resource: "user"}
	}
	s.tokens[rec.TokenHash] = rec
	return nil
}

// GetUserByTokenHash resolves a live token to its user.
func (s *MemoryStore) GetUserByTokenHash(ctx context.Context, tokenHash string, now time.Time) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tokens[tokenHash]
	if !ok || !rec.ExpiresAt.After(now) {
		return User{}, NotFoundError{Op: "identity.GetUserByTokenHash", Resource: "token"}
	}
	u, ok := s.users[rec.UserID]
	if !ok {
		return User{}, NotFoundError{Op: "identity.GetUserByTokenHash", Resource: "user"}
	}
	return u, nil
}

// DeleteToken removes a token record.
func (s *MemoryStore) DeleteToken(ctx context.Context, tokenHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[tokenHash]; !ok {
		return NotFoundError{Op: "identity.DeleteToken", Resource: "token"}
	}
	delete(s.tokens, tokenHash)
	return nil
}
