package identity

import (
	"context"
	"strings"
	"time"

	"apseq/cmd/identity/ids"
)

const (
	minPasswordLen = 8
	maxPasswordLen = 256

	defaultTokenBytes = 32
	defaultTokenTTL   = 7 * 24 * time.Hour

	maxSearchLimit = 25
)

// Hasher is the slow one-way hash boundary (satisfied by secret.Config).
type Hasher interface {
	Hash(raw string) (string, error)
	Verify(encodedHash, raw string) (bool, error)
}

// Service implements registration, login, and caller resolution.
type Service struct {
	store    Store
	hasher   Hasher
	tokenTTL time.Duration

	// dummyHash makes login timing independent of user existence.
	dummyHash string
}

// Option configures the Service.
type Option func(*Service) error

// WithTokenTTL overrides the API-token lifetime.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) error {
		if ttl <= 0 {
			return ErrInvalidInput
		}
		s.tokenTTL = ttl
		return nil
	}
}

// NewService constructs a Service with safe defaults.
func NewService(store Store, hasher Hasher, opts ...Option) (*Service, error) {
	if store == nil || hasher == nil {
		return nil, ErrInvalidInput
	}

	s := &Service{store: store, hasher: hasher, tokenTTL: defaultTokenTTL}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if hash, err := hasher.Hash("dummy-password-for-timing-only"); err == nil {
		s.dummyHash = hash
	}

	return s, nil
}

// RegisterInput describes a user registration request.
type RegisterInput struct {
	Email       string
	DisplayName string
	Password    string
	Now         time.Time
}

// Register creates a user. Email uniqueness is case-insensitive.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	email := strings.TrimSpace(in.Email)
	name := strings.TrimSpace(in.DisplayName)
	if email == "" || !strings.Contains(email, "@") {
		return User{}, ErrInvalidInput
	}
	if len(in.Password) < minPasswordLen || len(in.Password) > maxPasswordLen {
		return User{}, ErrInvalidInput
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return User{}, err
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return User{}, err
	}

	return s.store.CreateUser(ctx, UserRecord{
		ID:           id,
		Email:        email,
		EmailNorm:    NormalizeEmail(email),
		DisplayName:  name,
		PasswordHash: hash,
		CreatedAt:    now,
	})
}

// LoginInput describes a login request.
type LoginInput struct {
	Email    string
	Password string
	Now      time.Time
}

// Issued is a freshly minted API token, returned to the caller exactly once.
type Issued struct {
	User      User
	Token     string
	ExpiresAt time.Time
}

// Login verifies credentials and issues an opaque API token.
func (s *Service) Login(ctx context.Context, in LoginInput) (Issued, error) {
	if err := ctx.Err(); err != nil {
		return Issued{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	user, err := s.store.GetByEmail(ctx, NormalizeEmail(in.Email))
	if err != nil {
		if IsNotFound(err) {
			// Timing resistance: verify against a dummy hash before failing.
			if s.dummyHash != "" {
				_, _ = s.hasher.Verify(s.dummyHash, in.Password)
			}
			return Issued{}, ErrInvalidCredential
		}
		return Issued{}, err
	}

	ok, err := s.hasher.Verify(user.PasswordHash, in.Password)
	if err != nil || !ok {
		return Issued{}, ErrInvalidCredential
	}

	plain, err := NewOpaqueToken(defaultTokenBytes)
	if err != nil {
		return Issued{}, err
	}
	expiresAt := now.Add(s.tokenTTL)

	if err := s.store.CreateToken(ctx, TokenRecord{
		TokenHash: HashAPIToken(plain),
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}); err != nil {
		return Issued{}, err
	}

	return Issued{User: user, Token: plain, ExpiresAt: expiresAt}, nil
}

// Logout deletes the token backing the presented credential. Unknown tokens
// are a no-op.
func (s *Service) Logout(ctx context.Context, plainToken string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(plainToken) == "" {
		return nil
	}
	err := s.store.DeleteToken(ctx, HashAPIToken(plainToken))
	if IsNotFound(err) {
		return nil
	}
	return err
}

// Resolve maps a presented bearer token to its user.
// Unknown and expired tokens are indistinguishable to the caller.
func (s *Service) Resolve(ctx context.Context, plainToken string, now time.Time) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	plainToken = strings.TrimSpace(plainToken)
	if plainToken == "" || len(plainToken) > 4096 {
		return User{}, ErrInvalidCredential
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	user, err := s.store.GetUserByTokenHash(ctx, HashAPIToken(plainToken), now)
	if err != nil {
		if IsNotFound(err) {
			return User{}, ErrInvalidCredential
		}
		return User{}, err
	}
	return user, nil
}

// GetByID loads a user by id.
func (s *Service) GetByID(ctx context.Context, id string) (User, error) {
	if strings.TrimSpace(id) == "" {
		return User{}, ErrInvalidInput
	}
	return s.store.GetByID(ctx, id)
}

// GetByEmail loads a user by email (case-insensitive).
func (s *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	norm := NormalizeEmail(email)
	if norm == "" {
		return User{}, ErrInvalidInput
	}
	return s.store.GetByEmail(ctx, norm)
}

// Search finds registered users for the invitation picker.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 || limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	return s.store.Search(ctx, query, limit)
}
