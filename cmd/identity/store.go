package identity

import (
	"context"
	"time"
)

// User is the canonical security principal.
type User struct {
	ID          string
	Email       string
	EmailNorm   string
	DisplayName string

	// PasswordHash is the encoded Argon2id hash. Never exposed over the API.
	PasswordHash string

	CreatedAt time.Time
}

// UserRecord is a normalized user insert payload.
type UserRecord struct {
	ID           string
	Email        string
	EmailNorm    string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
}

// TokenRecord is a normalized API-token insert payload.
// Only the hash is persisted; the plain token is shown to the client once.
type TokenRecord struct {
	TokenHash string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store is the identity persistence boundary.
type Store interface {
	CreateUser(ctx context.Context, rec UserRecord) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
	GetByEmail(ctx context.Context, emailNorm string) (User, error)

	// Search matches users by email or display name for the invitation picker.
	Search(ctx context.Context, query string, limit int) ([]User, error)

	CreateToken(ctx context.Context, rec TokenRecord) error
	// GetUserByTokenHash resolves a live (unexpired) token to its user.
	GetUserByTokenHash(ctx context.Context, tokenHash string, now time.Time) (User, error)
	DeleteToken(ctx context.Context, tokenHash string) error
}
