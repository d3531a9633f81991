package project

import (
	"context"
	"strings"
	"time"

	"apseq/cmd/internal/membership"
	"apseq/cmd/internal/pagination"
)

// Project is one collaboration project row.
type Project struct {
	ID            string
	Name          string
	NameNorm      string
	PublicCode    string
	RootOwnerID   string
	AccessKeyHash string
	PINHash       string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NormalizeName folds a project name for case-insensitive uniqueness.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Store persists projects.
//
// Implementations enforce uniqueness on the normalized name (ErrNameTaken)
// and on the public code (errCodeTaken, retried by the service).
type Store interface {
	// Create inserts the project and its initial pending memberships in one
	// atomic step.
	Create(ctx context.Context, p Project, members []membership.Membership) (Project, error)

	// Get returns a project by ID.
	Get(ctx context.Context, id string) (Project, error)

	// GetByPublicCode returns a project by its public code.
	GetByPublicCode(ctx context.Context, code string) (Project, error)

	// ListForUser pages the projects a user belongs to (as root owner or
	// accepted member), newest first.
	ListForUser(ctx context.Context, userID string, req pagination.Request) (pagination.Page[Project], error)

	// Search pages the user's projects whose name or public code matches
	// the query, newest first.
	Search(ctx context.Context, userID, query string, req pagination.Request) (pagination.Page[Project], error)

	// UpdateSecrets replaces the stored credential hashes. Nil leaves a
	// hash untouched.
	UpdateSecrets(ctx context.Context, id string, accessKeyHash, pinHash *string, now time.Time) (Project, error)

	// Delete removes the project and everything hanging off it.
	Delete(ctx context.Context, id string) error
}
