package access

import (
	"context"
	"time"
)

// Session is a time-boxed (user, project) access grant.
// At most one session exists per pair.
type Session struct {
	ID        string
	UserID    string
	ProjectID string
	ExpiresAt time.Time
}

// Active reports whether the session is live at now.
func (s Session) Active(now time.Time) bool {
	return s.ExpiresAt.After(now)
}

// Store is the persistence boundary for access sessions.
type Store interface {
	// Get loads the session for (user, project).
	Get(ctx context.Context, userID, projectID string) (Session, error)

	// Put inserts the session, or on a (user, project) conflict updates the
	// stored expiry to rec.ExpiresAt. Races on concurrent creation must
	// collapse into the single row guaranteed by the uniqueness constraint.
	Put(ctx context.Context, rec Session) (Session, error)
}
