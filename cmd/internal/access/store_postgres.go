package access

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists access sessions in PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// StoreOption configures PostgresStore.
type StoreOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the DB schema used by the store (default: "apseq").
func WithSchema(schema string) StoreOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" || !pgIdentRe.MatchString(schema) {
			return ErrInvalidInput
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "apseq"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("access: nil pool")
	}
	return st, nil
}

// Get loads the session for (user, project).
func (s *PostgresStore) Get(ctx context.Context, userID, projectID string) (Session, error) {
	if s == nil || s.pool == nil {
		return Session{}, fmt.Errorf("access: nil store")
	}
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	sessions := pgIdent(s.schema, "access_sessions")

	var sess Session
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, project_id, expires_at
		   FROM `+sessions+`
		  WHERE user_id = $1 AND project_id = $2`,
		userID, projectID,
	).Scan(&sess.ID, &sess.UserID, &sess.ProjectID, &sess.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Put inserts the session or, on a (user, project) conflict, updates the
// expiry. The uniqueness constraint serializes concurrent creations.
func (s *PostgresStore) Put(ctx context.Context, rec Session) (Session, error) {
	if s == nil || s.pool == nil {
		return Session{}, fmt.Errorf("access: nil store")
	}
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	if rec.UserID == "" || rec.ProjectID == "" {
		return Session{}, ErrInvalidInput
	}

	sessions := pgIdent(s.schema, "access_sessions")

	var out Session
	err := s.pool.QueryRow(ctx,
		`INSERT INTO `+sessions+` (id, user_id, project_id, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, project_id)
		 DO UPDATE SET expires_at = EXCLUDED.expires_at
		 RETURNING id, user_id, project_id, expires_at`,
		rec.ID, rec.UserID, rec.ProjectID, rec.ExpiresAt,
	).Scan(&out.ID, &out.UserID, &out.ProjectID, &out.ExpiresAt)
	if err != nil {
		return Session{}, err
	}
	return out, nil
}

// EnsureTx grants or renews a session inside a caller-owned transaction.
//
// Used by invitation acceptance, where the membership status flip and the
// session grant must commit or roll back together. The sliding-window rule
// matches Service.Ensure: an existing expiry at or beyond now+renewWithin is
// left untouched.
func EnsureTx(ctx context.Context, tx pgx.Tx, schema, sessionID, userID, projectID string, now time.Time, cfg Config) error {
	if tx == nil || userID == "" || projectID == "" {
		return ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sessions := pgIdent(schema, "access_sessions")

	_, err := tx.Exec(ctx,
		`INSERT INTO `+sessions+` (id, user_id, project_id, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, project_id)
		 DO UPDATE SET expires_at = CASE
		     WHEN `+sessions+`.expires_at >= $5 THEN `+sessions+`.expires_at
		     ELSE EXCLUDED.expires_at
		 END`,
		sessionID, userID, projectID, now.Add(cfg.TTL), now.Add(cfg.RenewWithin),
	)
	return err
}

func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}
