package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists users and API tokens in PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the DB schema used by the store (default: "apseq").
func WithSchema(schema string) PostgresOption {
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
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "apseq",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

// CreateUser inserts a user row.
func (s *PostgresStore) CreateUser(ctx context.Context, rec UserRecord) (User, error) {
	const op = "identity.CreateUser"

	if s == nil || s.pool == nil {
		return User{}, fmt.Errorf("identity: nil store")
	}
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	users := pgIdent(s.schema, "users")

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+users+` (
		     id, email, email_norm, display_name, password_hash, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.Email, rec.EmailNorm, rec.DisplayName, rec.PasswordHash, rec.CreatedAt,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}

	return User{
		ID:           rec.ID,
		Email:        rec.Email,
		EmailNorm:    rec.EmailNorm,
		DisplayName:  rec.DisplayName,
		PasswordHash: rec.PasswordHash,
		CreatedAt:    rec.CreatedAt,
	}, nil
}

// GetByID loads a user by id.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetByID"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	users := pgIdent(s.schema, "users")

	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, email_norm, display_name, password_hash, created_at
		   FROM `+users+` WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Email, &u.EmailNorm, &u.DisplayName, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// GetByEmail loads a user by normalized email.
func (s *PostgresStore) GetByEmail(ctx context.Context, emailNorm string) (User, error) {
	const op = "identity.GetByEmail"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	users := pgIdent(s.schema, "users")

	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, email_norm, display_name, password_hash, created_at
		   FROM `+users+` WHERE email_norm = $1`,
		emailNorm,
	).Scan(&u.ID, &u.Email, &u.EmailNorm, &u.DisplayName, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// Search matches users by email or display name substring.
func (s *PostgresStore) Search(ctx context.Context, query string, limit int) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	users := pgIdent(s.schema, "users")
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(query))) + "%"

	rows, err := s.pool.Query(ctx,
		`SELECT id, email, email_norm, display_name, password_hash, created_at
		   FROM `+users+`
		  WHERE email_norm LIKE $1 OR lower(display_name) LIKE $1
		  ORDER BY email_norm
		  LIMIT $2`,
		pattern, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.EmailNorm, &u.DisplayName, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// CreateToken inserts an API token record.
func (s *PostgresStore) CreateToken(ctx context.Context, rec TokenRecord) error {
	const op = "identity.CreateToken"

	if err := ctx.Err(); err != nil {
		return err
	}

	tokens := pgIdent(s.schema, "user_tokens")

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+tokens+` (token_hash, user_id, created_at, expires_at)
		 VALUES ($1, $2, $3, $4)`,
		rec.TokenHash, rec.UserID, rec.CreatedAt, rec.ExpiresAt,
	)
	if err != nil {
		if _, ok := pgClassifyUniqueViolation(err); ok {
			return ConflictError{Op: op, Field: "token"}
		}
		if pgIsForeignKeyViolation(err) {
			return NotFoundError{Op: op, Resource: "user"}
		}
		return err
	}
	return nil
}

// GetUserByTokenHash resolves a live token to its user.
func (s *PostgresStore) GetUserByTokenHash(ctx context.Context, tokenHash string, now time.Time) (User, error) {
	const op = "identity.GetUserByTokenHash"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	users := pgIdent(s.schema, "users")
	tokens := pgIdent(s.schema, "user_tokens")

	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT u.id, u.email, u.email_norm, u.display_name, u.password_hash, u.created_at
		   FROM `+tokens+` t
		   JOIN `+users+` u ON u.id = t.user_id
		  WHERE t.token_hash = $1 AND t.expires_at > $2`,
		tokenHash, now,
	).Scan(&u.ID, &u.Email, &u.EmailNorm, &u.DisplayName, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "token"}
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// DeleteToken removes a token record.
func (s *PostgresStore) DeleteToken(ctx context.Context, tokenHash string) error {
	const op = "identity.DeleteToken"

	if err := ctx.Err(); err != nil {
		return err
	}

	tokens := pgIdent(s.schema, "user_tokens")

	tag, err := s.pool.Exec(ctx, `DELETE FROM `+tokens+` WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "token"}
	}
	return nil
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgIsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23503" // foreign_key_violation
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case strings.Contains(c, "email"):
		return "email", true
	case strings.Contains(c, "token"):
		return "token", true
	default:
		return "unique", true
	}
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
