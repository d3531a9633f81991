package project

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

	"apseq/cmd/internal/membership"
	"apseq/cmd/internal/pagination"
)

// PostgresStore persists projects in PostgreSQL.
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
		return nil, fmt.Errorf("project: nil pool")
	}
	return st, nil
}

const projectColumns = `id, name, name_norm, public_code, root_owner_id, access_key_hash, pin_hash, created_at, updated_at`

// Create inserts the project and its initial pending memberships in one
// transaction.
func (s *PostgresStore) Create(ctx context.Context, p Project, members []membership.Membership) (Project, error) {
	if s == nil || s.pool == nil {
		return Project{}, fmt.Errorf("project: nil store")
	}
	if err := ctx.Err(); err != nil {
		return Project{}, err
	}
	if p.ID == "" || p.NameNorm == "" || p.PublicCode == "" {
		return Project{}, ErrInvalidInput
	}

	projects := pgIdent(s.schema, "projects")
	memberships := pgIdent(s.schema, "memberships")

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Project{}, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO `+projects+` (`+projectColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.Name, p.NameNorm, p.PublicCode, p.RootOwnerID,
		p.AccessKeyHash, p.PINHash, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return Project{}, classifyProjectConflict(err)
	}

	for _, m := range members {
		_, err = tx.Exec(ctx,
			`INSERT INTO `+memberships+` (
			     id, project_id, user_id, role, status, invited_by, invited_at, joined_at
			 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			m.ID, m.ProjectID, m.UserID, string(m.Role), string(m.Status), m.InvitedBy, m.InvitedAt, m.JoinedAt,
		)
		if err != nil {
			return Project{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Project{}, err
	}
	return p, nil
}

// classifyProjectConflict maps a uniqueness violation to the offending
// column.
func classifyProjectConflict(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return err
	}
	switch {
	case strings.Contains(pgErr.ConstraintName, "name"):
		return ErrNameTaken
	case strings.Contains(pgErr.ConstraintName, "code"):
		return errCodeTaken
	default:
		return err
	}
}

// Get returns a project by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (Project, error) {
	if err := ctx.Err(); err != nil {
		return Project{}, err
	}

	projects := pgIdent(s.schema, "projects")

	return scanProject(s.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM `+projects+` WHERE id = $1`, id))
}

// GetByPublicCode returns a project by its public code.
func (s *PostgresStore) GetByPublicCode(ctx context.Context, code string) (Project, error) {
	if err := ctx.Err(); err != nil {
		return Project{}, err
	}

	projects := pgIdent(s.schema, "projects")

	return scanProject(s.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM `+projects+` WHERE public_code = $1`, code))
}

// ProjectInfo adapts the store to the membership layer's project view.
func (s *PostgresStore) ProjectInfo(ctx context.Context, projectID string) (membership.ProjectInfo, error) {
	p, err := s.Get(ctx, projectID)
	if errors.Is(err, ErrNotFound) {
		return membership.ProjectInfo{}, membership.ErrProjectNotFound
	}
	if err != nil {
		return membership.ProjectInfo{}, err
	}
	return membership.ProjectInfo{
		ID:            p.ID,
		Name:          p.Name,
		PublicCode:    p.PublicCode,
		RootOwnerID:   p.RootOwnerID,
		AccessKeyHash: p.AccessKeyHash,
		CreatedAt:     p.CreatedAt,
	}, nil
}

// ListForUser pages the user's projects ordered by (created_at DESC, id
// DESC). A user's projects are those they root-own plus those with an
// accepted membership.
func (s *PostgresStore) ListForUser(ctx context.Context, userID string, req pagination.Request) (pagination.Page[Project], error) {
	return s.list(ctx, userID, "", req)
}

// Search pages the user's projects whose normalized name or public code
// contains the query.
func (s *PostgresStore) Search(ctx context.Context, userID, query string, req pagination.Request) (pagination.Page[Project], error) {
	return s.list(ctx, userID, query, req)
}

func (s *PostgresStore) list(ctx context.Context, userID, query string, req pagination.Request) (pagination.Page[Project], error) {
	if err := ctx.Err(); err != nil {
		return pagination.Page[Project]{}, err
	}

	projects := pgIdent(s.schema, "projects")
	memberships := pgIdent(s.schema, "memberships")
	limit := pagination.ClampLimit(req.Limit)

	where := `WHERE (p.root_owner_id = $1 OR EXISTS (
	              SELECT 1 FROM ` + memberships + ` m
	               WHERE m.project_id = p.id AND m.user_id = $1 AND m.status = 'accepted'))`

	args := []any{userID}
	if query != "" {
		args = append(args, "%"+escapeLike(strings.ToLower(query))+"%")
		where += fmt.Sprintf(`
		   AND (p.name_norm LIKE $%d OR lower(p.public_code) LIKE $%d)`, len(args), len(args))
	}
	if req.Cursor != nil {
		args = append(args, req.Cursor.Time, req.Cursor.ID)
		where += fmt.Sprintf(`
		   AND (p.created_at, p.id) < ($%d, $%d)`, len(args)-1, len(args))
	}
	args = append(args, limit+1)

	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT p.id, p.name, p.name_norm, p.public_code, p.root_owner_id,
		        p.access_key_hash, p.pin_hash, p.created_at, p.updated_at
		   FROM %s p
		  %s
		  ORDER BY p.created_at DESC, p.id DESC
		  LIMIT $%d`, projects, where, len(args)), args...)
	if err != nil {
		return pagination.Page[Project]{}, err
	}
	defer rows.Close()

	var items []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return pagination.Page[Project]{}, err
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return pagination.Page[Project]{}, err
	}

	page := pagination.Page[Project]{}
	page.HasMore = len(items) > limit
	if page.HasMore {
		items = items[:limit]
	}
	page.Items = items
	if page.HasMore && len(items) > 0 {
		last := items[len(items)-1]
		page.NextCursor = pagination.Cursor{Time: last.CreatedAt, ID: last.ID}.Encode()
	}
	return page, nil
}

// UpdateSecrets replaces the stored credential hashes.
func (s *PostgresStore) UpdateSecrets(ctx context.Context, id string, accessKeyHash, pinHash *string, now time.Time) (Project, error) {
	if err := ctx.Err(); err != nil {
		return Project{}, err
	}

	projects := pgIdent(s.schema, "projects")

	return scanProject(s.pool.QueryRow(ctx,
		`UPDATE `+projects+`
		    SET access_key_hash = COALESCE($2, access_key_hash),
		        pin_hash        = COALESCE($3, pin_hash),
		        updated_at      = $4
		  WHERE id = $1
		  RETURNING `+projectColumns,
		id, accessKeyHash, pinHash, now))
}

// Delete removes the project. Memberships, access sessions, and recipe data
// go with it via foreign key cascades.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	projects := pgIdent(s.schema, "projects")

	_, err := s.pool.Exec(ctx, `DELETE FROM `+projects+` WHERE id = $1`, id)
	return err
}

type pgRow interface {
	Scan(dest ...any) error
}

func scanProject(row pgRow) (Project, error) {
	var p Project
	err := row.Scan(
		&p.ID, &p.Name, &p.NameNorm, &p.PublicCode, &p.RootOwnerID,
		&p.AccessKeyHash, &p.PINHash, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Project{}, ErrNotFound
	}
	if err != nil {
		return Project{}, err
	}
	return p, nil
}

func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

// escapeLike escapes LIKE metacharacters in user input.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
