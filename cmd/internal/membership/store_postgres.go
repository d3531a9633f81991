package membership

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

	"apseq/cmd/internal/access"
	"apseq/cmd/internal/pagination"
)

// PostgresStore persists memberships in PostgreSQL.
type PostgresStore struct {
	pool    *pgxpool.Pool
	schema  string
	sessCfg access.Config
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

// WithSessionConfig sets the session lifetime applied when acceptance grants
// an access session (default: access.DefaultConfig).
func WithSessionConfig(cfg access.Config) PostgresOption {
	return func(s *PostgresStore) error {
		if cfg.TTL <= 0 || cfg.RenewWithin <= 0 || cfg.RenewWithin >= cfg.TTL {
			return ErrInvalidInput
		}
		s.sessCfg = cfg
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:    pool,
		schema:  "apseq",
		sessCfg: access.DefaultConfig(),
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
		return nil, fmt.Errorf("membership: nil pool")
	}
	return st, nil
}

const membershipColumns = `id, project_id, user_id, role, status, invited_by, invited_at, joined_at`

// Create inserts a new pending membership. A (project, user) uniqueness
// violation is reported according to the existing row's status.
func (s *PostgresStore) Create(ctx context.Context, m Membership) (Membership, error) {
	if s == nil || s.pool == nil {
		return Membership{}, fmt.Errorf("membership: nil store")
	}
	if err := ctx.Err(); err != nil {
		return Membership{}, err
	}
	if m.ID == "" || m.ProjectID == "" || m.UserID == "" {
		return Membership{}, ErrInvalidInput
	}

	memberships := pgIdent(s.schema, "memberships")

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+memberships+` (`+membershipColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.ProjectID, m.UserID, string(m.Role), string(m.Status), m.InvitedBy, m.InvitedAt, m.JoinedAt,
	)
	if err != nil {
		if pgIsUniqueViolation(err) {
			return Membership{}, s.classifyPairConflict(ctx, m.UserID, m.ProjectID)
		}
		if pgIsForeignKeyViolation(err) {
			return Membership{}, ErrProjectNotFound
		}
		return Membership{}, err
	}
	return m, nil
}

// classifyPairConflict re-reads the winning row of a uniqueness race to pick
// the right conflict error.
func (s *PostgresStore) classifyPairConflict(ctx context.Context, userID, projectID string) error {
	existing, err := s.GetByUserProject(ctx, userID, projectID)
	if err != nil {
		return ErrInvitationPending
	}
	return statusConflict(existing.Status)
}

// Get returns a membership by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (Membership, error) {
	if err := ctx.Err(); err != nil {
		return Membership{}, err
	}

	memberships := pgIdent(s.schema, "memberships")

	return scanMembership(s.pool.QueryRow(ctx,
		`SELECT `+membershipColumns+` FROM `+memberships+` WHERE id = $1`, id))
}

// GetByUserProject returns the membership for a (user, project) pair.
func (s *PostgresStore) GetByUserProject(ctx context.Context, userID, projectID string) (Membership, error) {
	if err := ctx.Err(); err != nil {
		return Membership{}, err
	}

	memberships := pgIdent(s.schema, "memberships")

	return scanMembership(s.pool.QueryRow(ctx,
		`SELECT `+membershipColumns+` FROM `+memberships+`
		  WHERE user_id = $1 AND project_id = $2`,
		userID, projectID))
}

// Accept flips a pending membership to accepted and grants the invitee's
// access session in one transaction.
func (s *PostgresStore) Accept(ctx context.Context, rec AcceptRecord) (Membership, error) {
	if s == nil || s.pool == nil {
		return Membership{}, fmt.Errorf("membership: nil store")
	}
	if err := ctx.Err(); err != nil {
		return Membership{}, err
	}

	memberships := pgIdent(s.schema, "memberships")

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Membership{}, err
	}
	defer tx.Rollback(ctx)

	m, err := scanMembership(tx.QueryRow(ctx,
		`UPDATE `+memberships+`
		    SET status = 'accepted', joined_at = $2
		  WHERE id = $1 AND status = 'pending'
		  RETURNING `+membershipColumns, rec.MembershipID, rec.JoinedAt))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Either the row is gone or another request decided it first.
			if _, getErr := s.Get(ctx, rec.MembershipID); getErr == nil {
				return Membership{}, ErrNotPending
			}
			return Membership{}, ErrNotFound
		}
		return Membership{}, err
	}

	if err := access.EnsureTx(ctx, tx, s.schema, rec.SessionID, m.UserID, m.ProjectID, rec.JoinedAt, s.sessCfg); err != nil {
		return Membership{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Membership{}, err
	}
	return m, nil
}

// Delete removes a membership row. Unknown IDs are a no-op.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	memberships := pgIdent(s.schema, "memberships")

	_, err := s.pool.Exec(ctx, `DELETE FROM `+memberships+` WHERE id = $1`, id)
	return err
}

// UpdateRole sets the stored role of a membership.
func (s *PostgresStore) UpdateRole(ctx context.Context, id string, role Role) (Membership, error) {
	if err := ctx.Err(); err != nil {
		return Membership{}, err
	}
	if !role.Valid() {
		return Membership{}, ErrInvalidInput
	}

	memberships := pgIdent(s.schema, "memberships")

	return scanMembership(s.pool.QueryRow(ctx,
		`UPDATE `+memberships+` SET role = $2 WHERE id = $1
		 RETURNING `+membershipColumns, id, string(role)))
}

// CountAcceptedAdmins returns the number of accepted admin rows of a project.
func (s *PostgresStore) CountAcceptedAdmins(ctx context.Context, projectID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	memberships := pgIdent(s.schema, "memberships")

	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM `+memberships+`
		  WHERE project_id = $1 AND role = 'admin' AND status = 'accepted'`,
		projectID,
	).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// ListByProject pages a project's memberships ordered by
// (invited_at DESC, id DESC).
func (s *PostgresStore) ListByProject(ctx context.Context, projectID string, req pagination.Request) (pagination.Page[Membership], error) {
	if err := ctx.Err(); err != nil {
		return pagination.Page[Membership]{}, err
	}

	memberships := pgIdent(s.schema, "memberships")
	limit := pagination.ClampLimit(req.Limit)

	var (
		rows pgx.Rows
		err  error
	)
	if req.Cursor == nil {
		rows, err = s.pool.Query(ctx,
			`SELECT `+membershipColumns+` FROM `+memberships+`
			  WHERE project_id = $1
			  ORDER BY invited_at DESC, id DESC
			  LIMIT $2`,
			projectID, limit+1)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT `+membershipColumns+` FROM `+memberships+`
			  WHERE project_id = $1
			    AND (invited_at, id) < ($2, $3)
			  ORDER BY invited_at DESC, id DESC
			  LIMIT $4`,
			projectID, req.Cursor.Time, req.Cursor.ID, limit+1)
	}
	if err != nil {
		return pagination.Page[Membership]{}, err
	}
	defer rows.Close()

	var items []Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return pagination.Page[Membership]{}, err
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return pagination.Page[Membership]{}, err
	}

	return assemblePage(items, limit,
		func(m Membership) time.Time { return m.InvitedAt },
		func(m Membership) string { return m.ID },
	), nil
}

// ListPendingForUser pages a user's undecided invitations joined with their
// project, ordered by (project created_at DESC, membership id DESC).
func (s *PostgresStore) ListPendingForUser(ctx context.Context, userID string, req pagination.Request) (pagination.Page[Invitation], error) {
	if err := ctx.Err(); err != nil {
		return pagination.Page[Invitation]{}, err
	}

	memberships := pgIdent(s.schema, "memberships")
	projects := pgIdent(s.schema, "projects")
	limit := pagination.ClampLimit(req.Limit)

	base := `SELECT m.id, m.project_id, m.user_id, m.role, m.status,
	                m.invited_by, m.invited_at, m.joined_at,
	                p.name, p.public_code, p.created_at
	           FROM ` + memberships + ` m
	           JOIN ` + projects + ` p ON p.id = m.project_id
	          WHERE m.user_id = $1 AND m.status = 'pending'`

	var (
		rows pgx.Rows
		err  error
	)
	if req.Cursor == nil {
		rows, err = s.pool.Query(ctx,
			base+`
			 ORDER BY p.created_at DESC, m.id DESC
			 LIMIT $2`,
			userID, limit+1)
	} else {
		rows, err = s.pool.Query(ctx,
			base+`
			   AND (p.created_at, m.id) < ($2, $3)
			 ORDER BY p.created_at DESC, m.id DESC
			 LIMIT $4`,
			userID, req.Cursor.Time, req.Cursor.ID, limit+1)
	}
	if err != nil {
		return pagination.Page[Invitation]{}, err
	}
	defer rows.Close()

	var items []Invitation
	for rows.Next() {
		var inv Invitation
		var role, status string
		if err := rows.Scan(
			&inv.ID, &inv.ProjectID, &inv.UserID, &role, &status,
			&inv.InvitedBy, &inv.InvitedAt, &inv.JoinedAt,
			&inv.ProjectName, &inv.ProjectCode, &inv.ProjectCreatedAt,
		); err != nil {
			return pagination.Page[Invitation]{}, err
		}
		inv.Role = Role(role)
		inv.Status = Status(status)
		items = append(items, inv)
	}
	if err := rows.Err(); err != nil {
		return pagination.Page[Invitation]{}, err
	}

	return assemblePage(items, limit,
		func(inv Invitation) time.Time { return inv.ProjectCreatedAt },
		func(inv Invitation) string { return inv.Membership.ID },
	), nil
}

// DeleteByProject removes all membership rows of a project.
func (s *PostgresStore) DeleteByProject(ctx context.Context, projectID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	memberships := pgIdent(s.schema, "memberships")

	_, err := s.pool.Exec(ctx, `DELETE FROM `+memberships+` WHERE project_id = $1`, projectID)
	return err
}

// assemblePage turns a limit+1 fetch into a Page. The next cursor derives
// from the last returned item, never from the probe row.
func assemblePage[T any](items []T, limit int, keyTime func(T) time.Time, keyID func(T) string) pagination.Page[T] {
	page := pagination.Page[T]{}
	page.HasMore = len(items) > limit
	if page.HasMore {
		items = items[:limit]
	}
	page.Items = items
	if page.HasMore && len(items) > 0 {
		last := items[len(items)-1]
		page.NextCursor = pagination.Cursor{Time: keyTime(last), ID: keyID(last)}.Encode()
	}
	return page
}

type pgRow interface {
	Scan(dest ...any) error
}

func scanMembership(row pgRow) (Membership, error) {
	var m Membership
	var role, status string
	err := row.Scan(&m.ID, &m.ProjectID, &m.UserID, &role, &status, &m.InvitedBy, &m.InvitedAt, &m.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Membership{}, ErrNotFound
	}
	if err != nil {
		return Membership{}, err
	}
	m.Role = Role(role)
	m.Status = Status(status)
	return m, nil
}

func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgIsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func pgIsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
