package membership

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"apseq/cmd/internal/access"
	"apseq/cmd/internal/pagination"
)

// Integration tests are enabled when APSEQ_TEST_DATABASE_URL is set.
// In non-CI runs, unreachable Postgres skips these tests to keep local runs fast.

func TestPostgresStore_AcceptGrantsSession(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplySchema(t, pool, schema)

	sessCfg := access.Config{TTL: 24 * time.Hour, RenewWithin: 2 * time.Hour}
	store, err := NewPostgresStore(pool, WithSchema(schema), WithSessionConfig(sessCfg))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	sessions, err := access.NewPostgresStore(pool, access.WithSchema(schema))
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	owner := newTestULID(t)
	invitee := newTestULID(t)
	mustInsertUser(t, pool, schema, owner)
	mustInsertUser(t, pool, schema, invitee)
	projectID := mustInsertProject(t, pool, schema, owner, "atlas-"+strings.ToLower(newTestULID(t)))

	pending, err := store.Create(ctx, Membership{
		ID:        newTestULID(t),
		ProjectID: projectID,
		UserID:    invitee,
		Role:      RoleUser,
		Status:    StatusPending,
		InvitedBy: &owner,
		InvitedAt: now,
	})
	if err != nil {
		t.Fatalf("create pending: %v", err)
	}

	accepted, err := store.Accept(ctx, AcceptRecord{
		MembershipID: pending.ID,
		JoinedAt:     now,
		SessionID:    newTestULID(t),
	})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != StatusAccepted {
		t.Fatalf("status = %q, want accepted", accepted.Status)
	}
	if accepted.JoinedAt == nil || !accepted.JoinedAt.Equal(now) {
		t.Fatalf("joined_at = %v, want %v", accepted.JoinedAt, now)
	}

	sess, err := sessions.Get(ctx, invitee, projectID)
	if err != nil {
		t.Fatalf("session after accept: %v", err)
	}
	if !sess.ExpiresAt.Equal(now.Add(sessCfg.TTL)) {
		t.Fatalf("session expires_at = %v, want %v", sess.ExpiresAt, now.Add(sessCfg.TTL))
	}

	if _, err := store.Accept(ctx, AcceptRecord{
		MembershipID: pending.ID, JoinedAt: now, SessionID: newTestULID(t),
	}); !errors.Is(err, ErrNotPending) {
		t.Fatalf("second accept: err = %v, want ErrNotPending", err)
	}
	if _, err := store.Accept(ctx, AcceptRecord{
		MembershipID: newTestULID(t), JoinedAt: now, SessionID: newTestULID(t),
	}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown accept: err = %v, want ErrNotFound", err)
	}
}

func TestPostgresStore_Create_ConcurrentPairRace(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplySchema(t, pool, schema)

	store, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	owner := newTestULID(t)
	invitee := newTestULID(t)
	mustInsertUser(t, pool, schema, owner)
	mustInsertUser(t, pool, schema, invitee)
	projectID := mustInsertProject(t, pool, schema, owner, "atlas-"+strings.ToLower(newTestULID(t)))

	const attempts = 5
	var wg sync.WaitGroup
	wg.Add(attempts)
	errs := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		id := newTestULID(t)
		go func() {
			defer wg.Done()
			_, err := store.Create(ctx, Membership{
				ID:        id,
				ProjectID: projectID,
				UserID:    invitee,
				Role:      RoleUser,
				Status:    StatusPending,
				InvitedBy: &owner,
				InvitedAt: now,
			})
			errs <- err
		}()
	}

	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if errors.Is(err, ErrInvitationPending) || errors.Is(err, ErrAlreadyMember) {
			continue
		}
		t.Fatalf("unexpected error: %v", err)
	}
	if success != 1 {
		t.Fatalf("expected 1 successful insert, got %d", success)
	}
}

func TestPostgresStore_ListByProject_TimestampTieBreak(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplySchema(t, pool, schema)

	store, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx := context.Background()
	invitedAt := time.Now().UTC().Truncate(time.Microsecond)

	owner := newTestULID(t)
	mustInsertUser(t, pool, schema, owner)
	projectID := mustInsertProject(t, pool, schema, owner, "atlas-"+strings.ToLower(newTestULID(t)))

	// All rows share invited_at so ordering falls through to the id tie-break.
	want := make(map[string]bool)
	for i := 0; i < 3; i++ {
		userID := newTestULID(t)
		mustInsertUser(t, pool, schema, userID)
		m, err := store.Create(ctx, Membership{
			ID:        newTestULID(t),
			ProjectID: projectID,
			UserID:    userID,
			Role:      RoleUser,
			Status:    StatusPending,
			InvitedAt: invitedAt,
		})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		want[m.ID] = true
	}

	var got []string
	req := pagination.Request{Limit: 1}
	for {
		page, err := store.ListByProject(ctx, projectID, req)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		for _, m := range page.Items {
			got = append(got, m.ID)
		}
		if !page.HasMore {
			break
		}
		c, err := pagination.Decode(page.NextCursor)
		if err != nil {
			t.Fatalf("decode cursor: %v", err)
		}
		req.Cursor = &c
	}

	if len(got) != len(want) {
		t.Fatalf("walked %d rows, want %d", len(got), len(want))
	}
	seen := make(map[string]bool)
	for i, id := range got {
		if seen[id] {
			t.Fatalf("row %s returned twice", id)
		}
		seen[id] = true
		if !want[id] {
			t.Fatalf("unexpected row %s", id)
		}
		if i > 0 && got[i-1] <= id {
			t.Fatalf("ids not descending: %s before %s", got[i-1], id)
		}
	}
}

// ---- helpers ----

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("APSEQ_TEST_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: APSEQ_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse APSEQ_TEST_DATABASE_URL: %v", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()

	c, err := pool.Acquire(pingCtx)
	if err != nil {
		pool.Close()
		if shouldSkipIntegration(err) {
			t.Skipf("integration test skipped: Postgres unreachable (APSEQ_TEST_DATABASE_URL set): %v", err)
		}
		t.Fatalf("acquire: %v", err)
	}
	c.Release()

	return pool
}

func shouldSkipIntegration(err error) bool {
	if err == nil {
		return false
	}
	if os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "no such host") {
		return true
	}
	return false
}

func mustCreateTestSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	schema := "apseq_membership_it_" + strings.ToLower(newTestULID(t))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, `CREATE SCHEMA `+pgx.Identifier{schema}.Sanitize()); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return schema
}

func mustDropSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
}

func mustApplySchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	users := pgIdent(schema, "users")
	projects := pgIdent(schema, "projects")
	memberships := pgIdent(schema, "memberships")
	sessions := pgIdent(schema, "access_sessions")

	schemaSQL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL,
  email_norm TEXT NOT NULL UNIQUE,
  display_name TEXT NOT NULL,
  password_hash TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  name_norm TEXT NOT NULL,
  public_code TEXT NOT NULL,
  root_owner_id TEXT NOT NULL REFERENCES %s(id),
  access_key_hash TEXT NOT NULL,
  pin_hash TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  CONSTRAINT projects_name_norm_key UNIQUE (name_norm),
  CONSTRAINT projects_public_code_key UNIQUE (public_code)
);

CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  project_id TEXT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
  user_id TEXT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
  role TEXT NOT NULL CHECK (role IN ('admin', 'user')),
  status TEXT NOT NULL CHECK (status IN ('pending', 'accepted')),
  invited_by TEXT REFERENCES %s(id) ON DELETE SET NULL,
  invited_at TIMESTAMPTZ NOT NULL,
  joined_at TIMESTAMPTZ,
  CONSTRAINT memberships_project_user_key UNIQUE (project_id, user_id)
);

CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
  project_id TEXT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
  expires_at TIMESTAMPTZ NOT NULL,
  CONSTRAINT access_sessions_user_project_key UNIQUE (user_id, project_id)
);
`, users, projects, users, memberships, projects, users, users, sessions, users, projects)

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
}

func mustInsertUser(t *testing.T, pool *pgxpool.Pool, schema, userID string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	users := pgIdent(schema, "users")
	if _, err := pool.Exec(ctx,
		`INSERT INTO `+users+` (id, email, email_norm, display_name, password_hash, created_at)
		 VALUES ($1, $2, $2, 'Tester', 'x', now())`,
		userID, strings.ToLower(userID)+"@example.com",
	); err != nil {
		t.Fatalf("insert user: %v", err)
	}
}

func mustInsertProject(t *testing.T, pool *pgxpool.Pool, schema, ownerID, name string) string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id := newTestULID(t)
	projects := pgIdent(schema, "projects")
	if _, err := pool.Exec(ctx,
		`INSERT INTO `+projects+`
		     (id, name, name_norm, public_code, root_owner_id, access_key_hash, pin_hash, created_at, updated_at)
		 VALUES ($1, $2, lower($2), $3, $4, 'x', 'x', now(), now())`,
		id, name, "APSQ-"+id[18:], ownerID,
	); err != nil {
		t.Fatalf("insert project: %v", err)
	}
	return id
}

func newTestULID(t *testing.T) string {
	t.Helper()
	id := ulid.MustNew(ulid.Timestamp(time.Now().UTC()), ulid.Monotonic(rand.Reader, 0)).String()
	if len(id) != 26 {
		t.Fatalf("expected ULID length 26, got %d", len(id))
	}
	return id
}
