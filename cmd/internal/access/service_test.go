package access

import (
	"context"
	"testing"
	"time"
)

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	svc, err := NewService(DefaultConfig(), store)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, store
}

func TestEnsure_CreatesSession(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	sess, err := svc.Ensure(ctx, "user-1", "proj-1", now)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if sess.ID == "" {
		t.Fatalf("expected a session id")
	}
	if want := now.Add(24 * time.Hour); !sess.ExpiresAt.Equal(want) {
		t.Fatalf("expires_at = %v, want %v", sess.ExpiresAt, want)
	}
	if !sess.Active(now) {
		t.Fatalf("fresh session must be active")
	}
}

func TestEnsure_NoWriteInsideWindow(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	first, err := svc.Ensure(ctx, "user-1", "proj-1", now)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}

	// 21h of validity remain, well above the 2h threshold: untouched.
	later := now.Add(3 * time.Hour)
	second, err := svc.Ensure(ctx, "user-1", "proj-1", later)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if !second.ExpiresAt.Equal(first.ExpiresAt) {
		t.Fatalf("expiry moved inside the renewal window: %v -> %v", first.ExpiresAt, second.ExpiresAt)
	}
	if second.ID != first.ID {
		t.Fatalf("session identity changed on a read-only ensure")
	}
}

func TestEnsure_RenewsNearExpiry(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	first, err := svc.Ensure(ctx, "user-1", "proj-1", now)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}

	// 90 minutes of validity remain, below the 2h threshold: renewed.
	near := first.ExpiresAt.Add(-90 * time.Minute)
	second, err := svc.Ensure(ctx, "user-1", "proj-1", near)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if want := near.Add(24 * time.Hour); !second.ExpiresAt.Equal(want) {
		t.Fatalf("expires_at = %v, want %v", second.ExpiresAt, want)
	}
	if second.ID != first.ID {
		t.Fatalf("renewal must keep the session row, not create a second one")
	}
}

func TestEnsure_RenewsAfterExpiry(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	first, err := svc.Ensure(ctx, "user-1", "proj-1", now)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}

	stale := first.ExpiresAt.Add(48 * time.Hour)
	second, err := svc.Ensure(ctx, "user-1", "proj-1", stale)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if want := stale.Add(24 * time.Hour); !second.ExpiresAt.Equal(want) {
		t.Fatalf("expires_at = %v, want %v", second.ExpiresAt, want)
	}
}

func TestEnsure_OneSessionPerPair(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		if _, err := svc.Ensure(ctx, "user-1", "proj-1", now.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("ensure #%d: %v", i, err)
		}
	}
	if n := len(store.sessions); n != 1 {
		t.Fatalf("expected exactly one session row, got %d", n)
	}
}

func TestHasAccess(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	ok, err := svc.HasAccess(ctx, "user-1", "proj-1", now)
	if err != nil {
		t.Fatalf("has access: %v", err)
	}
	if ok {
		t.Fatalf("no session yet, expected no access")
	}

	sess, err := svc.Ensure(ctx, "user-1", "proj-1", now)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}

	ok, err = svc.HasAccess(ctx, "user-1", "proj-1", now)
	if err != nil || !ok {
		t.Fatalf("expected access, got ok=%v err=%v", ok, err)
	}

	ok, err = svc.HasAccess(ctx, "user-1", "proj-1", sess.ExpiresAt.Add(time.Second))
	if err != nil {
		t.Fatalf("has access: %v", err)
	}
	if ok {
		t.Fatalf("expired session must not grant access")
	}
}
