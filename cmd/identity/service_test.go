package identity

import (
	"context"
	"errors"
	"testing"
	"time"
)

// plainHasher is a test stand-in for the Argon2id vault.
type plainHasher struct{}

func (plainHasher) Hash(raw string) (string, error) { return "h:" + raw, nil }
func (plainHasher) Verify(encoded, raw string) (bool, error) {
	return encoded == "h:"+raw, nil
}

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	svc, err := NewService(store, plainHasher{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, store
}

func TestRegister_And_Login(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	user, err := svc.Register(ctx, RegisterInput{
		Email:       "Alice@Example.com",
		DisplayName: "Alice",
		Password:    "correct horse",
		Now:         now,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.EmailNorm != "alice@example.com" {
		t.Fatalf("email not normalized: %q", user.EmailNorm)
	}
	if user.PasswordHash == "correct horse" {
		t.Fatalf("password stored in plain text")
	}

	issued, err := svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: "correct horse", Now: now})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if issued.Token == "" {
		t.Fatalf("expected a plain token")
	}
	if !issued.ExpiresAt.After(now) {
		t.Fatalf("token must expire in the future")
	}

	resolved, err := svc.Resolve(ctx, issued.Token, now)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.ID != user.ID {
		t.Fatalf("resolved wrong user")
	}
}

func TestRegister_Validation(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   RegisterInput
	}{
		{"empty_email", RegisterInput{Email: "", Password: "long enough pw"}},
		{"not_an_email", RegisterInput{Email: "nope", Password: "long enough pw"}},
		{"short_password", RegisterInput{Email: "a@b.com", Password: "short"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := svc.Register(ctx, tc.in); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{Email: "a@b.com", Password: "long enough pw"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := svc.Register(ctx, RegisterInput{Email: "A@B.COM", Password: "long enough pw"})
	if !IsConflict(err) {
		t.Fatalf("expected conflict on case-insensitive duplicate, got %v", err)
	}
}

func TestLogin_WrongCredentials(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{Email: "a@b.com", Password: "long enough pw"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Login(ctx, LoginInput{Email: "a@b.com", Password: "wrong password"}); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
	if _, err := svc.Login(ctx, LoginInput{Email: "missing@b.com", Password: "whatever pw"}); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential for unknown user, got %v", err)
	}
}

func TestResolve_ExpiredToken(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	if _, err := svc.Register(ctx, RegisterInput{Email: "a@b.com", Password: "long enough pw", Now: now}); err != nil {
		t.Fatalf("register: %v", err)
	}
	issued, err := svc.Login(ctx, LoginInput{Email: "a@b.com", Password: "long enough pw", Now: now})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := svc.Resolve(ctx, issued.Token, issued.ExpiresAt.Add(time.Second)); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential for expired token, got %v", err)
	}
}

func TestLogout(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	if _, err := svc.Register(ctx, RegisterInput{Email: "a@b.com", Password: "long enough pw", Now: now}); err != nil {
		t.Fatalf("register: %v", err)
	}
	issued, err := svc.Login(ctx, LoginInput{Email: "a@b.com", Password: "long enough pw", Now: now})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := svc.Logout(ctx, issued.Token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.Resolve(ctx, issued.Token, now); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential after logout, got %v", err)
	}
	// Logging out twice is a no-op.
	if err := svc.Logout(ctx, issued.Token); err != nil {
		t.Fatalf("second logout: %v", err)
	}
}
