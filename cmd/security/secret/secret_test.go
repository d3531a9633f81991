package secret

import (
	"strings"
	"testing"
)

func testConfig() Config {
	cfg := DefaultConfig()
	// Keep hashing cheap for tests.
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func TestHashVerify_RoundTrip(t *testing.T) {
	t.Parallel()

	cfg := testConfig()

	enc, err := cfg.Hash("secret1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(enc, "$argon2id$v=19$") {
		t.Fatalf("unexpected encoding: %q", enc)
	}
	if strings.Contains(enc, "secret1") {
		t.Fatalf("encoded hash leaks the raw secret")
	}

	ok, err := cfg.Verify(enc, "secret1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatalf("expected match")
	}

	ok, err = cfg.Verify(enc, "wrong-secret")
	if err != nil {
		t.Fatalf("verify mismatch: %v", err)
	}
	if ok {
		t.Fatalf("expected mismatch")
	}
}

func TestHash_UniqueSalts(t *testing.T) {
	t.Parallel()

	cfg := testConfig()

	a, err := cfg.Hash("same-secret")
	if err != nil {
		t.Fatalf("hash a: %v", err)
	}
	b, err := cfg.Hash("same-secret")
	if err != nil {
		t.Fatalf("hash b: %v", err)
	}
	if a == b {
		t.Fatalf("two hashes of the same secret must differ (salted)")
	}
}

func TestVerify_MalformedHash(t *testing.T) {
	t.Parallel()

	cfg := testConfig()

	cases := []struct {
		name string
		enc  string
	}{
		{"empty", ""},
		{"not_argon", "$bcrypt$whatever"},
		{"wrong_version", "$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA"},
		{"bad_params", "$argon2id$v=19$m=zero$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA"},
		{"bad_base64", "$argon2id$v=19$m=8192,t=1,p=1$!!!$aGFzaGhhc2hoYXNoaGFzaA"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := cfg.Verify(tc.enc, "anything"); err != ErrInvalidHash {
				t.Fatalf("expected ErrInvalidHash, got %v", err)
			}
		})
	}
}

func TestVerify_RejectsOversizedParams(t *testing.T) {
	t.Parallel()

	cfg := testConfig()

	// A hash claiming far more memory than configured must be refused.
	hostile := "$argon2id$v=19$m=1048576,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaGhhc2hoYXNoaGFzaGg"
	if _, err := cfg.Verify(hostile, "anything"); err != ErrInvalidHash {
		t.Fatalf("expected ErrInvalidHash for oversized params, got %v", err)
	}
}

func TestValidateAccessKey(t *testing.T) {
	t.Parallel()

	cfg := testConfig()

	if err := cfg.ValidateAccessKey("abc"); err != ErrSecretTooShort {
		t.Fatalf("expected ErrSecretTooShort, got %v", err)
	}
	if err := cfg.ValidateAccessKey("secret1"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := cfg.ValidateAccessKey(strings.Repeat("x", 1000)); err != ErrSecretTooLong {
		t.Fatalf("expected ErrSecretTooLong, got %v", err)
	}
}

func TestNewAccessKey(t *testing.T) {
	t.Parallel()

	a, err := NewAccessKey()
	if err != nil {
		t.Fatalf("new access key: %v", err)
	}
	b, err := NewAccessKey()
	if err != nil {
		t.Fatalf("new access key: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct generated keys")
	}
	if len(a) < 24 {
		t.Fatalf("generated key too short: %d", len(a))
	}
}
