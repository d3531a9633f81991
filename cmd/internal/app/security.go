package app

import (
	"errors"

	"apseq/cmd/security/token"
)

// ValidateSecurityConfig enforces the token-hashing policy at startup.
//
// Fail-fast: when APSEQ_REQUIRE_TOKEN_HMAC is set, a missing or weak HMAC
// key must stop the process instead of silently falling back to plain
// SHA-256 token hashing.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireTokenHMAC {
		return nil
	}

	// Minimum 32 bytes for an HMAC-SHA256 secret. Bytes, not runes: the key
	// is used as raw bytes.
	if _, err := token.HMACKeyFromEnv(32); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return errors.New("security policy: APSEQ_REQUIRE_TOKEN_HMAC=true but " + token.HMACEnvKey + " is missing")
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return errors.New("security policy: APSEQ_REQUIRE_TOKEN_HMAC=true but " + token.HMACEnvKey + " is too short (min 32 bytes)")
		default:
			return err
		}
	}

	return nil
}
