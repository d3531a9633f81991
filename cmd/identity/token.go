package identity

import (
	"crypto/rand"
	"encoding/base64"

	"apseq/cmd/security/token"
)

// NewOpaqueToken returns a cryptographically random API token.
// It is URL-safe (base64url) and stored only on the client; the server keeps
// a hash (see HashAPIToken).
func NewOpaqueToken(nBytes int) (string, error) {
	if nBytes <= 0 {
		nBytes = 32
	}

	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashAPIToken returns the server-stored hash for API tokens.
// HMAC-SHA256 when APSEQ_TOKEN_HMAC_KEY is set; SHA-256 otherwise.
func HashAPIToken(tokenStr string) string { return token.HashAPITokenHex(tokenStr) }
