package secret

import (
	"crypto/rand"
	"encoding/base64"
)

const accessKeyBytes = 24

// NewAccessKey returns a generated raw access key for projects whose creator
// did not supply one. URL-safe base64, no padding.
func NewAccessKey() (string, error) {
	b := make([]byte, accessKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ValidateAccessKey enforces the minimum-length policy on a caller-supplied
// raw access key.
func (c Config) ValidateAccessKey(raw string) error {
	if len(raw) < c.MinAccessKeyLen {
		return ErrSecretTooShort
	}
	if c.MaxSecretLen > 0 && len(raw) > c.MaxSecretLen {
		return ErrSecretTooLong
	}
	return nil
}
