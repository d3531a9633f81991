package secret

import "errors"

// Public, stable errors for callers.
var (
	ErrInvalidHash     = errors.New("invalid secret hash")
	ErrSecretTooShort  = errors.New("secret too short")
	ErrSecretTooLong   = errors.New("secret too long")
	ErrPINLengthPolicy = errors.New("pin length below policy minimum")
)
