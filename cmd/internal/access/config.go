package access

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config controls session lifetime and renewal behavior.
type Config struct {
	// TTL is the session lifetime granted on creation or renewal.
	TTL time.Duration

	// RenewWithin is the sliding-window threshold: a check renews the session
	// only when remaining validity is below this value.
	RenewWithin time.Duration
}

// DefaultConfig returns the baseline 24h TTL with a 2h renewal threshold.
func DefaultConfig() Config {
	return Config{
		TTL:         24 * time.Hour,
		RenewWithin: 2 * time.Hour,
	}
}

// FromEnv loads config from environment variables.
//
// Env surface:
// - APSEQ_ACCESS_SESSION_TTL
// - APSEQ_ACCESS_SESSION_RENEW_WITHIN
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v, ok := os.LookupEnv("APSEQ_ACCESS_SESSION_TTL"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("APSEQ_ACCESS_SESSION_TTL: invalid duration")
		}
		cfg.TTL = d
	}

	if v, ok := os.LookupEnv("APSEQ_ACCESS_SESSION_RENEW_WITHIN"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("APSEQ_ACCESS_SESSION_RENEW_WITHIN: invalid duration")
		}
		cfg.RenewWithin = d
	}

	if cfg.RenewWithin >= cfg.TTL {
		return Config{}, fmt.Errorf("access config invalid: renew_within (%s) >= ttl (%s)", cfg.RenewWithin, cfg.TTL)
	}

	return cfg, nil
}
