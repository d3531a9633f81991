package secret

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams

	// PINLength is the generated PIN length. Policy minimum is 8.
	PINLength int

	// MinAccessKeyLen is the minimum accepted access-key length.
	MinAccessKeyLen int

	// MaxSecretLen bounds any raw secret fed to the hasher.
	MaxSecretLen int
}

// DefaultConfig returns a conservative baseline suitable for interactive use.
func DefaultConfig() Config {
	// Parallelism follows available CPUs but is clamped to [1..4] to keep
	// resource usage predictable in containers.
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024, // 64 MiB
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above; safe conversion.
			SaltLength:  16,
			KeyLength:   32,
		},
		PINLength:       8,
		MinAccessKeyLen: 6,
		MaxSecretLen:    256,
	}
}

// FromEnv loads config from environment variables.
//
// Env surface:
// - APSEQ_PIN_LENGTH
// - APSEQ_ACCESS_KEY_MIN_LEN
// - APSEQ_ARGON2_MEMORY_KIB
// - APSEQ_ARGON2_ITERATIONS
// - APSEQ_ARGON2_PARALLELISM
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v, ok := os.LookupEnv("APSEQ_PIN_LENGTH"); ok {
		n, err := atoiInRange(v, minPINLength, 64)
		if err != nil {
			return Config{}, fmt.Errorf("APSEQ_PIN_LENGTH: %w", err)
		}
		cfg.PINLength = n
	}

	if v, ok := os.LookupEnv("APSEQ_ACCESS_KEY_MIN_LEN"); ok {
		n, err := atoiInRange(v, 1, 128)
		if err != nil {
			return Config{}, fmt.Errorf("APSEQ_ACCESS_KEY_MIN_LEN: %w", err)
		}
		cfg.MinAccessKeyLen = n
	}

	if v, ok := os.LookupEnv("APSEQ_ARGON2_MEMORY_KIB"); ok {
		u, err := atou32InRange(v, 8*1024, 1024*1024) // 8 MiB .. 1 GiB
		if err != nil {
			return Config{}, fmt.Errorf("APSEQ_ARGON2_MEMORY_KIB: %w", err)
		}
		cfg.Params.MemoryKiB = u
	}

	if v, ok := os.LookupEnv("APSEQ_ARGON2_ITERATIONS"); ok {
		u, err := atou32InRange(v, 1, 20)
		if err != nil {
			return Config{}, fmt.Errorf("APSEQ_ARGON2_ITERATIONS: %w", err)
		}
		cfg.Params.Iterations = u
	}

	if v, ok := os.LookupEnv("APSEQ_ARGON2_PARALLELISM"); ok {
		u, err := atou32InRange(v, 1, 64)
		if err != nil {
			return Config{}, fmt.Errorf("APSEQ_ARGON2_PARALLELISM: %w", err)
		}
		if u > 255 {
			return Config{}, fmt.Errorf("APSEQ_ARGON2_PARALLELISM: out of range")
		}
		cfg.Params.Parallelism = uint8(u)
	}

	return cfg, nil
}

func atoiInRange(s string, minVal, maxVal int) (int, error) {
	s = strings.TrimSpace(s)
	i64, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}

	i := int(i64)
	if i < minVal || i > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return i, nil
}

func atou32InRange(s string, minVal, maxVal uint32) (uint32, error) {
	s = strings.TrimSpace(s)
	u64, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an unsigned integer")
	}

	u := uint32(u64)
	if u < minVal || u > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return u, nil
}
