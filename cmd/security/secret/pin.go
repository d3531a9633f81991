package secret

import (
	"crypto/rand"
	"math/big"
	"strings"
	"unicode"
)

const (
	// SpecialChars is the fixed special-character class for generated PINs.
	SpecialChars = "!@#$%&*"

	minPINLength = 8

	pinLowercase = "abcdefghijklmnopqrstuvwxyz"
	pinUppercase = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	pinDigits    = "0123456789"
)

// GeneratePIN generates a project PIN, shown exactly once to the root owner.
//
// The PIN is exactly c.PINLength characters and contains at least one
// lowercase letter, one uppercase letter, one digit, and one character from
// SpecialChars. Draws come from crypto/rand; a draw that misses a class is
// discarded and redrawn in full (rejection sampling preserves uniformity,
// patching a failing draw would not).
func (c Config) GeneratePIN() (string, error) {
	length := c.PINLength
	if length < minPINLength {
		return "", ErrPINLengthPolicy
	}

	alphabet := pinLowercase + pinUppercase + pinDigits + SpecialChars

	for {
		pin, err := randomString(alphabet, length)
		if err != nil {
			return "", err
		}
		if satisfiesPINPolicy(pin) {
			return pin, nil
		}
	}
}

// satisfiesPINPolicy reports whether pin contains all four character classes.
func satisfiesPINPolicy(pin string) bool {
	var lower, upper, digit, special bool
	for _, r := range pin {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(SpecialChars, r):
			special = true
		}
	}
	return lower && upper && digit && special
}

func randomString(alphabet string, length int) (string, error) {
	var b strings.Builder
	b.Grow(length)

	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(alphabet[n.Int64()])
	}
	return b.String(), nil
}
