package project

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"strings"
)

// CodePrefix is the fixed public code prefix.
const CodePrefix = "APSQ-"

var codeRe = regexp.MustCompile(`^APSQ-[0-9A-F]{8}$`)

// NewPublicCode returns a fresh public project code: the fixed prefix
// followed by 8 upper-case hex characters (4 random bytes).
func NewPublicCode() (string, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return CodePrefix + strings.ToUpper(hex.EncodeToString(buf[:])), nil
}

// ValidPublicCode reports whether s is a well-formed public code.
func ValidPublicCode(s string) bool {
	return codeRe.MatchString(s)
}
