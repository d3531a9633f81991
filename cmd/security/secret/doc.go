// Package secret implements the project credential vault.
//
// It hashes and verifies the two independent project secrets (access key and
// PIN) with Argon2id, generates PINs under a four-character-class policy, and
// generates access keys from a cryptographically secure source. Raw secrets
// are never persisted; only encoded hashes leave this package.
package secret
