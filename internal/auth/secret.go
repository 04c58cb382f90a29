// Package auth guards the control surface: a shared bearer secret,
// optionally stored as a bcrypt hash, and short-lived HS256 operator
// tokens minted from it.
package auth

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost balances hashing cost against request latency on the
// control surface.
const bcryptCost = 10

// HashSecret generates a bcrypt hash of the shared secret, for storing
// in configuration instead of the plaintext.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hash), nil
}

// SecretVerifier checks presented bearer secrets. When a bcrypt hash is
// configured it takes precedence over the plaintext secret.
type SecretVerifier struct {
	plain string
	hash  string
}

// NewSecretVerifier builds a verifier from the configured secret and/or
// its bcrypt hash.
func NewSecretVerifier(plain, hash string) *SecretVerifier {
	return &SecretVerifier{plain: plain, hash: hash}
}

// Verify reports whether presented matches the configured secret.
func (v *SecretVerifier) Verify(presented string) bool {
	if presented == "" {
		return false
	}
	if v.hash != "" {
		return bcrypt.CompareHashAndPassword([]byte(v.hash), []byte(presented)) == nil
	}
	if v.plain == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(v.plain), []byte(presented)) == 1
}

// SigningKey is the HMAC key for operator tokens: the plaintext secret
// when configured, otherwise the hash (which clients never see).
func (v *SecretVerifier) SigningKey() []byte {
	if v.plain != "" {
		return []byte(v.plain)
	}
	return []byte(v.hash)
}
