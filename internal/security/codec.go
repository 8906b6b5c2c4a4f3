package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

// opaqueTokenBytes is the entropy of refresh tokens and invitation codes.
const opaqueTokenBytes = 32

// Codec generates unguessable opaque tokens (refresh tokens, invitation codes) and the one-way
// hashes stored in their place. Raw values are returned to the caller once and never persisted.
type Codec struct{}

// NewCodec returns a Codec backed by crypto/rand.
func NewCodec() Codec { return Codec{} }

// GenerateOpaqueToken returns a URL-safe random token with 256 bits of entropy.
func (Codec) GenerateOpaqueToken() (string, error) {
	b := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Hash returns the hex-encoded SHA-256 of raw. Used for storing and looking up tokens
// without keeping the raw value.
func (Codec) Hash(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// Equal performs a constant-time comparison of raw's hash with storedHash.
// Empty inputs never match.
func (c Codec) Equal(raw, storedHash string) bool {
	if raw == "" || storedHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(c.Hash(raw)), []byte(storedHash)) == 1
}
