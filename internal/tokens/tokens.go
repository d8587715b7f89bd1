// Package tokens holds the primitives behind every bearer credential the
// server issues: opaque random tokens, the digests persisted in their place,
// and the TTL arithmetic used to expire them.
package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// DefaultByteLength is the amount of entropy in a magic-link or refresh token.
const DefaultByteLength = 32

// GenerateOpaque returns byteLength bytes from crypto/rand encoded as
// unpadded base64url. A non-positive length selects DefaultByteLength.
func GenerateOpaque(byteLength int) (string, error) {
	if byteLength <= 0 {
		byteLength = DefaultByteLength
	}

	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash returns the lowercase hex SHA-256 digest of token. It is the lookup
// key stored instead of the raw value.
func Hash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// VerifyHash reports whether token hashes to storedHash. Digests have a
// fixed length, so only a malformed storedHash is rejected early.
func VerifyHash(token, storedHash string) bool {
	computed := Hash(token)
	if len(computed) != len(storedHash) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}
