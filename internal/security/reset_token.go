package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

const resetTokenBytes = 32

// NewResetToken returns a random URL-safe password reset token and its storage hash.
// Only the hash is persisted; the raw token goes to the principal.
func NewResetToken() (token, hash string, err error) {
	b := make([]byte, resetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	token = base64.RawURLEncoding.EncodeToString(b)
	return token, HashResetToken(token), nil
}

// HashResetToken returns a SHA-256 hash of the token string, hex-encoded.
func HashResetToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// ResetTokenHashEqual performs constant-time comparison of the provided token's hash with the stored hash.
func ResetTokenHashEqual(providedToken, storedHash string) bool {
	if storedHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashResetToken(providedToken)), []byte(storedHash)) == 1
}
