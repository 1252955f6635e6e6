// Package invite generates invite codes.
package invite

import (
	"crypto/rand"

	"order-desk/backend/internal/invite/domain"
)

// rejectAbove is the largest multiple of the alphabet size below 256; bytes at or above it are redrawn so every
// symbol is equally likely.
const rejectAbove = 256 - 256%len(domain.CodeAlphabet)

// GenerateCode returns a random code of domain.CodeLength symbols from domain.CodeAlphabet.
// Uses crypto/rand for randomness.
func GenerateCode() (string, error) {
	out := make([]byte, 0, domain.CodeLength)
	buf := make([]byte, domain.CodeLength*2)
	for len(out) < domain.CodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= rejectAbove {
				continue
			}
			out = append(out, domain.CodeAlphabet[int(b)%len(domain.CodeAlphabet)])
			if len(out) == domain.CodeLength {
				break
			}
		}
	}
	return string(out), nil
}
