package service

import (
	"regexp"
	"strings"
)

var simpleEmail = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func validateEmail(email string) error {
	if email == "" {
		return credentialError(ErrInvalidEmail, "Email is required.")
	}
	if !simpleEmail.MatchString(email) {
		return credentialError(ErrInvalidEmail, "Enter a valid email address.")
	}
	return nil
}

// validatePassword requires 12+ characters with upper, lower, digit and symbol.
func validatePassword(password string) error {
	if len(password) < 12 {
		return credentialError(ErrWeakPassword, "Password must be at least 12 characters.")
	}
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		default:
			hasSymbol = true
		}
	}
	switch {
	case !hasUpper:
		return credentialError(ErrWeakPassword, "Password must contain an uppercase letter.")
	case !hasLower:
		return credentialError(ErrWeakPassword, "Password must contain a lowercase letter.")
	case !hasNumber:
		return credentialError(ErrWeakPassword, "Password must contain a number.")
	case !hasSymbol:
		return credentialError(ErrWeakPassword, "Password must contain a symbol.")
	}
	return nil
}
