package service

import "errors"

// Sentinel errors for the credential provider. Callers match them with errors.Is through CredentialError.
var (
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrInvalidEmail           = errors.New("invalid email")
	ErrWeakPassword           = errors.New("weak password")
	ErrInvalidResetToken      = errors.New("invalid or expired reset token")
	ErrInvalidVerifyToken     = errors.New("invalid verification token")
	ErrNotSignedIn            = errors.New("not signed in")
)

// CredentialError is a recoverable credential failure. Reason is user-facing text.
type CredentialError struct {
	Reason string
	Err    error
}

func (e *CredentialError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return e.Err.Error() + ": " + e.Reason
}

func (e *CredentialError) Unwrap() error { return e.Err }

func credentialError(err error, reason string) error {
	return &CredentialError{Reason: reason, Err: err}
}
