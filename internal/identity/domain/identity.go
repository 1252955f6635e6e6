package domain

import "time"

// Principal is an authenticated identity. Immutable for the lifetime of a sign-in.
type Principal struct {
	SubjectID string
	Email     string
}

// Credential is a local email/password credential, stored keyed by normalized email.
type Credential struct {
	Email             string     `json:"email"`
	SubjectID         string     `json:"subject_id"`
	PasswordHash      string     `json:"password_hash"`
	EmailVerified     bool       `json:"email_verified"`
	VerifyTokenHash   string     `json:"verify_token_hash,omitempty"`
	ResetTokenHash    string     `json:"reset_token_hash,omitempty"`
	ResetExpiresAt    *time.Time `json:"reset_expires_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	PasswordChangedAt time.Time  `json:"password_changed_at"`
}

// Principal returns the principal the credential authenticates.
func (c *Credential) Principal() Principal {
	return Principal{SubjectID: c.SubjectID, Email: c.Email}
}

// SessionEventKind distinguishes sign-in from sign-out.
type SessionEventKind int

const (
	SignedIn SessionEventKind = iota + 1
	SignedOut
)

func (k SessionEventKind) String() string {
	switch k {
	case SignedIn:
		return "signed_in"
	case SignedOut:
		return "signed_out"
	}
	return "unknown"
}

// SessionEvent is delivered to session-change listeners. Principal is the one signing in or out.
type SessionEvent struct {
	Kind      SessionEventKind
	Principal Principal
}
