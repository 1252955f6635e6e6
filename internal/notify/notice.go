// Package notify delivers account notices (email verification, password reset) to principals.
package notify

import (
	"context"
	"time"
)

// Kind selects the notice template.
type Kind string

const (
	KindVerification  Kind = "verification"
	KindPasswordReset Kind = "password_reset"
)

// Notice is one message to a principal. Token is the one-time secret the message carries; senders must not log it.
type Notice struct {
	Kind      Kind
	To        string
	SubjectID string
	Token     string
	ExpiresAt time.Time
}

// Sender delivers notices. Delivery is best-effort from the caller's point of view.
type Sender interface {
	Send(ctx context.Context, n Notice) error
}
