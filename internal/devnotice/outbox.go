// Package devnotice keeps the last notice per recipient in memory so development setups can complete verification
// and password reset without a mail API. Not used in production.
package devnotice

import (
	"context"
	"log"
	"sync"
	"time"

	"order-desk/backend/internal/notify"
)

// DefaultTTL bounds how long a notice stays readable when it carries no expiry of its own.
const DefaultTTL = 15 * time.Minute

type entry struct {
	notice    notify.Notice
	expiresAt time.Time
}

// Outbox is an in-memory notify.Sender.
type Outbox struct {
	mu   sync.RWMutex
	m    map[string]entry
	nowF func() time.Time
}

// NewOutbox returns an empty outbox.
func NewOutbox() *Outbox {
	return &Outbox{m: make(map[string]entry), nowF: time.Now}
}

func outboxKey(to string, kind notify.Kind) string {
	return string(kind) + "|" + to
}

// Send stores n, replacing any earlier notice of the same kind for the recipient.
func (o *Outbox) Send(ctx context.Context, n notify.Notice) error {
	expiresAt := n.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = o.nowF().Add(DefaultTTL)
	}
	o.mu.Lock()
	o.m[outboxKey(n.To, n.Kind)] = entry{notice: n, expiresAt: expiresAt}
	o.mu.Unlock()
	log.Printf("devnotice: %s notice for %s held in dev outbox", n.Kind, n.To)
	return nil
}

// Last returns the latest unexpired notice of kind for to.
func (o *Outbox) Last(ctx context.Context, to string, kind notify.Kind) (notify.Notice, bool) {
	k := outboxKey(to, kind)
	o.mu.RLock()
	e, ok := o.m[k]
	o.mu.RUnlock()
	if !ok {
		return notify.Notice{}, false
	}
	if !e.expiresAt.After(o.nowF()) {
		o.mu.Lock()
		delete(o.m, k)
		o.mu.Unlock()
		return notify.Notice{}, false
	}
	return e.notice, true
}
