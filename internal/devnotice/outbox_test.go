package devnotice

import (
	"context"
	"sync"
	"testing"
	"time"

	"order-desk/backend/internal/notify"
)

func TestOutbox_SendAndLast(t *testing.T) {
	o := NewOutbox()
	ctx := context.Background()
	_ = o.Send(ctx, notify.Notice{Kind: notify.KindPasswordReset, To: "a@x.com", Token: "t1"})
	_ = o.Send(ctx, notify.Notice{Kind: notify.KindPasswordReset, To: "a@x.com", Token: "t2"})
	_ = o.Send(ctx, notify.Notice{Kind: notify.KindVerification, To: "a@x.com", Token: "v1"})

	n, ok := o.Last(ctx, "a@x.com", notify.KindPasswordReset)
	if !ok || n.Token != "t2" {
		t.Errorf("Last reset = %+v, %v; want t2", n, ok)
	}
	n, ok = o.Last(ctx, "a@x.com", notify.KindVerification)
	if !ok || n.Token != "v1" {
		t.Errorf("Last verification = %+v, %v", n, ok)
	}
	if _, ok := o.Last(ctx, "b@x.com", notify.KindVerification); ok {
		t.Error("unknown recipient should be missing")
	}
}

func TestOutbox_Expiry(t *testing.T) {
	o := NewOutbox()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	o.nowF = func() time.Time { return now }
	ctx := context.Background()
	_ = o.Send(ctx, notify.Notice{Kind: notify.KindPasswordReset, To: "a@x.com", ExpiresAt: now.Add(time.Minute)})
	_ = o.Send(ctx, notify.Notice{Kind: notify.KindVerification, To: "a@x.com"})

	now = now.Add(2 * time.Minute)
	if _, ok := o.Last(ctx, "a@x.com", notify.KindPasswordReset); ok {
		t.Error("expired notice should be gone")
	}
	if _, ok := o.Last(ctx, "a@x.com", notify.KindVerification); !ok {
		t.Error("notice without expiry should live for DefaultTTL")
	}
	now = now.Add(DefaultTTL)
	if _, ok := o.Last(ctx, "a@x.com", notify.KindVerification); ok {
		t.Error("notice should expire after DefaultTTL")
	}
}

func TestOutbox_Concurrent(t *testing.T) {
	o := NewOutbox()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = o.Send(context.Background(), notify.Notice{Kind: notify.KindVerification, To: "a@x.com"})
			o.Last(context.Background(), "a@x.com", notify.KindVerification)
		}()
	}
	wg.Wait()
}
