package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"order-desk/backend/internal/docstore"
	"order-desk/backend/internal/invite/domain"
	"order-desk/backend/internal/invite/repository"
	membership "order-desk/backend/internal/membership/domain"
	"order-desk/backend/internal/telemetry"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRegistry(t *testing.T) (*Registry, *testClock) {
	t.Helper()
	store := docstore.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	clock := &testClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	r := NewRegistry(repository.NewDocstoreRepository(store), 0, telemetry.NewCounters(nil))
	r.now = clock.Now
	return r, clock
}

func staffRequest(org string) GenerateRequest {
	return GenerateRequest{
		OrgID: org, Role: membership.RoleStaff, Permissions: membership.ApplyRolePreset(membership.RoleStaff),
		CreatedBy: "owner-1", TargetEmail: "p@x.com",
	}
}

func TestRegistry_GenerateThenRedeemRoundTrip(t *testing.T) {
	ctx := context.Background()
	r, clock := newTestRegistry(t)
	custom := membership.PermissionSet{CanViewStatistics: true, CanExport: true}
	c, err := r.Generate(ctx, GenerateRequest{OrgID: "org-1", Role: membership.RoleViewer, Permissions: custom, CreatedBy: "owner-1"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !domain.ValidFormat(c.Code) || c.Status != domain.StatusActive {
		t.Fatalf("generated %+v", c)
	}
	if want := clock.Now().Add(30 * 24 * time.Hour); !c.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", c.ExpiresAt, want)
	}
	m, err := r.Redeem(ctx, c.Code, "sub-p")
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if m.OrgID != "org-1" || m.Role != membership.RoleViewer || m.Permissions != custom {
		t.Errorf("membership = %+v, want snapshot of generate request", m)
	}
	if m.Permissions == membership.ApplyRolePreset(membership.RoleViewer) {
		t.Error("membership should carry the issued snapshot, not the current preset")
	}
}

func TestRegistry_RedeemSucceedsAtMostOnce(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	c, _ := r.Generate(ctx, staffRequest("org-1"))
	if _, err := r.Redeem(ctx, c.Code, "sub-p"); err != nil {
		t.Fatalf("first Redeem: %v", err)
	}
	for _, who := range []string{"sub-q", "sub-p"} {
		if _, err := r.Redeem(ctx, c.Code, who); !errors.Is(err, domain.ErrCodeUsed) {
			t.Errorf("Redeem by %s = %v, want ErrCodeUsed", who, err)
		}
	}
	stored, _ := r.Get(ctx, c.Code)
	if stored.UsedBySubjectID != "sub-p" {
		t.Errorf("UsedBySubjectID = %q, want sub-p", stored.UsedBySubjectID)
	}
}

func TestRegistry_ConcurrentRedeemSingleWinner(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	c, _ := r.Generate(ctx, staffRequest("org-1"))

	const racers = 8
	var wg sync.WaitGroup
	results := make(chan error, racers)
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := r.Redeem(ctx, c.Code, string(rune('a'+i)))
			results <- err
		}(i)
	}
	close(start)
	wg.Wait()
	close(results)
	wins := 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrCodeUsed):
		default:
			t.Errorf("unexpected error %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("wins = %d, want exactly 1", wins)
	}
}

func TestRegistry_ExpiredActiveCodeFails(t *testing.T) {
	ctx := context.Background()
	r, clock := newTestRegistry(t)
	c, _ := r.Generate(ctx, staffRequest("org-1"))
	clock.Advance(30*24*time.Hour + time.Second)
	if _, err := r.Redeem(ctx, c.Code, "sub-p"); !errors.Is(err, domain.ErrCodeExpired) {
		t.Fatalf("Redeem expired = %v, want ErrCodeExpired", err)
	}
	stored, _ := r.Get(ctx, c.Code)
	if stored.Status != domain.StatusActive {
		t.Errorf("expired redemption must not change status, got %s", stored.Status)
	}
	if _, err := r.Validate(ctx, c.Code); !errors.Is(err, domain.ErrCodeExpired) {
		t.Errorf("Validate expired = %v", err)
	}
}

func TestRegistry_UsedTakesPrecedenceOverExpired(t *testing.T) {
	ctx := context.Background()
	r, clock := newTestRegistry(t)
	c, _ := r.Generate(ctx, staffRequest("org-1"))
	_, _ = r.Redeem(ctx, c.Code, "sub-p")
	clock.Advance(31 * 24 * time.Hour)
	if _, err := r.Redeem(ctx, c.Code, "sub-q"); !errors.Is(err, domain.ErrCodeUsed) {
		t.Fatalf("Redeem used+expired = %v, want ErrCodeUsed", err)
	}
}

func TestRegistry_NotFoundAndNormalization(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	for _, code := range []string{"ZZZZZZ", "", "bad!", "K0M2PQ"} {
		if _, err := r.Redeem(ctx, code, "sub-p"); !errors.Is(err, domain.ErrCodeNotFound) {
			t.Errorf("Redeem(%q) = %v, want ErrCodeNotFound", code, err)
		}
	}
	c, _ := r.Generate(ctx, staffRequest("org-1"))
	lower := " " + strings.ToLower(c.Code) + " "
	if _, err := r.Validate(ctx, lower); err != nil {
		t.Errorf("Validate(%q) = %v, want normalized match", lower, err)
	}
}

func TestRegistry_GenerateRetriesOnCollision(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	seq := []string{"AAAAAA", "AAAAAA", "AAAAAA", "BBBBBB"}
	var mu sync.Mutex
	r.newCode = func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		code := seq[0]
		seq = seq[1:]
		return code, nil
	}
	first, err := r.Generate(ctx, staffRequest("org-1"))
	if err != nil || first.Code != "AAAAAA" {
		t.Fatalf("first Generate = %+v, %v", first, err)
	}
	second, err := r.Generate(ctx, staffRequest("org-2"))
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	if second.Code != "BBBBBB" {
		t.Errorf("second code = %q, want BBBBBB after collisions", second.Code)
	}
	stored, _ := r.Get(ctx, "AAAAAA")
	if stored.OrgID != "org-1" {
		t.Error("collision must not overwrite the existing code")
	}
}

func TestRegistry_GenerateStopsWhenContextDone(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.newCode = func() (string, error) { return "AAAAAA", nil }
	if _, err := r.Generate(context.Background(), staffRequest("org-1")); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := r.Generate(ctx, staffRequest("org-1")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Generate under permanent collision = %v, want deadline exceeded", err)
	}
}

func TestRegistry_GenerateRequiresFields(t *testing.T) {
	r, _ := newTestRegistry(t)
	if _, err := r.Generate(context.Background(), GenerateRequest{OrgID: "org-1"}); err == nil {
		t.Fatal("expected error for missing role and creator")
	}
}

func TestRegistry_Revoke(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	c, _ := r.Generate(ctx, staffRequest("org-1"))
	if err := r.Revoke(ctx, c.Code); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := r.Redeem(ctx, c.Code, "sub-p"); !errors.Is(err, domain.ErrCodeNotFound) {
		t.Errorf("Redeem revoked = %v, want ErrCodeNotFound", err)
	}
	used, _ := r.Generate(ctx, staffRequest("org-1"))
	_, _ = r.Redeem(ctx, used.Code, "sub-p")
	if err := r.Revoke(ctx, used.Code); !errors.Is(err, domain.ErrCodeUsed) {
		t.Errorf("Revoke used = %v, want ErrCodeUsed", err)
	}
}

func TestRegistry_ListActiveAndPurge(t *testing.T) {
	ctx := context.Background()
	r, clock := newTestRegistry(t)
	old, _ := r.Generate(ctx, staffRequest("org-1"))
	clock.Advance(20 * 24 * time.Hour)
	fresh, _ := r.Generate(ctx, staffRequest("org-1"))
	redeemed, _ := r.Generate(ctx, staffRequest("org-1"))
	_, _ = r.Redeem(ctx, redeemed.Code, "sub-p")
	_, _ = r.Generate(ctx, staffRequest("org-2"))
	clock.Advance(11 * 24 * time.Hour)

	active, err := r.ListActive(ctx, "org-1")
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 1 || active[0].Code != fresh.Code {
		t.Errorf("active = %+v, want only %s", active, fresh.Code)
	}
	n, err := r.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d, want 1", n)
	}
	if _, err := r.Get(ctx, old.Code); !errors.Is(err, domain.ErrCodeNotFound) {
		t.Errorf("expired code still stored: %v", err)
	}
	if _, err := r.Get(ctx, redeemed.Code); err != nil {
		t.Errorf("used code must be kept: %v", err)
	}
}
