package docstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type testDoc struct {
	Name    string      `json:"name"`
	Status  string      `json:"status"`
	Members []testEntry `json:"members"`
}

type testEntry struct {
	OrgID string `json:"organization_id"`
	Role  string `json:"role"`
}

// snapshotRecorder collects snapshots delivered to a subscription.
type snapshotRecorder struct {
	mu    sync.Mutex
	snaps []Snapshot
	errs  []error
}

func (r *snapshotRecorder) onChange(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *snapshotRecorder) onError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *snapshotRecorder) last() (Snapshot, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return Snapshot{}, 0
	}
	return r.snaps[len(r.snaps)-1], len(r.snaps)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), "users", "nobody")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("Get missing: err = %v, want ErrNotFound", err)
		}
	})

	t.Run("PutMergeAndReplace", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.Put(ctx, "users", "u1", Fields{"name": "Ada", "status": "active"}, false); err != nil {
			t.Fatalf("Put: %v", err)
		}
		if err := s.Put(ctx, "users", "u1", Fields{"status": "disabled"}, true); err != nil {
			t.Fatalf("Put merge: %v", err)
		}
		doc, err := s.Get(ctx, "users", "u1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		var got testDoc
		if err := doc.Decode(&got); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got.Name != "Ada" || got.Status != "disabled" {
			t.Errorf("after merge = %+v, want name Ada status disabled", got)
		}
		if err := s.Put(ctx, "users", "u1", Fields{"status": "active"}, false); err != nil {
			t.Fatalf("Put replace: %v", err)
		}
		doc, err = s.Get(ctx, "users", "u1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		got = testDoc{}
		if err := doc.Decode(&got); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got.Name != "" || got.Status != "active" {
			t.Errorf("after replace = %+v, want only status", got)
		}
	})

	t.Run("CreateConflict", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.Create(ctx, "invite_codes", "K7M2PQ", Fields{"status": "active"}); err != nil {
			t.Fatalf("Create: %v", err)
		}
		err := s.Create(ctx, "invite_codes", "K7M2PQ", Fields{"status": "active"})
		if !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("second Create: err = %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("PutIf", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		err := s.PutIf(ctx, "invite_codes", "missing", Fields{"status": "active"}, Fields{"status": "used"})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("PutIf missing: err = %v, want ErrNotFound", err)
		}
		if err := s.Create(ctx, "invite_codes", "ABC234", Fields{"status": "active", "name": "x"}); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := s.PutIf(ctx, "invite_codes", "ABC234", Fields{"status": "active"}, Fields{"status": "used"}); err != nil {
			t.Fatalf("PutIf: %v", err)
		}
		err = s.PutIf(ctx, "invite_codes", "ABC234", Fields{"status": "active"}, Fields{"status": "used"})
		if !errors.Is(err, ErrConditionFailed) {
			t.Fatalf("second PutIf: err = %v, want ErrConditionFailed", err)
		}
		doc, _ := s.Get(ctx, "invite_codes", "ABC234")
		var got testDoc
		if err := doc.Decode(&got); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got.Status != "used" || got.Name != "x" {
			t.Errorf("after PutIf = %+v", got)
		}
	})

	t.Run("PutIfConcurrentSingleWinner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.Create(ctx, "invite_codes", "RACE22", Fields{"status": "active"}); err != nil {
			t.Fatalf("Create: %v", err)
		}
		const n = 8
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.PutIf(ctx, "invite_codes", "RACE22", Fields{"status": "active"}, Fields{"status": "used"})
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				} else if !errors.Is(err, ErrConditionFailed) {
					t.Errorf("PutIf: unexpected err %v", err)
				}
			}()
		}
		wg.Wait()
		if wins != 1 {
			t.Errorf("wins = %d, want exactly 1", wins)
		}
	})

	t.Run("Query", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		docs := map[string]testDoc{
			"a": {Name: "a", Status: "active", Members: []testEntry{{OrgID: "org-1", Role: "Owner"}}},
			"b": {Name: "b", Status: "used", Members: []testEntry{{OrgID: "org-1", Role: "Staff"}, {OrgID: "org-2", Role: "Viewer"}}},
			"c": {Name: "c", Status: "active", Members: []testEntry{{OrgID: "org-2", Role: "Admin"}}},
		}
		for k, d := range docs {
			f, err := FieldsOf(d)
			if err != nil {
				t.Fatalf("FieldsOf: %v", err)
			}
			if err := s.Put(ctx, "users", k, f, false); err != nil {
				t.Fatalf("Put: %v", err)
			}
		}
		active, err := s.Query(ctx, "users", Eq("status", "active"))
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(active) != 2 || active[0].Key != "a" || active[1].Key != "c" {
			t.Errorf("active keys = %v, want [a c]", keysOf(active))
		}
		inOrg1, err := s.Query(ctx, "users", ArrayContains("members", map[string]any{"organization_id": "org-1"}))
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(inOrg1) != 2 || inOrg1[0].Key != "a" || inOrg1[1].Key != "b" {
			t.Errorf("org-1 keys = %v, want [a b]", keysOf(inOrg1))
		}
		both, err := s.Query(ctx, "users",
			ArrayContains("members", map[string]any{"organization_id": "org-2"}), Eq("status", "active"))
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(both) != 1 || both[0].Key != "c" {
			t.Errorf("org-2 active keys = %v, want [c]", keysOf(both))
		}
	})

	t.Run("SubscribeLifecycle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		rec := &snapshotRecorder{}
		unsubscribe, err := s.Subscribe(ctx, "users", "u9", rec.onChange, rec.onError)
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		defer unsubscribe()

		waitFor(t, func() bool { _, n := rec.last(); return n >= 1 })
		if snap, _ := rec.last(); snap.Exists {
			t.Fatal("initial snapshot should report a missing document")
		}

		if err := s.Put(ctx, "users", "u9", Fields{"name": "Grace"}, false); err != nil {
			t.Fatalf("Put: %v", err)
		}
		waitFor(t, func() bool { snap, _ := rec.last(); return snap.Exists })
		snap, _ := rec.last()
		var got testDoc
		if err := snap.Decode(&got); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got.Name != "Grace" {
			t.Errorf("name = %q, want Grace", got.Name)
		}

		if err := s.Delete(ctx, "users", "u9"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		waitFor(t, func() bool { snap, _ := rec.last(); return !snap.Exists })

		unsubscribe()
		_, before := rec.last()
		if err := s.Put(ctx, "users", "u9", Fields{"name": "after"}, false); err != nil {
			t.Fatalf("Put: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
		if _, after := rec.last(); after != before {
			t.Errorf("received %d snapshots after unsubscribe", after-before)
		}
	})
}

func keysOf(docs []*Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Key
	}
	return out
}
