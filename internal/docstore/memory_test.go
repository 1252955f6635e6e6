package docstore

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		s := NewMemoryStore()
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestMemoryStore_ClosedRejectsWrites(t *testing.T) {
	s := NewMemoryStore()
	_ = s.Close()
	if err := s.Put(context.Background(), "users", "u1", Fields{"a": 1}, true); !errors.Is(err, ErrClosed) {
		t.Errorf("Put after Close: err = %v, want ErrClosed", err)
	}
	if _, err := s.Subscribe(context.Background(), "users", "u1", func(Snapshot) {}, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe after Close: err = %v, want ErrClosed", err)
	}
	if err := s.Ping(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Ping after Close: err = %v, want ErrClosed", err)
	}
}

func TestMemoryStore_SubscribeEndsWithContext(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx, cancel := context.WithCancel(context.Background())
	rec := &snapshotRecorder{}
	if _, err := s.Subscribe(ctx, "users", "u1", rec.onChange, rec.onError); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	waitFor(t, func() bool { _, n := rec.last(); return n == 1 })
	cancel()
	_ = s.Put(context.Background(), "users", "u1", Fields{"a": 1}, true)
	_ = s.Put(context.Background(), "users", "u1", Fields{"a": 2}, true)
	if _, n := rec.last(); n > 2 {
		t.Errorf("snapshots after cancel = %d, want at most one in-flight delivery", n)
	}
}

func TestFieldsOf_RejectsNonObject(t *testing.T) {
	if _, err := FieldsOf([]string{"a"}); err == nil {
		t.Fatal("FieldsOf on a slice should fail")
	}
}

func TestValidateKey(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	if _, err := s.Get(context.Background(), "", "k"); err == nil {
		t.Error("Get with empty collection should fail")
	}
	if err := s.Put(context.Background(), "users", "", Fields{}, true); err == nil {
		t.Error("Put with empty key should fail")
	}
}
