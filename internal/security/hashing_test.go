package security

import (
	"errors"
	"testing"
)

func TestHasher_HashAndCompare(t *testing.T) {
	h := NewHasher(4)
	hash, err := h.Hash("Secret-Pass-123")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "" || hash == "Secret-Pass-123" {
		t.Fatal("Hash returned plaintext or empty")
	}
	if err := h.Compare(hash, "Secret-Pass-123"); err != nil {
		t.Fatalf("Compare: %v", err)
	}
}

func TestHasher_CompareWrongPassword(t *testing.T) {
	h := NewHasher(4)
	hash, _ := h.Hash("Secret-Pass-123")
	if err := h.Compare(hash, "wrong"); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("Compare wrong = %v, want ErrPasswordMismatch", err)
	}
	if err := h.Compare("not-a-hash", "wrong"); err == nil || errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("Compare malformed hash = %v", err)
	}
}

func TestHasher_Cost(t *testing.T) {
	tests := []struct{ in, want int }{{12, 12}, {0, DefaultBcryptCost}, {2, 4}, {40, 31}}
	for _, tt := range tests {
		if got := NewHasher(tt.in).Cost; got != tt.want {
			t.Errorf("NewHasher(%d).Cost = %d, want %d", tt.in, got, tt.want)
		}
	}
}
