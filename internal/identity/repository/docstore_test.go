package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"order-desk/backend/internal/docstore"
	"order-desk/backend/internal/identity/domain"
)

func newTestRepo(t *testing.T) *DocstoreRepository {
	t.Helper()
	store := docstore.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	return NewDocstoreRepository(store)
}

func seedCredential(t *testing.T, repo *DocstoreRepository, email string) *domain.Credential {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	c := &domain.Credential{Email: email, SubjectID: "sub-" + email, PasswordHash: "h0", CreatedAt: now, PasswordChangedAt: now}
	if err := repo.Create(context.Background(), c); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return c
}

func TestCreateAndGetByEmail(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedCredential(t, repo, "a@x.com")

	if err := repo.Create(ctx, &domain.Credential{Email: "a@x.com", SubjectID: "other"}); !errors.Is(err, ErrCredentialExists) {
		t.Fatalf("duplicate Create = %v, want ErrCredentialExists", err)
	}
	got, err := repo.GetByEmail(ctx, "a@x.com")
	if err != nil || got == nil {
		t.Fatalf("GetByEmail: %v, %v", got, err)
	}
	if got.SubjectID != "sub-a@x.com" || got.PasswordHash != "h0" || got.EmailVerified {
		t.Errorf("credential = %+v", got)
	}
	missing, err := repo.GetByEmail(ctx, "b@x.com")
	if err != nil || missing != nil {
		t.Fatalf("missing GetByEmail = %v, %v", missing, err)
	}
}

func TestResetTokenLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedCredential(t, repo, "a@x.com")
	expires := time.Now().Add(time.Hour).UTC()

	if err := repo.SetResetToken(ctx, "a@x.com", "hash-1", expires); err != nil {
		t.Fatalf("SetResetToken: %v", err)
	}
	got, err := repo.GetByResetTokenHash(ctx, "hash-1")
	if err != nil || got == nil || got.Email != "a@x.com" {
		t.Fatalf("GetByResetTokenHash = %+v, %v", got, err)
	}
	if got.ResetExpiresAt == nil || !got.ResetExpiresAt.Equal(expires) {
		t.Errorf("ResetExpiresAt = %v, want %v", got.ResetExpiresAt, expires)
	}

	// A newer token replaces the older one.
	if err := repo.SetResetToken(ctx, "a@x.com", "hash-2", expires); err != nil {
		t.Fatalf("SetResetToken: %v", err)
	}
	if err := repo.UpdatePassword(ctx, "a@x.com", "hash-1", "h1", time.Now()); !errors.Is(err, ErrTokenConsumed) {
		t.Fatalf("UpdatePassword with stale token = %v, want ErrTokenConsumed", err)
	}
	if err := repo.UpdatePassword(ctx, "a@x.com", "hash-2", "h1", time.Now()); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}
	if err := repo.UpdatePassword(ctx, "a@x.com", "hash-2", "h2", time.Now()); !errors.Is(err, ErrTokenConsumed) {
		t.Fatalf("second UpdatePassword = %v, want ErrTokenConsumed", err)
	}
	cred, _ := repo.GetByEmail(ctx, "a@x.com")
	if cred.PasswordHash != "h1" || cred.ResetTokenHash != "" || cred.ResetExpiresAt != nil {
		t.Errorf("after reset = %+v", cred)
	}
	if got, _ := repo.GetByResetTokenHash(ctx, "hash-2"); got != nil {
		t.Errorf("consumed token still resolves: %+v", got)
	}
}

func TestVerifyTokenLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedCredential(t, repo, "a@x.com")

	if err := repo.SetVerifyToken(ctx, "a@x.com", "v-1"); err != nil {
		t.Fatalf("SetVerifyToken: %v", err)
	}
	if got, _ := repo.GetByVerifyTokenHash(ctx, "v-1"); got == nil {
		t.Fatal("verify token not found")
	}
	if err := repo.MarkEmailVerified(ctx, "a@x.com", "v-1"); err != nil {
		t.Fatalf("MarkEmailVerified: %v", err)
	}
	if err := repo.MarkEmailVerified(ctx, "a@x.com", "v-1"); !errors.Is(err, ErrTokenConsumed) {
		t.Fatalf("second MarkEmailVerified = %v, want ErrTokenConsumed", err)
	}
	cred, _ := repo.GetByEmail(ctx, "a@x.com")
	if !cred.EmailVerified {
		t.Error("email not verified")
	}
}

func TestWritesAgainstMissingCredential(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	if err := repo.SetResetToken(ctx, "ghost@x.com", "h", time.Now()); !errors.Is(err, ErrCredentialNotFound) {
		t.Errorf("SetResetToken = %v, want ErrCredentialNotFound", err)
	}
	if err := repo.SetVerifyToken(ctx, "ghost@x.com", "h"); !errors.Is(err, ErrCredentialNotFound) {
		t.Errorf("SetVerifyToken = %v, want ErrCredentialNotFound", err)
	}
	if err := repo.UpdatePassword(ctx, "ghost@x.com", "h", "p", time.Now()); !errors.Is(err, ErrCredentialNotFound) {
		t.Errorf("UpdatePassword = %v, want ErrCredentialNotFound", err)
	}
	if got, err := repo.GetByResetTokenHash(ctx, ""); got != nil || err != nil {
		t.Errorf("empty hash lookup = %v, %v", got, err)
	}
}
