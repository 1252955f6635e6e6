package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"order-desk/backend/internal/docstore"
	"order-desk/backend/internal/organization/domain"
)

func newTestRepo(t *testing.T) *DocstoreRepository {
	t.Helper()
	store := docstore.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	return NewDocstoreRepository(store)
}

func TestDocstoreRepository_CreateGet(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	o := &domain.Org{ID: "org-1", Name: "Acme", OwnerSubjectID: "sub-1", Subscription: domain.NewFreeSubscription(start)}
	if err := repo.CreateOrganization(ctx, o); err != nil {
		t.Fatalf("CreateOrganization: %v", err)
	}
	if err := repo.CreateOrganization(ctx, o); !errors.Is(err, ErrOrganizationExists) {
		t.Fatalf("duplicate = %v, want ErrOrganizationExists", err)
	}
	got, err := repo.GetOrganizationByID(ctx, "org-1")
	if err != nil || got == nil {
		t.Fatalf("Get: %v, %v", got, err)
	}
	if got.Name != "Acme" || got.Subscription.Plan != domain.PlanFree || !got.Subscription.PeriodStart.Equal(start) || got.Limits.MaxOrganizations != 1 {
		t.Errorf("unexpected org %+v", got)
	}
	if missing, err := repo.GetOrganizationByID(ctx, "org-x"); missing != nil || err != nil {
		t.Errorf("missing = %v, %v", missing, err)
	}
}

func TestDocstoreRepository_UpdateSubscription(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	if err := repo.UpdateSubscription(ctx, "org-x", domain.Subscription{Plan: domain.PlanPro}); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("missing org = %v", err)
	}
	_ = repo.CreateOrganization(ctx, &domain.Org{ID: "org-1", Name: "Acme", OwnerSubjectID: "sub-1"})
	if err := repo.UpdateSubscription(ctx, "org-1", domain.Subscription{Plan: domain.PlanPro, Status: domain.SubscriptionActive}); err != nil {
		t.Fatalf("UpdateSubscription: %v", err)
	}
	got, _ := repo.GetOrganizationByID(ctx, "org-1")
	if got.Subscription.Plan != domain.PlanPro || got.Limits.MaxOrganizations != 3 || got.Name != "Acme" {
		t.Errorf("after update: %+v", got)
	}
}

func TestDocstoreRepository_ListByOwner(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	_ = repo.CreateOrganization(ctx, &domain.Org{ID: "org-1", Name: "A", OwnerSubjectID: "sub-1"})
	_ = repo.CreateOrganization(ctx, &domain.Org{ID: "org-2", Name: "B", OwnerSubjectID: "sub-2"})
	_ = repo.CreateOrganization(ctx, &domain.Org{ID: "org-3", Name: "C", OwnerSubjectID: "sub-1"})
	got, err := repo.ListByOwner(ctx, "sub-1")
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if len(got) != 2 || got[0].ID != "org-1" || got[1].ID != "org-3" {
		t.Errorf("owned = %+v", got)
	}
}
