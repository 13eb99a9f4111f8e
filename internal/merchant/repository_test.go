package merchant

import (
	"context"
	"errors"
	"testing"
)

// TestInsert_AssignsID tests that insert fills identity and timestamps.
func TestInsert_AssignsID(t *testing.T) {
	repo := NewInMemoryApplicationRepository()
	ctx := context.Background()

	app := &Application{ExternalID: "ext_1", OrgID: "org_1", Status: StatusCreated}
	if err := repo.Insert(ctx, app); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if app.ID == "" {
		t.Error("expected generated ID")
	}
	if app.CreatedAt.IsZero() {
		t.Error("expected created timestamp")
	}
}

// TestInsert_DuplicateOrg tests that one organization gets one application.
func TestInsert_DuplicateOrg(t *testing.T) {
	repo := NewInMemoryApplicationRepository()
	ctx := context.Background()

	if err := repo.Insert(ctx, &Application{ExternalID: "ext_1", OrgID: "org_1"}); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	err := repo.Insert(ctx, &Application{ExternalID: "ext_2", OrgID: "org_1"})
	if !errors.Is(err, ErrApplicationExists) {
		t.Errorf("expected ErrApplicationExists, got %v", err)
	}
}

// TestGetByExternalID tests lookup by the gateway's application id.
func TestGetByExternalID(t *testing.T) {
	repo := NewInMemoryApplicationRepository()
	ctx := context.Background()

	app := &Application{ExternalID: "ext_1", OrgID: "org_1", Status: StatusCreated}
	if err := repo.Insert(ctx, app); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	got, err := repo.GetByExternalID(ctx, "ext_1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.ID != app.ID {
		t.Errorf("got id %s, want %s", got.ID, app.ID)
	}

	if _, err := repo.GetByExternalID(ctx, "ext_missing"); !errors.Is(err, ErrApplicationNotFound) {
		t.Errorf("expected ErrApplicationNotFound, got %v", err)
	}
}

// TestUpdate_RoundTrip tests that updates persist and copies do not alias.
func TestUpdate_RoundTrip(t *testing.T) {
	repo := NewInMemoryApplicationRepository()
	ctx := context.Background()

	app := &Application{ExternalID: "ext_1", OrgID: "org_1", Status: StatusCreated}
	if err := repo.Insert(ctx, app); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	app.Status = StatusSubmitted
	if err := repo.Update(ctx, app); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, err := repo.GetByID(ctx, app.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != StatusSubmitted {
		t.Errorf("status = %s, want submitted", got.Status)
	}

	// Mutating the returned copy must not leak into the store.
	got.Status = StatusDeclined
	again, _ := repo.GetByID(ctx, app.ID)
	if again.Status != StatusSubmitted {
		t.Error("repository returned an aliased record")
	}
}

// TestUpdate_NotFound tests updating a missing application.
func TestUpdate_NotFound(t *testing.T) {
	repo := NewInMemoryApplicationRepository()
	err := repo.Update(context.Background(), &Application{ID: "missing"})
	if !errors.Is(err, ErrApplicationNotFound) {
		t.Errorf("expected ErrApplicationNotFound, got %v", err)
	}
}
