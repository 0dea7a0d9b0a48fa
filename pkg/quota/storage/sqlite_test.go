package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteBackend_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "ledger.db")

	backend, err := NewSQLiteBackend(dbPath)
	if err != nil {
		t.Fatalf("Failed to open backend: %v", err)
	}

	if err := backend.SetLimit(ctx, "user", "u1", "daily", 5000); err != nil {
		t.Fatalf("SetLimit failed: %v", err)
	}
	outcome, err := backend.Reserve(ctx, &ReserveRequest{
		RunID:      "run-1",
		WindowKind: "daily",
		WindowID:   "2024-01-01",
		Amount:     400,
		Buckets:    []ReserveBucket{{Scope: "user", Key: "u1", LimitTokens: 5000}},
	})
	if err != nil || !outcome.Granted {
		t.Fatalf("Reserve failed: %v", err)
	}
	refs := []BucketRef{{Scope: "user", Key: "u1"}}
	if err := backend.Commit(ctx, "run-1", "daily", "2024-01-01", refs, 350); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if _, err := backend.BootstrapAdmins(ctx, []string{"alice"}); err != nil {
		t.Fatalf("BootstrapAdmins failed: %v", err)
	}

	if err := backend.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewSQLiteBackend(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen backend: %v", err)
	}
	defer reopened.Close()

	limit, err := reopened.GetLimit(ctx, "user", "u1", "daily")
	if err != nil {
		t.Fatalf("GetLimit failed: %v", err)
	}
	if limit == nil || *limit != 5000 {
		t.Errorf("Expected persisted override 5000, got %v", limit)
	}

	used, err := reopened.Usage(ctx, "user", "u1", "daily", "2024-01-01")
	if err != nil {
		t.Fatalf("Usage failed: %v", err)
	}
	if used != 350 {
		t.Errorf("Expected persisted usage 350, got %d", used)
	}

	ok, err := reopened.IsAdmin(ctx, "alice")
	if err != nil {
		t.Fatalf("IsAdmin failed: %v", err)
	}
	if !ok {
		t.Error("Expected admin to survive restart")
	}
}

func TestSQLiteBackend_StaleReservationSurvivesRestartUntilSwept(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "ledger.db")

	backend, err := NewSQLiteBackend(dbPath)
	if err != nil {
		t.Fatalf("Failed to open backend: %v", err)
	}
	outcome, err := backend.Reserve(ctx, &ReserveRequest{
		RunID:      "crashed-run",
		WindowKind: "daily",
		WindowID:   "2024-01-01",
		Amount:     400,
		Buckets:    []ReserveBucket{{Scope: "user", Key: "u1", LimitTokens: 1000}},
	})
	if err != nil || !outcome.Granted {
		t.Fatalf("Reserve failed: %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// A crash between reserve and reconcile leaves the hold on disk.
	reopened, err := NewSQLiteBackend(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen backend: %v", err)
	}
	defer reopened.Close()

	reserved, err := reopened.ReservedTotal(ctx, "user", "u1", "daily", "2024-01-01")
	if err != nil {
		t.Fatalf("ReservedTotal failed: %v", err)
	}
	if reserved != 400 {
		t.Errorf("Expected hold to persist, got %d", reserved)
	}

	deleted, err := reopened.SweepReservations(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("SweepReservations failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 swept, got %d", deleted)
	}
}

func TestNewSQLiteBackend_EmptyPath(t *testing.T) {
	if _, err := NewSQLiteBackendWithConfig(SQLiteBackendConfig{}); err == nil {
		t.Fatal("Expected empty path to be rejected")
	}
}

func TestSQLiteBackend_CloseIdempotent(t *testing.T) {
	backend, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Failed to open backend: %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("Second close failed: %v", err)
	}
}
