package quota

import (
	"context"
	"testing"
)

func TestAdmin_BootstrapOnlyWhenEmpty(t *testing.T) {
	ledger := testLedger(t)
	ctx := context.Background()

	if err := ledger.EnsureBootstrap(ctx, []string{"alice", "bob"}); err != nil {
		t.Fatalf("EnsureBootstrap failed: %v", err)
	}

	for _, userID := range []string{"alice", "bob"} {
		ok, err := ledger.IsAdmin(ctx, userID)
		if err != nil {
			t.Fatalf("IsAdmin failed: %v", err)
		}
		if !ok {
			t.Errorf("Expected %s to be seeded as admin", userID)
		}
	}

	// A second bootstrap with a different seed list changes nothing.
	if err := ledger.EnsureBootstrap(ctx, []string{"mallory"}); err != nil {
		t.Fatalf("EnsureBootstrap failed: %v", err)
	}
	ok, err := ledger.IsAdmin(ctx, "mallory")
	if err != nil {
		t.Fatalf("IsAdmin failed: %v", err)
	}
	if ok {
		t.Error("Bootstrap must not seed into a non-empty registry")
	}
}

func TestAdmin_BootstrapSkippedAfterLastAdminRemoved(t *testing.T) {
	ledger := testLedger(t)
	ctx := context.Background()

	if err := ledger.EnsureBootstrap(ctx, []string{"alice"}); err != nil {
		t.Fatalf("EnsureBootstrap failed: %v", err)
	}
	if err := ledger.RemoveAdmin(ctx, "alice"); err != nil {
		t.Fatalf("RemoveAdmin failed: %v", err)
	}

	// The registry was seeded once; removing the seed does not trigger a
	// second bootstrap in the same process.
	if err := ledger.EnsureBootstrap(ctx, []string{"alice"}); err != nil {
		t.Fatalf("EnsureBootstrap failed: %v", err)
	}
	ok, err := ledger.IsAdmin(ctx, "alice")
	if err != nil {
		t.Fatalf("IsAdmin failed: %v", err)
	}
	if ok {
		t.Error("Expected no re-seed after manual removal")
	}
}

func TestAdmin_AddRemoveList(t *testing.T) {
	ledger := testLedger(t)
	ctx := context.Background()

	if err := ledger.AddAdmin(ctx, "alice"); err != nil {
		t.Fatalf("AddAdmin failed: %v", err)
	}
	// Adding twice is a no-op.
	if err := ledger.AddAdmin(ctx, "alice"); err != nil {
		t.Fatalf("Repeated AddAdmin failed: %v", err)
	}
	if err := ledger.AddAdmin(ctx, "bob"); err != nil {
		t.Fatalf("AddAdmin failed: %v", err)
	}

	admins, err := ledger.ListAdmins(ctx)
	if err != nil {
		t.Fatalf("ListAdmins failed: %v", err)
	}
	if len(admins) != 2 {
		t.Fatalf("Expected 2 admins, got %d", len(admins))
	}

	if err := ledger.RemoveAdmin(ctx, "alice"); err != nil {
		t.Fatalf("RemoveAdmin failed: %v", err)
	}
	// Removing an unknown user is a no-op.
	if err := ledger.RemoveAdmin(ctx, "nobody"); err != nil {
		t.Fatalf("RemoveAdmin of unknown user failed: %v", err)
	}

	ok, err := ledger.IsAdmin(ctx, "alice")
	if err != nil {
		t.Fatalf("IsAdmin failed: %v", err)
	}
	if ok {
		t.Error("Expected alice removed")
	}
	ok, err = ledger.IsAdmin(ctx, "bob")
	if err != nil {
		t.Fatalf("IsAdmin failed: %v", err)
	}
	if !ok {
		t.Error("Expected bob untouched")
	}
}

func TestAdmin_AddRejectsEmptyUserID(t *testing.T) {
	ledger := testLedger(t)
	if err := ledger.AddAdmin(context.Background(), ""); err == nil {
		t.Fatal("Expected empty user id to be rejected")
	}
}
