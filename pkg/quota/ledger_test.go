package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"ledgerhq/tokenledger/pkg/quota/storage"
)

func testLedger(t *testing.T) *Ledger {
	t.Helper()
	return NewLedger(storage.NewMemoryBackend(), Options{
		Enabled:  true,
		Defaults: CompiledLimitDefaults(),
	})
}

func testWindow(id string) Window {
	return Window{Kind: WindowKindDaily, ID: id, TimeZone: "UTC"}
}

func TestLedger_ReserveReconcileLifecycle(t *testing.T) {
	ledger := testLedger(t)
	ctx := context.Background()
	w := testWindow("2024-01-01")
	bucket := UserBucket("u1")
	buckets := []Bucket{bucket}

	if err := ledger.SetLimit(ctx, bucket, WindowKindDaily, 1000); err != nil {
		t.Fatalf("SetLimit failed: %v", err)
	}

	// Reserve 400 within the 1000 limit.
	decision, err := ledger.Reserve(ctx, "run-1", w, buckets, 400)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("Expected reserve of 400 to be granted: %s", decision.Reason)
	}
	if decision.ReservedTokens != 400 {
		t.Errorf("Expected 400 reserved, got %d", decision.ReservedTokens)
	}

	// A second run asking for 700 must be rejected: only 600 remains.
	decision, err = ledger.Reserve(ctx, "run-2", w, buckets, 700)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if decision.Allowed {
		t.Fatal("Expected reserve of 700 to be rejected with 600 available")
	}
	if decision.Reason == "" {
		t.Error("Expected rejection reason to be set")
	}
	if len(decision.Buckets) != 1 {
		t.Fatalf("Expected 1 availability entry, got %d", len(decision.Buckets))
	}
	if decision.Buckets[0].Available != 600 {
		t.Errorf("Expected 600 available, got %d", decision.Buckets[0].Available)
	}

	// The first run's hold must be untouched by the rejection.
	snap, err := ledger.Snapshot(ctx, bucket, w)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Reserved != 400 {
		t.Errorf("Expected reservation of 400 untouched, got %d", snap.Reserved)
	}

	// Reconcile the actual cost of 350.
	if err := ledger.Reconcile(ctx, "run-1", w, buckets, 350); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	snap, err = ledger.Snapshot(ctx, bucket, w)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Used != 350 {
		t.Errorf("Expected used 350, got %d", snap.Used)
	}
	if snap.Reserved != 0 {
		t.Errorf("Expected reservation cleared, got %d", snap.Reserved)
	}
	if snap.Remaining == nil || *snap.Remaining != 650 {
		t.Errorf("Expected remaining 650, got %v", snap.Remaining)
	}
}

func TestLedger_Conservation(t *testing.T) {
	// After a sequence of reserve/reconcile pairs, committed usage must
	// equal the sum of actual costs. Reserved amounts never leak into it.
	ledger := testLedger(t)
	ctx := context.Background()
	w := testWindow("2024-01-01")
	bucket := UserBucket("u1")
	buckets := []Bucket{bucket}

	if err := ledger.SetLimit(ctx, bucket, WindowKindDaily, 100000); err != nil {
		t.Fatalf("SetLimit failed: %v", err)
	}

	actuals := []int64{120, 0, 333, 47, 999}
	var wantUsed int64
	for i, actual := range actuals {
		runID := NewRunID()
		decision, err := ledger.Reserve(ctx, runID, w, buckets, 2000)
		if err != nil {
			t.Fatalf("Reserve %d failed: %v", i, err)
		}
		if !decision.Allowed {
			t.Fatalf("Reserve %d unexpectedly rejected: %s", i, decision.Reason)
		}
		if err := ledger.Reconcile(ctx, runID, w, buckets, actual); err != nil {
			t.Fatalf("Reconcile %d failed: %v", i, err)
		}
		wantUsed += actual
	}

	snap, err := ledger.Snapshot(ctx, bucket, w)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Used != wantUsed {
		t.Errorf("Expected used %d, got %d", wantUsed, snap.Used)
	}
	if snap.Reserved != 0 {
		t.Errorf("Expected no live reservations, got %d", snap.Reserved)
	}
}

func TestLedger_NoOvershootUnderConcurrency(t *testing.T) {
	// N concurrent reserves whose sum exceeds the limit: the granted
	// subset plus existing usage must never exceed the limit.
	ledger := testLedger(t)
	ctx := context.Background()
	w := testWindow("2024-01-01")
	bucket := UserBucket("u1")
	buckets := []Bucket{bucket}

	const limit = 1000
	const workers = 20
	const amount = 150 // 20 * 150 = 3000 >> 1000

	if err := ledger.SetLimit(ctx, bucket, WindowKindDaily, limit); err != nil {
		t.Fatalf("SetLimit failed: %v", err)
	}

	var wg sync.WaitGroup
	granted := make([]bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decision, err := ledger.Reserve(ctx, NewRunID(), w, buckets, amount)
			if err != nil {
				t.Errorf("Reserve failed: %v", err)
				return
			}
			granted[i] = decision.Allowed
		}(i)
	}
	wg.Wait()

	var grantedTotal int64
	for _, ok := range granted {
		if ok {
			grantedTotal += amount
		}
	}
	if grantedTotal > limit {
		t.Errorf("Granted reservations total %d exceeds limit %d", grantedTotal, limit)
	}
	if grantedTotal == 0 {
		t.Error("Expected at least one reservation to be granted")
	}

	snap, err := ledger.Snapshot(ctx, bucket, w)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Used+snap.Reserved > limit {
		t.Errorf("used+reserved = %d exceeds limit %d", snap.Used+snap.Reserved, limit)
	}
	if snap.Reserved != grantedTotal {
		t.Errorf("Expected reserved %d, got %d", grantedTotal, snap.Reserved)
	}
}

func TestLedger_AtomicMultiBucketGrant(t *testing.T) {
	// A reserve spanning a bucket with room and a bucket without must
	// grant neither.
	ledger := testLedger(t)
	ctx := context.Background()
	w := testWindow("2024-01-01")
	roomy := UserBucket("u1")
	full := TopicBucket("t1")

	if err := ledger.SetLimit(ctx, roomy, WindowKindDaily, 10000); err != nil {
		t.Fatalf("SetLimit failed: %v", err)
	}
	if err := ledger.SetLimit(ctx, full, WindowKindDaily, 100); err != nil {
		t.Fatalf("SetLimit failed: %v", err)
	}

	decision, err := ledger.Reserve(ctx, "run-1", w, []Bucket{roomy, full}, 500)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if decision.Allowed {
		t.Fatal("Expected multi-bucket reserve to be rejected")
	}

	// No hold may exist on the bucket that had room.
	snap, err := ledger.Snapshot(ctx, roomy, w)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Reserved != 0 {
		t.Errorf("Expected no partial reservation on %s, got %d", roomy, snap.Reserved)
	}

	// The decision must still report availability for every checked bucket.
	if len(decision.Buckets) != 2 {
		t.Errorf("Expected availability for 2 buckets, got %d", len(decision.Buckets))
	}
}

func TestLedger_WindowIsolation(t *testing.T) {
	ledger := testLedger(t)
	ctx := context.Background()
	bucket := UserBucket("u1")
	buckets := []Bucket{bucket}
	day1 := testWindow("2024-01-01")
	day2 := testWindow("2024-01-02")

	if err := ledger.SetLimit(ctx, bucket, WindowKindDaily, 1000); err != nil {
		t.Fatalf("SetLimit failed: %v", err)
	}

	decision, err := ledger.Reserve(ctx, "run-1", day1, buckets, 800)
	if err != nil || !decision.Allowed {
		t.Fatalf("Reserve failed: %v (allowed=%v)", err, decision != nil && decision.Allowed)
	}
	if err := ledger.Reconcile(ctx, "run-1", day1, buckets, 800); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	// Day two starts from a fresh zero baseline.
	snap, err := ledger.Snapshot(ctx, bucket, day2)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Used != 0 || snap.Reserved != 0 {
		t.Errorf("Expected fresh window, got used=%d reserved=%d", snap.Used, snap.Reserved)
	}
	if snap.Remaining == nil || *snap.Remaining != 1000 {
		t.Errorf("Expected remaining 1000 in fresh window, got %v", snap.Remaining)
	}

	// And day one's booking is still intact.
	snap, err = ledger.Snapshot(ctx, bucket, day1)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Used != 800 {
		t.Errorf("Expected day one usage 800, got %d", snap.Used)
	}
}

func TestLedger_IdempotentRelease(t *testing.T) {
	ledger := testLedger(t)
	ctx := context.Background()
	w := testWindow("2024-01-01")
	bucket := UserBucket("u1")
	buckets := []Bucket{bucket}

	if err := ledger.SetLimit(ctx, bucket, WindowKindDaily, 1000); err != nil {
		t.Fatalf("SetLimit failed: %v", err)
	}

	decision, err := ledger.Reserve(ctx, "run-1", w, buckets, 400)
	if err != nil || !decision.Allowed {
		t.Fatalf("Reserve failed: %v", err)
	}

	if err := ledger.Release(ctx, "run-1", w, buckets); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	// Releasing again, and releasing a run that never reserved, are no-ops.
	if err := ledger.Release(ctx, "run-1", w, buckets); err != nil {
		t.Errorf("Second release failed: %v", err)
	}
	if err := ledger.Release(ctx, "never-reserved", w, buckets); err != nil {
		t.Errorf("Release of unknown run failed: %v", err)
	}

	snap, err := ledger.Snapshot(ctx, bucket, w)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Used != 0 {
		t.Errorf("Release must not book usage, got %d", snap.Used)
	}
	if snap.Reserved != 0 {
		t.Errorf("Expected reservation cleared, got %d", snap.Reserved)
	}
}

func TestLedger_ReReserveOverwrites(t *testing.T) {
	ledger := testLedger(t)
	ctx := context.Background()
	w := testWindow("2024-01-01")
	bucket := UserBucket("u1")
	buckets := []Bucket{bucket}

	if err := ledger.SetLimit(ctx, bucket, WindowKindDaily, 1000); err != nil {
		t.Fatalf("SetLimit failed: %v", err)
	}

	for _, amount := range []int64{400, 250} {
		decision, err := ledger.Reserve(ctx, "run-1", w, buckets, amount)
		if err != nil {
			t.Fatalf("Reserve %d failed: %v", amount, err)
		}
		if !decision.Allowed {
			t.Fatalf("Reserve %d unexpectedly rejected: %s", amount, decision.Reason)
		}
	}

	// Only the last amount counts; holds never stack per run.
	snap, err := ledger.Snapshot(ctx, bucket, w)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Reserved != 250 {
		t.Errorf("Expected reserved 250 after overwrite, got %d", snap.Reserved)
	}
}

func TestLedger_ZeroAmountReserve(t *testing.T) {
	ledger := testLedger(t)
	ctx := context.Background()
	w := testWindow("2024-01-01")
	buckets := []Bucket{UserBucket("u1")}

	for _, amount := range []int64{0, -5} {
		decision, err := ledger.Reserve(ctx, "run-1", w, buckets, amount)
		if err != nil {
			t.Fatalf("Reserve(%d) failed: %v", amount, err)
		}
		if !decision.Allowed {
			t.Errorf("Reserve(%d) should succeed trivially", amount)
		}
		if decision.ReservedTokens != 0 {
			t.Errorf("Reserve(%d) should hold nothing, got %d", amount, decision.ReservedTokens)
		}
	}

	snap, err := ledger.Snapshot(ctx, UserBucket("u1"), w)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Reserved != 0 {
		t.Errorf("Zero-cost reserve must write nothing, got %d", snap.Reserved)
	}
}

func TestLedger_UnlimitedBucketSkipped(t *testing.T) {
	// Negative defaults mean no limit for the scope: the bucket is not
	// checked and receives no hold.
	ledger := NewLedger(storage.NewMemoryBackend(), Options{
		Enabled: true,
		Defaults: LimitDefaults{
			GlobalDailyTokens:   -1,
			PerUserDailyTokens:  -1,
			PerTopicDailyTokens: -1,
		},
	})
	ctx := context.Background()
	w := testWindow("2024-01-01")
	bucket := UserBucket("u1")

	decision, err := ledger.Reserve(ctx, "run-1", w, []Bucket{bucket}, 1_000_000)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("Unlimited bucket must impose no constraint")
	}

	snap, err := ledger.Snapshot(ctx, bucket, w)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Limit != nil {
		t.Errorf("Expected nil limit, got %d", *snap.Limit)
	}
	if snap.Remaining != nil {
		t.Errorf("Expected nil remaining for unlimited bucket, got %d", *snap.Remaining)
	}
	if snap.Reserved != 0 {
		t.Errorf("Unlimited bucket must not be tracked, got reserved %d", snap.Reserved)
	}
}

func TestLedger_DisabledGrantsWithoutHolds(t *testing.T) {
	ledger := NewLedger(storage.NewMemoryBackend(), Options{
		Enabled:  false,
		Defaults: CompiledLimitDefaults(),
	})
	ctx := context.Background()
	w := testWindow("2024-01-01")
	bucket := UserBucket("u1")
	buckets := []Bucket{bucket}

	if err := ledger.SetLimit(ctx, bucket, WindowKindDaily, 10); err != nil {
		t.Fatalf("SetLimit failed: %v", err)
	}

	decision, err := ledger.Reserve(ctx, "run-1", w, buckets, 1000)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("Disabled ledger must grant every reserve")
	}

	// Reconcile still books actual usage so re-enabling sees truth.
	if err := ledger.Reconcile(ctx, "run-1", w, buckets, 900); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	snap, err := ledger.Snapshot(ctx, bucket, w)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Used != 900 {
		t.Errorf("Expected usage booked while disabled, got %d", snap.Used)
	}
	if snap.Reserved != 0 {
		t.Errorf("Disabled ledger must hold nothing, got %d", snap.Reserved)
	}
}

func TestLedger_OverrideBeatsDefault(t *testing.T) {
	ledger := testLedger(t)
	ctx := context.Background()
	w := testWindow("2024-01-01")
	bucket := UserBucket("u1")

	// Default per-user limit applies before any override.
	limit, err := ledger.ResolveLimit(ctx, bucket, WindowKindDaily)
	if err != nil {
		t.Fatalf("ResolveLimit failed: %v", err)
	}
	if limit == nil || *limit != DefaultPerUserDailyTokens {
		t.Errorf("Expected default %d, got %v", DefaultPerUserDailyTokens, limit)
	}

	if err := ledger.SetLimit(ctx, bucket, WindowKindDaily, 123); err != nil {
		t.Fatalf("SetLimit failed: %v", err)
	}
	limit, err = ledger.ResolveLimit(ctx, bucket, WindowKindDaily)
	if err != nil {
		t.Fatalf("ResolveLimit failed: %v", err)
	}
	if limit == nil || *limit != 123 {
		t.Errorf("Expected override 123, got %v", limit)
	}

	// The override only affects its own bucket.
	other, err := ledger.ResolveLimit(ctx, UserBucket("u2"), WindowKindDaily)
	if err != nil {
		t.Fatalf("ResolveLimit failed: %v", err)
	}
	if other == nil || *other != DefaultPerUserDailyTokens {
		t.Errorf("Expected default for u2, got %v", other)
	}

	snap, err := ledger.Snapshot(ctx, bucket, w)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Limit == nil || *snap.Limit != 123 {
		t.Errorf("Snapshot must reflect the override, got %v", snap.Limit)
	}
}

func TestLedger_SetLimitRejectsNegative(t *testing.T) {
	ledger := testLedger(t)
	ctx := context.Background()

	err := ledger.SetLimit(ctx, UserBucket("u1"), WindowKindDaily, -1)
	if err == nil {
		t.Fatal("Expected negative limit to be rejected")
	}
}

func TestLedger_SweepStale(t *testing.T) {
	ledger := testLedger(t)
	ctx := context.Background()
	w := testWindow("2024-01-01")
	bucket := UserBucket("u1")
	buckets := []Bucket{bucket}

	if err := ledger.SetLimit(ctx, bucket, WindowKindDaily, 1000); err != nil {
		t.Fatalf("SetLimit failed: %v", err)
	}
	decision, err := ledger.Reserve(ctx, "crashed-run", w, buckets, 400)
	if err != nil || !decision.Allowed {
		t.Fatalf("Reserve failed: %v", err)
	}

	// A fresh reservation is not stale yet.
	deleted, err := ledger.SweepStale(ctx, time.Hour)
	if err != nil {
		t.Fatalf("SweepStale failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("Expected nothing swept, got %d", deleted)
	}

	// A zero TTL treats every live hold as abandoned.
	deleted, err = ledger.SweepStale(ctx, -time.Second)
	if err != nil {
		t.Fatalf("SweepStale failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 swept reservation, got %d", deleted)
	}

	snap, err := ledger.Snapshot(ctx, bucket, w)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Reserved != 0 {
		t.Errorf("Expected headroom reclaimed, got reserved %d", snap.Reserved)
	}
	if snap.Used != 0 {
		t.Errorf("Sweep must never touch usage, got %d", snap.Used)
	}
}
