package quota

import (
	"context"
	"testing"
	"time"
)

func TestSweeper_StartStop(t *testing.T) {
	sweeper := NewSweeper(testLedger(t), "*/10 * * * *", time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sweeper.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !sweeper.IsRunning() {
		t.Error("Expected sweeper to be running")
	}

	sweeper.Stop()
	if sweeper.IsRunning() {
		t.Error("Expected sweeper to be stopped")
	}

	// Stop is idempotent.
	sweeper.Stop()
}

func TestSweeper_EmptyScheduleDisables(t *testing.T) {
	sweeper := NewSweeper(testLedger(t), "", time.Hour)

	if err := sweeper.Start(context.Background()); err != nil {
		t.Fatalf("Start with empty schedule must be a no-op, got: %v", err)
	}
	if sweeper.IsRunning() {
		t.Error("Expected disabled sweeper to not run")
	}
}

func TestSweeper_InvalidSchedule(t *testing.T) {
	sweeper := NewSweeper(testLedger(t), "not a schedule", time.Hour)

	if err := sweeper.Start(context.Background()); err == nil {
		t.Fatal("Expected invalid schedule to fail Start")
	}
}

func TestSweeper_NonPositiveTTL(t *testing.T) {
	sweeper := NewSweeper(testLedger(t), "*/10 * * * *", 0)

	if err := sweeper.Start(context.Background()); err == nil {
		t.Fatal("Expected zero TTL to fail Start")
	}
}

func TestSweeper_ContextCancelStops(t *testing.T) {
	sweeper := NewSweeper(testLedger(t), "*/10 * * * *", time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	if err := sweeper.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	cancel()

	deadline := time.After(2 * time.Second)
	for sweeper.IsRunning() {
		select {
		case <-deadline:
			t.Fatal("Sweeper did not stop after context cancellation")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
