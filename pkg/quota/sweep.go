package quota

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically deletes stale reservation rows left behind by runs
// that crashed between reserve and reconcile/release. It runs SweepStale
// on a cron schedule (e.g., "*/10 * * * *" for every ten minutes).
type Sweeper struct {
	ledger   *Ledger
	cron     *cron.Cron
	logger   *slog.Logger
	schedule string
	ttl      time.Duration

	mu      sync.Mutex
	running bool
}

// NewSweeper creates a sweeper over the ledger. Reservations older than
// ttl are considered abandoned and deleted. An empty schedule disables the
// sweeper entirely; Start becomes a no-op.
func NewSweeper(ledger *Ledger, schedule string, ttl time.Duration) *Sweeper {
	return &Sweeper{
		ledger:   ledger,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "quota.sweeper"),
		schedule: schedule,
		ttl:      ttl,
	}
}

// Start begins scheduled sweeping. The sweeper stops when the context is
// cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("sweep schedule not configured, skipping sweeper")
		return nil
	}
	if s.ttl <= 0 {
		return fmt.Errorf("sweep ttl must be positive, got %s", s.ttl)
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}

	_, err := s.cron.AddFunc(s.schedule, func() {
		s.runSweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("reservation sweeper started",
		"schedule", s.schedule,
		"ttl", s.ttl.String(),
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// runSweep executes one sweep cycle.
func (s *Sweeper) runSweep(ctx context.Context) {
	deleted, err := s.ledger.SweepStale(ctx, s.ttl)
	if err != nil {
		s.logger.Error("reservation sweep failed", "error", err)
		return
	}

	if deleted > 0 {
		s.logger.Info("swept stale reservations", "deleted_count", deleted)
	} else {
		s.logger.Debug("reservation sweep completed, nothing stale")
	}
}

// Stop stops the sweeper and waits for any running sweep to complete.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && s.running {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.running = false
		s.logger.Info("reservation sweeper stopped")
	}
}

// IsRunning returns true if the sweeper is running.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
