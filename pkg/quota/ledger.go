package quota

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ledgerhq/tokenledger/pkg/quota/storage"
)

// Ledger enforces per-scope token budgets over recurring windows using a
// two-phase reserve/commit protocol. The backing store is the sole
// synchronization point: the ledger holds no quota state in memory, so it
// is correct across process restarts and safe for concurrent callers.
//
// A run's lifecycle per bucket+window is:
//
//	unreserved -> reserved -> committed (Reconcile)
//	                       -> released  (Release)
//
// Both terminal states delete the reservation row; only Reconcile
// increments committed usage, and only by the actual cost the caller
// supplies, never by the reserved amount.
type Ledger struct {
	store   storage.Backend
	metrics *Metrics
	logger  *slog.Logger

	mu       sync.RWMutex
	enabled  bool
	defaults LimitDefaults

	bootMu       sync.Mutex
	bootstrapped bool
}

// Options configures a Ledger.
type Options struct {
	// Enabled controls enforcement. A disabled ledger grants every Reserve
	// without writing holds; Reconcile still books actual usage so that
	// re-enabling enforcement sees true committed consumption.
	Enabled bool

	// Defaults are the per-scope limits used when a bucket has no stored
	// override.
	Defaults LimitDefaults

	// Metrics, when non-nil, receives counters for every ledger operation.
	Metrics *Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// NewLedger creates a ledger over the given store.
func NewLedger(store storage.Backend, opts Options) *Ledger {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Ledger{
		store:    store,
		metrics:  opts.Metrics,
		logger:   logger.With("component", "quota.ledger"),
		enabled:  opts.Enabled,
		defaults: opts.Defaults,
	}
}

// Enabled reports whether enforcement is active.
func (l *Ledger) Enabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.enabled
}

// UpdateDefaults replaces the per-scope default limits. Stored overrides
// are unaffected. Used by config hot-reload.
func (l *Ledger) UpdateDefaults(defaults LimitDefaults) {
	l.mu.Lock()
	l.defaults = defaults
	l.mu.Unlock()

	l.logger.Info("limit defaults updated",
		"global", defaults.GlobalDailyTokens,
		"per_user", defaults.PerUserDailyTokens,
		"per_topic", defaults.PerTopicDailyTokens,
	)
}

// ResolveLimit returns the effective limit for a bucket: the stored
// override when one exists, else the per-scope default. A nil result means
// the bucket is unlimited and is neither checked nor held against.
func (l *Ledger) ResolveLimit(ctx context.Context, b Bucket, kind WindowKind) (*int64, error) {
	if b.Scope == "" || b.Key == "" {
		return nil, ErrInvalidBucket
	}

	override, err := l.store.GetLimit(ctx, string(b.Scope), b.Key, string(kind))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	if override != nil {
		return override, nil
	}

	l.mu.RLock()
	defaults := l.defaults
	l.mu.RUnlock()
	return defaults.defaultLimit(b.Scope), nil
}

// Reserve attempts to hold amount tokens against every given bucket for
// the window, atomically. Either every limit-bearing bucket has room and
// one hold per bucket is written, or nothing is written and the decision
// reports which bucket rejected and the availability of all of them.
//
// A non-positive amount succeeds trivially with no writes. Unlimited
// buckets impose no constraint and receive no hold. Re-reserving the same
// run, bucket, and window replaces the prior held amount; it does not
// stack.
//
// A denied reservation is reported through the Decision, not through the
// error return; errors mean the store failed and nothing was written.
func (l *Ledger) Reserve(ctx context.Context, runID string, w Window, buckets []Bucket, amount int64) (*Decision, error) {
	start := time.Now()

	if amount <= 0 {
		return &Decision{Allowed: true, ReservedTokens: 0}, nil
	}
	if runID == "" {
		return nil, fmt.Errorf("run id cannot be empty")
	}

	if !l.Enabled() {
		return &Decision{Allowed: true, ReservedTokens: amount}, nil
	}

	req := &storage.ReserveRequest{
		RunID:      runID,
		WindowKind: string(w.Kind),
		WindowID:   w.ID,
		Amount:     amount,
	}

	for _, b := range buckets {
		limit, err := l.ResolveLimit(ctx, b, w.Kind)
		if err != nil {
			return nil, err
		}
		if limit == nil {
			// Unlimited: not checked, not held.
			continue
		}
		req.Buckets = append(req.Buckets, storage.ReserveBucket{
			Scope:       string(b.Scope),
			Key:         b.Key,
			LimitTokens: *limit,
		})
	}

	if len(req.Buckets) == 0 {
		return &Decision{Allowed: true, ReservedTokens: amount}, nil
	}

	outcome, err := l.store.Reserve(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	decision := &Decision{
		Allowed:        outcome.Granted,
		ReservedTokens: amount,
		Buckets:        availabilities(outcome.Checked),
	}
	if !outcome.Granted {
		decision.ReservedTokens = 0
		decision.Reason = rejectionReason(decision.Buckets, amount)
	}

	l.observeReserve(decision, amount, time.Since(start))
	return decision, nil
}

// Reconcile books the run's actual token cost against every given bucket
// for the window and clears the run's holds, in one atomic batch per the
// store. This is the only operation that ever increases committed usage;
// the reserved amount is never copied into usage, so overestimating at
// reserve time does not inflate the ledger. A zero actual cost clears the
// holds without creating usage rows.
func (l *Ledger) Reconcile(ctx context.Context, runID string, w Window, buckets []Bucket, actualTokens int64) error {
	if runID == "" {
		return fmt.Errorf("run id cannot be empty")
	}
	if actualTokens < 0 {
		actualTokens = 0
	}

	err := l.store.Commit(ctx, runID, string(w.Kind), w.ID, bucketRefs(buckets), actualTokens)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	if l.metrics != nil {
		for _, b := range buckets {
			l.metrics.CommittedTokens.WithLabelValues(string(b.Scope)).Add(float64(actualTokens))
		}
	}
	l.logger.Debug("reconciled run",
		"run_id", runID,
		"window", w.ID,
		"actual_tokens", actualTokens,
	)
	return nil
}

// Release drops the run's holds for the given buckets without booking any
// usage, for runs aborted before producing billable output. Releasing a
// run that was never reserved, or releasing twice, is a harmless no-op.
func (l *Ledger) Release(ctx context.Context, runID string, w Window, buckets []Bucket) error {
	if runID == "" {
		return fmt.Errorf("run id cannot be empty")
	}

	if !l.Enabled() {
		return nil
	}

	err := l.store.Release(ctx, runID, string(w.Kind), w.ID, bucketRefs(buckets))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	if l.metrics != nil {
		l.metrics.ReleasedRuns.Inc()
	}
	l.logger.Debug("released run", "run_id", runID, "window", w.ID)
	return nil
}

// Snapshot returns a read-only view of a bucket's limit, committed usage,
// live reservations, and remaining headroom for the window. Remaining is
// nil when the bucket is unlimited. Snapshots are for reporting; admission
// decisions must go through Reserve, since a snapshot can be stale the
// instant after it is read.
func (l *Ledger) Snapshot(ctx context.Context, b Bucket, w Window) (*Snapshot, error) {
	limit, err := l.ResolveLimit(ctx, b, w.Kind)
	if err != nil {
		return nil, err
	}

	used, err := l.store.Usage(ctx, string(b.Scope), b.Key, string(w.Kind), w.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	reserved, err := l.store.ReservedTotal(ctx, string(b.Scope), b.Key, string(w.Kind), w.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	snap := &Snapshot{
		Bucket:   b,
		Window:   w,
		Limit:    limit,
		Used:     used,
		Reserved: reserved,
	}
	if limit != nil {
		remaining := *limit - used - reserved
		snap.Remaining = &remaining
	}
	return snap, nil
}

// SetLimit stores a limit override for a bucket. Overrides are created or
// updated only by explicit admin action; gate calls with IsAdmin.
func (l *Ledger) SetLimit(ctx context.Context, b Bucket, kind WindowKind, limitTokens int64) error {
	if b.Scope == "" || b.Key == "" {
		return ErrInvalidBucket
	}
	if limitTokens < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLimit, limitTokens)
	}

	if err := l.store.SetLimit(ctx, string(b.Scope), b.Key, string(kind), limitTokens); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	l.logger.Info("limit override set",
		"bucket", b.String(),
		"window_kind", string(kind),
		"limit_tokens", limitTokens,
	)
	return nil
}

// GetLimit returns the stored limit override for a bucket, or nil when the
// bucket has none and falls back to the per-scope default.
func (l *Ledger) GetLimit(ctx context.Context, b Bucket, kind WindowKind) (*int64, error) {
	if b.Scope == "" || b.Key == "" {
		return nil, ErrInvalidBucket
	}

	override, err := l.store.GetLimit(ctx, string(b.Scope), b.Key, string(kind))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return override, nil
}

// SweepStale deletes reservation rows older than ttl and returns the
// number deleted. A run that reserved and then crashed leaves its hold
// alive, permanently shrinking the bucket's headroom for the rest of the
// window; the sweep reclaims that headroom. Usage is never touched.
func (l *Ledger) SweepStale(ctx context.Context, ttl time.Duration) (int, error) {
	deleted, err := l.store.SweepReservations(ctx, time.Now().Add(-ttl))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	if l.metrics != nil && deleted > 0 {
		l.metrics.SweptReservations.Add(float64(deleted))
	}
	return deleted, nil
}

func (l *Ledger) observeReserve(d *Decision, amount int64, elapsed time.Duration) {
	if l.metrics != nil {
		result := "granted"
		if !d.Allowed {
			result = "rejected"
		}
		l.metrics.ReserveDecisions.WithLabelValues(result).Inc()
		l.metrics.ReserveDuration.Observe(elapsed.Seconds())
		if !d.Allowed {
			for _, a := range d.Buckets {
				if a.Available < amount {
					l.metrics.Rejections.WithLabelValues(string(a.Bucket.Scope)).Inc()
				}
			}
		}
	}

	if !d.Allowed {
		l.logger.Debug("reservation rejected", "reason", d.Reason, "amount", amount)
	}
}

// rejectionReason names the first bucket without room for the request.
func rejectionReason(checked []Availability, amount int64) string {
	for _, a := range checked {
		if a.Available < amount {
			return fmt.Sprintf("quota exceeded for %s: requested %d, available %d of %d",
				a.Bucket, amount, a.Available, a.Limit)
		}
	}
	return "quota exceeded"
}

func bucketRefs(buckets []Bucket) []storage.BucketRef {
	refs := make([]storage.BucketRef, 0, len(buckets))
	for _, b := range buckets {
		refs = append(refs, storage.BucketRef{Scope: string(b.Scope), Key: b.Key})
	}
	return refs
}

func availabilities(checked []storage.BucketAvailability) []Availability {
	out := make([]Availability, 0, len(checked))
	for _, c := range checked {
		out = append(out, Availability{
			Bucket:    Bucket{Scope: Scope(c.Scope), Key: c.Key},
			Limit:     c.Limit,
			Used:      c.Used,
			Reserved:  c.Reserved,
			Available: c.Available,
		})
	}
	return out
}
