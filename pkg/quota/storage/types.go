package storage

import (
	"context"
	"time"
)

// Backend defines the interface for ledger state persistence. All state the
// ledger owns (limit overrides, committed usage, in-flight reservations,
// and the admin list) lives behind this interface.
//
// Implementations must be safe for concurrent use, and must serialize
// concurrent Reserve calls on overlapping buckets so that the
// read-check-write sequence is atomic per bucket and window: two concurrent
// reserves must never both observe the same headroom and both succeed when
// their combined amount exceeds the limit.
type Backend interface {
	// SetLimit creates or replaces a limit override for a bucket.
	SetLimit(ctx context.Context, scope, key, windowKind string, limitTokens int64) error

	// GetLimit returns the stored limit override for a bucket, or nil when
	// no override exists.
	GetLimit(ctx context.Context, scope, key, windowKind string) (*int64, error)

	// Usage returns the committed usage for a bucket and window. Returns
	// zero when no usage row exists.
	Usage(ctx context.Context, scope, key, windowKind, windowID string) (int64, error)

	// ReservedTotal returns the sum of all live reservations for a bucket
	// and window, across all run IDs.
	ReservedTotal(ctx context.Context, scope, key, windowKind, windowID string) (int64, error)

	// Reserve atomically checks availability for every bucket in the
	// request and, only if all have room, writes one reservation row per
	// bucket. Either every bucket is reserved or nothing is written.
	// Re-reserving the same run, bucket, and window replaces the prior
	// reserved amount rather than stacking.
	Reserve(ctx context.Context, req *ReserveRequest) (*ReserveOutcome, error)

	// Commit books actual usage for each bucket (skipping the usage write
	// when actualTokens is zero) and deletes the run's reservation rows, as
	// one atomic batch.
	Commit(ctx context.Context, runID, windowKind, windowID string, buckets []BucketRef, actualTokens int64) error

	// Release deletes the run's reservation rows for the given buckets
	// without touching usage. Releasing rows that do not exist is a no-op.
	Release(ctx context.Context, runID, windowKind, windowID string, buckets []BucketRef) error

	// SweepReservations deletes reservation rows created before olderThan,
	// regardless of run, and returns the number deleted.
	SweepReservations(ctx context.Context, olderThan time.Time) (int, error)

	// BootstrapAdmins seeds the admin table with the given user IDs if and
	// only if the table is empty at the time of the call. The emptiness
	// check and the inserts are one atomic operation. Returns whether
	// seeding happened.
	BootstrapAdmins(ctx context.Context, userIDs []string) (bool, error)

	// IsAdmin reports whether a user is in the admin set.
	IsAdmin(ctx context.Context, userID string) (bool, error)

	// AddAdmin adds a user to the admin set. Adding an existing admin is a
	// no-op.
	AddAdmin(ctx context.Context, userID string) error

	// RemoveAdmin removes a user from the admin set. Removing an unknown
	// user is a no-op.
	RemoveAdmin(ctx context.Context, userID string) error

	// ListAdmins returns every admin entry.
	ListAdmins(ctx context.Context) ([]Admin, error)

	// Close releases any resources held by the backend.
	Close() error
}

// BucketRef identifies a bucket in a store operation.
type BucketRef struct {
	Scope string
	Key   string
}

// ReserveBucket is one limit-bearing bucket in a reserve request. The
// caller resolves limits before calling Reserve so that unlimited buckets
// never reach the store; every bucket here carries a finite limit the store
// enforces inside its transaction.
type ReserveBucket struct {
	Scope       string
	Key         string
	LimitTokens int64
}

// ReserveRequest asks the store to hold Amount tokens against every listed
// bucket for one window, atomically.
type ReserveRequest struct {
	RunID      string
	WindowKind string
	WindowID   string
	Amount     int64
	Buckets    []ReserveBucket
}

// BucketAvailability is the headroom observed for one bucket inside the
// reserve transaction.
type BucketAvailability struct {
	Scope     string
	Key       string
	Limit     int64
	Used      int64
	Reserved  int64
	Available int64
}

// ReserveOutcome is the result of an atomic reserve attempt. Checked always
// holds the availability of every requested bucket, granted or not.
type ReserveOutcome struct {
	Granted bool
	Checked []BucketAvailability
}

// Admin is one row of the admin table.
type Admin struct {
	UserID    string
	CreatedAt time.Time
}
