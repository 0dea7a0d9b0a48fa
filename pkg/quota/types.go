package quota

import "errors"

// Scope represents the granularity at which token quota is enforced.
type Scope string

const (
	// ScopeGlobal tracks the shared budget across all users and topics.
	ScopeGlobal Scope = "global"

	// ScopeUser tracks the budget of a single user.
	ScopeUser Scope = "user"

	// ScopeTopic tracks the budget of a single conversation topic.
	ScopeTopic Scope = "topic"
)

// GlobalKey is the fixed key used for the global bucket. There is exactly
// one global bucket per window.
const GlobalKey = "global"

// Bucket identifies the unit of quota enforcement: a scope plus the key of
// the specific entity within that scope. Buckets are never pre-declared;
// they come into existence the first time they are referenced.
type Bucket struct {
	Scope Scope
	Key   string
}

// GlobalBucket returns the single global bucket.
func GlobalBucket() Bucket {
	return Bucket{Scope: ScopeGlobal, Key: GlobalKey}
}

// UserBucket returns the bucket for a user ID.
func UserBucket(userID string) Bucket {
	return Bucket{Scope: ScopeUser, Key: userID}
}

// TopicBucket returns the bucket for a conversation topic ID.
func TopicBucket(topicID string) Bucket {
	return Bucket{Scope: ScopeTopic, Key: topicID}
}

// String returns the bucket as "scope:key".
func (b Bucket) String() string {
	return string(b.Scope) + ":" + b.Key
}

// WindowKind is the type of accounting window. Only daily windows exist
// today; the kind is carried explicitly in every persisted row so that
// additional kinds are a data change rather than a schema change.
type WindowKind string

// WindowKindDaily is a calendar-day window in a configured time zone.
const WindowKindDaily WindowKind = "daily"

// Window is an accounting period. It is a pure function of wall-clock time
// and the configured zone; it is never persisted as an entity, only used to
// key usage and reservation rows. Rolling to a new day yields a new ID and
// therefore a fresh, independent accounting baseline.
type Window struct {
	// Kind is the window type (currently always daily).
	Kind WindowKind

	// ID is the calendar date (YYYY-MM-DD) as observed in TimeZone.
	ID string

	// TimeZone is the IANA zone the ID was computed in.
	TimeZone string
}

// Snapshot is a read-only view of a bucket's accounting state for one
// window. It is for reporting only: a snapshot can be stale the instant
// after it is read, so admission decisions must go through Reserve.
type Snapshot struct {
	Bucket Bucket
	Window Window

	// Limit is the resolved limit in tokens, or nil when the bucket is
	// unlimited.
	Limit *int64

	// Used is the committed usage for the window.
	Used int64

	// Reserved is the sum of all live reservations for the window.
	Reserved int64

	// Remaining is Limit - Used - Reserved, or nil when unlimited.
	Remaining *int64
}

// Availability reports the headroom of one limit-bearing bucket at the
// moment a reserve decision was made.
type Availability struct {
	Bucket    Bucket
	Limit     int64
	Used      int64
	Reserved  int64
	Available int64
}

// Decision is the outcome of a Reserve call. A denied reservation is a
// decision, not an error: callers branch on Allowed, and storage failures
// are the only thing Reserve reports through its error return.
type Decision struct {
	// Allowed indicates whether the reservation was granted.
	Allowed bool

	// Reason explains the rejection when Allowed is false.
	Reason string

	// ReservedTokens is the amount granted (zero for a zero-cost run).
	ReservedTokens int64

	// Buckets contains the availability observed for every limit-bearing
	// bucket that was checked, whether or not the call succeeded.
	Buckets []Availability
}

// Admin is one entry in the access-control list that gates limit changes.
type Admin struct {
	UserID    string
	CreatedAt int64
}

// Error values returned by the ledger.
var (
	// ErrStorageFailure is returned when the backing store fails. The
	// failed operation's transaction is rolled back before this surfaces.
	ErrStorageFailure = errors.New("ledger storage failure")

	// ErrInvalidBucket is returned when a bucket has an empty scope or key.
	ErrInvalidBucket = errors.New("invalid bucket")

	// ErrInvalidLimit is returned when a limit override is negative.
	ErrInvalidLimit = errors.New("invalid limit")

	// ErrNotAdmin is returned when a non-admin attempts a gated change.
	ErrNotAdmin = errors.New("user is not an admin")
)
