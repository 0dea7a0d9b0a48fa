// Package quota implements a windowed token-quota reservation ledger.
//
// # Overview
//
// The ledger enforces per-scope token budgets (global, per-user,
// per-topic) over recurring daily windows using a two-phase
// reserve/commit protocol, which prevents overshoot when actual
// consumption is known only after the fact - the typical shape of a
// language-model call whose exact token cost is learned once the response
// completes.
//
// # Protocol
//
// A caller estimates a cost, resolves the current window, and reserves
// against the relevant buckets:
//
//	w := quota.ResolveWindow(cfg.TimeZone)
//	runID := quota.NewRunID()
//	buckets := []quota.Bucket{
//	    quota.GlobalBucket(),
//	    quota.UserBucket(userID),
//	    quota.TopicBucket(topicID),
//	}
//
//	decision, err := ledger.Reserve(ctx, runID, w, buckets, estimate)
//	if err != nil { ... }
//	if !decision.Allowed {
//	    // Rejected: decision.Reason and decision.Buckets explain why.
//	}
//
//	// ... perform the metered work ...
//
//	err = ledger.Reconcile(ctx, runID, w, buckets, actualTokens) // success
//	err = ledger.Release(ctx, runID, w, buckets)                 // aborted
//
// A multi-bucket reserve is granted or denied as a unit: either every
// limit-bearing bucket has room or no hold is written anywhere. For any
// bucket with a finite limit, committed usage plus the sum of live holds
// never exceeds the limit immediately after a successful reserve.
//
// # Synchronization
//
// The backing store (pkg/quota/storage) is the sole synchronization
// primitive. The ledger keeps no quota state in memory, so concurrent
// callers, multiple ledger instances over one store, and process restarts
// are all safe. Concurrent reserves on overlapping buckets are serialized
// inside the store's transaction.
//
// # Stale holds
//
// A run that reserves and crashes before reconciling leaves its hold
// alive for the rest of the window. Sweeper deletes holds older than a
// TTL on a cron schedule; committed usage is never swept.
package quota
