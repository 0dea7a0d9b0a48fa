// Tokenledger is a windowed token-quota reservation ledger.
//
// It enforces per-scope token budgets (global, per-user, per-topic) over
// daily accounting windows using a two-phase reserve/commit protocol, with
// a local SQLite file as the sole synchronization primitive.
//
// Usage:
//
//	# Start the ledger service (metrics, status endpoint, sweeper)
//	tokenledger serve --config /path/to/config.yaml
//
//	# Inspect a bucket's current window
//	tokenledger status --scope user --key u1
//
//	# Manage limit overrides (requires an admin actor)
//	tokenledger limit set --scope user --key u1 --tokens 50000 --actor admin1
//	tokenledger limit get --scope user --key u1
//
//	# Manage the admin registry
//	tokenledger admin add u2 --actor admin1
//	tokenledger admin list
//
//	# Delete stale reservations left by crashed runs
//	tokenledger sweep --ttl 1h
package main

func main() {
	Execute()
}
