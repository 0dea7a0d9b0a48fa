// Package config loads and validates the token ledger configuration.
//
// Configuration comes from a YAML file, with defaults applied for unset
// fields and TOKENLEDGER_* environment variables taking final precedence.
// Malformed limit values - negative numbers, unparseable overrides - are
// silently discarded in favor of compiled-in defaults rather than raised:
// quota misconfiguration should degrade to "use defaults", never halt the
// system.
//
// FileWatcher supports hot-reloading limit defaults while the process
// runs; stored per-bucket overrides are unaffected by reloads.
package config
