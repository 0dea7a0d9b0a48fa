package quota

// Compiled-in daily limits, used when configuration supplies none. Global
// is highest and per-user lowest so that no single conversation or user can
// dominate the shared budget.
const (
	DefaultGlobalDailyTokens   int64 = 200000
	DefaultPerTopicDailyTokens int64 = 50000
	DefaultPerUserDailyTokens  int64 = 20000
)

// LimitDefaults holds the per-scope default limits a ledger falls back to
// when a bucket has no stored override. Values come from configuration with
// the compiled-in constants filling any gap.
type LimitDefaults struct {
	GlobalDailyTokens   int64
	PerUserDailyTokens  int64
	PerTopicDailyTokens int64
}

// CompiledLimitDefaults returns the compiled-in per-scope defaults.
func CompiledLimitDefaults() LimitDefaults {
	return LimitDefaults{
		GlobalDailyTokens:   DefaultGlobalDailyTokens,
		PerUserDailyTokens:  DefaultPerUserDailyTokens,
		PerTopicDailyTokens: DefaultPerTopicDailyTokens,
	}
}

// defaultLimit resolves the default limit for a scope. A nil result means
// the scope carries no default and is unlimited unless an override exists.
func (d LimitDefaults) defaultLimit(scope Scope) *int64 {
	var limit int64
	switch scope {
	case ScopeGlobal:
		limit = d.GlobalDailyTokens
	case ScopeUser:
		limit = d.PerUserDailyTokens
	case ScopeTopic:
		limit = d.PerTopicDailyTokens
	default:
		return nil
	}
	if limit < 0 {
		return nil
	}
	return &limit
}
