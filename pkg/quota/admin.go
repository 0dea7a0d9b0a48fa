package quota

import (
	"context"
	"fmt"
)

// EnsureBootstrap idempotently seeds the admin set from configuration, but
// only when the set is genuinely empty: it establishes the initial trust
// root on cold start. Once the registry has been inspected (seeded or found
// non-empty), further calls in the same process are no-ops, so removing
// every seeded admin does not re-seed on the next call. It must run before
// the first limit-admin read or write in a process lifetime. A storage
// failure leaves the guard unset so the caller can retry.
func (l *Ledger) EnsureBootstrap(ctx context.Context, seeds []string) error {
	l.bootMu.Lock()
	defer l.bootMu.Unlock()

	if l.bootstrapped {
		return nil
	}

	seeded, err := l.store.BootstrapAdmins(ctx, seeds)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	l.bootstrapped = true
	if seeded {
		l.logger.Info("admin registry bootstrapped", "seed_count", len(seeds))
	}
	return nil
}

// IsAdmin reports whether a user may adjust limits.
func (l *Ledger) IsAdmin(ctx context.Context, userID string) (bool, error) {
	ok, err := l.store.IsAdmin(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	return ok, nil
}

// AddAdmin adds a user to the admin set. Adding an existing admin is a
// no-op.
func (l *Ledger) AddAdmin(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("user id cannot be empty")
	}
	if err := l.store.AddAdmin(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	l.logger.Info("admin added", "user_id", userID)
	return nil
}

// RemoveAdmin removes a user from the admin set. Removing an unknown user
// is a no-op.
func (l *Ledger) RemoveAdmin(ctx context.Context, userID string) error {
	if err := l.store.RemoveAdmin(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	l.logger.Info("admin removed", "user_id", userID)
	return nil
}

// ListAdmins returns every admin entry.
func (l *Ledger) ListAdmins(ctx context.Context) ([]Admin, error) {
	rows, err := l.store.ListAdmins(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	admins := make([]Admin, 0, len(rows))
	for _, r := range rows {
		admins = append(admins, Admin{UserID: r.UserID, CreatedAt: r.CreatedAt.Unix()})
	}
	return admins, nil
}
