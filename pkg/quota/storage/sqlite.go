package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteBackend implements Backend using SQLite for persistence. This is
// the backend for deployments that must survive process restarts: every
// multi-row mutation runs inside a single transaction, and reserve
// transactions take the write lock up front so that concurrent reserves on
// the same bucket+window are serialized by the database.
//
// SQLiteBackend uses a write-ahead log (WAL) for better concurrent read
// performance and periodic checkpointing to balance write performance with
// durability.
type SQLiteBackend struct {
	db                 *sql.DB
	dbPath             string
	checkpointInterval time.Duration
	done               chan struct{}
	mu                 sync.Mutex
	closeOnce          sync.Once
}

// SQLiteBackendConfig configures the SQLite backend.
type SQLiteBackendConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// CheckpointInterval is how often to checkpoint the WAL.
	// Default: 5 minutes
	CheckpointInterval time.Duration
}

// NewSQLiteBackend creates a new SQLite storage backend with default settings.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	return NewSQLiteBackendWithConfig(SQLiteBackendConfig{
		DBPath:             dbPath,
		BusyTimeout:        5 * time.Second,
		CheckpointInterval: 5 * time.Minute,
	})
}

// NewSQLiteBackendWithConfig creates a new SQLite backend with custom configuration.
func NewSQLiteBackendWithConfig(cfg SQLiteBackendConfig) (*SQLiteBackend, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}

	// Open with WAL, a busy timeout, and immediate transactions so every
	// Tx takes the write lock at BEGIN rather than at first write.
	dsn := fmt.Sprintf("%s?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		cfg.DBPath, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	backend := &SQLiteBackend{
		db:                 db,
		dbPath:             cfg.DBPath,
		checkpointInterval: cfg.CheckpointInterval,
		done:               make(chan struct{}),
	}

	if err := backend.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	go backend.checkpointLoop()

	return backend, nil
}

// initSchema creates the database schema if it doesn't exist.
func (s *SQLiteBackend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS admins (
		user_id    TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (user_id)
	);

	CREATE TABLE IF NOT EXISTS limits (
		scope        TEXT NOT NULL,
		key          TEXT NOT NULL,
		window_kind  TEXT NOT NULL,
		limit_tokens INTEGER NOT NULL,
		updated_at   INTEGER NOT NULL,
		PRIMARY KEY (scope, key, window_kind)
	);

	CREATE TABLE IF NOT EXISTS usage (
		scope       TEXT NOT NULL,
		key         TEXT NOT NULL,
		window_kind TEXT NOT NULL,
		window_id   TEXT NOT NULL,
		used_tokens INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL,
		PRIMARY KEY (scope, key, window_kind, window_id)
	);

	CREATE TABLE IF NOT EXISTS reservations (
		run_id          TEXT NOT NULL,
		scope           TEXT NOT NULL,
		key             TEXT NOT NULL,
		window_kind     TEXT NOT NULL,
		window_id       TEXT NOT NULL,
		reserved_tokens INTEGER NOT NULL,
		created_at      INTEGER NOT NULL,
		PRIMARY KEY (run_id, scope, key, window_kind, window_id)
	);

	CREATE INDEX IF NOT EXISTS idx_reservations_bucket
		ON reservations(scope, key, window_kind, window_id);
	CREATE INDEX IF NOT EXISTS idx_reservations_created
		ON reservations(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SetLimit creates or replaces a limit override for a bucket.
func (s *SQLiteBackend) SetLimit(ctx context.Context, scope, key, windowKind string, limitTokens int64) error {
	if scope == "" || key == "" {
		return fmt.Errorf("scope and key cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO limits (scope, key, window_kind, limit_tokens, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (scope, key, window_kind) DO UPDATE SET
			limit_tokens = excluded.limit_tokens,
			updated_at = excluded.updated_at
	`, scope, key, windowKind, limitTokens, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to set limit: %w", err)
	}
	return nil
}

// GetLimit returns the stored limit override for a bucket, or nil.
func (s *SQLiteBackend) GetLimit(ctx context.Context, scope, key, windowKind string) (*int64, error) {
	var limit int64
	err := s.db.QueryRowContext(ctx, `
		SELECT limit_tokens FROM limits
		WHERE scope = ? AND key = ? AND window_kind = ?
	`, scope, key, windowKind).Scan(&limit)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load limit: %w", err)
	}
	return &limit, nil
}

// Usage returns the committed usage for a bucket and window.
func (s *SQLiteBackend) Usage(ctx context.Context, scope, key, windowKind, windowID string) (int64, error) {
	var used int64
	err := s.db.QueryRowContext(ctx, `
		SELECT used_tokens FROM usage
		WHERE scope = ? AND key = ? AND window_kind = ? AND window_id = ?
	`, scope, key, windowKind, windowID).Scan(&used)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load usage: %w", err)
	}
	return used, nil
}

// ReservedTotal returns the sum of live reservations for a bucket+window.
func (s *SQLiteBackend) ReservedTotal(ctx context.Context, scope, key, windowKind, windowID string) (int64, error) {
	var reserved int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(reserved_tokens), 0) FROM reservations
		WHERE scope = ? AND key = ? AND window_kind = ? AND window_id = ?
	`, scope, key, windowKind, windowID).Scan(&reserved)
	if err != nil {
		return 0, fmt.Errorf("failed to load reservations: %w", err)
	}
	return reserved, nil
}

// Reserve atomically checks every bucket and writes all holds or none.
// The whole check-then-write sequence runs in one immediate transaction,
// so concurrent reserves on overlapping buckets are serialized by SQLite's
// write lock and can never both consume the same headroom.
func (s *SQLiteBackend) Reserve(ctx context.Context, req *ReserveRequest) (*ReserveOutcome, error) {
	if req == nil {
		return nil, fmt.Errorf("request cannot be nil")
	}
	if req.RunID == "" {
		return nil, fmt.Errorf("run id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin reserve transaction: %w", err)
	}
	defer tx.Rollback()

	outcome := &ReserveOutcome{Granted: true}

	// Check every bucket before writing any, so a multi-bucket request is
	// granted or denied as a unit and no partial hold is ever observable.
	for _, b := range req.Buckets {
		var used int64
		err := tx.QueryRowContext(ctx, `
			SELECT used_tokens FROM usage
			WHERE scope = ? AND key = ? AND window_kind = ? AND window_id = ?
		`, b.Scope, b.Key, req.WindowKind, req.WindowID).Scan(&used)
		if err != nil && err != sql.ErrNoRows {
			return nil, fmt.Errorf("failed to read usage for %s:%s: %w", b.Scope, b.Key, err)
		}

		var reserved int64
		err = tx.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(reserved_tokens), 0) FROM reservations
			WHERE scope = ? AND key = ? AND window_kind = ? AND window_id = ?
		`, b.Scope, b.Key, req.WindowKind, req.WindowID).Scan(&reserved)
		if err != nil {
			return nil, fmt.Errorf("failed to read reservations for %s:%s: %w", b.Scope, b.Key, err)
		}

		avail := b.LimitTokens - used - reserved
		outcome.Checked = append(outcome.Checked, BucketAvailability{
			Scope:     b.Scope,
			Key:       b.Key,
			Limit:     b.LimitTokens,
			Used:      used,
			Reserved:  reserved,
			Available: avail,
		})

		if avail < req.Amount {
			outcome.Granted = false
		}
	}

	if !outcome.Granted {
		// Nothing was written; roll back the read transaction.
		return outcome, nil
	}

	now := time.Now().Unix()
	for _, b := range req.Buckets {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO reservations (run_id, scope, key, window_kind, window_id, reserved_tokens, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (run_id, scope, key, window_kind, window_id) DO UPDATE SET
				reserved_tokens = excluded.reserved_tokens
		`, req.RunID, b.Scope, b.Key, req.WindowKind, req.WindowID, req.Amount, now)
		if err != nil {
			return nil, fmt.Errorf("failed to write reservation for %s:%s: %w", b.Scope, b.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit reserve transaction: %w", err)
	}

	return outcome, nil
}

// Commit books actual usage for each bucket and deletes the run's
// reservation rows, as one atomic batch. The usage accumulation is a
// single UPSERT increment, not a read-modify-write in Go.
func (s *SQLiteBackend) Commit(ctx context.Context, runID, windowKind, windowID string, buckets []BucketRef, actualTokens int64) error {
	if runID == "" {
		return fmt.Errorf("run id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin commit transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, b := range buckets {
		if actualTokens > 0 {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO usage (scope, key, window_kind, window_id, used_tokens, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT (scope, key, window_kind, window_id) DO UPDATE SET
					used_tokens = used_tokens + excluded.used_tokens,
					updated_at = excluded.updated_at
			`, b.Scope, b.Key, windowKind, windowID, actualTokens, now)
			if err != nil {
				return fmt.Errorf("failed to book usage for %s:%s: %w", b.Scope, b.Key, err)
			}
		}

		_, err := tx.ExecContext(ctx, `
			DELETE FROM reservations
			WHERE run_id = ? AND scope = ? AND key = ? AND window_kind = ? AND window_id = ?
		`, runID, b.Scope, b.Key, windowKind, windowID)
		if err != nil {
			return fmt.Errorf("failed to clear reservation for %s:%s: %w", b.Scope, b.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit usage transaction: %w", err)
	}
	return nil
}

// Release deletes the run's reservation rows without touching usage.
func (s *SQLiteBackend) Release(ctx context.Context, runID, windowKind, windowID string, buckets []BucketRef) error {
	if runID == "" {
		return fmt.Errorf("run id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin release transaction: %w", err)
	}
	defer tx.Rollback()

	for _, b := range buckets {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM reservations
			WHERE run_id = ? AND scope = ? AND key = ? AND window_kind = ? AND window_id = ?
		`, runID, b.Scope, b.Key, windowKind, windowID)
		if err != nil {
			return fmt.Errorf("failed to release reservation for %s:%s: %w", b.Scope, b.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit release transaction: %w", err)
	}
	return nil
}

// SweepReservations deletes reservation rows created before olderThan.
func (s *SQLiteBackend) SweepReservations(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM reservations WHERE created_at < ?
	`, olderThan.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep reservations: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(deleted), nil
}

// BootstrapAdmins seeds the admin table only when it is currently empty.
// The emptiness check and the inserts share one transaction, so two
// processes bootstrapping concurrently cannot both seed.
func (s *SQLiteBackend) BootstrapAdmins(ctx context.Context, userIDs []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin bootstrap transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM admins`).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to count admins: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	now := time.Now().Unix()
	seeded := false
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO admins (user_id, created_at) VALUES (?, ?)
			ON CONFLICT (user_id) DO NOTHING
		`, id, now)
		if err != nil {
			return false, fmt.Errorf("failed to seed admin %q: %w", id, err)
		}
		seeded = true
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit bootstrap transaction: %w", err)
	}
	return seeded, nil
}

// IsAdmin reports whether a user is in the admin set.
func (s *SQLiteBackend) IsAdmin(ctx context.Context, userID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM admins WHERE user_id = ?
	`, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check admin: %w", err)
	}
	return true, nil
}

// AddAdmin adds a user to the admin set.
func (s *SQLiteBackend) AddAdmin(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("user id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admins (user_id, created_at) VALUES (?, ?)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to add admin: %w", err)
	}
	return nil
}

// RemoveAdmin removes a user from the admin set.
func (s *SQLiteBackend) RemoveAdmin(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM admins WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to remove admin: %w", err)
	}
	return nil
}

// ListAdmins returns every admin entry ordered by user ID.
func (s *SQLiteBackend) ListAdmins(ctx context.Context) ([]Admin, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, created_at FROM admins ORDER BY user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	defer rows.Close()

	var admins []Admin
	for rows.Next() {
		var userID string
		var createdAt int64
		if err := rows.Scan(&userID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan admin row: %w", err)
		}
		admins = append(admins, Admin{UserID: userID, CreatedAt: time.Unix(createdAt, 0)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating admin rows: %w", err)
	}
	return admins, nil
}

// Close releases any resources held by the backend.
// Close is idempotent and safe to call multiple times.
func (s *SQLiteBackend) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		close(s.done)

		if s.db != nil {
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = s.db.Close()
		}
	})

	return closeErr
}

// checkpointLoop runs periodic WAL checkpoints.
func (s *SQLiteBackend) checkpointLoop() {
	ticker := time.NewTicker(s.checkpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
		case <-s.done:
			return
		}
	}
}
