package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryBackend implements Backend using in-memory maps. All data is lost
// when the process exits; it exists for tests and for embedders that do not
// need durability.
//
// A single mutex guards every operation, which trivially gives Reserve the
// serialization the Backend contract requires.
type MemoryBackend struct {
	mu sync.Mutex

	// limits maps scope|key|kind to a limit override.
	limits map[string]int64

	// usage maps scope|key|kind|windowID to committed tokens.
	usage map[string]int64

	// reservations maps runID|scope|key|kind|windowID to a live hold.
	reservations map[string]memReservation

	// admins maps user ID to creation time.
	admins map[string]time.Time
}

type memReservation struct {
	scope      string
	key        string
	windowKind string
	windowID   string
	tokens     int64
	createdAt  time.Time
}

// NewMemoryBackend creates a new in-memory storage backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		limits:       make(map[string]int64),
		usage:        make(map[string]int64),
		reservations: make(map[string]memReservation),
		admins:       make(map[string]time.Time),
	}
}

func limitKey(scope, key, windowKind string) string {
	return scope + "|" + key + "|" + windowKind
}

func usageKey(scope, key, windowKind, windowID string) string {
	return scope + "|" + key + "|" + windowKind + "|" + windowID
}

func reservationKey(runID, scope, key, windowKind, windowID string) string {
	return runID + "|" + scope + "|" + key + "|" + windowKind + "|" + windowID
}

// SetLimit creates or replaces a limit override for a bucket.
func (m *MemoryBackend) SetLimit(ctx context.Context, scope, key, windowKind string, limitTokens int64) error {
	if scope == "" || key == "" {
		return fmt.Errorf("scope and key cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.limits[limitKey(scope, key, windowKind)] = limitTokens
	return nil
}

// GetLimit returns the stored limit override for a bucket, or nil.
func (m *MemoryBackend) GetLimit(ctx context.Context, scope, key, windowKind string) (*int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	limit, ok := m.limits[limitKey(scope, key, windowKind)]
	if !ok {
		return nil, nil
	}
	return &limit, nil
}

// Usage returns the committed usage for a bucket and window.
func (m *MemoryBackend) Usage(ctx context.Context, scope, key, windowKind, windowID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.usage[usageKey(scope, key, windowKind, windowID)], nil
}

// ReservedTotal returns the sum of live reservations for a bucket+window.
func (m *MemoryBackend) ReservedTotal(ctx context.Context, scope, key, windowKind, windowID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.reservedTotalLocked(scope, key, windowKind, windowID), nil
}

func (m *MemoryBackend) reservedTotalLocked(scope, key, windowKind, windowID string) int64 {
	var total int64
	for _, r := range m.reservations {
		if r.scope == scope && r.key == key && r.windowKind == windowKind && r.windowID == windowID {
			total += r.tokens
		}
	}
	return total
}

// Reserve atomically checks every bucket and writes all holds or none.
func (m *MemoryBackend) Reserve(ctx context.Context, req *ReserveRequest) (*ReserveOutcome, error) {
	if req == nil {
		return nil, fmt.Errorf("request cannot be nil")
	}
	if req.RunID == "" {
		return nil, fmt.Errorf("run id cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	outcome := &ReserveOutcome{Granted: true}

	// Check every bucket before writing any.
	for _, b := range req.Buckets {
		used := m.usage[usageKey(b.Scope, b.Key, req.WindowKind, req.WindowID)]
		reserved := m.reservedTotalLocked(b.Scope, b.Key, req.WindowKind, req.WindowID)
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
		return outcome, nil
	}

	now := time.Now()
	for _, b := range req.Buckets {
		m.reservations[reservationKey(req.RunID, b.Scope, b.Key, req.WindowKind, req.WindowID)] = memReservation{
			scope:      b.Scope,
			key:        b.Key,
			windowKind: req.WindowKind,
			windowID:   req.WindowID,
			tokens:     req.Amount,
			createdAt:  now,
		}
	}

	return outcome, nil
}

// Commit books actual usage and deletes the run's reservation rows.
func (m *MemoryBackend) Commit(ctx context.Context, runID, windowKind, windowID string, buckets []BucketRef, actualTokens int64) error {
	if runID == "" {
		return fmt.Errorf("run id cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range buckets {
		if actualTokens > 0 {
			m.usage[usageKey(b.Scope, b.Key, windowKind, windowID)] += actualTokens
		}
		delete(m.reservations, reservationKey(runID, b.Scope, b.Key, windowKind, windowID))
	}
	return nil
}

// Release deletes the run's reservation rows without touching usage.
func (m *MemoryBackend) Release(ctx context.Context, runID, windowKind, windowID string, buckets []BucketRef) error {
	if runID == "" {
		return fmt.Errorf("run id cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range buckets {
		delete(m.reservations, reservationKey(runID, b.Scope, b.Key, windowKind, windowID))
	}
	return nil
}

// SweepReservations deletes reservation rows created before olderThan.
func (m *MemoryBackend) SweepReservations(ctx context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for key, r := range m.reservations {
		if r.createdAt.Before(olderThan) {
			delete(m.reservations, key)
			deleted++
		}
	}
	return deleted, nil
}

// BootstrapAdmins seeds the admin set only when it is currently empty.
func (m *MemoryBackend) BootstrapAdmins(ctx context.Context, userIDs []string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.admins) > 0 {
		return false, nil
	}

	now := time.Now()
	seeded := false
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		m.admins[id] = now
		seeded = true
	}
	return seeded, nil
}

// IsAdmin reports whether a user is in the admin set.
func (m *MemoryBackend) IsAdmin(ctx context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.admins[userID]
	return ok, nil
}

// AddAdmin adds a user to the admin set.
func (m *MemoryBackend) AddAdmin(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("user id cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.admins[userID]; !ok {
		m.admins[userID] = time.Now()
	}
	return nil
}

// RemoveAdmin removes a user from the admin set.
func (m *MemoryBackend) RemoveAdmin(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.admins, userID)
	return nil
}

// ListAdmins returns every admin entry sorted by user ID.
func (m *MemoryBackend) ListAdmins(ctx context.Context) ([]Admin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	admins := make([]Admin, 0, len(m.admins))
	for id, created := range m.admins {
		admins = append(admins, Admin{UserID: id, CreatedAt: created})
	}
	sort.Slice(admins, func(i, j int) bool { return admins[i].UserID < admins[j].UserID })
	return admins, nil
}

// Close releases resources held by the backend. No-op for memory.
func (m *MemoryBackend) Close() error {
	return nil
}
