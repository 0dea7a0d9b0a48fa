// Package storage provides persistence backends for the token ledger.
//
// Two backends are available:
//
//   - MemoryBackend: in-memory maps, no persistence, used by tests and
//     embedders that do not need durability
//   - SQLiteBackend: durable single-file storage with WAL mode and
//     transactional batch operations
//
// The Backend interface is the ledger's sole synchronization point: the
// reservation protocol has no in-memory coordinator, so backends must
// serialize concurrent Reserve calls on overlapping buckets. The memory
// backend does this with a single mutex; the SQLite backend does it with
// immediate transactions on a single-writer connection.
package storage
