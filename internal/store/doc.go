// Package store persists reconciliation state behind a small key-value
// contract.
//
// State is split into independently encoded sections so a single corrupt
// section falls back to empty without discarding the rest:
//   - records: bounded CallRecords
//   - processed_indices, sent_records, processed_answers: the dedup ledger
//   - recent_calls: the recent-call window
//   - stats: delivery counters
//
// # Backends
//
// OpenBackend selects a Backend from a DSN:
//   - sqlite://path or a bare path: SQLite (WAL, synchronous=NORMAL,
//     busy_timeout=5000, user_version migrations)
//   - postgres://...: PostgreSQL, one row per section
//   - file://path: a JSON document written atomically
//   - memory://: process-local, for tests and dry runs
//
// Writes go through the same Put path for every backend; a failed write is
// reported to the engine, which sweeps and retries once.
package store
