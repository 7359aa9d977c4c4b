// Package store provides SQLite-backed durable storage for the offline client.
//
// The store is the sole source of truth on the device. It holds:
//   - Catalog: playable entries, superseded by newer versions with the same id
//   - Assets and curriculum: cached content counted against one byte quota
//   - Progress: append-only completion records
//   - Achievements: one unlock event per (student, achievement)
//   - Outbox: pending mutations awaiting upload, with per-item sync state
//   - Sessions: resumable in-progress play
//
// # Atomic pairing
//
// Every progress record and achievement event is written in the same
// transaction as its outbox item. Either both persist or neither does, and a
// failed write surfaces a STORAGE_FAILURE error with prior state untouched.
//
// # Deterministic reads
//
// All list queries carry an explicit ORDER BY with id as the final tie-break.
// Absence is never an error: single-record getters return (zero, false, nil)
// and list getters return empty, non-nil slices.
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON
//   - one open connection: the store is the single writer
//
// A database that fails to open as SQLite, or fails PRAGMA quick_check, is
// moved aside and rebuilt from empty.
package store
