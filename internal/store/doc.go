// Package store provides SQLite-backed durable storage for the
// automation engine's instance data:
//
//   - Materializations: one row per (asset, partition) materialization,
//     stamped with a logical seq
//   - Evaluations: persisted flat evaluation records, idempotent by
//     content-addressed ID
//   - Cursors: the per-asset incremental state carried between passes
//
// Ordering uses the logical seq counter, never wall-clock timestamps,
// and every read query orders by seq ASC, id ASC so repeated reads of
// an unchanged database produce identical results.
//
// The database runs in WAL mode with a single writer connection; the
// evaluation engine itself only ever reads through the instance
// queryer's snapshot.
package store
