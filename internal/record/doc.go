// Package record defines the persisted, flat representation of an
// automation evaluation pass: rule snapshots, per-rule evaluation
// entries, and the asset evaluation record written to the store.
//
// Records are the serialization boundary between the evaluation engine
// and everything that persists or inspects its output. The tree-shaped
// condition evaluation is flattened into a record via depth-first
// pre-order traversal; the legacy adapter reverses the conversion for
// old persisted data.
//
// Record identity is content-addressed: canonical JSON (RFC 8785 key
// ordering, NFC-normalized strings, no floats, no nulls) hashed with a
// domain-separated SHA-256. The same evaluation inputs always produce
// the same record ID, which makes evaluation persistence idempotent.
package record
