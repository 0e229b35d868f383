// Package evaluator implements the top-level automation policy: a root
// condition tree paired with the materialization rate cap.
//
// One Evaluator exists per asset and is effectively static
// configuration; Evaluate is called once per pass with a fresh
// environment (graph, instance-queryer snapshot, previous cursor) and
// returns the condition evaluation, the updated cursor, and the
// discarded subset. The call is synchronous, single-pass, and
// side-effect free - actual materialization requests are issued by the
// caller from the returned subsets.
//
// The package also owns the two record conversions: flattening a pass
// result into the flat persisted shape, and the backward-compatibility
// adapter that reconstructs an evaluation tree from a legacy record.
package evaluator
