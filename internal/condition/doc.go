// Package condition implements the automation condition tree: a small
// expression language of composable boolean conditions over partition
// subsets.
//
// A condition is one of four variants: an atomic Rule condition wrapping
// a single business rule, or an And / Or / Nor combinator over an
// ordered list of children. The set is closed; conditions are immutable
// and compared by structural equality.
//
// Evaluation is depth-first, children before parent, and produces an
// Evaluation node per condition carrying the subset the condition holds
// true for, the candidate scope it was asked to consider, and the
// ordered child evaluations. Child order is load-bearing:
//
//   - And evaluates children strictly left to right, narrowing each
//     child's candidate scope to the running intersection. All children
//     are evaluated even when the running subset becomes empty, so the
//     record keeps complete diagnostics.
//   - Or evaluates every child against the original, unnarrowed scope
//     and unions the results.
//   - Nor mirrors And's narrowing but subtracts each child's true
//     subset from the running value.
//
// Construction-time simplifications: And/Or flatten shallowly when the
// left operand is already of the same kind, and negating an Or yields a
// Nor (and vice versa) instead of a double negative. The flattening is
// deliberately shallow - legacy-shape detection depends on the exact
// structural shape, so no full normalization pass is applied.
package condition
