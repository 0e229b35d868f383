// Package rule implements the atomic business rules of the automation
// evaluation engine.
//
// A rule is a pure function of an evaluation context. It returns a list
// of (metadata, subset) results: one entry per distinct firing reason,
// each grouping the partitions that share that exact metadata. Rules
// never mutate state; their only external interaction is read-only
// queries against the instance queryer, which must present a consistent
// snapshot for the duration of one evaluation pass.
//
// Rule failures propagate uncaught. A failing rule aborts the entire
// asset's evaluation pass; partial per-rule results are never committed.
package rule
