// Package asset provides the foundational value types for the automation
// evaluation engine: asset keys, partitions definitions, partition subsets,
// and the asset dependency graph.
//
// This package contains value types only. All other internal packages
// import asset; asset imports nothing internal. This keeps it the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Subsets are immutable values. Every combinator returns a new Subset;
//     nothing is mutated in place.
//   - Subsets for different assets can never be combined. Doing so is a
//     programming error and returns DifferentAssetsError.
//   - All key enumerations are returned in sorted order for deterministic
//     iteration.
package asset
