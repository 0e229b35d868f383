// Package compiler turns CUE policy sources into an asset graph and
// per-asset evaluators.
//
// A policy file declares assets, their partitioning, their upstream
// dependencies, and the automation rules that drive them:
//
//	asset: "analytics/daily_rollup": {
//		partitions: {type: "daily", start: "2024-01-01", end: "2024-01-08"}
//		deps: ["ingest/events"]
//		policy: {
//			materialize_on: ["missing", "parent_updated"]
//			skip_on:        ["parent_missing"]
//			max_materializations_per_tick: 2
//		}
//	}
//
// Compilation is two-phase: CompileAsset/CompileSource parse CUE into
// AssetSpec values (fail-fast, with source positions), then Validate
// collects every remaining schema violation and Build assembles the
// graph and evaluators.
package compiler
