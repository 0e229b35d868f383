// Package daemon runs one synchronous scheduling tick: for every asset
// in a compiled policy bundle it loads the cursor, evaluates the
// asset's condition tree against a consistent store snapshot, persists
// the flat evaluation record, and saves the updated cursor.
//
// The long-running loop around ticks (process management, signal
// handling, intervals) lives with the caller; a Daemon only knows how
// to perform a single tick and how to record materializations against
// its logical clock.
package daemon
