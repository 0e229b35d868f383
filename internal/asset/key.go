package asset

import "strings"

// Key is the globally unique identifier of one asset in the dependency
// graph. Keys are opaque to the evaluation engine and usable as map keys.
//
// Multi-segment keys (e.g. warehouse tables namespaced by schema) are
// joined with "/": NewKey("analytics", "events") == Key("analytics/events").
type Key string

// NewKey builds a Key from path segments.
func NewKey(segments ...string) Key {
	return Key(strings.Join(segments, "/"))
}

// String returns the key as a plain string.
func (k Key) String() string {
	return string(k)
}

// Segments splits the key back into its path segments.
func (k Key) Segments() []string {
	if k == "" {
		return nil
	}
	return strings.Split(string(k), "/")
}
