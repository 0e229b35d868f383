package asset

import (
	"slices"
	"time"
)

// DateKeyFormat is the partition key format used by daily partitions.
// Daily keys sort chronologically under plain lexicographic ordering,
// which the discard rule relies on for its deterministic tie-break.
const DateKeyFormat = "2006-01-02"

// PartitionsDef describes how an asset's data is divided into partitions.
//
// An asset without partitioning has a single implicit "no partition"
// identity; its def reports Partitioned() == false and has no keys.
type PartitionsDef interface {
	// Partitioned reports whether the asset has explicit partitions.
	Partitioned() bool

	// Keys returns every partition key in sorted order.
	// Empty for unpartitioned assets.
	Keys() []string

	// HasKey reports whether the given key is a valid partition key.
	// Always false for unpartitioned assets.
	HasKey(key string) bool
}

// UnpartitionedDef is the partitions definition of an asset with no
// partitioning. The zero value is ready to use.
type UnpartitionedDef struct{}

func (UnpartitionedDef) Partitioned() bool      { return false }
func (UnpartitionedDef) Keys() []string         { return nil }
func (UnpartitionedDef) HasKey(key string) bool { return false }

// StaticDef is a fixed, explicit list of partition keys.
type StaticDef struct {
	keys []string
}

// NewStaticDef creates a StaticDef from the given keys.
// Duplicates are dropped and keys are stored sorted.
func NewStaticDef(keys ...string) StaticDef {
	sorted := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			sorted = append(sorted, k)
		}
	}
	slices.Sort(sorted)
	return StaticDef{keys: sorted}
}

func (d StaticDef) Partitioned() bool { return true }

func (d StaticDef) Keys() []string {
	return slices.Clone(d.keys)
}

func (d StaticDef) HasKey(key string) bool {
	_, found := slices.BinarySearch(d.keys, key)
	return found
}

// DailyDef partitions an asset by calendar day. Keys use DateKeyFormat
// and cover [Start, End) - the end day is exclusive, matching the
// convention that the current (incomplete) day has no partition yet.
type DailyDef struct {
	Start time.Time
	End   time.Time
}

// NewDailyDef creates a DailyDef spanning [start, end).
// Both times are truncated to midnight UTC.
func NewDailyDef(start, end time.Time) DailyDef {
	return DailyDef{Start: midnightUTC(start), End: midnightUTC(end)}
}

func (d DailyDef) Partitioned() bool { return true }

func (d DailyDef) Keys() []string {
	var keys []string
	for t := d.Start; t.Before(d.End); t = t.AddDate(0, 0, 1) {
		keys = append(keys, t.Format(DateKeyFormat))
	}
	return keys
}

func (d DailyDef) HasKey(key string) bool {
	t, err := time.ParseInLocation(DateKeyFormat, key, time.UTC)
	if err != nil {
		return false
	}
	return !t.Before(d.Start) && t.Before(d.End)
}

func midnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
