package evaluator

import (
	"github.com/roach88/automat/internal/asset"
)

// Cursor is the incremental state carried between evaluation passes for
// one asset. The engine only reads the previous cursor to build rule
// baselines and returns a new one; it never mutates a cursor in place.
type Cursor struct {
	AssetKey asset.Key

	// Seq is the storage seq watermark the pass evaluated at. The next
	// pass treats materializations after Seq as "new since last time".
	Seq int64

	// RequestedSubset is the condition tree's true subset from the
	// pass, before the discard carve-out.
	RequestedSubset asset.Subset

	// DiscardedSubset is what the discard rule carved out of
	// RequestedSubset.
	DiscardedSubset asset.Subset

	// EvaluationID is the content-addressed ID of the persisted record
	// for the pass, empty for the initial cursor.
	EvaluationID string
}

// NewCursor returns the initial cursor for an asset: watermark zero and
// empty subsets.
func NewCursor(key asset.Key, def asset.PartitionsDef) Cursor {
	return Cursor{
		AssetKey:        key,
		RequestedSubset: asset.EmptySubset(key, def),
		DiscardedSubset: asset.EmptySubset(key, def),
	}
}
