package rule

import (
	"context"
	"time"

	"github.com/roach88/automat/internal/asset"
	"github.com/roach88/automat/internal/record"
)

// InstanceQueryer is the read-only data-access collaborator rules use to
// look up materialization history. Implementations must guarantee a
// consistent snapshot for the duration of one evaluation pass; the
// engine takes no locks of its own.
type InstanceQueryer interface {
	// MaterializedSubset returns every partition of the asset that has
	// ever been materialized, as of the snapshot.
	MaterializedSubset(ctx context.Context, key asset.Key) (asset.Subset, error)

	// MaterializedSince returns the partitions of the asset materialized
	// after the given storage seq, as of the snapshot.
	MaterializedSince(ctx context.Context, key asset.Key, afterSeq int64) (asset.Subset, error)

	// LatestMaterializationSeq returns the seq of the partition's most
	// recent materialization as of the snapshot, or false when the
	// partition has never been materialized. Unpartitioned assets use
	// the empty partition key.
	LatestMaterializationSeq(ctx context.Context, key asset.Key, partitionKey string) (int64, bool, error)

	// SnapshotSeq returns the storage seq watermark this queryer's
	// snapshot was taken at.
	SnapshotSeq() int64
}

// Context is the evaluation context threaded through a condition-tree
// evaluation. It is an immutable value: narrowing the candidate scope
// for a child produces a fresh Context, never an in-place mutation.
type Context struct {
	AssetKey        asset.Key
	PartitionsDef   asset.PartitionsDef
	CandidateSubset asset.Subset

	Graph   *asset.Graph
	Queryer InstanceQueryer

	// CursorSeq is the storage seq watermark of the previous evaluation
	// pass. Rules use it to compute "since the last pass" baselines.
	CursorSeq int64

	// PreviouslyRequested and PreviouslyDiscarded carry the prior
	// pass's outcome from the cursor.
	PreviouslyRequested asset.Subset
	PreviouslyDiscarded asset.Subset

	EvaluationTime time.Time
}

// WithCandidateSubset returns a copy of the context with a narrowed
// candidate scope.
func (c Context) WithCandidateSubset(candidate asset.Subset) Context {
	c.CandidateSubset = candidate
	return c
}

// EmptySubset returns the empty subset for the context's asset.
func (c Context) EmptySubset() asset.Subset {
	return asset.EmptySubset(c.AssetKey, c.PartitionsDef)
}

// Result is one distinct firing of a rule: the partitions affected plus
// the diagnostic metadata they share.
type Result struct {
	Metadata record.Metadata
	Subset   asset.Subset
}

// Results is an ordered list of rule firings. Order is insertion order
// from rule evaluation and is preserved when records are flattened.
type Results []Result

// TrueSubset unions all result subsets into the subset the rule holds
// true for.
func (rs Results) TrueSubset(key asset.Key, def asset.PartitionsDef) (asset.Subset, error) {
	subset := asset.EmptySubset(key, def)
	for _, r := range rs {
		var err error
		subset, err = subset.Union(r.Subset)
		if err != nil {
			return asset.Subset{}, err
		}
	}
	return subset, nil
}

// Rule is a single named business rule. Implementations must be pure:
// identical contexts produce identical results.
type Rule interface {
	// Snapshot returns the stable identity of the rule.
	Snapshot() record.RuleSnapshot

	// Evaluate runs the rule against the candidate scope in ec.
	Evaluate(ctx context.Context, ec Context) (Results, error)
}
