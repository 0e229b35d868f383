// Package instance provides the read-only instance queryer rules use to
// look up materialization history during one evaluation pass.
package instance

import (
	"context"
	"fmt"

	"github.com/roach88/automat/internal/asset"
	"github.com/roach88/automat/internal/store"
)

// Queryer is a caching, snapshot-consistent view of the instance store.
//
// The snapshot seq watermark is taken once, at construction; every
// query filters to seq <= watermark, so materializations recorded while
// a pass runs are invisible to it. Repeated lookups for the same asset
// are served from an in-memory cache.
//
// A Queryer is built for one evaluation pass and used from one
// goroutine; it is not safe for concurrent use.
type Queryer struct {
	store       *store.Store
	graph       *asset.Graph
	snapshotSeq int64

	materializedCache map[asset.Key]asset.Subset
	latestSeqCache    map[seqCacheKey]cachedSeq
}

type seqCacheKey struct {
	asset        asset.Key
	partitionKey string
}

type cachedSeq struct {
	seq   int64
	found bool
}

// NewQueryer creates a Queryer snapshotted at the store's current
// latest seq.
func NewQueryer(ctx context.Context, st *store.Store, graph *asset.Graph) (*Queryer, error) {
	seq, err := st.LatestSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("new queryer: %w", err)
	}
	return NewQueryerAt(st, graph, seq), nil
}

// NewQueryerAt creates a Queryer pinned to an explicit seq watermark.
// Used by tests and replay to evaluate against a historical snapshot.
func NewQueryerAt(st *store.Store, graph *asset.Graph, snapshotSeq int64) *Queryer {
	return &Queryer{
		store:             st,
		graph:             graph,
		snapshotSeq:       snapshotSeq,
		materializedCache: make(map[asset.Key]asset.Subset),
		latestSeqCache:    make(map[seqCacheKey]cachedSeq),
	}
}

// SnapshotSeq returns the seq watermark the snapshot was taken at.
func (q *Queryer) SnapshotSeq() int64 {
	return q.snapshotSeq
}

// MaterializedSubset returns every partition of the asset materialized
// as of the snapshot. Cached per asset for the life of the queryer.
func (q *Queryer) MaterializedSubset(ctx context.Context, key asset.Key) (asset.Subset, error) {
	if cached, ok := q.materializedCache[key]; ok {
		return cached, nil
	}
	subset, err := q.subsetInRange(ctx, key, 0, q.snapshotSeq)
	if err != nil {
		return asset.Subset{}, err
	}
	q.materializedCache[key] = subset
	return subset, nil
}

// MaterializedSince returns the partitions of the asset materialized in
// the range (afterSeq, snapshot].
func (q *Queryer) MaterializedSince(ctx context.Context, key asset.Key, afterSeq int64) (asset.Subset, error) {
	return q.subsetInRange(ctx, key, afterSeq, q.snapshotSeq)
}

// LatestMaterializationSeq returns the seq of the partition's most
// recent materialization as of the snapshot.
func (q *Queryer) LatestMaterializationSeq(ctx context.Context, key asset.Key, partitionKey string) (int64, bool, error) {
	ck := seqCacheKey{key, partitionKey}
	if cached, ok := q.latestSeqCache[ck]; ok {
		return cached.seq, cached.found, nil
	}
	seq, found, err := q.store.LatestMaterializationSeq(ctx, key, partitionKey, q.snapshotSeq)
	if err != nil {
		return 0, false, err
	}
	q.latestSeqCache[ck] = cachedSeq{seq, found}
	return seq, found, nil
}

func (q *Queryer) subsetInRange(ctx context.Context, key asset.Key, afterSeq, uptoSeq int64) (asset.Subset, error) {
	def, err := q.graph.PartitionsDef(key)
	if err != nil {
		return asset.Subset{}, err
	}

	keys, err := q.store.MaterializedPartitionKeys(ctx, key, afterSeq, uptoSeq)
	if err != nil {
		return asset.Subset{}, err
	}

	if !def.Partitioned() {
		if len(keys) > 0 {
			return asset.UnpartitionedSubset(key), nil
		}
		return asset.EmptySubset(key, def), nil
	}

	// Partition keys that no longer exist in the definition (e.g. a
	// static def that shrank) are dropped rather than failing the pass.
	var valid []string
	for _, pk := range keys {
		if def.HasKey(pk) {
			valid = append(valid, pk)
		}
	}
	return asset.SubsetFromKeys(key, def, valid...)
}
