package rule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/automat/internal/asset"
)

// fakeQueryer is an in-memory InstanceQueryer for rule tests. Lookups
// fall back to empty subsets using the graph's partition definitions.
type fakeQueryer struct {
	graph        *asset.Graph
	materialized map[asset.Key]asset.Subset
	since        map[asset.Key]asset.Subset
	latestSeq    map[asset.Key]map[string]int64
	snapshotSeq  int64
}

func newFakeQueryer(g *asset.Graph) *fakeQueryer {
	return &fakeQueryer{
		graph:        g,
		materialized: make(map[asset.Key]asset.Subset),
		since:        make(map[asset.Key]asset.Subset),
		latestSeq:    make(map[asset.Key]map[string]int64),
		snapshotSeq:  100,
	}
}

func (q *fakeQueryer) MaterializedSubset(_ context.Context, key asset.Key) (asset.Subset, error) {
	if s, ok := q.materialized[key]; ok {
		return s, nil
	}
	return q.emptyFor(key)
}

func (q *fakeQueryer) MaterializedSince(_ context.Context, key asset.Key, _ int64) (asset.Subset, error) {
	if s, ok := q.since[key]; ok {
		return s, nil
	}
	return q.emptyFor(key)
}

func (q *fakeQueryer) LatestMaterializationSeq(_ context.Context, key asset.Key, partitionKey string) (int64, bool, error) {
	seq, ok := q.latestSeq[key][partitionKey]
	return seq, ok, nil
}

func (q *fakeQueryer) SnapshotSeq() int64 { return q.snapshotSeq }

func (q *fakeQueryer) emptyFor(key asset.Key) (asset.Subset, error) {
	def, err := q.graph.PartitionsDef(key)
	if err != nil {
		return asset.Subset{}, err
	}
	return asset.EmptySubset(key, def), nil
}

func (q *fakeQueryer) setMaterialized(t *testing.T, key asset.Key, partitionKeys ...string) {
	t.Helper()
	def, err := q.graph.PartitionsDef(key)
	require.NoError(t, err)
	if !def.Partitioned() {
		q.materialized[key] = asset.UnpartitionedSubset(key)
		return
	}
	s, err := asset.SubsetFromKeys(key, def, partitionKeys...)
	require.NoError(t, err)
	q.materialized[key] = s
}

func (q *fakeQueryer) setSince(t *testing.T, key asset.Key, partitionKeys ...string) {
	t.Helper()
	def, err := q.graph.PartitionsDef(key)
	require.NoError(t, err)
	if !def.Partitioned() {
		q.since[key] = asset.UnpartitionedSubset(key)
		return
	}
	s, err := asset.SubsetFromKeys(key, def, partitionKeys...)
	require.NoError(t, err)
	q.since[key] = s
}

func (q *fakeQueryer) setLatestSeq(key asset.Key, partitionKey string, seq int64) {
	if q.latestSeq[key] == nil {
		q.latestSeq[key] = make(map[string]int64)
	}
	q.latestSeq[key][partitionKey] = seq
}

// ruleContext builds an evaluation context with the asset's full
// partition set as candidate scope.
func ruleContext(t *testing.T, g *asset.Graph, q InstanceQueryer, key asset.Key) Context {
	t.Helper()
	def, err := g.PartitionsDef(key)
	require.NoError(t, err)
	return Context{
		AssetKey:            key,
		PartitionsDef:       def,
		CandidateSubset:     asset.AllSubset(key, def),
		Graph:               g,
		Queryer:             q,
		PreviouslyRequested: asset.EmptySubset(key, def),
		PreviouslyDiscarded: asset.EmptySubset(key, def),
		EvaluationTime:      time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

// mustGraph builds a graph or fails the test.
func mustGraph(t *testing.T, nodes []asset.Node) *asset.Graph {
	t.Helper()
	g, err := asset.NewGraph(nodes)
	require.NoError(t, err)
	return g
}
