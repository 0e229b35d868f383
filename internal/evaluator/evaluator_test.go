package evaluator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/automat/internal/asset"
	"github.com/roach88/automat/internal/condition"
	"github.com/roach88/automat/internal/rule"
)

// fakeQueryer is an in-memory InstanceQueryer for evaluator tests.
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
		snapshotSeq:  42,
	}
}

func (q *fakeQueryer) MaterializedSubset(_ context.Context, key asset.Key) (asset.Subset, error) {
	if s, ok := q.materialized[key]; ok {
		return s, nil
	}
	def, err := q.graph.PartitionsDef(key)
	if err != nil {
		return asset.Subset{}, err
	}
	return asset.EmptySubset(key, def), nil
}

func (q *fakeQueryer) MaterializedSince(_ context.Context, key asset.Key, _ int64) (asset.Subset, error) {
	if s, ok := q.since[key]; ok {
		return s, nil
	}
	def, err := q.graph.PartitionsDef(key)
	if err != nil {
		return asset.Subset{}, err
	}
	return asset.EmptySubset(key, def), nil
}

func (q *fakeQueryer) LatestMaterializationSeq(_ context.Context, key asset.Key, partitionKey string) (int64, bool, error) {
	seq, ok := q.latestSeq[key][partitionKey]
	return seq, ok, nil
}

func (q *fakeQueryer) SnapshotSeq() int64 { return q.snapshotSeq }

func missingOnlyCondition() condition.Condition {
	return condition.NewOr(condition.NewRule(rule.MaterializeOnMissing{}))
}

func legacyCondition() condition.Condition {
	materialize := condition.NewOr(condition.NewRule(rule.MaterializeOnMissing{}))
	skip := condition.NewOr(condition.NewRule(rule.SkipOnParentMissing{}))
	return condition.And(materialize, condition.Not(skip))
}

func evalEnv(t *testing.T, g *asset.Graph, q rule.InstanceQueryer, key asset.Key) Env {
	t.Helper()
	def, err := g.PartitionsDef(key)
	require.NoError(t, err)
	return Env{
		AssetKey: key,
		Graph:    g,
		Queryer:  q,
		Cursor:   NewCursor(key, def),
		Now:      time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

// TestEvaluator_Defaults tests option handling.
func TestEvaluator_Defaults(t *testing.T) {
	e := New(missingOnlyCondition())
	limit, enabled := e.MaxMaterializations()
	assert.Equal(t, DefaultMaxMaterializationsPerPass, limit)
	assert.True(t, enabled)

	e = New(missingOnlyCondition(), WithMaxMaterializations(5))
	limit, enabled = e.MaxMaterializations()
	assert.Equal(t, 5, limit)
	assert.True(t, enabled)

	e = New(missingOnlyCondition(), WithoutRateCap())
	_, enabled = e.MaxMaterializations()
	assert.False(t, enabled)
}

// TestEvaluator_RuleSnapshots tests snapshot collection order and the
// discard rule's presence.
func TestEvaluator_RuleSnapshots(t *testing.T) {
	e := New(legacyCondition(), WithMaxMaterializations(3))
	snaps := e.RuleSnapshots()
	require.Len(t, snaps, 3)
	assert.Equal(t, "MaterializeOnMissing", snaps[0].RuleName)
	assert.Equal(t, "SkipOnParentMissing", snaps[1].RuleName)
	assert.Equal(t, "DiscardOnMaxMaterializationsExceeded", snaps[2].RuleName)

	// Cap disabled: no discard snapshot.
	snaps = New(legacyCondition(), WithoutRateCap()).RuleSnapshots()
	require.Len(t, snaps, 2)
}

// TestEvaluate_MissingPartitionsRequested tests the basic pass: all
// never-materialized partitions are requested.
func TestEvaluate_MissingPartitionsRequested(t *testing.T) {
	g, err := asset.NewGraph([]asset.Node{
		{Key: "a", PartitionsDef: asset.NewStaticDef("p1", "p2", "p3")},
	})
	require.NoError(t, err)
	q := newFakeQueryer(g)

	e := New(missingOnlyCondition(), WithoutRateCap())
	res, err := e.Evaluate(context.Background(), evalEnv(t, g, q, "a"))
	require.NoError(t, err)

	requested, err := res.RequestedSubset()
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2", "p3"}, requested.PartitionKeys())
	assert.True(t, res.DiscardSubset.IsEmpty())
	assert.Empty(t, res.DiscardResults)
}

// TestEvaluate_RateCap tests the discard carve-out: with a cap of one,
// the lexicographically first candidate survives.
func TestEvaluate_RateCap(t *testing.T) {
	g, err := asset.NewGraph([]asset.Node{
		{Key: "a", PartitionsDef: asset.NewStaticDef("p1", "p2")},
	})
	require.NoError(t, err)
	q := newFakeQueryer(g)

	e := New(missingOnlyCondition(), WithMaxMaterializations(1))
	res, err := e.Evaluate(context.Background(), evalEnv(t, g, q, "a"))
	require.NoError(t, err)

	requested, err := res.RequestedSubset()
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, requested.PartitionKeys())
	assert.Equal(t, []string{"p2"}, res.DiscardSubset.PartitionKeys())

	require.Len(t, res.DiscardResults, 1)
	assert.Equal(t, "DiscardOnMaxMaterializationsExceeded", res.DiscardResults[0].Snapshot.RuleName)
	assert.Equal(t, []string{"p2"}, res.DiscardResults[0].PartitionKeys)

	// The root evaluation carries the discard subset for the record.
	require.NotNil(t, res.Evaluation.DiscardSubset)
	assert.True(t, res.Evaluation.DiscardSubset.Equal(res.DiscardSubset))
}

// TestEvaluate_DiscardScopeIsTreeOutcome tests that the discard rule
// runs against the tree's true subset, not the root scope.
func TestEvaluate_DiscardScopeIsTreeOutcome(t *testing.T) {
	g, err := asset.NewGraph([]asset.Node{
		{Key: "a", PartitionsDef: asset.NewStaticDef("p1", "p2", "p3")},
	})
	require.NoError(t, err)
	q := newFakeQueryer(g)
	// p1 already materialized: only p2 and p3 are candidates for discard.
	s, err := asset.SubsetFromKeys("a", asset.NewStaticDef("p1", "p2", "p3"), "p1")
	require.NoError(t, err)
	q.materialized["a"] = s

	e := New(missingOnlyCondition(), WithMaxMaterializations(1))
	res, err := e.Evaluate(context.Background(), evalEnv(t, g, q, "a"))
	require.NoError(t, err)

	requested, err := res.RequestedSubset()
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, requested.PartitionKeys())
	assert.Equal(t, []string{"p3"}, res.DiscardSubset.PartitionKeys())
}

// TestEvaluate_CursorAdvance tests the returned cursor fields.
func TestEvaluate_CursorAdvance(t *testing.T) {
	g, err := asset.NewGraph([]asset.Node{
		{Key: "a", PartitionsDef: asset.NewStaticDef("p1", "p2")},
	})
	require.NoError(t, err)
	q := newFakeQueryer(g)
	q.snapshotSeq = 77

	e := New(missingOnlyCondition(), WithMaxMaterializations(1))
	res, err := e.Evaluate(context.Background(), evalEnv(t, g, q, "a"))
	require.NoError(t, err)

	cur := res.Cursor
	assert.Equal(t, asset.Key("a"), cur.AssetKey)
	assert.Equal(t, int64(77), cur.Seq, "cursor advances to the snapshot watermark")
	assert.Equal(t, []string{"p1", "p2"}, cur.RequestedSubset.PartitionKeys(),
		"cursor records the tree outcome before the discard carve-out")
	assert.Equal(t, []string{"p2"}, cur.DiscardedSubset.PartitionKeys())
	assert.Empty(t, cur.EvaluationID)
}

// TestEvaluate_LegacyShape tests a full materialize-minus-skip pass.
func TestEvaluate_LegacyShape(t *testing.T) {
	def := asset.NewStaticDef("p1", "p2")
	g, err := asset.NewGraph([]asset.Node{
		{Key: "up", PartitionsDef: def},
		{Key: "child", PartitionsDef: def, Parents: []asset.Key{"up"}},
	})
	require.NoError(t, err)
	q := newFakeQueryer(g)
	up, err := asset.SubsetFromKeys("up", def, "p1")
	require.NoError(t, err)
	q.materialized["up"] = up

	e := New(legacyCondition(), WithoutRateCap())
	res, err := e.Evaluate(context.Background(), evalEnv(t, g, q, "child"))
	require.NoError(t, err)

	// Both child partitions are missing; p2 is held back because up/p2
	// has never been materialized.
	requested, err := res.RequestedSubset()
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, requested.PartitionKeys())
}

// TestEvaluate_UnknownAsset tests the error path for assets outside the
// graph.
func TestEvaluate_UnknownAsset(t *testing.T) {
	g, err := asset.NewGraph(nil)
	require.NoError(t, err)
	q := newFakeQueryer(g)

	e := New(missingOnlyCondition())
	_, err = e.Evaluate(context.Background(), Env{
		AssetKey: "ghost",
		Graph:    g,
		Queryer:  q,
		Now:      time.Now(),
	})
	require.Error(t, err)
	assert.True(t, asset.IsUnknownAsset(err))
}

// TestNewCursor tests initial cursor state.
func TestNewCursor(t *testing.T) {
	def := asset.NewStaticDef("p1")
	cur := NewCursor("a", def)

	assert.Equal(t, asset.Key("a"), cur.AssetKey)
	assert.Zero(t, cur.Seq)
	assert.True(t, cur.RequestedSubset.IsEmpty())
	assert.True(t, cur.DiscardedSubset.IsEmpty())
	assert.Empty(t, cur.EvaluationID)
}
