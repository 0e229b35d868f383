package rule

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/automat/internal/asset"
	"github.com/roach88/automat/internal/record"
)

// TestSkipOnParentMissing tests holding back candidates whose parent
// partitions were never materialized.
func TestSkipOnParentMissing(t *testing.T) {
	def := asset.NewStaticDef("p1", "p2", "p3")
	g := mustGraph(t, []asset.Node{
		{Key: "up", PartitionsDef: def},
		{Key: "child", PartitionsDef: def, Parents: []asset.Key{"up"}},
	})
	q := newFakeQueryer(g)
	q.setMaterialized(t, "up", "p1")

	results, err := SkipOnParentMissing{}.Evaluate(context.Background(), ruleContext(t, g, q, "child"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"p2", "p3"}, results[0].Subset.PartitionKeys())
	assert.Equal(t, record.Metadata{
		"waiting_on":  "up",
		"num_missing": "2",
	}, results[0].Metadata)
}

// TestSkipOnParentMissing_AllParentsPresent tests silence when upstream
// data is complete.
func TestSkipOnParentMissing_AllParentsPresent(t *testing.T) {
	def := asset.NewStaticDef("p1", "p2")
	g := mustGraph(t, []asset.Node{
		{Key: "up", PartitionsDef: def},
		{Key: "child", PartitionsDef: def, Parents: []asset.Key{"up"}},
	})
	q := newFakeQueryer(g)
	q.setMaterialized(t, "up", "p1", "p2")

	results, err := SkipOnParentMissing{}.Evaluate(context.Background(), ruleContext(t, g, q, "child"))
	require.NoError(t, err)
	assert.Empty(t, results)
}

// TestSkipOnParentMissing_MultipleParents tests one firing per parent
// with missing data.
func TestSkipOnParentMissing_MultipleParents(t *testing.T) {
	def := asset.NewStaticDef("p1", "p2")
	g := mustGraph(t, []asset.Node{
		{Key: "up1", PartitionsDef: def},
		{Key: "up2", PartitionsDef: def},
		{Key: "child", PartitionsDef: def, Parents: []asset.Key{"up1", "up2"}},
	})
	q := newFakeQueryer(g)
	q.setMaterialized(t, "up1", "p1", "p2")
	q.setMaterialized(t, "up2", "p2")

	results, err := SkipOnParentMissing{}.Evaluate(context.Background(), ruleContext(t, g, q, "child"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "up2", results[0].Metadata["waiting_on"])
	assert.Equal(t, []string{"p1"}, results[0].Subset.PartitionKeys())
}

// TestSkipOnParentMissing_UnpartitionedParent tests that a missing
// whole-asset parent blocks every candidate.
func TestSkipOnParentMissing_UnpartitionedParent(t *testing.T) {
	g := mustGraph(t, []asset.Node{
		{Key: "up"},
		{Key: "child", PartitionsDef: asset.NewStaticDef("p1", "p2"), Parents: []asset.Key{"up"}},
	})
	q := newFakeQueryer(g)

	results, err := SkipOnParentMissing{}.Evaluate(context.Background(), ruleContext(t, g, q, "child"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"p1", "p2"}, results[0].Subset.PartitionKeys())
}

// TestSkipOnParentOutdated tests holding back candidates whose parent
// was last materialized before one of the parent's own parents.
func TestSkipOnParentOutdated(t *testing.T) {
	def := asset.NewStaticDef("p1", "p2")
	g := mustGraph(t, []asset.Node{
		{Key: "source", PartitionsDef: def},
		{Key: "mid", PartitionsDef: def, Parents: []asset.Key{"source"}},
		{Key: "leaf", PartitionsDef: def, Parents: []asset.Key{"mid"}},
	})
	q := newFakeQueryer(g)
	// mid/p1 was materialized at seq 5, then source/p1 again at seq 9:
	// mid/p1 is stale. mid/p2 (seq 20) postdates source/p2 (seq 10).
	q.setMaterialized(t, "mid", "p1", "p2")
	q.setLatestSeq("mid", "p1", 5)
	q.setLatestSeq("mid", "p2", 20)
	q.setLatestSeq("source", "p1", 9)
	q.setLatestSeq("source", "p2", 10)

	results, err := SkipOnParentOutdated{}.Evaluate(context.Background(), ruleContext(t, g, q, "leaf"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, record.Metadata{"outdated_parent": "mid"}, results[0].Metadata)
	assert.Equal(t, []string{"p1"}, results[0].Subset.PartitionKeys())
}

// TestSkipOnParentOutdated_UpToDate tests silence when every parent
// postdates its own parents.
func TestSkipOnParentOutdated_UpToDate(t *testing.T) {
	def := asset.NewStaticDef("p1")
	g := mustGraph(t, []asset.Node{
		{Key: "source", PartitionsDef: def},
		{Key: "mid", PartitionsDef: def, Parents: []asset.Key{"source"}},
		{Key: "leaf", PartitionsDef: def, Parents: []asset.Key{"mid"}},
	})
	q := newFakeQueryer(g)
	q.setMaterialized(t, "mid", "p1")
	q.setLatestSeq("mid", "p1", 10)
	q.setLatestSeq("source", "p1", 5)

	results, err := SkipOnParentOutdated{}.Evaluate(context.Background(), ruleContext(t, g, q, "leaf"))
	require.NoError(t, err)
	assert.Empty(t, results)
}

// TestSkipOnParentOutdated_RootParents tests that parents without their
// own upstreams can never be outdated.
func TestSkipOnParentOutdated_RootParents(t *testing.T) {
	def := asset.NewStaticDef("p1")
	g := mustGraph(t, []asset.Node{
		{Key: "source", PartitionsDef: def},
		{Key: "child", PartitionsDef: def, Parents: []asset.Key{"source"}},
	})
	q := newFakeQueryer(g)
	q.setMaterialized(t, "source", "p1")
	q.setLatestSeq("source", "p1", 1)

	results, err := SkipOnParentOutdated{}.Evaluate(context.Background(), ruleContext(t, g, q, "child"))
	require.NoError(t, err)
	assert.Empty(t, results)
}

// TestSkipOnParentOutdated_NeverMaterializedParent tests that a parent
// with no materializations at all is not this rule's concern.
func TestSkipOnParentOutdated_NeverMaterializedParent(t *testing.T) {
	def := asset.NewStaticDef("p1")
	g := mustGraph(t, []asset.Node{
		{Key: "source", PartitionsDef: def},
		{Key: "mid", PartitionsDef: def, Parents: []asset.Key{"source"}},
		{Key: "leaf", PartitionsDef: def, Parents: []asset.Key{"mid"}},
	})
	q := newFakeQueryer(g)
	q.setLatestSeq("source", "p1", 5)

	results, err := SkipOnParentOutdated{}.Evaluate(context.Background(), ruleContext(t, g, q, "leaf"))
	require.NoError(t, err)
	assert.Empty(t, results)
}

// TestSkipOnParentOutdated_UnpartitionedChain tests the empty-key
// mapping for unpartitioned assets.
func TestSkipOnParentOutdated_UnpartitionedChain(t *testing.T) {
	g := mustGraph(t, []asset.Node{
		{Key: "source"},
		{Key: "mid", Parents: []asset.Key{"source"}},
		{Key: "leaf", Parents: []asset.Key{"mid"}},
	})
	q := newFakeQueryer(g)
	q.setMaterialized(t, "mid")
	q.setLatestSeq("mid", "", 3)
	q.setLatestSeq("source", "", 7)

	results, err := SkipOnParentOutdated{}.Evaluate(context.Background(), ruleContext(t, g, q, "leaf"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Subset.Size())
}

// TestSkipRuleSnapshots tests snapshot identity of the skip rules.
func TestSkipRuleSnapshots(t *testing.T) {
	missing := SkipOnParentMissing{}.Snapshot()
	assert.Equal(t, "SkipOnParentMissing", missing.RuleName)
	assert.Equal(t, record.DecisionSkip, missing.DecisionType)

	outdated := SkipOnParentOutdated{}.Snapshot()
	assert.Equal(t, "SkipOnParentOutdated", outdated.RuleName)
	assert.Equal(t, record.DecisionSkip, outdated.DecisionType)
}
