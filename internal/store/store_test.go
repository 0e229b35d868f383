package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/automat/internal/asset"
	"github.com/roach88/automat/internal/evaluator"
	"github.com/roach88/automat/internal/record"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(seq int64) *record.AssetEvaluation {
	rec := &record.AssetEvaluation{
		AssetKey:     "raw/events",
		Seq:          seq,
		TickToken:    "tick-1",
		NumRequested: 2,
		RuleEvaluations: []record.RuleEvaluation{
			{
				Snapshot: record.RuleSnapshot{
					RuleName:     "MaterializeOnMissing",
					Description:  "materialization is missing",
					DecisionType: record.DecisionMaterialize,
				},
				Metadata:      record.Metadata{"k": "v"},
				PartitionKeys: []string{"p1", "p2"},
			},
		},
		RuleSnapshots: []record.RuleSnapshot{
			{
				RuleName:     "MaterializeOnMissing",
				Description:  "materialization is missing",
				DecisionType: record.DecisionMaterialize,
			},
		},
	}
	rec.ID = record.MustEvaluationID(rec)
	return rec
}

// TestOpen_Idempotent tests that reopening an existing database works.
func TestOpen_Idempotent(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir + "/test.db")
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(dir + "/test.db")
	require.NoError(t, err)
	assert.NoError(t, s2.Close())
}

// TestRecordMaterialization tests insertion and seq tracking.
func TestRecordMaterialization(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seq, err := s.LatestSeq(ctx)
	require.NoError(t, err)
	assert.Zero(t, seq, "empty store reports seq 0")

	require.NoError(t, s.RecordMaterialization(ctx, "a", "p1", 1))
	require.NoError(t, s.RecordMaterialization(ctx, "a", "p2", 2))
	require.NoError(t, s.RecordMaterialization(ctx, "b", "", 3))

	seq, err = s.LatestSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), seq)
}

// TestRecordMaterialization_Idempotent tests re-recording at the same
// seq is a no-op.
func TestRecordMaterialization_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordMaterialization(ctx, "a", "p1", 1))
	require.NoError(t, s.RecordMaterialization(ctx, "a", "p1", 1))

	keys, err := s.MaterializedPartitionKeys(ctx, "a", 0, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, keys)
}

// TestMaterializedPartitionKeys tests range queries over (after, upto].
func TestMaterializedPartitionKeys(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordMaterialization(ctx, "a", "p1", 1))
	require.NoError(t, s.RecordMaterialization(ctx, "a", "p2", 2))
	require.NoError(t, s.RecordMaterialization(ctx, "a", "p3", 3))
	require.NoError(t, s.RecordMaterialization(ctx, "a", "p1", 4))
	require.NoError(t, s.RecordMaterialization(ctx, "other", "p9", 5))

	keys, err := s.MaterializedPartitionKeys(ctx, "a", 0, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2", "p3"}, keys, "distinct keys, sorted")

	keys, err = s.MaterializedPartitionKeys(ctx, "a", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"p2", "p3"}, keys, "afterSeq is exclusive, uptoSeq inclusive")

	keys, err = s.MaterializedPartitionKeys(ctx, "a", 3, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, keys, "re-materialization appears in later ranges")

	keys, err = s.MaterializedPartitionKeys(ctx, "unknown", 0, 5)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

// TestLatestMaterializationSeq tests the bounded per-partition lookup.
func TestLatestMaterializationSeq(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordMaterialization(ctx, "a", "p1", 2))
	require.NoError(t, s.RecordMaterialization(ctx, "a", "p1", 7))

	seq, found, err := s.LatestMaterializationSeq(ctx, "a", "p1", 100)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(7), seq)

	seq, found, err = s.LatestMaterializationSeq(ctx, "a", "p1", 5)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(2), seq, "uptoSeq bounds the lookup")

	_, found, err = s.LatestMaterializationSeq(ctx, "a", "p1", 1)
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = s.LatestMaterializationSeq(ctx, "a", "never", 100)
	require.NoError(t, err)
	assert.False(t, found)
}

// TestWriteEvaluation_RoundTrip tests persist and read back.
func TestWriteEvaluation_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := sampleRecord(10)
	inserted, err := s.WriteEvaluation(ctx, rec)
	require.NoError(t, err)
	assert.True(t, inserted)

	records, err := s.ReadEvaluations(ctx, "raw/events")
	require.NoError(t, err)
	require.Len(t, records, 1)

	got := records[0]
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.AssetKey, got.AssetKey)
	assert.Equal(t, rec.Seq, got.Seq)
	assert.Equal(t, rec.TickToken, got.TickToken)
	assert.Equal(t, rec.NumRequested, got.NumRequested)
	assert.Equal(t, rec.RuleEvaluations, got.RuleEvaluations)
	assert.Equal(t, rec.RuleSnapshots, got.RuleSnapshots)
}

// TestWriteEvaluation_ContentAddressedDedup tests that re-persisting the
// identical record is a no-op.
func TestWriteEvaluation_ContentAddressedDedup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := sampleRecord(10)
	inserted, err := s.WriteEvaluation(ctx, rec)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.WriteEvaluation(ctx, rec)
	require.NoError(t, err)
	assert.False(t, inserted, "same content-addressed ID is ignored")

	records, err := s.ReadEvaluations(ctx, "raw/events")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

// TestReadEvaluations_Ordering tests seq-ascending history order.
func TestReadEvaluations_Ordering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, seq := range []int64{30, 10, 20} {
		_, err := s.WriteEvaluation(ctx, sampleRecord(seq))
		require.NoError(t, err)
	}

	records, err := s.ReadEvaluations(ctx, "raw/events")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, int64(10), records[0].Seq)
	assert.Equal(t, int64(20), records[1].Seq)
	assert.Equal(t, int64(30), records[2].Seq)

	records, err = s.ReadEvaluations(ctx, "unknown")
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

// TestReadLatestEvaluation tests the most-recent lookup.
func TestReadLatestEvaluation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec, err := s.ReadLatestEvaluation(ctx, "raw/events")
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = s.WriteEvaluation(ctx, sampleRecord(10))
	require.NoError(t, err)
	_, err = s.WriteEvaluation(ctx, sampleRecord(20))
	require.NoError(t, err)

	rec, err = s.ReadLatestEvaluation(ctx, "raw/events")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(20), rec.Seq)
}

// TestLatestEvaluationSeq tests the clock-seeding watermark.
func TestLatestEvaluationSeq(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seq, err := s.LatestEvaluationSeq(ctx)
	require.NoError(t, err)
	assert.Zero(t, seq)

	_, err = s.WriteEvaluation(ctx, sampleRecord(42))
	require.NoError(t, err)

	seq, err = s.LatestEvaluationSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), seq)
}

// TestSaveLoadCursor tests the cursor upsert round-trip.
func TestSaveLoadCursor(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	def := asset.NewStaticDef("p1", "p2", "p3")

	// Missing cursor loads as the initial cursor.
	cur, found, err := s.LoadCursor(ctx, "a", def)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, cur.Seq)
	assert.True(t, cur.RequestedSubset.IsEmpty())

	requested, err := asset.SubsetFromKeys("a", def, "p1", "p2")
	require.NoError(t, err)
	discarded, err := asset.SubsetFromKeys("a", def, "p3")
	require.NoError(t, err)

	require.NoError(t, s.SaveCursor(ctx, evaluator.Cursor{
		AssetKey:        "a",
		Seq:             9,
		RequestedSubset: requested,
		DiscardedSubset: discarded,
		EvaluationID:    "eval-1",
	}))

	cur, found, err = s.LoadCursor(ctx, "a", def)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(9), cur.Seq)
	assert.Equal(t, []string{"p1", "p2"}, cur.RequestedSubset.PartitionKeys())
	assert.Equal(t, []string{"p3"}, cur.DiscardedSubset.PartitionKeys())
	assert.Equal(t, "eval-1", cur.EvaluationID)
}

// TestSaveCursor_Upsert tests that saving again replaces the row.
func TestSaveCursor_Upsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	def := asset.NewStaticDef("p1", "p2")

	first, err := asset.SubsetFromKeys("a", def, "p1")
	require.NoError(t, err)
	require.NoError(t, s.SaveCursor(ctx, evaluator.Cursor{
		AssetKey:        "a",
		Seq:             1,
		RequestedSubset: first,
		DiscardedSubset: asset.EmptySubset("a", def),
		EvaluationID:    "eval-1",
	}))

	second, err := asset.SubsetFromKeys("a", def, "p2")
	require.NoError(t, err)
	require.NoError(t, s.SaveCursor(ctx, evaluator.Cursor{
		AssetKey:        "a",
		Seq:             2,
		RequestedSubset: second,
		DiscardedSubset: asset.EmptySubset("a", def),
		EvaluationID:    "eval-2",
	}))

	cur, found, err := s.LoadCursor(ctx, "a", def)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(2), cur.Seq)
	assert.Equal(t, []string{"p2"}, cur.RequestedSubset.PartitionKeys())
	assert.Equal(t, "eval-2", cur.EvaluationID)
}

// TestLoadCursor_DroppedPartitions tests that cursor keys removed from
// the definition are ignored on load.
func TestLoadCursor_DroppedPartitions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	wide := asset.NewStaticDef("p1", "p2")
	requested, err := asset.SubsetFromKeys("a", wide, "p1", "p2")
	require.NoError(t, err)
	require.NoError(t, s.SaveCursor(ctx, evaluator.Cursor{
		AssetKey:        "a",
		Seq:             5,
		RequestedSubset: requested,
		DiscardedSubset: asset.EmptySubset("a", wide),
	}))

	narrow := asset.NewStaticDef("p1")
	cur, found, err := s.LoadCursor(ctx, "a", narrow)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"p1"}, cur.RequestedSubset.PartitionKeys())
}

// TestLoadCursor_Unpartitioned tests the implicit key convention in
// cursor storage.
func TestLoadCursor_Unpartitioned(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	def := asset.UnpartitionedDef{}

	require.NoError(t, s.SaveCursor(ctx, evaluator.Cursor{
		AssetKey:        "r",
		Seq:             3,
		RequestedSubset: asset.UnpartitionedSubset("r"),
		DiscardedSubset: asset.EmptySubset("r", def),
	}))

	cur, found, err := s.LoadCursor(ctx, "r", def)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, cur.RequestedSubset.Size())
	assert.True(t, cur.DiscardedSubset.IsEmpty())
}
