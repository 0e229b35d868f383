package store

import (
	"context"
	"fmt"

	"github.com/roach88/automat/internal/asset"
	"github.com/roach88/automat/internal/evaluator"
	"github.com/roach88/automat/internal/record"
)

// RecordMaterialization inserts a materialization record for one
// (asset, partition) pair at the given logical seq. The empty partition
// key addresses the implicit partition of an unpartitioned asset.
//
// Uses ON CONFLICT DO NOTHING for idempotency - re-recording the same
// materialization at the same seq is silently ignored.
func (s *Store) RecordMaterialization(ctx context.Context, key asset.Key, partitionKey string, seq int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO materializations (asset_key, partition_key, seq)
		VALUES (?, ?, ?)
		ON CONFLICT(asset_key, partition_key, seq) DO NOTHING
	`, key.String(), partitionKey, seq)
	if err != nil {
		return fmt.Errorf("record materialization %s[%s]: %w", key, partitionKey, err)
	}
	return nil
}

// WriteEvaluation persists a flat evaluation record.
// Returns whether a new row was inserted.
//
// Record IDs are content-addressed, so re-persisting the identical pass
// hits ON CONFLICT(id) DO NOTHING and reports inserted=false.
func (s *Store) WriteEvaluation(ctx context.Context, rec *record.AssetEvaluation) (inserted bool, err error) {
	body, err := marshalEvaluationBody(rec)
	if err != nil {
		return false, fmt.Errorf("write evaluation: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO evaluations
		(id, asset_key, seq, tick_token, num_requested, num_skipped, num_discarded, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		rec.AssetKey.String(),
		rec.Seq,
		rec.TickToken,
		rec.NumRequested,
		rec.NumSkipped,
		rec.NumDiscarded,
		body,
	)
	if err != nil {
		return false, fmt.Errorf("write evaluation %s: %w", rec.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write evaluation %s: rows affected: %w", rec.ID, err)
	}
	return rows > 0, nil
}

// SaveCursor upserts the per-asset cursor. The previous cursor row is
// replaced; history lives in the evaluations table, not here.
func (s *Store) SaveCursor(ctx context.Context, cur evaluator.Cursor) error {
	requested, err := marshalKeyList(cursorKeys(cur.RequestedSubset))
	if err != nil {
		return fmt.Errorf("save cursor %s: %w", cur.AssetKey, err)
	}
	discarded, err := marshalKeyList(cursorKeys(cur.DiscardedSubset))
	if err != nil {
		return fmt.Errorf("save cursor %s: %w", cur.AssetKey, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cursors (asset_key, seq, requested, discarded, evaluation_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(asset_key) DO UPDATE SET
			seq = excluded.seq,
			requested = excluded.requested,
			discarded = excluded.discarded,
			evaluation_id = excluded.evaluation_id
	`, cur.AssetKey.String(), cur.Seq, requested, discarded, cur.EvaluationID)
	if err != nil {
		return fmt.Errorf("save cursor %s: %w", cur.AssetKey, err)
	}
	return nil
}

// cursorKeys renders a subset as a key list for cursor storage, using
// the single empty key for a present implicit partition.
func cursorKeys(s asset.Subset) []string {
	if !s.Partitioned() {
		if s.IsEmpty() {
			return nil
		}
		return []string{""}
	}
	return s.PartitionKeys()
}
