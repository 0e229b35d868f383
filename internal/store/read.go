package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/automat/internal/asset"
	"github.com/roach88/automat/internal/evaluator"
	"github.com/roach88/automat/internal/record"
)

// LatestSeq returns the highest materialization seq in the store, or 0
// for an empty store. Used to take the snapshot watermark for a pass
// and to seed the logical clock on restart.
func (s *Store) LatestSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM materializations`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("latest seq: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

// MaterializedPartitionKeys returns the distinct partition keys of the
// asset materialized in the seq range (afterSeq, uptoSeq], sorted by
// first appearance then key for determinism.
func (s *Store) MaterializedPartitionKeys(ctx context.Context, key asset.Key, afterSeq, uptoSeq int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT partition_key
		FROM materializations
		WHERE asset_key = ? AND seq > ? AND seq <= ?
		ORDER BY partition_key ASC
	`, key.String(), afterSeq, uptoSeq)
	if err != nil {
		return nil, fmt.Errorf("query materializations for %s: %w", key, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var pk string
		if err := rows.Scan(&pk); err != nil {
			return nil, fmt.Errorf("scan materialization: %w", err)
		}
		keys = append(keys, pk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate materializations: %w", err)
	}
	return keys, nil
}

// LatestEvaluationSeq returns the highest seq stamped on a persisted
// evaluation record, or 0 when none exist. Together with LatestSeq it
// seeds the logical clock on restart.
func (s *Store) LatestEvaluationSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM evaluations`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("latest evaluation seq: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

// LatestMaterializationSeq returns the highest seq at which the given
// partition of the asset was materialized, bounded by uptoSeq. The
// second return is false when the partition was never materialized in
// range.
func (s *Store) LatestMaterializationSeq(ctx context.Context, key asset.Key, partitionKey string, uptoSeq int64) (int64, bool, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(seq)
		FROM materializations
		WHERE asset_key = ? AND partition_key = ? AND seq <= ?
	`, key.String(), partitionKey, uptoSeq).Scan(&seq)
	if err != nil {
		return 0, false, fmt.Errorf("latest materialization seq for %s[%s]: %w", key, partitionKey, err)
	}
	if !seq.Valid {
		return 0, false, nil
	}
	return seq.Int64, true, nil
}

// ReadEvaluations returns the persisted evaluation records for an
// asset, ordered by seq ASC, id ASC.
//
// Returns an empty slice (not nil) if no records exist.
func (s *Store) ReadEvaluations(ctx context.Context, key asset.Key) ([]*record.AssetEvaluation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, asset_key, seq, tick_token, num_requested, num_skipped, num_discarded, body
		FROM evaluations
		WHERE asset_key = ?
		ORDER BY seq ASC, id ASC
	`, key.String())
	if err != nil {
		return nil, fmt.Errorf("query evaluations for %s: %w", key, err)
	}
	defer rows.Close()

	records := []*record.AssetEvaluation{}
	for rows.Next() {
		rec, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evaluations: %w", err)
	}
	return records, nil
}

// ReadLatestEvaluation returns the most recent evaluation record for an
// asset, or (nil, nil) when none exists.
func (s *Store) ReadLatestEvaluation(ctx context.Context, key asset.Key) (*record.AssetEvaluation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, asset_key, seq, tick_token, num_requested, num_skipped, num_discarded, body
		FROM evaluations
		WHERE asset_key = ?
		ORDER BY seq DESC, id DESC
		LIMIT 1
	`, key.String())

	rec, err := scanEvaluation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// LoadCursor loads the per-asset cursor, rebuilding its subsets against
// the given partitions definition. Returns the initial cursor and
// found=false when no cursor has been saved yet.
func (s *Store) LoadCursor(ctx context.Context, key asset.Key, def asset.PartitionsDef) (cur evaluator.Cursor, found bool, err error) {
	var (
		seq          int64
		requested    string
		discarded    string
		evaluationID string
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT seq, requested, discarded, evaluation_id
		FROM cursors
		WHERE asset_key = ?
	`, key.String()).Scan(&seq, &requested, &discarded, &evaluationID)
	if errors.Is(err, sql.ErrNoRows) {
		return evaluator.NewCursor(key, def), false, nil
	}
	if err != nil {
		return evaluator.Cursor{}, false, fmt.Errorf("load cursor %s: %w", key, err)
	}

	requestedSubset, err := subsetFromCursorColumn(key, def, requested)
	if err != nil {
		return evaluator.Cursor{}, false, fmt.Errorf("load cursor %s: %w", key, err)
	}
	discardedSubset, err := subsetFromCursorColumn(key, def, discarded)
	if err != nil {
		return evaluator.Cursor{}, false, fmt.Errorf("load cursor %s: %w", key, err)
	}

	return evaluator.Cursor{
		AssetKey:        key,
		Seq:             seq,
		RequestedSubset: requestedSubset,
		DiscardedSubset: discardedSubset,
		EvaluationID:    evaluationID,
	}, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvaluation(row rowScanner) (*record.AssetEvaluation, error) {
	var (
		rec      record.AssetEvaluation
		assetKey string
		body     string
	)
	err := row.Scan(
		&rec.ID,
		&assetKey,
		&rec.Seq,
		&rec.TickToken,
		&rec.NumRequested,
		&rec.NumSkipped,
		&rec.NumDiscarded,
		&body,
	)
	if err != nil {
		return nil, err
	}
	rec.AssetKey = asset.Key(assetKey)
	if err := unmarshalEvaluationBody(body, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// subsetFromCursorColumn rebuilds a cursor subset from its stored key
// list. Keys dropped from the partitions definition since the cursor
// was saved are ignored rather than failing the load.
func subsetFromCursorColumn(key asset.Key, def asset.PartitionsDef, column string) (asset.Subset, error) {
	keys, err := unmarshalKeyList(column)
	if err != nil {
		return asset.Subset{}, err
	}
	if !def.Partitioned() {
		if len(keys) > 0 {
			return asset.UnpartitionedSubset(key), nil
		}
		return asset.EmptySubset(key, def), nil
	}
	var valid []string
	for _, pk := range keys {
		if def.HasKey(pk) {
			valid = append(valid, pk)
		}
	}
	return asset.SubsetFromKeys(key, def, valid...)
}
