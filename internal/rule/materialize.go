package rule

import (
	"context"

	"github.com/roach88/automat/internal/asset"
	"github.com/roach88/automat/internal/record"
)

// MaterializeOnMissing fires for candidate partitions that have never
// been materialized.
type MaterializeOnMissing struct{}

func (MaterializeOnMissing) Snapshot() record.RuleSnapshot {
	return record.RuleSnapshot{
		RuleName:     "MaterializeOnMissing",
		Description:  "materialization is missing",
		DecisionType: record.DecisionMaterialize,
	}
}

func (r MaterializeOnMissing) Evaluate(ctx context.Context, ec Context) (Results, error) {
	materialized, err := ec.Queryer.MaterializedSubset(ctx, ec.AssetKey)
	if err != nil {
		return nil, err
	}
	missing, err := ec.CandidateSubset.Difference(materialized)
	if err != nil {
		return nil, err
	}
	if missing.IsEmpty() {
		return nil, nil
	}
	return Results{{Subset: missing}}, nil
}

// MaterializeOnParentUpdated fires for candidate partitions whose parent
// partition was materialized since the previous evaluation pass.
//
// Each updated parent produces its own result entry so the record shows
// which upstream triggered the request.
type MaterializeOnParentUpdated struct{}

func (MaterializeOnParentUpdated) Snapshot() record.RuleSnapshot {
	return record.RuleSnapshot{
		RuleName:     "MaterializeOnParentUpdated",
		Description:  "upstream data has changed since latest materialization",
		DecisionType: record.DecisionMaterialize,
	}
}

func (r MaterializeOnParentUpdated) Evaluate(ctx context.Context, ec Context) (Results, error) {
	var results Results
	for _, parent := range ec.Graph.Parents(ec.AssetKey) {
		updated, err := ec.Queryer.MaterializedSince(ctx, parent, ec.CursorSeq)
		if err != nil {
			return nil, err
		}
		if updated.IsEmpty() {
			continue
		}
		affected, err := childSubsetForParent(ec, updated)
		if err != nil {
			return nil, err
		}
		if affected.IsEmpty() {
			continue
		}
		results = append(results, Result{
			Metadata: record.Metadata{"updated_parent": parent.String()},
			Subset:   affected,
		})
	}
	return results, nil
}

// childSubsetForParent maps a parent subset onto the child's candidate
// scope. Partitioned parent and child are mapped by identical partition
// key; an unpartitioned parent affects every candidate partition.
func childSubsetForParent(ec Context, parentSubset asset.Subset) (asset.Subset, error) {
	if !parentSubset.Partitioned() {
		// Whole-asset parent: any update affects all candidates.
		return ec.CandidateSubset, nil
	}
	if !ec.PartitionsDef.Partitioned() {
		// Partitioned parent feeding an unpartitioned child.
		if parentSubset.IsEmpty() {
			return ec.EmptySubset(), nil
		}
		return ec.CandidateSubset, nil
	}

	var keys []string
	for _, pk := range parentSubset.PartitionKeys() {
		if ec.PartitionsDef.HasKey(pk) {
			keys = append(keys, pk)
		}
	}
	mapped, err := asset.SubsetFromKeys(ec.AssetKey, ec.PartitionsDef, keys...)
	if err != nil {
		return asset.Subset{}, err
	}
	return mapped.Intersect(ec.CandidateSubset)
}
