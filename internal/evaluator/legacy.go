package evaluator

import (
	"fmt"

	"github.com/roach88/automat/internal/asset"
	"github.com/roach88/automat/internal/condition"
	"github.com/roach88/automat/internal/record"
	"github.com/roach88/automat/internal/rule"
)

// ToRecord flattens a pass result into the flat record shape other
// parts of the system persist and understand.
//
// The skip count is computed the backward-compatible way: it is only
// meaningful for legacy-shaped conditions (AND of a materialize-OR and
// a skip-NOR), where it is the materialize branch's true size minus the
// NOR branch's true size. Everything else reports zero skipped.
func ToRecord(res *Result, seq int64, tickToken string, snapshots []record.RuleSnapshot) (*record.AssetEvaluation, error) {
	eval := res.Evaluation

	requested, err := res.RequestedSubset()
	if err != nil {
		return nil, fmt.Errorf("to record: %w", err)
	}

	numSkipped := 0
	if condition.IsLegacy(eval.Condition) && len(eval.Children) == 2 {
		// First child is the materialize branch, second the skip branch.
		materialize, skip := eval.Children[0], eval.Children[1]
		numSkipped = materialize.TrueSubset.Size() - skip.TrueSubset.Size()
	}

	rec := &record.AssetEvaluation{
		AssetKey:        eval.TrueSubset.AssetKey(),
		Seq:             seq,
		TickToken:       tickToken,
		NumRequested:    requested.Size(),
		NumSkipped:      numSkipped,
		NumDiscarded:    res.DiscardSubset.Size(),
		RuleEvaluations: append(eval.AllResults(), res.DiscardResults...),
		RuleSnapshots:   snapshots,
	}

	id, err := record.EvaluationID(rec)
	if err != nil {
		return nil, fmt.Errorf("to record: %w", err)
	}
	rec.ID = id
	return rec, nil
}

// FromRecord reconstructs a condition evaluation tree from a flat
// persisted record.
//
// Only legacy-shaped conditions can be reconstructed: the flat record
// carries no tree structure, so the two known branches (materialize-OR,
// skip-NOR) are rebuilt synthetically by matching each branch's rule
// snapshots against the record. For non-legacy conditions FromRecord
// returns (nil, nil) - not applicable, not an error.
func FromRecord(cond condition.Condition, rec *record.AssetEvaluation, graph *asset.Graph) (*condition.Evaluation, error) {
	if !condition.IsLegacy(cond) {
		return nil, nil
	}

	def, err := graph.PartitionsDef(rec.AssetKey)
	if err != nil {
		return nil, fmt.Errorf("from record: %w", err)
	}
	empty := asset.EmptySubset(rec.AssetKey, def)

	children := cond.Children()
	materializeCond, skipCond := children[0], children[1]

	materializeBranch := &condition.Evaluation{
		Condition:       materializeCond,
		TrueSubset:      empty,
		CandidateSubset: empty,
		Children:        branchLeaves(materializeCond, rec, def),
	}
	skipBranch := &condition.Evaluation{
		Condition:       skipCond,
		TrueSubset:      empty,
		CandidateSubset: empty,
		Children:        branchLeaves(skipCond, rec, def),
	}

	return &condition.Evaluation{
		Condition:       cond,
		TrueSubset:      rec.EvaluatedSubset(def),
		CandidateSubset: empty,
		Children:        []*condition.Evaluation{materializeBranch, skipBranch},
	}, nil
}

// branchLeaves rebuilds the leaf evaluations of one legacy branch from
// the rule conditions whose snapshots the record knows about.
func branchLeaves(branch condition.Condition, rec *record.AssetEvaluation, def asset.PartitionsDef) []*condition.Evaluation {
	var leaves []*condition.Evaluation
	for _, child := range branch.Children() {
		rc, ok := child.(*condition.RuleCondition)
		if !ok {
			continue
		}
		snapshot := rc.Rule.Snapshot()
		if !rec.HasSnapshot(snapshot) {
			continue
		}
		leaves = append(leaves, leafFromRecord(rc, rec, def))
	}
	return leaves
}

// leafFromRecord rebuilds a single rule condition's evaluation from the
// record. Materialize-decision leaves get an empty candidate scope; skip
// and discard leaves considered the full evaluated subset.
func leafFromRecord(rc *condition.RuleCondition, rec *record.AssetEvaluation, def asset.PartitionsDef) *condition.Evaluation {
	snapshot := rc.Rule.Snapshot()
	key := rec.AssetKey
	empty := asset.EmptySubset(key, def)

	candidate := empty
	if snapshot.DecisionType != record.DecisionMaterialize {
		candidate = rec.EvaluatedSubset(def)
	}

	var results rule.Results
	for _, re := range rec.EvaluationsFor(snapshot) {
		results = append(results, rule.Result{
			Metadata: re.Metadata,
			Subset:   subsetFromRecordKeys(key, def, re.PartitionKeys),
		})
	}

	return &condition.Evaluation{
		Condition:       rc,
		TrueSubset:      empty,
		CandidateSubset: candidate,
		Results:         results,
	}
}

// subsetFromRecordKeys reverses the record key convention: the single
// empty key denotes the implicit partition of an unpartitioned asset,
// and keys dropped from the partitions definition are ignored.
func subsetFromRecordKeys(key asset.Key, def asset.PartitionsDef, partitionKeys []string) asset.Subset {
	if !def.Partitioned() {
		if len(partitionKeys) > 0 {
			return asset.UnpartitionedSubset(key)
		}
		return asset.EmptySubset(key, def)
	}
	var keys []string
	for _, pk := range partitionKeys {
		if def.HasKey(pk) {
			keys = append(keys, pk)
		}
	}
	subset, err := asset.SubsetFromKeys(key, def, keys...)
	if err != nil {
		return asset.EmptySubset(key, def)
	}
	return subset
}
