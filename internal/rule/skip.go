package rule

import (
	"context"
	"strconv"

	"github.com/roach88/automat/internal/asset"
	"github.com/roach88/automat/internal/record"
)

// SkipOnParentMissing fires for candidate partitions that have at least
// one parent partition which has never been materialized. Requesting
// such a partition would read incomplete upstream data.
type SkipOnParentMissing struct{}

func (SkipOnParentMissing) Snapshot() record.RuleSnapshot {
	return record.RuleSnapshot{
		RuleName:     "SkipOnParentMissing",
		Description:  "waiting on upstream data to be present",
		DecisionType: record.DecisionSkip,
	}
}

func (r SkipOnParentMissing) Evaluate(ctx context.Context, ec Context) (Results, error) {
	var results Results
	for _, parent := range ec.Graph.Parents(ec.AssetKey) {
		parentDef, err := ec.Graph.PartitionsDef(parent)
		if err != nil {
			return nil, err
		}
		materialized, err := ec.Queryer.MaterializedSubset(ctx, parent)
		if err != nil {
			return nil, err
		}
		missing, err := asset.AllSubset(parent, parentDef).Difference(materialized)
		if err != nil {
			return nil, err
		}
		if missing.IsEmpty() {
			continue
		}
		waiting, err := candidatesWaitingOn(ec, missing)
		if err != nil {
			return nil, err
		}
		if waiting.IsEmpty() {
			continue
		}
		results = append(results, Result{
			Metadata: record.Metadata{
				"waiting_on":  parent.String(),
				"num_missing": strconv.Itoa(missing.Size()),
			},
			Subset: waiting,
		})
	}
	return results, nil
}

// SkipOnParentOutdated fires for candidate partitions that have at
// least one parent partition which is itself stale: the parent was last
// materialized before one of its own parents. Parents that were never
// materialized at all are SkipOnParentMissing's concern, not this
// rule's.
type SkipOnParentOutdated struct{}

func (SkipOnParentOutdated) Snapshot() record.RuleSnapshot {
	return record.RuleSnapshot{
		RuleName:     "SkipOnParentOutdated",
		Description:  "waiting on upstream data to be up to date",
		DecisionType: record.DecisionSkip,
	}
}

func (r SkipOnParentOutdated) Evaluate(ctx context.Context, ec Context) (Results, error) {
	var results Results
	for _, parent := range ec.Graph.Parents(ec.AssetKey) {
		grandparents := ec.Graph.Parents(parent)
		if len(grandparents) == 0 {
			continue
		}
		outdated, err := r.outdatedParentSubset(ctx, ec, parent, grandparents)
		if err != nil {
			return nil, err
		}
		if outdated.IsEmpty() {
			continue
		}
		stale, err := candidatesWaitingOn(ec, outdated)
		if err != nil {
			return nil, err
		}
		if stale.IsEmpty() {
			continue
		}
		results = append(results, Result{
			Metadata: record.Metadata{"outdated_parent": parent.String()},
			Subset:   stale,
		})
	}
	return results, nil
}

// outdatedParentSubset finds the parent partitions whose latest
// materialization predates a grandparent's. Partition keys map between
// the parent and its parents by identity, with unpartitioned assets
// using the empty key.
func (r SkipOnParentOutdated) outdatedParentSubset(ctx context.Context, ec Context, parent asset.Key, grandparents []asset.Key) (asset.Subset, error) {
	parentDef, err := ec.Graph.PartitionsDef(parent)
	if err != nil {
		return asset.Subset{}, err
	}
	materialized, err := ec.Queryer.MaterializedSubset(ctx, parent)
	if err != nil {
		return asset.Subset{}, err
	}

	parentKeys := []string{""}
	if parentDef.Partitioned() {
		parentKeys = materialized.PartitionKeys()
	} else if materialized.IsEmpty() {
		parentKeys = nil
	}

	var outdatedKeys []string
	for _, pk := range parentKeys {
		parentSeq, ok, err := ec.Queryer.LatestMaterializationSeq(ctx, parent, pk)
		if err != nil {
			return asset.Subset{}, err
		}
		if !ok {
			continue
		}
		stale, err := r.staleAgainst(ctx, ec, grandparents, pk, parentSeq)
		if err != nil {
			return asset.Subset{}, err
		}
		if stale {
			outdatedKeys = append(outdatedKeys, pk)
		}
	}

	if !parentDef.Partitioned() {
		if len(outdatedKeys) > 0 {
			return asset.UnpartitionedSubset(parent), nil
		}
		return asset.EmptySubset(parent, parentDef), nil
	}
	return asset.SubsetFromKeys(parent, parentDef, outdatedKeys...)
}

func (SkipOnParentOutdated) staleAgainst(ctx context.Context, ec Context, grandparents []asset.Key, partitionKey string, parentSeq int64) (bool, error) {
	for _, gp := range grandparents {
		gpDef, err := ec.Graph.PartitionsDef(gp)
		if err != nil {
			return false, err
		}
		gpKey := ""
		if gpDef.Partitioned() {
			if !gpDef.HasKey(partitionKey) {
				continue
			}
			gpKey = partitionKey
		}
		gpSeq, ok, err := ec.Queryer.LatestMaterializationSeq(ctx, gp, gpKey)
		if err != nil {
			return false, err
		}
		if ok && gpSeq > parentSeq {
			return true, nil
		}
	}
	return false, nil
}

// candidatesWaitingOn maps missing parent partitions onto the candidate
// scope. Partition keys map by identity; a missing unpartitioned parent
// blocks every candidate.
func candidatesWaitingOn(ec Context, missingParent asset.Subset) (asset.Subset, error) {
	if !missingParent.Partitioned() {
		return ec.CandidateSubset, nil
	}
	if !ec.PartitionsDef.Partitioned() {
		if missingParent.IsEmpty() {
			return ec.EmptySubset(), nil
		}
		return ec.CandidateSubset, nil
	}

	var keys []string
	for _, pk := range missingParent.PartitionKeys() {
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
