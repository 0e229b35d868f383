package record

import (
	"slices"

	"github.com/roach88/automat/internal/asset"
)

// DecisionType classifies what a rule's firing means for a partition.
type DecisionType string

const (
	// DecisionMaterialize indicates the rule votes to materialize.
	DecisionMaterialize DecisionType = "materialize"

	// DecisionSkip indicates the rule votes to hold a candidate back.
	DecisionSkip DecisionType = "skip"

	// DecisionDiscard indicates the rule carves partitions out of an
	// already-decided request set (the rate-cap safety valve).
	DecisionDiscard DecisionType = "discard"
)

// RuleSnapshot is the stable, serializable identity of a rule at
// evaluation time. Two rules are the same rule iff their snapshots are
// equal; snapshots are what persisted records match against when the
// legacy adapter reconstructs an evaluation tree.
type RuleSnapshot struct {
	RuleName     string       `json:"rule_name"`
	Description  string       `json:"description"`
	DecisionType DecisionType `json:"decision_type"`
}

// Metadata is free-form diagnostic data attached to a rule firing,
// e.g. which parent an asset is waiting on. Values are strings to keep
// records canonically serializable (no floats, no nulls).
type Metadata map[string]string

// RuleEvaluation pairs one rule snapshot (plus the metadata of one
// distinct firing reason) with the partitions it affected. A single rule
// firing for different reasons on different partitions yields multiple
// entries. PartitionKeys is sorted; for unpartitioned assets it holds
// the single empty key when the rule fired.
type RuleEvaluation struct {
	Snapshot      RuleSnapshot `json:"snapshot"`
	Metadata      Metadata     `json:"metadata,omitempty"`
	PartitionKeys []string     `json:"partition_keys"`
}

// AssetEvaluation is the flat record of one evaluation pass for one
// asset, in the shape older systems persisted: counts plus an ordered
// list of rule evaluations (depth-first pre-order over the condition
// tree, each node's own results before its children's).
type AssetEvaluation struct {
	ID              string           `json:"id"`
	AssetKey        asset.Key        `json:"asset_key"`
	Seq             int64            `json:"seq"`
	TickToken       string           `json:"tick_token,omitempty"`
	NumRequested    int              `json:"num_requested"`
	NumSkipped      int              `json:"num_skipped"`
	NumDiscarded    int              `json:"num_discarded"`
	RuleEvaluations []RuleEvaluation `json:"rule_evaluations"`

	// RuleSnapshots lists every rule in the policy at evaluation time,
	// whether or not it fired. The legacy adapter needs this to know
	// which branches a persisted record could have come from.
	RuleSnapshots []RuleSnapshot `json:"rule_snapshots"`
}

// EvaluationsFor returns the rule evaluations matching the given
// snapshot, preserving record order.
func (e *AssetEvaluation) EvaluationsFor(snapshot RuleSnapshot) []RuleEvaluation {
	var out []RuleEvaluation
	for _, re := range e.RuleEvaluations {
		if re.Snapshot == snapshot {
			out = append(out, re)
		}
	}
	return out
}

// HasSnapshot reports whether the snapshot was part of the evaluated
// policy.
func (e *AssetEvaluation) HasSnapshot(snapshot RuleSnapshot) bool {
	return slices.Contains(e.RuleSnapshots, snapshot)
}

// EvaluatedSubset reconstructs the union of all partitions any rule
// evaluation touched, against the asset's current partitions definition.
// Partition keys that no longer exist in the definition are dropped.
func (e *AssetEvaluation) EvaluatedSubset(def asset.PartitionsDef) asset.Subset {
	if !def.Partitioned() {
		for _, re := range e.RuleEvaluations {
			if len(re.PartitionKeys) > 0 {
				return asset.UnpartitionedSubset(e.AssetKey)
			}
		}
		return asset.EmptySubset(e.AssetKey, def)
	}

	subset := asset.EmptySubset(e.AssetKey, def)
	for _, re := range e.RuleEvaluations {
		var keys []string
		for _, pk := range re.PartitionKeys {
			if def.HasKey(pk) {
				keys = append(keys, pk)
			}
		}
		part, err := asset.SubsetFromKeys(e.AssetKey, def, keys...)
		if err != nil {
			continue
		}
		subset, _ = subset.Union(part)
	}
	return subset
}
