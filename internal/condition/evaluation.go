package condition

import (
	"github.com/roach88/automat/internal/asset"
	"github.com/roach88/automat/internal/record"
	"github.com/roach88/automat/internal/rule"
)

// Evaluation is the result of evaluating one node of the condition tree.
//
// TrueSubset is always a pure function of the child evaluations'
// TrueSubsets per the node's combinator (And = intersection, Or = union,
// Nor = candidate minus children). CandidateSubset is whatever scope the
// parent passed down; the root's candidate scope is the full set of
// existing partitions for the asset.
type Evaluation struct {
	// Condition is a back-reference to the evaluated node, not owned.
	Condition Condition

	TrueSubset      asset.Subset
	CandidateSubset asset.Subset

	// DiscardSubset is set only on the root, by the top-level
	// evaluator, after the discard rule has run. Nil elsewhere.
	// Kept for backward compatibility with the flat record shape.
	DiscardSubset *asset.Subset

	// Results holds the rule firings produced directly at this node.
	// Non-empty only for atomic rule conditions.
	Results rule.Results

	// Children holds the child evaluations in declaration order.
	Children []*Evaluation
}

// ForChild returns the evaluation of the given child condition, matched
// by structural equality, or nil when no child matches.
func (e *Evaluation) ForChild(child Condition) *Evaluation {
	for _, ce := range e.Children {
		if Equal(ce.Condition, child) {
			return ce
		}
	}
	return nil
}

// AllResults flattens the tree into the ordered list of rule
// evaluations the flat record shape expects: depth-first pre-order,
// each node's own results before its children's.
func (e *Evaluation) AllResults() []record.RuleEvaluation {
	var out []record.RuleEvaluation
	if rc, ok := e.Condition.(*RuleCondition); ok {
		snapshot := rc.Rule.Snapshot()
		for _, r := range e.Results {
			out = append(out, record.RuleEvaluation{
				Snapshot:      snapshot,
				Metadata:      r.Metadata,
				PartitionKeys: recordKeys(r.Subset),
			})
		}
	}
	for _, child := range e.Children {
		out = append(out, child.AllResults()...)
	}
	return out
}

// recordKeys converts a subset to the partition-key list used in flat
// records. The implicit partition of an unpartitioned asset is recorded
// as the single empty key.
func recordKeys(s asset.Subset) []string {
	if !s.Partitioned() {
		if s.IsEmpty() {
			return nil
		}
		return []string{""}
	}
	return s.PartitionKeys()
}
