package condition

import (
	"context"
	"log/slog"

	"github.com/roach88/automat/internal/rule"
)

// Evaluate invokes the wrapped rule exactly once and unions the
// returned subsets into the node's true subset.
func (c *RuleCondition) Evaluate(ctx context.Context, ec rule.Context) (*Evaluation, error) {
	snapshot := c.Rule.Snapshot()
	slog.Debug("evaluating rule",
		"asset", ec.AssetKey,
		"rule", snapshot.RuleName,
		"candidates", ec.CandidateSubset.Size(),
	)

	results, err := c.Rule.Evaluate(ctx, ec)
	if err != nil {
		return nil, err
	}
	trueSubset, err := results.TrueSubset(ec.AssetKey, ec.PartitionsDef)
	if err != nil {
		return nil, err
	}

	slog.Debug("rule evaluated",
		"asset", ec.AssetKey,
		"rule", snapshot.RuleName,
		"true", trueSubset.Size(),
	)
	return &Evaluation{
		Condition:       c,
		TrueSubset:      trueSubset,
		CandidateSubset: ec.CandidateSubset,
		Results:         results,
	}, nil
}

// Evaluate runs the children strictly left to right. Each child sees a
// candidate scope narrowed to the running intersection, because later
// children may depend on the scope earlier ones produced. Children are
// still evaluated once the running subset is empty - there is no early
// exit, so diagnostics stay complete.
func (c *AndCondition) Evaluate(ctx context.Context, ec rule.Context) (*Evaluation, error) {
	trueSubset := ec.CandidateSubset
	children := make([]*Evaluation, 0, len(c.children))
	for _, child := range c.children {
		childEval, err := child.Evaluate(ctx, ec.WithCandidateSubset(trueSubset))
		if err != nil {
			return nil, err
		}
		children = append(children, childEval)
		trueSubset, err = trueSubset.Intersect(childEval.TrueSubset)
		if err != nil {
			return nil, err
		}
	}
	return &Evaluation{
		Condition:       c,
		TrueSubset:      trueSubset,
		CandidateSubset: ec.CandidateSubset,
		Children:        children,
	}, nil
}

// Evaluate runs every child against the original, unnarrowed candidate
// scope and unions the results. Order does not change the result, only
// which child's diagnostics appear first in the flattened record.
func (c *OrCondition) Evaluate(ctx context.Context, ec rule.Context) (*Evaluation, error) {
	trueSubset := ec.EmptySubset()
	children := make([]*Evaluation, 0, len(c.children))
	for _, child := range c.children {
		childEval, err := child.Evaluate(ctx, ec)
		if err != nil {
			return nil, err
		}
		children = append(children, childEval)
		trueSubset, err = trueSubset.Union(childEval.TrueSubset)
		if err != nil {
			return nil, err
		}
	}
	return &Evaluation{
		Condition:       c,
		TrueSubset:      trueSubset,
		CandidateSubset: ec.CandidateSubset,
		Children:        children,
	}, nil
}

// Evaluate mirrors And's narrowing: each child sees the running value
// as its candidate scope and its true subset is subtracted from the
// running value. The subtraction is sequential, not a single
// independently computed union.
func (c *NorCondition) Evaluate(ctx context.Context, ec rule.Context) (*Evaluation, error) {
	trueSubset := ec.CandidateSubset
	children := make([]*Evaluation, 0, len(c.children))
	for _, child := range c.children {
		childEval, err := child.Evaluate(ctx, ec.WithCandidateSubset(trueSubset))
		if err != nil {
			return nil, err
		}
		children = append(children, childEval)
		trueSubset, err = trueSubset.Difference(childEval.TrueSubset)
		if err != nil {
			return nil, err
		}
	}
	return &Evaluation{
		Condition:       c,
		TrueSubset:      trueSubset,
		CandidateSubset: ec.CandidateSubset,
		Children:        children,
	}, nil
}
