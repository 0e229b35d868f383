package condition

import (
	"context"
	"slices"

	"github.com/roach88/automat/internal/rule"
)

// Condition is one node of the automation condition tree.
//
// The variant set is closed: RuleCondition, AndCondition, OrCondition,
// NorCondition. Conditions are immutable after construction and safe to
// share across evaluations.
type Condition interface {
	// Children returns the ordered child conditions.
	// Empty for atomic rule conditions.
	Children() []Condition

	// Evaluate runs this condition against the candidate scope in ec
	// and returns the evaluation node for this subtree.
	Evaluate(ctx context.Context, ec rule.Context) (*Evaluation, error)

	isCondition()
}

// RuleCondition is the atomic condition that a single rule is satisfied.
type RuleCondition struct {
	Rule rule.Rule
}

// NewRule wraps a rule in an atomic condition.
func NewRule(r rule.Rule) *RuleCondition {
	return &RuleCondition{Rule: r}
}

func (c *RuleCondition) Children() []Condition { return nil }
func (c *RuleCondition) isCondition()          {}

// AndCondition holds when all of its children hold.
type AndCondition struct {
	children []Condition
}

// NewAnd builds an AndCondition over the given children, in order.
func NewAnd(children ...Condition) *AndCondition {
	return &AndCondition{children: slices.Clone(children)}
}

func (c *AndCondition) Children() []Condition { return slices.Clone(c.children) }
func (c *AndCondition) isCondition()          {}

// OrCondition holds when any of its children holds.
type OrCondition struct {
	children []Condition
}

// NewOr builds an OrCondition over the given children, in order.
func NewOr(children ...Condition) *OrCondition {
	return &OrCondition{children: slices.Clone(children)}
}

func (c *OrCondition) Children() []Condition { return slices.Clone(c.children) }
func (c *OrCondition) isCondition()          {}

// NorCondition holds when none of its children holds.
type NorCondition struct {
	children []Condition
}

// NewNor builds a NorCondition over the given children, in order.
func NewNor(children ...Condition) *NorCondition {
	return &NorCondition{children: slices.Clone(children)}
}

func (c *NorCondition) Children() []Condition { return slices.Clone(c.children) }
func (c *NorCondition) isCondition()          {}

// And combines two conditions conjunctively. When the left operand is
// already an AndCondition its children are merged in place of nesting.
// The merge is a shallow, left-biased optimization, not a full
// associativity normalization: And(And(a, b), c) and And(a, And(b, c))
// produce different shapes when the right operand is the nested one.
func And(left, right Condition) Condition {
	if and, ok := left.(*AndCondition); ok {
		return NewAnd(append(and.Children(), right)...)
	}
	return NewAnd(left, right)
}

// Or combines two conditions disjunctively, merging a left OrCondition
// operand the same shallow way And does.
func Or(left, right Condition) Condition {
	if or, ok := left.(*OrCondition); ok {
		return NewOr(append(or.Children(), right)...)
	}
	return NewOr(left, right)
}

// Not negates a condition. Negating an OrCondition yields a
// NorCondition over the same children (and vice versa, eliminating the
// double negative); anything else is wrapped in a single-child Nor.
func Not(c Condition) Condition {
	switch v := c.(type) {
	case *OrCondition:
		return NewNor(v.children...)
	case *NorCondition:
		return NewOr(v.children...)
	default:
		return NewNor(c)
	}
}

// IsLegacy reports whether the condition has the exact shape older
// policies were persisted in: a two-child AND whose first child is an
// OR (the materialize branch) and whose second child is a NOR (the skip
// branch). This is a structural pattern match, used only to keep the
// backward-compatible skip-count computation working.
func IsLegacy(c Condition) bool {
	and, ok := c.(*AndCondition)
	if !ok || len(and.children) != 2 {
		return false
	}
	if _, ok := and.children[0].(*OrCondition); !ok {
		return false
	}
	_, ok = and.children[1].(*NorCondition)
	return ok
}

// Equal reports structural equality of two conditions. Atomic rule
// conditions compare by rule snapshot; combinators compare variant,
// arity, and children pairwise in order.
func Equal(a, b Condition) bool {
	switch av := a.(type) {
	case *RuleCondition:
		bv, ok := b.(*RuleCondition)
		return ok && av.Rule.Snapshot() == bv.Rule.Snapshot()
	case *AndCondition:
		bv, ok := b.(*AndCondition)
		return ok && childrenEqual(av.children, bv.children)
	case *OrCondition:
		bv, ok := b.(*OrCondition)
		return ok && childrenEqual(av.children, bv.children)
	case *NorCondition:
		bv, ok := b.(*NorCondition)
		return ok && childrenEqual(av.children, bv.children)
	default:
		return false
	}
}

func childrenEqual(a, b []Condition) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
