package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/automat/internal/asset"
	"github.com/roach88/automat/internal/condition"
	"github.com/roach88/automat/internal/record"
	"github.com/roach88/automat/internal/rule"
)

// DefaultMaxMaterializationsPerPass caps how many partitions a single
// pass may request when no explicit cap is configured.
const DefaultMaxMaterializationsPerPass = 1

// Evaluator pairs one root condition with the materialization rate cap.
type Evaluator struct {
	condition           condition.Condition
	maxMaterializations int
	capDisabled         bool
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithMaxMaterializations sets the per-pass materialization cap.
func WithMaxMaterializations(n int) Option {
	return func(e *Evaluator) {
		e.maxMaterializations = n
		e.capDisabled = false
	}
}

// WithoutRateCap disables the discard safety valve entirely.
func WithoutRateCap() Option {
	return func(e *Evaluator) {
		e.capDisabled = true
	}
}

// New creates an Evaluator for the given root condition.
// The default cap is DefaultMaxMaterializationsPerPass.
func New(cond condition.Condition, opts ...Option) *Evaluator {
	e := &Evaluator{
		condition:           cond,
		maxMaterializations: DefaultMaxMaterializationsPerPass,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Condition returns the root condition.
func (e *Evaluator) Condition() condition.Condition {
	return e.condition
}

// MaxMaterializations returns the configured cap and whether it is
// enabled.
func (e *Evaluator) MaxMaterializations() (int, bool) {
	return e.maxMaterializations, !e.capDisabled
}

// RuleSnapshots returns the snapshot of every rule in the policy,
// depth-first over the condition tree, with the discard rule's snapshot
// appended when the cap is enabled.
func (e *Evaluator) RuleSnapshots() []record.RuleSnapshot {
	snapshots := collectSnapshots(e.condition, nil)
	if !e.capDisabled {
		snapshots = append(snapshots, e.discardRule().Snapshot())
	}
	return snapshots
}

func collectSnapshots(c condition.Condition, acc []record.RuleSnapshot) []record.RuleSnapshot {
	if rc, ok := c.(*condition.RuleCondition); ok {
		return append(acc, rc.Rule.Snapshot())
	}
	for _, child := range c.Children() {
		acc = collectSnapshots(child, acc)
	}
	return acc
}

func (e *Evaluator) discardRule() rule.DiscardOnMaxMaterializationsExceeded {
	return rule.DiscardOnMaxMaterializationsExceeded{Limit: e.maxMaterializations}
}

// Env bundles the per-pass inputs to Evaluate. All of it is a read-only
// snapshot; the queryer must stay consistent for the duration of the
// pass.
type Env struct {
	AssetKey asset.Key
	Graph    *asset.Graph
	Queryer  rule.InstanceQueryer
	Cursor   Cursor
	Now      time.Time
}

// Result is the outcome of one evaluation pass.
type Result struct {
	// Evaluation is the root condition evaluation, with DiscardSubset
	// populated when the cap is enabled.
	Evaluation *condition.Evaluation

	// Cursor is the updated incremental state for the next pass.
	Cursor Cursor

	// DiscardSubset is what the discard rule carved out; always a
	// subset of Evaluation.TrueSubset.
	DiscardSubset asset.Subset

	// DiscardResults holds the discard rule's firings, already in
	// record shape for flattening.
	DiscardResults []record.RuleEvaluation
}

// RequestedSubset returns the partitions the pass decided to request:
// the tree's true subset minus the discarded partitions.
func (r *Result) RequestedSubset() (asset.Subset, error) {
	return r.Evaluation.TrueSubset.Difference(r.DiscardSubset)
}

// Evaluate runs one evaluation pass for the asset.
//
// The root candidate scope is every existing partition of the asset.
// After the condition tree evaluates, the discard rule runs against the
// tree's true subset (not the root scope) and its result becomes the
// discard subset. Any rule error aborts the pass; no partial result is
// returned.
func (e *Evaluator) Evaluate(ctx context.Context, env Env) (*Result, error) {
	def, err := env.Graph.PartitionsDef(env.AssetKey)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", env.AssetKey, err)
	}

	rootCtx := rule.Context{
		AssetKey:            env.AssetKey,
		PartitionsDef:       def,
		CandidateSubset:     asset.AllSubset(env.AssetKey, def),
		Graph:               env.Graph,
		Queryer:             env.Queryer,
		CursorSeq:           env.Cursor.Seq,
		PreviouslyRequested: env.Cursor.RequestedSubset,
		PreviouslyDiscarded: env.Cursor.DiscardedSubset,
		EvaluationTime:      env.Now,
	}

	eval, err := e.condition.Evaluate(ctx, rootCtx)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", env.AssetKey, err)
	}

	// The discard rule is treated separately from the tree, for now.
	toDiscard := asset.EmptySubset(env.AssetKey, def)
	var discardResults []record.RuleEvaluation
	if !e.capDisabled {
		discardCond := condition.NewRule(e.discardRule())
		discardEval, err := discardCond.Evaluate(ctx, rootCtx.WithCandidateSubset(eval.TrueSubset))
		if err != nil {
			return nil, fmt.Errorf("evaluate %s: discard rule: %w", env.AssetKey, err)
		}
		toDiscard = discardEval.TrueSubset
		discardResults = discardEval.AllResults()
	}
	eval.DiscardSubset = &toDiscard

	return &Result{
		Evaluation: eval,
		Cursor: Cursor{
			AssetKey:        env.AssetKey,
			Seq:             env.Queryer.SnapshotSeq(),
			RequestedSubset: eval.TrueSubset,
			DiscardedSubset: toDiscard,
		},
		DiscardSubset:  toDiscard,
		DiscardResults: discardResults,
	}, nil
}
