package compiler

import (
	"fmt"
	"strings"
	"time"

	"cuelang.org/go/cue"

	"github.com/roach88/automat/internal/asset"
	"github.com/roach88/automat/internal/condition"
	"github.com/roach88/automat/internal/evaluator"
	"github.com/roach88/automat/internal/rule"
)

// Rule names accepted in policy materialize_on / skip_on lists.
const (
	RuleMissing        = "missing"
	RuleParentUpdated  = "parent_updated"
	RuleParentMissing  = "parent_missing"
	RuleParentOutdated = "parent_outdated"
)

// Partition scheme names accepted in partitions.type.
const (
	PartitionsNone   = "none"
	PartitionsStatic = "static"
	PartitionsDaily  = "daily"
)

// PartitionsSpec is the parsed partitions block of one asset.
type PartitionsSpec struct {
	Type  string
	Start string // daily only, inclusive, YYYY-MM-DD
	End   string // daily only, exclusive, YYYY-MM-DD
	Keys  []string
}

// AssetSpec is the parsed form of one asset declaration, before
// validation and graph assembly.
type AssetSpec struct {
	Key           string
	Partitions    PartitionsSpec
	Deps          []string
	MaterializeOn []string
	SkipOn        []string

	// MaxPerTick is nil when the policy leaves the rate cap at its
	// default, -1 when the cap is explicitly disabled.
	MaxPerTick *int
}

// CompileSource parses a complete CUE policy value into asset specs.
// The value's top-level "asset" struct maps asset keys to declarations.
func CompileSource(v cue.Value) ([]AssetSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	assetVal := v.LookupPath(cue.ParsePath("asset"))
	if !assetVal.Exists() {
		return nil, &CompileError{
			Field:   "asset",
			Message: "policy must declare at least one asset",
			Pos:     v.Pos(),
		}
	}

	iter, err := assetVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var specs []AssetSpec
	for iter.Next() {
		spec, err := CompileAsset(iter.Value())
		if err != nil {
			return nil, err
		}
		specs = append(specs, *spec)
	}
	if len(specs) == 0 {
		return nil, &CompileError{
			Field:   "asset",
			Message: "policy must declare at least one asset",
			Pos:     assetVal.Pos(),
		}
	}
	return specs, nil
}

// CompileAsset parses a CUE value into an AssetSpec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the asset struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`asset: "ingest/events": { ... }`)
//	spec, err := CompileAsset(v.LookupPath(cue.ParsePath(`asset."ingest/events"`)))
func CompileAsset(v cue.Value) (*AssetSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &AssetSpec{}

	// Asset key comes from the struct label (the path selector).
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Key = strings.Trim(labels[len(labels)-1].String(), `"`)
	}

	var err error
	spec.Partitions, err = parsePartitions(v)
	if err != nil {
		return nil, err
	}

	spec.Deps, err = parseStringList(v.LookupPath(cue.ParsePath("deps")), "deps")
	if err != nil {
		return nil, err
	}

	policyVal := v.LookupPath(cue.ParsePath("policy"))
	if !policyVal.Exists() {
		return nil, &CompileError{
			Field:   "policy",
			Message: "policy is required",
			Pos:     v.Pos(),
		}
	}

	spec.MaterializeOn, err = parseStringList(policyVal.LookupPath(cue.ParsePath("materialize_on")), "policy.materialize_on")
	if err != nil {
		return nil, err
	}
	spec.SkipOn, err = parseStringList(policyVal.LookupPath(cue.ParsePath("skip_on")), "policy.skip_on")
	if err != nil {
		return nil, err
	}

	maxVal := policyVal.LookupPath(cue.ParsePath("max_materializations_per_tick"))
	if maxVal.Exists() {
		n, err := maxVal.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if n == 0 || n < -1 {
			return nil, &CompileError{
				Field:   "policy.max_materializations_per_tick",
				Message: "must be a positive int, or -1 to disable the rate cap",
				Pos:     maxVal.Pos(),
			}
		}
		m := int(n)
		spec.MaxPerTick = &m
	}

	return spec, nil
}

// parsePartitions extracts the partitions block. Absent means
// unpartitioned.
func parsePartitions(v cue.Value) (PartitionsSpec, error) {
	partVal := v.LookupPath(cue.ParsePath("partitions"))
	if !partVal.Exists() {
		return PartitionsSpec{Type: PartitionsNone}, nil
	}

	typVal := partVal.LookupPath(cue.ParsePath("type"))
	if !typVal.Exists() {
		return PartitionsSpec{}, &CompileError{
			Field:   "partitions.type",
			Message: `partitions requires a type: "none", "static", or "daily"`,
			Pos:     partVal.Pos(),
		}
	}
	typ, err := typVal.String()
	if err != nil {
		return PartitionsSpec{}, formatCUEError(err)
	}

	spec := PartitionsSpec{Type: typ}
	switch typ {
	case PartitionsNone:

	case PartitionsStatic:
		spec.Keys, err = parseStringList(partVal.LookupPath(cue.ParsePath("keys")), "partitions.keys")
		if err != nil {
			return PartitionsSpec{}, err
		}
		if len(spec.Keys) == 0 {
			return PartitionsSpec{}, &CompileError{
				Field:   "partitions.keys",
				Message: "static partitions require at least one key",
				Pos:     partVal.Pos(),
			}
		}

	case PartitionsDaily:
		for _, bound := range []struct {
			field string
			dst   *string
		}{
			{"start", &spec.Start},
			{"end", &spec.End},
		} {
			bv := partVal.LookupPath(cue.ParsePath(bound.field))
			if !bv.Exists() {
				return PartitionsSpec{}, &CompileError{
					Field:   "partitions." + bound.field,
					Message: "daily partitions require start and end dates",
					Pos:     partVal.Pos(),
				}
			}
			s, err := bv.String()
			if err != nil {
				return PartitionsSpec{}, formatCUEError(err)
			}
			if _, err := time.Parse(asset.DateKeyFormat, s); err != nil {
				return PartitionsSpec{}, &CompileError{
					Field:   "partitions." + bound.field,
					Message: fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", s),
					Pos:     bv.Pos(),
				}
			}
			*bound.dst = s
		}

	default:
		return PartitionsSpec{}, &CompileError{
			Field:   "partitions.type",
			Message: fmt.Sprintf("invalid partitions type %q, must be \"none\", \"static\", or \"daily\"", typ),
			Pos:     typVal.Pos(),
		}
	}

	return spec, nil
}

func parseStringList(v cue.Value, field string) ([]string, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{
			Field:   field,
			Message: "must be a list of strings",
			Pos:     v.Pos(),
		}
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   field,
				Message: "must be a list of strings",
				Pos:     iter.Value().Pos(),
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// Bundle is the executable form of a compiled policy: the asset graph
// plus one evaluator per asset.
type Bundle struct {
	Graph      *asset.Graph
	Evaluators map[asset.Key]*evaluator.Evaluator
}

// Build assembles validated specs into a Bundle. Specs should have
// passed Validate first; Build reports the first structural problem it
// hits rather than collecting them.
func Build(specs []AssetSpec) (*Bundle, error) {
	if errs := Validate(specs); len(errs) > 0 {
		return nil, errs[0]
	}
	if cycles := AnalyzeCycles(specs); len(cycles) > 0 {
		return nil, cycles[0]
	}

	nodes := make([]asset.Node, 0, len(specs))
	for _, spec := range specs {
		def, err := partitionsDef(spec.Partitions)
		if err != nil {
			return nil, err
		}
		parents := make([]asset.Key, 0, len(spec.Deps))
		for _, dep := range spec.Deps {
			parents = append(parents, asset.Key(dep))
		}
		nodes = append(nodes, asset.Node{
			Key:           asset.Key(spec.Key),
			PartitionsDef: def,
			Parents:       parents,
		})
	}

	graph, err := asset.NewGraph(nodes)
	if err != nil {
		return nil, err
	}

	evals := make(map[asset.Key]*evaluator.Evaluator, len(specs))
	for _, spec := range specs {
		cond, err := buildCondition(spec)
		if err != nil {
			return nil, err
		}
		var opts []evaluator.Option
		if spec.MaxPerTick != nil {
			if *spec.MaxPerTick == -1 {
				opts = append(opts, evaluator.WithoutRateCap())
			} else {
				opts = append(opts, evaluator.WithMaxMaterializations(*spec.MaxPerTick))
			}
		}
		evals[asset.Key(spec.Key)] = evaluator.New(cond, opts...)
	}

	return &Bundle{Graph: graph, Evaluators: evals}, nil
}

func partitionsDef(spec PartitionsSpec) (asset.PartitionsDef, error) {
	switch spec.Type {
	case PartitionsNone, "":
		return asset.UnpartitionedDef{}, nil
	case PartitionsStatic:
		return asset.NewStaticDef(spec.Keys...), nil
	case PartitionsDaily:
		start, err := time.Parse(asset.DateKeyFormat, spec.Start)
		if err != nil {
			return nil, fmt.Errorf("partitions.start: %w", err)
		}
		end, err := time.Parse(asset.DateKeyFormat, spec.End)
		if err != nil {
			return nil, fmt.Errorf("partitions.end: %w", err)
		}
		return asset.NewDailyDef(start, end), nil
	default:
		return nil, fmt.Errorf("unknown partitions type %q", spec.Type)
	}
}

// buildCondition assembles the asset's condition tree from its policy.
//
// Materialize rules are ORed together; when skip rules are present the
// OR is ANDed with the negated OR of the skips, producing the
// materialize-then-veto shape the legacy record adapter recognizes.
func buildCondition(spec AssetSpec) (condition.Condition, error) {
	materialize, err := ruleConditions(spec.MaterializeOn, materializeRule)
	if err != nil {
		return nil, err
	}
	skip, err := ruleConditions(spec.SkipOn, skipRule)
	if err != nil {
		return nil, err
	}

	cond := orAll(materialize)
	if len(skip) > 0 {
		cond = condition.And(cond, condition.Not(orAll(skip)))
	}
	return cond, nil
}

func ruleConditions(names []string, build func(string) (rule.Rule, error)) ([]condition.Condition, error) {
	conds := make([]condition.Condition, 0, len(names))
	for _, name := range names {
		r, err := build(name)
		if err != nil {
			return nil, err
		}
		conds = append(conds, condition.NewRule(r))
	}
	return conds, nil
}

// orAll always produces an OrCondition, even over a single rule, so
// that adding skip rules yields the AND(OR, NOR) shape the legacy
// record adapter recognizes.
func orAll(conds []condition.Condition) condition.Condition {
	return condition.NewOr(conds...)
}

func materializeRule(name string) (rule.Rule, error) {
	switch name {
	case RuleMissing:
		return rule.MaterializeOnMissing{}, nil
	case RuleParentUpdated:
		return rule.MaterializeOnParentUpdated{}, nil
	default:
		return nil, fmt.Errorf("unknown materialize rule %q", name)
	}
}

func skipRule(name string) (rule.Rule, error) {
	switch name {
	case RuleParentMissing:
		return rule.SkipOnParentMissing{}, nil
	case RuleParentOutdated:
		return rule.SkipOnParentOutdated{}, nil
	default:
		return nil, fmt.Errorf("unknown skip rule %q", name)
	}
}
