package compiler

import (
	"fmt"
	"strings"
)

// Validation error codes (E100-E199)
const (
	ErrEmptyAssetKey     = "E101" // asset key must be non-empty
	ErrDuplicateAsset    = "E102" // duplicate asset key
	ErrNoMaterializeRule = "E103" // at least one materialize rule required
	ErrUnknownRule       = "E104" // unknown rule name
	ErrSelfDependency    = "E105" // asset depends on itself
	ErrUnknownDep        = "E106" // dep names an undeclared asset
	ErrDependencyCycle   = "E107" // dependency cycle between assets
	ErrInvalidRateCap    = "E108" // invalid max_materializations_per_tick
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks parsed specs against schema rules.
// Returns all errors found (does not fail-fast).
func Validate(specs []AssetSpec) []ValidationError {
	var errs []ValidationError

	declared := make(map[string]bool, len(specs))
	for i, spec := range specs {
		if strings.TrimSpace(spec.Key) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("asset[%d]", i),
				Message: "asset key must be non-empty",
				Code:    ErrEmptyAssetKey,
			})
			continue
		}
		if declared[spec.Key] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("asset.%q", spec.Key),
				Message: fmt.Sprintf("duplicate asset key %q", spec.Key),
				Code:    ErrDuplicateAsset,
			})
		}
		declared[spec.Key] = true
	}

	for _, spec := range specs {
		field := fmt.Sprintf("asset.%q", spec.Key)

		if len(spec.MaterializeOn) == 0 {
			errs = append(errs, ValidationError{
				Field:   field + ".policy.materialize_on",
				Message: "at least one materialize rule is required",
				Code:    ErrNoMaterializeRule,
			})
		}
		for _, name := range spec.MaterializeOn {
			if name != RuleMissing && name != RuleParentUpdated {
				errs = append(errs, ValidationError{
					Field:   field + ".policy.materialize_on",
					Message: fmt.Sprintf("unknown materialize rule %q, must be \"missing\" or \"parent_updated\"", name),
					Code:    ErrUnknownRule,
				})
			}
		}
		for _, name := range spec.SkipOn {
			if name != RuleParentMissing && name != RuleParentOutdated {
				errs = append(errs, ValidationError{
					Field:   field + ".policy.skip_on",
					Message: fmt.Sprintf("unknown skip rule %q, must be \"parent_missing\" or \"parent_outdated\"", name),
					Code:    ErrUnknownRule,
				})
			}
		}

		for _, dep := range spec.Deps {
			if dep == spec.Key {
				errs = append(errs, ValidationError{
					Field:   field + ".deps",
					Message: "asset cannot depend on itself",
					Code:    ErrSelfDependency,
				})
			} else if !declared[dep] {
				errs = append(errs, ValidationError{
					Field:   field + ".deps",
					Message: fmt.Sprintf("dep %q is not a declared asset", dep),
					Code:    ErrUnknownDep,
				})
			}
		}

		if spec.MaxPerTick != nil && *spec.MaxPerTick != -1 && *spec.MaxPerTick < 1 {
			errs = append(errs, ValidationError{
				Field:   field + ".policy.max_materializations_per_tick",
				Message: "must be a positive int, or -1 to disable the rate cap",
				Code:    ErrInvalidRateCap,
			})
		}
	}

	return errs
}
