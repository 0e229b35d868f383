package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/automat/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Assets int                        `json:"assets"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <policy-dir>",
		Short: "Validate a policy directory without touching a database",
		Long: `Validate CUE policy files: syntax, schema, rule names, dependency
references, and dependency cycles. Collects every error instead of
stopping at the first one.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, policyDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	result, err := LoadPolicy(policyDir)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
			return NewExitError(ExitCommandError, loadErr.Error())
		}
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", result.FileCount, policyDir)
	formatter.VerboseLog("Parsed %d asset(s)", len(result.Specs))

	validationErrors := compiler.Validate(result.Specs)
	validationErrors = append(validationErrors, compiler.AnalyzeCycles(result.Specs)...)

	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, len(result.Specs), validationErrors)
	}

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Assets: len(result.Specs)})
	}
	fmt.Fprintf(formatter.Writer, "✓ %d asset(s) valid\n", len(result.Specs))
	return nil
}

func outputValidationErrors(formatter *OutputFormatter, assets int, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		_ = formatter.Error(errs[0].Code, errs[0].Message, ValidationResult{
			Valid:  false,
			Assets: assets,
			Errors: errs,
		})
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  [%s] %s: %s\n", err.Code, err.Field, err.Message)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
