package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/automat/internal/asset"
	"github.com/roach88/automat/internal/daemon"
	"github.com/roach88/automat/internal/store"
)

// EvaluateOptions holds flags for the evaluate command.
type EvaluateOptions struct {
	*RootOptions
	Database string

	// TokenGenerator overrides the tick token generator (for testing).
	TokenGenerator daemon.TickTokenGenerator
}

// AssetTickOutput is one asset's outcome in evaluate output.
type AssetTickOutput struct {
	Asset     string   `json:"asset"`
	Requested []string `json:"requested"`
	Discarded []string `json:"discarded,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// TickOutput is the evaluate command's result payload.
type TickOutput struct {
	Token  string            `json:"token"`
	Assets []AssetTickOutput `json:"assets"`
}

// NewEvaluateCommand creates the evaluate command.
func NewEvaluateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvaluateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "evaluate <policy-dir>",
		Short: "Run one scheduling tick against a database",
		Long: `Compile the policy directory, open the database (creating it if it
does not exist), and run exactly one evaluation tick over every asset.
Each asset's evaluation record and cursor are persisted.

Example:
  automat evaluate --db ./automat.db ./policy
  automat evaluate --db /tmp/test.db ./policy --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runEvaluate(opts *EvaluateOptions, policyDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	slog.Info("compiling policy", "dir", policyDir)
	bundle, err := LoadBundle(policyDir)
	if err != nil {
		return reportLoadError(formatter, err)
	}
	slog.Info("policy compiled", "assets", len(bundle.Graph.Keys()))

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeStoreFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	var dopts []daemon.Option
	if opts.TokenGenerator != nil {
		dopts = append(dopts, daemon.WithTokenGenerator(opts.TokenGenerator))
	}
	d, err := daemon.Resume(cmd.Context(), st, bundle, dopts...)
	if err != nil {
		_ = formatter.Error(ErrCodeStoreFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to resume daemon", err)
	}

	res, err := d.Tick(cmd.Context())
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "tick failed", err)
	}

	out := TickOutput{Token: res.Token}
	for _, key := range bundle.Graph.Keys() {
		if tickErr, failed := res.Failed[key]; failed {
			out.Assets = append(out.Assets, AssetTickOutput{
				Asset: key.String(),
				Error: tickErr.Error(),
			})
			continue
		}
		out.Assets = append(out.Assets, AssetTickOutput{
			Asset:     key.String(),
			Requested: displayKeys(res.Requested[key]),
			Discarded: displayKeys(res.Discarded[key]),
		})
	}

	if err := outputTick(formatter, out); err != nil {
		return err
	}
	if tickErr := res.Err(); tickErr != nil {
		return WrapExitError(ExitFailure, "one or more asset passes failed", tickErr)
	}
	return nil
}

func outputTick(formatter *OutputFormatter, out TickOutput) error {
	if formatter.Format == "json" {
		return formatter.Success(out)
	}

	fmt.Fprintf(formatter.Writer, "tick %s\n", out.Token)
	for _, a := range out.Assets {
		if a.Error != "" {
			fmt.Fprintf(formatter.Writer, "  %s: error: %s\n", a.Asset, a.Error)
			continue
		}
		fmt.Fprintf(formatter.Writer, "  %s: requested %v discarded %v\n", a.Asset, a.Requested, a.Discarded)
	}
	return nil
}

func reportLoadError(formatter *OutputFormatter, err error) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
		return WrapExitError(ExitCommandError, "failed to compile policy", err)
	}
	_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
	return WrapExitError(ExitCommandError, "failed to compile policy", err)
}

// displayKeys renders a subset as a partition key list, using the
// single empty key for a present implicit partition. Always non-nil so
// JSON output shows [] rather than null.
func displayKeys(s asset.Subset) []string {
	if !s.Partitioned() {
		if s.IsEmpty() {
			return []string{}
		}
		return []string{""}
	}
	keys := s.PartitionKeys()
	if keys == nil {
		keys = []string{}
	}
	return keys
}
