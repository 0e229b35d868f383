package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/automat/internal/asset"
	"github.com/roach88/automat/internal/record"
	"github.com/roach88/automat/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
}

// HistoryEntry is one persisted evaluation in history output.
type HistoryEntry struct {
	ID           string   `json:"id"`
	Seq          int64    `json:"seq"`
	TickToken    string   `json:"tick_token"`
	NumRequested int      `json:"num_requested"`
	NumSkipped   int      `json:"num_skipped"`
	NumDiscarded int      `json:"num_discarded"`
	Rules        []string `json:"rules"`
}

// HistoryOutput is the history command's result payload.
type HistoryOutput struct {
	Asset       string         `json:"asset"`
	Evaluations []HistoryEntry `json:"evaluations"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history <asset-key>",
		Short: "Dump persisted evaluation records for an asset",
		Long: `Read every persisted evaluation record for the asset, in seq order,
and print the decision counts plus the rules that fired.

Example:
  automat history --db ./automat.db ingest/events
  automat history --db ./automat.db analytics/rollup --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, asset.Key(args[0]), cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runHistory(opts *HistoryOptions, key asset.Key, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

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

	recs, err := st.ReadEvaluations(cmd.Context(), key)
	if err != nil {
		_ = formatter.Error(ErrCodeStoreFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read evaluations", err)
	}

	out := HistoryOutput{Asset: key.String(), Evaluations: []HistoryEntry{}}
	for _, rec := range recs {
		out.Evaluations = append(out.Evaluations, HistoryEntry{
			ID:           rec.ID,
			Seq:          rec.Seq,
			TickToken:    rec.TickToken,
			NumRequested: rec.NumRequested,
			NumSkipped:   rec.NumSkipped,
			NumDiscarded: rec.NumDiscarded,
			Rules:        firedRules(rec),
		})
	}

	if formatter.Format == "json" {
		return formatter.Success(out)
	}

	if len(out.Evaluations) == 0 {
		fmt.Fprintf(formatter.Writer, "no evaluations for %s\n", key)
		return nil
	}
	for _, e := range out.Evaluations {
		fmt.Fprintf(formatter.Writer, "seq %d  %s  requested=%d skipped=%d discarded=%d  %v\n",
			e.Seq, e.ID, e.NumRequested, e.NumSkipped, e.NumDiscarded, e.Rules)
	}
	return nil
}

// firedRules lists the distinct rule names that produced results, in
// record order.
func firedRules(rec *record.AssetEvaluation) []string {
	seen := make(map[string]bool)
	rules := []string{}
	for _, re := range rec.RuleEvaluations {
		name := re.Snapshot.RuleName
		if !seen[name] {
			seen[name] = true
			rules = append(rules, name)
		}
	}
	return rules
}
