package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/automat/internal/asset"
	"github.com/roach88/automat/internal/daemon"
	"github.com/roach88/automat/internal/store"
)

// MaterializeOptions holds flags for the materialize command.
type MaterializeOptions struct {
	*RootOptions
	Database string
	Policy   string
}

// MaterializeOutput is the materialize command's result payload.
type MaterializeOutput struct {
	Asset      string   `json:"asset"`
	Partitions []string `json:"partitions"`
	FirstSeq   int64    `json:"first_seq"`
	LastSeq    int64    `json:"last_seq"`
}

// NewMaterializeCommand creates the materialize command.
func NewMaterializeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MaterializeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "materialize <asset-key> [partition-key...]",
		Short: "Record materializations (for seeding and testing)",
		Long: `Record that partitions of an asset were materialized, stamping each
with the next logical seq. Unpartitioned assets take no partition keys;
partitioned assets require at least one.

Example:
  automat materialize --db ./automat.db --policy ./policy ingest/events 2024-01-01 2024-01-02
  automat materialize --db ./automat.db --policy ./policy config/reference`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMaterialize(opts, asset.Key(args[0]), args[1:], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Policy, "policy", "", "path to policy directory (required)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("policy")

	return cmd
}

func runMaterialize(opts *MaterializeOptions, key asset.Key, partitionKeys []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	bundle, err := LoadBundle(opts.Policy)
	if err != nil {
		return reportLoadError(formatter, err)
	}

	def, err := bundle.Graph.PartitionsDef(key)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "unknown asset", err)
	}
	if def.Partitioned() && len(partitionKeys) == 0 {
		msg := fmt.Sprintf("asset %s is partitioned: at least one partition key is required", key)
		_ = formatter.Error(ErrCodeGeneric, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}
	if !def.Partitioned() {
		if len(partitionKeys) > 0 {
			msg := fmt.Sprintf("asset %s is unpartitioned: no partition keys allowed", key)
			_ = formatter.Error(ErrCodeGeneric, msg, nil)
			return NewExitError(ExitCommandError, msg)
		}
		partitionKeys = []string{""}
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

	d, err := daemon.Resume(cmd.Context(), st, bundle)
	if err != nil {
		_ = formatter.Error(ErrCodeStoreFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to resume daemon", err)
	}

	var firstSeq, lastSeq int64
	for i, pk := range partitionKeys {
		seq, err := d.RecordMaterialization(cmd.Context(), key, pk)
		if err != nil {
			_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to record materialization", err)
		}
		if i == 0 {
			firstSeq = seq
		}
		lastSeq = seq
	}

	out := MaterializeOutput{
		Asset:      key.String(),
		Partitions: partitionKeys,
		FirstSeq:   firstSeq,
		LastSeq:    lastSeq,
	}
	if formatter.Format == "json" {
		return formatter.Success(out)
	}
	fmt.Fprintf(formatter.Writer, "recorded %d materialization(s) for %s (seq %d..%d)\n",
		len(partitionKeys), key, firstSeq, lastSeq)
	return nil
}
