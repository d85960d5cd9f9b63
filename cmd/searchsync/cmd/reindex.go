package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/output"
	"github.com/Aman-CERP/searchsync/internal/ui"
)

func newReindexCmd() *cobra.Command {
	var (
		suffix     string
		noTUI      bool
		localOnly  bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the alias into a fresh index and swap it in",
		Long: `Create alias+suffix, apply the compiled mapping, stream the whole source
into it with concurrent workers, then move the alias onto the new index in
one atomic step. Older indices behind the alias are deleted.

When a daemon is running the run is delegated to it, so only one process
ever rebuilds a given alias.`,
		Example: `  searchsync reindex
  searchsync reindex --suffix _v2 --no-tui
  searchsync reindex --local --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReindex(cmd.Context(), cmd, suffix, noTUI, localOnly, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&suffix, "suffix", "", "Suffix for the new index name (default: UTC timestamp)")
	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Plain progress output even on a terminal")
	cmd.Flags().BoolVar(&localOnly, "local", false, "Run in this process even if a daemon is running")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")

	return cmd
}

func runReindex(ctx context.Context, cmd *cobra.Command, suffix string, noTUI, localOnly, jsonOutput bool) error {
	out := output.New(cmd.OutOrStdout())

	var renderer ui.Renderer = ui.NopRenderer{}
	if !jsonOutput {
		renderer = ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
			ui.WithForcePlain(noTUI),
			ui.WithNoColor(ui.DetectNoColor()),
			ui.WithTitle("searchsync reindex"),
		))
	}

	target, cleanup, err := syncTarget(ctx, !localOnly, renderer)
	if err != nil {
		return err
	}
	defer cleanup()

	_, remote := target.(*remoteSyncer)
	if remote && !jsonOutput {
		out.Statusf("→", "Reindex of %s delegated to the daemon", target.Alias())
	}

	res, err := target.Reindex(ctx, suffix)
	if err != nil {
		if res != nil && res.Orphan != "" && !jsonOutput {
			out.Warningf("Index %s was left behind; delete it once no alias points at it", res.Orphan)
		}
		return err
	}
	if res == nil {
		return serrors.InternalError("reindex returned no result", nil)
	}

	if jsonOutput {
		if err := out.JSON(res); err != nil {
			return err
		}
	} else if remote {
		out.Successf("Alias %s now points at %s (%s)", res.Alias, res.Index, res.Transition)
		out.Fields(map[string]string{
			"Documents": fmt.Sprint(res.Indexed),
			"Failed":    fmt.Sprint(res.Failed),
			"Workers":   fmt.Sprintf("%d (%d failed)", res.Workers, res.WorkersFailed),
			"Duration":  res.Duration.String(),
		})
	}

	if !res.Complete() {
		return serrors.New(serrors.ErrCodeBulkPartial,
			fmt.Sprintf("reindex finished with %d failed documents and %d failed workers", res.Failed, res.WorkersFailed), nil).
			WithSuggestion("See the log for the rejected documents; the alias was still swapped")
	}
	return nil
}
