package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchsync/internal/docsync"
	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/output"
	"github.com/Aman-CERP/searchsync/internal/ui"
)

func newUpsertCmd() *cobra.Command {
	var localOnly, jsonOutput bool

	cmd := &cobra.Command{
		Use:   "upsert <id>...",
		Short: "Re-read records by id and write them to the alias",
		Long: `Load every record matching each search id from the source and write it
to the alias, versioned by the current time so stale writes lose.

Failures are logged and reported; they do not stop the remaining ids.`,
		Example: `  searchsync upsert SKU-1001
  searchsync upsert SKU-1001 SKU-1002 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSyncOp(cmd.Context(), cmd, localOnly, jsonOutput, func(ctx context.Context, s syncer) []opResult {
				results := make([]opResult, 0, len(args))
				for _, id := range args {
					results = append(results, newOpResult(id, s.Upsert(ctx, id)))
				}
				return results
			})
		},
	}

	cmd.Flags().BoolVar(&localOnly, "local", false, "Run in this process even if a daemon is running")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print outcomes as JSON")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	var localOnly, jsonOutput bool

	cmd := &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete documents from the alias",
		Long: `Delete documents by search id. One id is deleted directly; several are
deleted in a single bulk request.`,
		Example: `  searchsync delete SKU-1001
  searchsync delete SKU-1001 SKU-1002 SKU-1003`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSyncOp(cmd.Context(), cmd, localOnly, jsonOutput, func(ctx context.Context, s syncer) []opResult {
				if len(args) == 1 {
					return []opResult{newOpResult(args[0], s.Delete(ctx, args[0]))}
				}
				return []opResult{newOpResult(fmt.Sprintf("%d ids", len(args)), s.BatchDelete(ctx, args))}
			})
		},
	}

	cmd.Flags().BoolVar(&localOnly, "local", false, "Run in this process even if a daemon is running")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print outcomes as JSON")
	return cmd
}

// syncer is the single-document subset of the sync surface.
type syncer interface {
	Upsert(ctx context.Context, id string) docsync.Outcome
	Delete(ctx context.Context, id string) docsync.Outcome
	BatchDelete(ctx context.Context, ids []string) docsync.Outcome
}

// opResult is one reported outcome.
type opResult struct {
	ID string `json:"id"`
	docsync.Outcome
	Error string `json:"error,omitempty"`
}

func newOpResult(id string, o docsync.Outcome) opResult {
	return opResult{ID: id, Outcome: o, Error: o.Message()}
}

func (r opResult) failed() bool {
	return r.Status == docsync.StatusAbsorbed || r.Status == docsync.StatusPartial
}

func runSyncOp(ctx context.Context, cmd *cobra.Command, localOnly, jsonOutput bool, op func(context.Context, syncer) []opResult) error {
	out := output.New(cmd.OutOrStdout())

	target, cleanup, err := syncTarget(ctx, !localOnly, ui.NopRenderer{})
	if err != nil {
		return err
	}
	defer cleanup()

	results := op(ctx, target)

	failed := 0
	for _, r := range results {
		if r.failed() {
			failed++
		}
	}

	if jsonOutput {
		if err := out.JSON(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			switch {
			case r.failed():
				out.Errorf("%s: %s %s", r.ID, r.Outcome, r.Error)
			case r.Status == docsync.StatusOK:
				out.Successf("%s: %s", r.ID, r.Outcome)
			default:
				out.Warningf("%s: %s", r.ID, r.Outcome)
			}
		}
	}

	if failed > 0 {
		return serrors.New(serrors.ErrCodeBulkPartial,
			fmt.Sprintf("%d of %d operations failed", failed, len(results)), nil)
	}
	return nil
}
