package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchsync/internal/config"
	"github.com/Aman-CERP/searchsync/internal/daemon"
	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/output"
	"github.com/Aman-CERP/searchsync/internal/ui"
)

func newGetCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Print the document stored for a search id",
		Long: `Read the document the alias currently serves for a search id and print
its source, the physical index holding it and its version.

Use it to check what an upsert or reindex actually wrote.`,
		Example: `  searchsync get SKU-1001
  searchsync get SKU-1001 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd.Context(), cmd, args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the document with its metadata as JSON")
	return cmd
}

// storedDocument is the --json shape of get.
type storedDocument struct {
	Index   string          `json:"index"`
	ID      string          `json:"id"`
	Version int64           `json:"version"`
	Source  json.RawMessage `json:"source"`
}

func runGet(ctx context.Context, cmd *cobra.Command, id string, jsonOutput bool) error {
	out := output.New(cmd.OutOrStdout())

	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Backend.Kind == config.BackendLocal && daemon.NewClient(daemonConfig(cfg)).IsRunning() {
		return serrors.New(serrors.ErrCodeLockFailed, "the daemon holds the local index store", nil).
			WithSuggestion("Stop the daemon with 'searchsync daemon stop' first")
	}

	env, err := openSync(ctx, cfg, dir, ui.NopRenderer{})
	if err != nil {
		return err
	}
	defer env.Close()

	_, hit, err := env.svc.Get(ctx, id)
	if err != nil {
		return err
	}
	if hit == nil {
		return serrors.New(serrors.ErrCodeInvalidInput,
			fmt.Sprintf("no document for %s in %s", id, cfg.Index.Alias), nil)
	}

	if jsonOutput {
		return out.JSON(storedDocument{Index: hit.Index, ID: hit.ID, Version: hit.Version, Source: hit.Source})
	}
	out.Fields(map[string]string{
		"Index":   hit.Index,
		"ID":      hit.ID,
		"Version": fmt.Sprint(hit.Version),
	})
	out.Raw(hit.Source)
	return nil
}
