package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchsync/internal/config"
	"github.com/Aman-CERP/searchsync/internal/daemon"
	"github.com/Aman-CERP/searchsync/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the alias, its index and the daemon",
		Long: `Show which physical index the configured alias points at, how many
documents it holds, and what the daemon last did.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireTarget(); err != nil {
		return err
	}

	info := ui.StatusInfo{
		Alias:        cfg.Index.Alias,
		Backend:      backendLabel(cfg, dir),
		DaemonStatus: "stopped",
	}

	client := daemon.NewClient(daemonConfig(cfg))
	running := client.IsRunning()
	if running {
		st, err := client.Status(ctx)
		if err != nil {
			return err
		}
		info.DaemonStatus = "running"
		applyDaemonStatus(&info, st)
	}

	// A running daemon holds the local store open; its report stands in.
	if cfg.Backend.Kind != config.BackendLocal || !running {
		if err := inspectAlias(ctx, cfg, dir, &info); err != nil {
			return err
		}
	}

	r := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor())
	if jsonOutput {
		return r.RenderJSON(info)
	}
	return r.Render(info)
}

func backendLabel(cfg *config.Config, dir string) string {
	if cfg.Backend.Kind == config.BackendLocal {
		if cfg.Backend.DataDir == "" {
			return "local (memory)"
		}
		return fmt.Sprintf("local (%s)", config.ResolvePath(dir, cfg.Backend.DataDir))
	}
	return fmt.Sprintf("elastic (%s)", strings.Join(cfg.Elasticsearch.Hosts, ", "))
}

// inspectAlias fills in the bound indices and document count.
func inspectAlias(ctx context.Context, cfg *config.Config, dir string, info *ui.StatusInfo) error {
	gw, cnt, err := openGateway(cfg, dir)
	if err != nil {
		return err
	}
	defer gw.Close()

	bound, err := gw.GetAlias(ctx, cfg.Index.Alias)
	if err != nil {
		return err
	}

	info.Indices = info.Indices[:0]
	for index := range bound {
		info.Indices = append(info.Indices, index)
	}
	sort.Strings(info.Indices)
	if len(info.Indices) == 0 {
		return nil
	}

	n, err := cnt.Count(ctx, cfg.Index.Alias)
	if err != nil {
		return err
	}
	info.Documents = int64(n)
	info.RefreshInterval = cfg.Elasticsearch.RefreshInterval
	return nil
}

// applyDaemonStatus copies the daemon's last run and schedule into info.
func applyDaemonStatus(info *ui.StatusInfo, st *daemon.StatusResult) {
	info.InProgress = st.InProgress

	if t, err := time.Parse(time.RFC3339, st.LastRunAt); err == nil {
		info.LastReindex = t
	}
	if t, err := time.Parse(time.RFC3339, st.NextReindex); err == nil {
		info.NextReindex = t
	}

	switch {
	case st.LastError != "":
		info.LastResult = "failed"
	case st.LastReindex == nil:
	case st.LastReindex.Complete():
		info.LastResult = "ok"
	default:
		info.LastResult = "partial"
	}

	if st.LastReindex != nil && st.LastError == "" {
		info.Indices = []string{st.LastReindex.Index}
		info.Documents = int64(st.LastReindex.Indexed)
	}
}
