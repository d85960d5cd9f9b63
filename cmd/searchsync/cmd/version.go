package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchsync/internal/daemon"
	"github.com/Aman-CERP/searchsync/internal/output"
	"github.com/Aman-CERP/searchsync/pkg/version"
)

// versionReport is the --json shape of version. Backend and Daemon are
// filled in only inside a project.
type versionReport struct {
	version.BuildInfo
	Backend string `json:"backend,omitempty"`
	Daemon  string `json:"daemon_version,omitempty"`
}

func newVersionCmd() *cobra.Command {
	var jsonOutput bool
	var shortOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print version information including git commit, build date, and Go version.

Inside a project the configured backend is shown too, and the version of the
running daemon when it differs from this binary.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if shortOutput {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Short())
				return err
			}

			report := projectVersions(cmd.Context())
			if jsonOutput {
				return output.New(cmd.OutOrStdout()).JSON(report)
			}

			out := output.New(cmd.OutOrStdout())
			out.Raw([]byte(version.String()))
			if report.Backend != "" {
				out.Status("", "backend: "+report.Backend)
			}
			if report.Daemon != "" {
				if report.Daemon != report.Version {
					out.Warningf("daemon is running %s; restart it to pick up %s", report.Daemon, report.Version)
				} else {
					out.Status("", "daemon: "+report.Daemon)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")
	cmd.Flags().BoolVar(&shortOutput, "short", false, "Output only the version number")

	return cmd
}

// projectVersions adds the project's backend and daemon to the build info.
// Outside a project, or with no daemon, those fields stay empty.
func projectVersions(ctx context.Context) versionReport {
	report := versionReport{BuildInfo: version.GetInfo()}

	cfg, dir, err := loadConfig()
	if err != nil {
		return report
	}
	report.Backend = backendLabel(cfg, dir)

	client := daemon.NewClient(daemonConfig(cfg))
	if !client.IsRunning() {
		return report
	}
	if st, err := client.Status(ctx); err == nil {
		report.Daemon = st.Version
	}
	return report
}
