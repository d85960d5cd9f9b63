// Package cmd provides the CLI commands for searchsync.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/logging"
	"github.com/Aman-CERP/searchsync/pkg/version"
)

// Persistent flags
var (
	debugMode      bool
	configDir      string
	loggingCleanup func()
)

// NewRootCmd creates the root command for the searchsync CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "searchsync",
		Short: "Keep a search index in sync with a relational source",
		Long: `searchsync compiles typed field declarations into a search mapping and
keeps an index alias in step with a SQL table.

Single documents are upserted or deleted by id. A full reindex streams the
table into a fresh index and moves the alias onto it without downtime.

Settings come from .searchsync.yaml in the project directory, the user
config file and SEARCHSYNC_* environment variables.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("searchsync version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.searchsync/logs/")
	cmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Project directory holding .searchsync.yaml (default: nearest project root)")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newMappingCmd())
	cmd.AddCommand(newReindexCmd())
	cmd.AddCommand(newUpsertCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newDaemonCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging installs the debug file logger, or a quiet stderr logger.
func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		logging.InstallStderr("warn")
		return nil
	}

	cleanup, err := logging.Install(logging.DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.Info("Debug logging enabled",
		slog.String("log_file", logging.DefaultLogPath()),
		slog.String("version", version.Version))
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		slog.Info("Debug logging stopped")
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command until it finishes or the process is
// interrupted, printing any error to stderr.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCmd().ExecuteContext(ctx)
	if err != nil {
		var se *serrors.SyncError
		if errors.As(err, &se) {
			fmt.Fprint(os.Stderr, serrors.FormatForCLI(se))
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
	return err
}
