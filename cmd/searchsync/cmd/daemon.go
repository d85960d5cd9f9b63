package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchsync/internal/config"
	"github.com/Aman-CERP/searchsync/internal/daemon"
	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/logging"
	"github.com/Aman-CERP/searchsync/internal/output"
)

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the background sync daemon",
		Long: `The daemon serves upsert, delete and reindex requests over a Unix socket
and can run reindex on a cron schedule (daemon.schedule).

Commands:
  start   Start the daemon (runs in background by default)
  stop    Stop the running daemon
  status  Show daemon status`,
		Example: `  searchsync daemon start      # Start daemon in background
  searchsync daemon start -f   # Run in foreground
  searchsync daemon status     # Check if daemon is running
  searchsync daemon stop       # Stop the daemon`,
	}

	cmd.AddCommand(newDaemonStartCmd())
	cmd.AddCommand(newDaemonStopCmd())
	cmd.AddCommand(newDaemonStatusCmd())

	return cmd
}

func newDaemonStartCmd() *cobra.Command {
	var foreground bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the background daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if foreground {
				return runDaemonForeground(cmd.Context(), cmd)
			}
			return runDaemonStart(cmd)
		},
	}

	cmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (don't daemonize)")
	return cmd
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Long:  `Send SIGTERM to the daemon and wait for it to finish in-flight requests.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemonStop(cmd)
		},
	}
}

func newDaemonStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemonStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runDaemonForeground(ctx context.Context, cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())

	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}
	dcfg := daemonConfig(cfg)

	logCfg := logging.DaemonConfig(cfg.Server.LogLevel)
	logCfg.WriteToStderr = true
	if cleanup, err := logging.Install(logCfg); err == nil {
		defer cleanup()
	}

	env, err := openSync(ctx, cfg, dir, nil)
	if err != nil {
		return err
	}
	reloader := &projectReloader{dir: dir, env: env}
	defer reloader.Close()

	dcfg.Watch = []string{
		filepath.Join(dir, config.ProjectFileYAML),
		config.ResolvePath(dir, cfg.Index.TypesFile),
	}
	d, err := daemon.New(dcfg, env.svc)
	if err != nil {
		return err
	}
	d.SetReloader(reloader.Reload)

	out.Statusf("", "Socket: %s", dcfg.SocketPath)
	out.Statusf("", "Logs: %s", logging.DaemonLogPath())
	if dcfg.Schedule != "" {
		out.Statusf("", "Reindex schedule: %s (UTC)", dcfg.Schedule)
	}
	out.Status("", "Watching project config and types file for changes")
	out.Status("", "Press Ctrl+C to stop")

	slog.Info("Daemon starting",
		slog.String("socket", dcfg.SocketPath),
		slog.String("alias", cfg.Index.Alias),
		slog.String("project", dir))

	return d.Run(ctx)
}

func runDaemonStart(cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())

	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireTarget(); err != nil {
		return err
	}
	dcfg := daemonConfig(cfg)

	client := daemon.NewClient(dcfg)
	if client.IsRunning() {
		out.Status("", "Daemon is already running")
		return nil
	}

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve project directory: %w", err)
	}

	bg := exec.Command(execPath, "daemon", "start", "--foreground", "--config-dir", absDir)
	bg.Dir = absDir
	bg.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := bg.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Reap the child and notice if it dies before listening.
	done := make(chan error, 1)
	go func() { done <- bg.Wait() }()

	for i := 0; i < 50; i++ {
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("daemon process exited unexpectedly: %w (see %s)", err, logging.DaemonLogPath())
			}
			return fmt.Errorf("daemon process exited unexpectedly (see %s)", logging.DaemonLogPath())
		default:
		}

		time.Sleep(100 * time.Millisecond)
		if client.IsRunning() {
			out.Successf("Daemon started (pid: %d)", bg.Process.Pid)
			return nil
		}
	}

	return fmt.Errorf("daemon failed to start within timeout")
}

func runDaemonStop(cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	dcfg := daemonConfig(cfg)

	err = daemon.Stop(dcfg, shutdownGrace)
	switch {
	case errors.Is(err, daemon.ErrPIDFileNotFound):
		out.Status("", "Daemon is not running")
		return nil
	case err == nil:
		out.Success("Daemon stopped")
		return nil
	}

	out.Status("", "Daemon not responding, sending SIGKILL...")
	if err := daemon.NewPIDFile(dcfg.PIDPath).Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill daemon: %w", err)
	}
	_ = daemon.NewPIDFile(dcfg.PIDPath).Remove()
	out.Success("Daemon killed")
	return nil
}

func runDaemonStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	out := output.New(cmd.OutOrStdout())

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	dcfg := daemonConfig(cfg)
	client := daemon.NewClient(dcfg)

	if !client.IsRunning() {
		if jsonOutput {
			return out.JSON(daemon.StatusResult{Running: false})
		}
		out.Status("", "Daemon is not running")
		out.Status("", "Run 'searchsync daemon start' to start it")
		return nil
	}

	status, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	if jsonOutput {
		return out.JSON(status)
	}

	fields := map[string]string{
		"PID":    fmt.Sprint(status.PID),
		"Uptime": status.Uptime,
		"Alias":  status.Alias,
		"Socket": dcfg.SocketPath,
	}
	if status.InProgress {
		fields["Reindex"] = "in progress"
	}
	if status.Schedule != "" {
		fields["Schedule"] = status.Schedule
		fields["Next run"] = status.NextReindex
	}
	if status.LastReindex != nil {
		fields["Last run"] = fmt.Sprintf("%s at %s (%d documents)", status.LastReindex.Index, status.LastRunAt, status.LastReindex.Indexed)
	}
	if status.LastError != "" {
		fields["Last error"] = status.LastError
	}

	out.Success("Daemon is running")
	out.Fields(fields)
	return nil
}

// projectReloader rebuilds the daemon's sync service from the project's
// files and owns whichever environment is current.
type projectReloader struct {
	dir string

	mu  sync.Mutex
	env *syncEnv
}

// Reload loads the project config and types file again and opens a new
// sync service. Config and registry errors leave the running service
// untouched. The local backend holds an exclusive store lock, so its
// environment is closed before the new one opens; if that open fails the
// previous configuration is reopened.
func (r *projectReloader) Reload(ctx context.Context) (daemon.Syncer, error) {
	cfg, err := config.Load(r.dir)
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireTarget(); err != nil {
		return nil, err
	}
	if _, err := loadCompiler(cfg, r.dir); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.env
	exclusive := prev.cfg.Backend.Kind == config.BackendLocal
	if exclusive {
		prev.Close()
	}

	env, err := openSync(ctx, cfg, r.dir, nil)
	if err != nil {
		if !exclusive {
			return nil, err
		}
		restored, rerr := openSync(ctx, prev.cfg, r.dir, nil)
		if rerr != nil {
			return nil, errors.Join(err, rerr)
		}
		r.env = restored
		attrs := append([]any{slog.String("action", "previous configuration restored")}, serrors.LogAttrs(err)...)
		slog.Warn("Reload failed", attrs...)
		return restored.svc, nil
	}

	if !exclusive {
		prev.Close()
	}
	r.env = env
	slog.Info("Project reloaded",
		slog.String("alias", cfg.Index.Alias),
		slog.String("type", cfg.Index.Type))
	return env.svc, nil
}

// Close releases the current environment.
func (r *projectReloader) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.env.Close()
}
