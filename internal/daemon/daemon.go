package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"syscall"
	"time"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
)

// Daemon ties the socket server, PID file and reindex schedule together.
type Daemon struct {
	cfg       Config
	server    *Server
	pid       *PIDFile
	scheduler *Scheduler
	reload    func(ctx context.Context) (Syncer, error)
}

// reloadRetry is how often a reload waiting on a reindex run tries again.
var reloadRetry = time.Second

// New validates cfg and prepares a daemon serving syncer.
func New(cfg Config, syncer Syncer) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, serrors.ConfigError("invalid daemon configuration", err)
	}
	if syncer == nil {
		return nil, serrors.ConfigError("daemon requires a sync service", nil)
	}

	server := NewServer(cfg)
	server.SetSyncer(syncer)

	d := &Daemon{
		cfg:    cfg,
		server: server,
		pid:    NewPIDFile(cfg.PIDPath),
	}
	if cfg.Schedule != "" {
		d.scheduler = NewScheduler(cfg.Schedule)
		server.SetScheduler(d.scheduler)
	}
	return d, nil
}

// Server returns the daemon's socket server.
func (d *Daemon) Server() *Server {
	return d.server
}

// SetReloader installs the function that rebuilds the sync service when a
// file in Config.Watch changes. Without one, changes are ignored.
func (d *Daemon) SetReloader(reload func(ctx context.Context) (Syncer, error)) {
	d.reload = reload
}

// Run claims the PID file, starts the schedule and serves until ctx is
// cancelled. A cancelled context is a clean exit.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.cfg.EnsureDir(); err != nil {
		return serrors.New(serrors.ErrCodeFilePermission, "cannot prepare daemon directory", err)
	}
	if err := d.pid.Claim(); err != nil {
		return err
	}
	defer func() {
		if err := d.pid.Remove(); err != nil {
			slog.Warn("Failed to remove PID file", slog.String("error", err.Error()))
		}
	}()

	if d.scheduler != nil {
		if err := d.scheduler.Schedule(func() { d.scheduledReindex(ctx) }); err != nil {
			return serrors.ConfigError(fmt.Sprintf("invalid schedule %q", d.cfg.Schedule), err)
		}
		d.scheduler.Start()
		defer d.scheduler.Stop()
		slog.Info("Reindex scheduled", slog.String("cron", d.cfg.Schedule))
	}

	if d.reload != nil && len(d.cfg.Watch) > 0 {
		w, err := NewFileWatcher(d.cfg.Watch, d.cfg.WatchDebounce, d.reloadSyncer)
		if err != nil {
			return serrors.ConfigError("cannot watch project files", err)
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				slog.Warn("File watch stopped", slog.String("error", err.Error()))
			}
		}()
	}

	err := d.server.ListenAndServe(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (d *Daemon) scheduledReindex(ctx context.Context) {
	res, err := d.server.Reindex(ctx, "")
	if err != nil {
		if errors.Is(err, serrors.ErrReindexInProgress) {
			slog.Info("Scheduled reindex skipped, run in progress")
			return
		}
		attrs := append([]any{slog.String("trigger", "schedule")}, serrors.LogAttrs(err)...)
		slog.Error("Scheduled reindex failed", attrs...)
		return
	}
	slog.Info("Scheduled reindex completed",
		slog.String("index", res.Index),
		slog.Int("indexed", res.Indexed),
		slog.Int("failed", res.Failed))
}

// reloadSyncer swaps in a freshly built sync service, waiting out any
// reindex run in flight.
func (d *Daemon) reloadSyncer(ctx context.Context) {
	for {
		err := d.server.Replace(func() (Syncer, error) { return d.reload(ctx) })
		switch {
		case err == nil:
			slog.Info("Sync service reloaded")
			return
		case errors.Is(err, serrors.ErrReindexInProgress):
			select {
			case <-ctx.Done():
				return
			case <-time.After(reloadRetry):
			}
		default:
			attrs := append([]any{slog.String("action", "keeping previous service")}, serrors.LogAttrs(err)...)
			slog.Error("Reload failed", attrs...)
			return
		}
	}
}

// Stop signals the daemon named by cfg's PID file and waits for it to
// exit. It returns ErrPIDFileNotFound when no daemon is recorded.
func Stop(cfg Config, wait time.Duration) error {
	pid := NewPIDFile(cfg.PIDPath)
	if !pid.IsRunning() {
		if _, err := pid.Read(); err != nil {
			return err
		}
		// Stale file from a dead process.
		return pid.Remove()
	}

	if err := pid.Signal(syscall.SIGTERM); err != nil {
		return err
	}

	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if !pid.IsRunning() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not exit within %s", wait)
}
