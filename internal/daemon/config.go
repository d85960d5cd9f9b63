// Package daemon runs searchsync as a background service. Clients reach it
// over a Unix socket speaking line-delimited JSON-RPC 2.0; an optional cron
// schedule triggers reindex runs.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-co-op/gocron"
)

// Config holds configuration for the daemon service.
type Config struct {
	// SocketPath is the Unix domain socket path for IPC.
	// Default: ~/.searchsync/daemon.sock
	SocketPath string

	// PIDPath is the file path for storing the daemon's process ID.
	// Default: ~/.searchsync/daemon.pid
	PIDPath string

	// Timeout bounds a single client request. Reindex calls ignore it
	// on the server side.
	// Default: 30s
	Timeout time.Duration

	// ShutdownGracePeriod is the time to wait for in-flight requests on stop.
	// Default: 10s
	ShutdownGracePeriod time.Duration

	// Schedule is a five-field cron expression for periodic reindex.
	// Empty disables scheduling.
	Schedule string

	// Watch lists files whose change rebuilds the sync service, typically
	// the project config and the type registry.
	Watch []string

	// WatchDebounce is the quiet period after a change before reloading.
	// Default: 500ms
	WatchDebounce time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}

	dir := filepath.Join(home, ".searchsync")

	return Config{
		SocketPath:          filepath.Join(dir, "daemon.sock"),
		PIDPath:             filepath.Join(dir, "daemon.pid"),
		Timeout:             30 * time.Second,
		ShutdownGracePeriod: 10 * time.Second,
		WatchDebounce:       DefaultWatchDebounce,
	}
}

// Validate checks that the configuration is valid.
func (c Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket path cannot be empty")
	}
	if c.PIDPath == "" {
		return fmt.Errorf("PID path cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("shutdown grace period must be positive")
	}
	if c.Schedule != "" {
		if err := checkCron(c.Schedule); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", c.Schedule, err)
		}
	}
	return nil
}

// EnsureDir creates the directories holding the socket and PID files.
func (c Config) EnsureDir() error {
	socketDir := filepath.Dir(c.SocketPath)
	if err := os.MkdirAll(socketDir, 0o755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	pidDir := filepath.Dir(c.PIDPath)
	if pidDir != socketDir {
		if err := os.MkdirAll(pidDir, 0o755); err != nil {
			return fmt.Errorf("failed to create PID directory: %w", err)
		}
	}

	return nil
}

// checkCron parses expr with a throwaway scheduler.
func checkCron(expr string) error {
	s := gocron.NewScheduler(time.UTC)
	_, err := s.Cron(expr).Do(func() {})
	return err
}
