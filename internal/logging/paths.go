package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir returns ~/.searchsync/logs, or a temp dir without a home.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".searchsync", "logs")
	}
	return filepath.Join(home, ".searchsync", "logs")
}

// DefaultLogPath returns the CLI log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "searchsync.log")
}

// DaemonLogPath returns the daemon log path.
func DaemonLogPath() string {
	return filepath.Join(DefaultLogDir(), "daemon.log")
}

// FindLogFile returns explicit if it exists, else the first existing
// default log.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("log file not found: %s", explicit)
		}
		return explicit, nil
	}
	for _, p := range []string{DaemonLogPath(), DefaultLogPath()} {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no log file found in %s; run with --debug or start the daemon", DefaultLogDir())
}
