// Package logging configures structured slog output for searchsync.
//
// Interactive commands log to stderr. With --debug, or when running as the
// daemon, JSON logs are also written to ~/.searchsync/logs/ with size-based
// rotation.
package logging
