// Package ui provides terminal progress display for reindex runs and
// alias status output.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage is a step of a reindex run as shown to the user.
type Stage int

const (
	StageCreating Stage = iota
	StageMapping
	StageStreaming
	StageAwaiting
	StageSwapping
	StageComplete
	StageFailed
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageCreating:
		return "Creating"
	case StageMapping:
		return "Mapping"
	case StageStreaming:
		return "Streaming"
	case StageAwaiting:
		return "Awaiting"
	case StageSwapping:
		return "Swapping"
	case StageComplete:
		return "Complete"
	case StageFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage label for plain text output.
func (s Stage) Icon() string {
	switch s {
	case StageCreating:
		return "CREATE"
	case StageMapping:
		return "MAP"
	case StageStreaming:
		return "STREAM"
	case StageAwaiting:
		return "WAIT"
	case StageSwapping:
		return "SWAP"
	case StageComplete:
		return "DONE"
	case StageFailed:
		return "FAIL"
	default:
		return "???"
	}
}

// ProgressEvent is a running total reported by the pipeline.
type ProgressEvent struct {
	Stage       Stage
	Pages       int
	Documents   int
	Failed      int
	Workers     int
	WorkersDone int
	Message     string
}

// ErrorEvent reports a failure that did not stop the run.
type ErrorEvent struct {
	// Subject names what failed: a worker, a document id, a page.
	Subject string
	Err     error
	IsWarn  bool
}

// CompletionStats summarizes a finished run.
type CompletionStats struct {
	Alias         string
	Index         string
	Transition    string
	Pages         int
	Documents     int
	Failed        int
	Workers       int
	WorkersFailed int
	Duration      time.Duration
}

// Renderer defines the interface for progress display.
type Renderer interface {
	// Start initializes the renderer.
	Start(ctx context.Context) error

	// UpdateProgress updates progress display.
	UpdateProgress(event ProgressEvent)

	// AddError adds an error to display.
	AddError(event ErrorEvent)

	// Complete marks rendering as complete with summary.
	Complete(stats CompletionStats)

	// Stop stops the renderer and cleans up.
	Stop() error
}

// NopRenderer discards everything.
type NopRenderer struct{}

func (NopRenderer) Start(context.Context) error  { return nil }
func (NopRenderer) UpdateProgress(ProgressEvent) {}
func (NopRenderer) AddError(ErrorEvent)          {}
func (NopRenderer) Complete(CompletionStats)     {}
func (NopRenderer) Stop() error                  { return nil }

// Config configures the UI renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	Title      string
}

// ConfigOption is a function that modifies Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = force
	}
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// WithTitle sets the header shown above the progress panel.
func WithTitle(title string) ConfigOption {
	return func(c *Config) {
		c.Title = title
	}
}

// NewConfig creates a new Config with the given output and options.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer returns a TUI renderer for interactive terminals and a plain
// text renderer for CI, pipes, or when plain output is forced.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}

	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor checks if NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
