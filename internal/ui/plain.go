package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer outputs plain text progress (for CI/pipes).
type PlainRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	stage  Stage
	errors []ErrorEvent
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output, stage: -1}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(ctx context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
// Streaming updates print once per page; other stages print on entry.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entered := event.Stage != r.stage
	r.stage = event.Stage

	switch {
	case event.Stage == StageStreaming && event.Pages > 0:
		_, _ = fmt.Fprintf(r.out, "[%s] %d pages, %d documents, %d failed - workers %d/%d\n",
			event.Stage.Icon(), event.Pages, event.Documents, event.Failed, event.WorkersDone, event.Workers)
	case entered && event.Message != "":
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), event.Message)
	case entered:
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), event.Stage)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errors = append(r.errors, event)

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}
	if event.Subject != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.Subject, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %d documents in %d pages indexed into %s in %s",
		stats.Documents, stats.Pages, stats.Index, stats.Duration.Round(100*time.Millisecond))
	if stats.Failed > 0 || stats.WorkersFailed > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d failed documents, %d of %d workers failed)",
			stats.Failed, stats.WorkersFailed, stats.Workers)
	}
	_, _ = fmt.Fprintln(r.out)

	if stats.Alias != "" {
		_, _ = fmt.Fprintf(r.out, "Alias: %s -> %s (%s)\n", stats.Alias, stats.Index, stats.Transition)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}

// Errors returns the errors reported so far.
func (r *PlainRenderer) Errors() []ErrorEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ErrorEvent, len(r.errors))
	copy(out, r.errors)
	return out
}
