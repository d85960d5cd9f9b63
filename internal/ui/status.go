package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// StatusInfo describes the state of one alias and the daemon serving it.
type StatusInfo struct {
	Alias           string   `json:"alias"`
	Backend         string   `json:"backend"`
	Indices         []string `json:"indices"`
	Documents       int64    `json:"documents"`
	RefreshInterval string   `json:"refresh_interval,omitempty"`

	LastReindex time.Time `json:"last_reindex"`
	LastResult  string    `json:"last_result,omitempty"` // "ok", "partial", "failed"
	NextReindex time.Time `json:"next_reindex"`

	DaemonStatus string `json:"daemon_status"` // "running", "stopped", "n/a"
	InProgress   bool   `json:"in_progress"`
}

// StatusRenderer displays alias status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:    out,
		styles: GetStyles(noColor),
	}
}

// Render displays status info to terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Title.Render("Alias Status: "+info.Alias))

	_, _ = fmt.Fprintf(r.out, "  Backend:   %s\n", info.Backend)
	if len(info.Indices) == 0 {
		_, _ = fmt.Fprintf(r.out, "  Index:     %s\n", r.renderStatus("unbound"))
	} else {
		_, _ = fmt.Fprintf(r.out, "  Index:     %s\n", strings.Join(info.Indices, ", "))
	}
	_, _ = fmt.Fprintf(r.out, "  Documents: %d\n", info.Documents)
	if info.RefreshInterval != "" {
		_, _ = fmt.Fprintf(r.out, "  Refresh:   %s\n", info.RefreshInterval)
	}
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Reindex:")
	if info.InProgress {
		_, _ = fmt.Fprintf(r.out, "    State:  %s\n", r.renderStatus("running"))
	}
	if info.LastReindex.IsZero() {
		_, _ = fmt.Fprintln(r.out, "    Last:   never")
	} else {
		_, _ = fmt.Fprintf(r.out, "    Last:   %s (%s)\n", formatTime(info.LastReindex), r.renderStatus(info.LastResult))
	}
	if !info.NextReindex.IsZero() {
		_, _ = fmt.Fprintf(r.out, "    Next:   %s\n", info.NextReindex.Format("2006-01-02 15:04"))
	}

	if info.DaemonStatus != "" && info.DaemonStatus != "n/a" {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintf(r.out, "  Daemon: %s\n", r.renderStatus(info.DaemonStatus))
	}

	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

// renderStatus formats a status string with color.
func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "ok", "running":
		return r.styles.Done.Render(status)
	case "partial", "stopped", "unbound":
		return r.styles.Warn.Render(status)
	case "failed":
		return r.styles.Fail.Render(status)
	default:
		return status
	}
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	default:
		return t.Format("2006-01-02 15:04")
	}
}
