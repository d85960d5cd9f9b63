package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer provides rich terminal UI using bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *reindexModel
	cancel  context.CancelFunc
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer.
// Returns an error if the output is not a terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}

	model := newReindexModel(cfg.Title)
	model.styles = GetStyles(cfg.NoColor || DetectNoColor())

	return &TUIRenderer{
		cfg:   cfg,
		model: model,
		done:  make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	_, r.cancel = context.WithCancel(ctx)

	var opts []tea.ProgramOption
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}

	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()

	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Send(progressMsg(event))
	}
}

// AddError implements Renderer.
func (r *TUIRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Send(errorMsg(event))
	}
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Send(completeMsg(stats))
	}
}

// Stop implements Renderer.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}
	if r.program != nil {
		r.program.Quit()

		// Don't hang on an unresponsive terminal
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
		}
	}
	return nil
}

type progressMsg ProgressEvent
type errorMsg ErrorEvent
type completeMsg CompletionStats

// reindexModel is the bubbletea model for a reindex run.
type reindexModel struct {
	title    string
	width    int
	started  time.Time
	latest   ProgressEvent
	warnings int
	errors   int
	lastErr  string
	complete bool
	quitting bool
	stats    CompletionStats

	spinner     spinner.Model
	progressBar progress.Model
	styles      Styles
}

func newReindexModel(title string) *reindexModel {
	if title == "" {
		title = "searchsync reindex"
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent))

	p := progress.New(
		progress.WithSolidFill(ColorAccent),
		progress.WithWidth(50),
		progress.WithoutPercentage(),
	)

	return &reindexModel{
		title:       title,
		width:       80,
		started:     time.Now(),
		spinner:     s,
		progressBar: p,
		styles:      DefaultStyles(),
	}
}

// Init implements tea.Model.
func (m *reindexModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *reindexModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progressBar.Width = max(msg.Width-20, 20)

	case progressMsg:
		m.latest = ProgressEvent(msg)

	case errorMsg:
		if msg.IsWarn {
			m.warnings++
		} else {
			m.errors++
		}
		m.lastErr = fmt.Sprintf("%s: %v", msg.Subject, msg.Err)

	case completeMsg:
		m.complete = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m *reindexModel) View() string {
	if m.quitting {
		return "Cancelled.\n"
	}
	if m.complete {
		return m.renderComplete()
	}

	contentWidth := max(m.width-4, 40)

	sections := []string{
		m.renderStages(),
		m.styles.Rule.Render(strings.Repeat("─", contentWidth)),
		m.renderProgress(),
	}
	if m.lastErr != "" {
		sections = append(sections, m.styles.Rule.Render(truncate(m.lastErr, contentWidth-2)))
	}

	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorRule)).
		Padding(0, 1).
		Width(contentWidth)

	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Title.Render(m.title),
		panel.Render(strings.Join(sections, "\n")),
	) + "\n" + m.renderStatusBar()
}

func (m *reindexModel) renderStages() string {
	current := m.latest.Stage
	stages := []Stage{StageCreating, StageMapping, StageStreaming, StageAwaiting, StageSwapping}

	parts := make([]string, 0, len(stages))
	for _, s := range stages {
		switch {
		case s < current:
			parts = append(parts, m.styles.Done.Render("● "+s.String()))
		case s == current:
			parts = append(parts, m.styles.Current.Render(m.spinner.View()+" "+s.String()))
		default:
			parts = append(parts, m.styles.Pending.Render("○ "+s.String()))
		}
	}
	return strings.Join(parts, m.styles.Rule.Render(" → "))
}

func (m *reindexModel) renderProgress() string {
	ev := m.latest
	if ev.Workers == 0 {
		return fmt.Sprintf("%s %s...", m.spinner.View(), ev.Stage)
	}

	ratio := float64(ev.WorkersDone) / float64(ev.Workers)
	bar := m.progressBar.ViewAs(ratio)
	workers := m.styles.Current.Render(fmt.Sprintf("%d/%d workers", ev.WorkersDone, ev.Workers))

	elapsed := time.Since(m.started)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(ev.Documents) / elapsed.Seconds()
	}
	counts := m.styles.Label.Render(fmt.Sprintf("%d documents  •  %d pages  •  %d failed", ev.Documents, ev.Pages, ev.Failed))
	speed := m.styles.Metric.Render(fmt.Sprintf("%.0f docs/s  •  %s", rate, formatDuration(elapsed)))

	return fmt.Sprintf("%s  %s\n%s\n%s", bar, workers, counts, speed)
}

func (m *reindexModel) renderStatusBar() string {
	var parts []string
	if m.warnings > 0 {
		parts = append(parts, m.styles.Warn.Render(fmt.Sprintf("⚠ %d warnings", m.warnings)))
	}
	if m.errors > 0 {
		parts = append(parts, m.styles.Fail.Render(fmt.Sprintf("✗ %d errors", m.errors)))
	}
	parts = append(parts, m.styles.Rule.Render("q to quit"))
	return strings.Join(parts, m.styles.Rule.Render("  │  "))
}

func (m *reindexModel) renderComplete() string {
	contentWidth := max(m.width-4, 40)
	label := m.styles.Label.Render
	value := m.styles.Current.Render

	lines := []string{
		m.styles.Done.Render("✓ Reindex Complete"),
		"",
		fmt.Sprintf("%s     %s", label("Index:"), value(m.stats.Index)),
		fmt.Sprintf("%s     %s", label("Alias:"), value(m.stats.Alias+" ("+m.stats.Transition+")")),
		fmt.Sprintf("%s %s", label("Documents:"), value(fmt.Sprintf("%d", m.stats.Documents))),
		fmt.Sprintf("%s  %s", label("Duration:"), value(formatDuration(m.stats.Duration))),
	}
	if m.stats.Failed > 0 {
		lines = append(lines, m.styles.Warn.Render(fmt.Sprintf("⚠ %d documents rejected", m.stats.Failed)))
	}
	if m.stats.WorkersFailed > 0 {
		lines = append(lines, m.styles.Fail.Render(fmt.Sprintf("✗ %d of %d workers failed", m.stats.WorkersFailed, m.stats.Workers)))
	}

	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorAccent)).
		Padding(1, 2).
		Width(contentWidth)
	return panel.Render(strings.Join(lines, "\n")) + "\n"
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", h, m)
}

func truncate(s string, n int) string {
	if n < 4 || len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

var _ Renderer = (*TUIRenderer)(nil)
