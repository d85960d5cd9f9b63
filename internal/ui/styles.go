package ui

import "github.com/charmbracelet/lipgloss"

// 256-color palette codes.
const (
	ColorAccent = "154" // lime
	ColorMuted  = "245"
	ColorRule   = "238"
	ColorFail   = "196"
	ColorWarn   = "220"
)

// Styles are the lipgloss styles shared by the reindex view and the status
// report.
type Styles struct {
	Title   lipgloss.Style
	Done    lipgloss.Style // finished stages and success lines
	Current lipgloss.Style
	Pending lipgloss.Style
	Warn    lipgloss.Style
	Fail    lipgloss.Style
	Label   lipgloss.Style
	Metric  lipgloss.Style
	Rule    lipgloss.Style
}

func newStyles(color bool) Styles {
	fg := func(c string) lipgloss.Style {
		if !color {
			return lipgloss.NewStyle()
		}
		return lipgloss.NewStyle().Foreground(lipgloss.Color(c))
	}

	s := Styles{
		Title:   fg(ColorAccent),
		Done:    fg(ColorAccent),
		Current: fg(ColorAccent),
		Pending: fg(ColorRule),
		Warn:    fg(ColorWarn),
		Fail:    fg(ColorFail),
		Label:   fg(ColorMuted),
		Metric:  fg(ColorMuted),
		Rule:    fg(ColorRule),
	}
	if color {
		s.Title = s.Title.Bold(true)
		s.Current = s.Current.Bold(true)
	}
	return s
}

// DefaultStyles returns the colored styles used on terminals.
func DefaultStyles() Styles { return newStyles(true) }

// NoColorStyles returns styles that render text unchanged.
func NoColorStyles() Styles { return newStyles(false) }

// GetStyles picks DefaultStyles or NoColorStyles.
func GetStyles(noColor bool) Styles { return newStyles(!noColor) }
