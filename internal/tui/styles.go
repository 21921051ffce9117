package tui

import "github.com/charmbracelet/lipgloss"

// glyph is the icon drawn for a settled task status.
type glyph struct {
	symbol string
	color  lipgloss.Color
}

var glyphs = map[TaskStatus]glyph{
	StatusPending:  {"○", "240"},
	StatusComplete: {"✓", "46"},
	StatusError:    {"✗", "196"},
	StatusSkipped:  {"-", "240"},
}

var (
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	countStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
	bannerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true)
)

// labelFor dims the labels of stages that have not started.
func labelFor(status TaskStatus) lipgloss.Style {
	if status == StatusPending {
		return pendingStyle
	}
	return labelStyle
}

// StatusIcon returns the icon for a task status. Running tasks show the
// current spinner frame.
func StatusIcon(status TaskStatus, spinnerFrame string) string {
	if status == StatusRunning {
		return spinnerStyle.Render(spinnerFrame)
	}
	g, ok := glyphs[status]
	if !ok {
		g = glyphs[StatusPending]
	}
	return lipgloss.NewStyle().Foreground(g.color).Render(g.symbol)
}
