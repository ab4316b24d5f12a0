package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/loopdesk/loopdesk/internal/lifecycle"
)

var (
	// Colors
	primaryColor   = lipgloss.Color("#7D56F4") // Purple
	successColor   = lipgloss.Color("#00FF00") // Green
	errorColor     = lipgloss.Color("#FF0000") // Red
	warnColor      = lipgloss.Color("#FFA500") // Orange
	dimColor       = lipgloss.Color("#666666") // Gray
	highlightColor = lipgloss.Color("#00FFFF") // Cyan

	// Text styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	successStyle = lipgloss.NewStyle().
			Foreground(successColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	warnStyle = lipgloss.NewStyle().
			Foreground(warnColor)

	dimStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	highlightStyle = lipgloss.NewStyle().
			Foreground(highlightColor).
			Bold(true)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	dialogBoxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(warnColor).
			Padding(1, 2)
)

// formatState renders a lifecycle state with its status glyph.
func formatState(state lifecycle.State) string {
	switch state {
	case lifecycle.StateServing:
		return successStyle.Render("✓ Serving")
	case lifecycle.StateStarting, lifecycle.StateLocked:
		return highlightStyle.Render("● Starting")
	case lifecycle.StateLockConflict:
		return warnStyle.Render("⚠ Lock conflict")
	case lifecycle.StateUpdateRequested:
		return warnStyle.Render("● Updating")
	case lifecycle.StateShuttingDown:
		return dimStyle.Render("○ Shutting down")
	case lifecycle.StateTerminated:
		return dimStyle.Render("○ Terminated")
	default:
		return string(state)
	}
}

// formatUptime renders time-since-start in a compact form.
func formatUptime(startedAt time.Time) string {
	if startedAt.IsZero() {
		return "-"
	}
	d := time.Since(startedAt).Round(time.Second)
	if d < 0 {
		return "-"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
