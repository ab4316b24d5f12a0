package tui

import (
	"fmt"
	"strings"
)

// View renders the dashboard frame.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("LoopDesk") + " " + dimStyle.Render("status dashboard") + "\n")
	b.WriteString(strings.Repeat("─", max(m.width, 40)) + "\n")

	if m.status == nil {
		if m.err != nil {
			b.WriteString(errorStyle.Render("✗ Cannot reach instance: "+m.err.Error()) + "\n")
			b.WriteString(dimStyle.Render("Is LoopDesk running? Start it with: loopdesk serve") + "\n")
		} else {
			b.WriteString(m.spinner.View() + " Connecting...\n")
		}
		b.WriteString("\n" + dimStyle.Render("<r> Refresh | <q> Quit"))
		return b.String()
	}

	b.WriteString(m.renderStatusPanel())
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render("✗ Poll failed: "+m.err.Error()) + "\n")
	}
	if m.notice != "" {
		b.WriteString(m.notice + "\n")
	}

	if m.confirmMode {
		b.WriteString("\n" + m.renderConfirmDialog() + "\n")
	}

	footer := dimStyle.Render("<u> Apply staged update | <r> Refresh | <q> Quit")
	b.WriteString("\n" + footer)

	return b.String()
}

// renderStatusPanel renders the lifecycle snapshot.
func (m Model) renderStatusPanel() string {
	s := m.status

	var b strings.Builder
	b.WriteString(fmt.Sprintf("State:      %s\n", formatState(s.State)))
	b.WriteString(fmt.Sprintf("Version:    %s\n", s.Version))
	b.WriteString(fmt.Sprintf("PID:        %d\n", s.PID))
	b.WriteString(fmt.Sprintf("Executable: %s\n", s.Executable))
	b.WriteString(fmt.Sprintf("Uptime:     %s\n", formatUptime(s.StartedAt)))

	if s.PendingArtifact != "" {
		b.WriteString(warnStyle.Render(fmt.Sprintf("Staged:     %s (press u to apply)", s.PendingArtifact)) + "\n")
	}
	if s.LastUpdate != nil {
		if s.LastUpdate.Committed {
			b.WriteString(successStyle.Render(fmt.Sprintf("Last update: committed %s", s.LastUpdate.Artifact)) + "\n")
		} else {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Last update: rolled back (%s)", s.LastUpdate.Error)) + "\n")
		}
	}

	return panelStyle.Render(strings.TrimRight(b.String(), "\n"))
}

// renderConfirmDialog renders the apply-update confirmation.
func (m Model) renderConfirmDialog() string {
	body := fmt.Sprintf("Apply staged update?\n\nArtifact: %s\n\nThe instance will restart. (y/n)", m.status.PendingArtifact)
	return dialogBoxStyle.Render(body)
}
