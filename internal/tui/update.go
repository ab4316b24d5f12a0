package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Update handles all events (Elm architecture)
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case statusMsg:
		m.lastPoll = time.Now()
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.status = msg.status
		}
		return m, tickCmd()

	case applyResultMsg:
		m.confirmMode = false
		if msg.err != nil {
			m.notice = errorStyle.Render("Update failed: " + msg.err.Error())
		} else {
			m.notice = successStyle.Render("Update committed, instance is restarting")
		}
		return m, m.pollStatus()

	case tickMsg:
		return m, m.pollStatus()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.QuitMsg:
		m.quitting = true
		return m, tea.Quit

	default:
		return m, nil
	}
}

// handleKeyPress processes keyboard input
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirmMode {
		switch msg.String() {
		case "y", "enter":
			m.notice = ""
			return m, m.applyPendingUpdate()
		case "n", "esc":
			m.confirmMode = false
			return m, nil
		}
		return m, nil
	}

	switch msg.String() {
	case "ctrl+c", "q":
		m.quitting = true
		return m, tea.Quit

	case "r":
		return m, m.pollStatus()

	case "u":
		if m.status != nil && m.status.PendingArtifact != "" {
			m.confirmMode = true
			m.notice = ""
		} else {
			m.notice = dimStyle.Render("No staged update waiting")
		}
		return m, nil
	}

	return m, nil
}
