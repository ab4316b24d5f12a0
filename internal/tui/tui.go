// Package tui implements the terminal status dashboard, a lightweight
// alternative to the web UI for operators who live in a shell.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Run starts the dashboard against the control surface at apiURL and blocks
// until the user quits.
func Run(apiURL string) error {
	p := tea.NewProgram(NewModel(apiURL))
	_, err := p.Run()
	return err
}
