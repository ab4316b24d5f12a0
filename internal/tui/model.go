package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/loopdesk/loopdesk/internal/lifecycle"
)

// Model is the Bubbletea model for the status dashboard.
type Model struct {
	client  *APIClient
	spinner spinner.Model

	status      *lifecycle.Status
	lastPoll    time.Time
	err         error
	confirmMode bool // pending-artifact apply confirmation active
	notice      string
	quitting    bool
	width       int
	height      int
}

// NewModel creates the dashboard model against apiURL.
func NewModel(apiURL string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = highlightStyle
	return Model{
		client:  NewAPIClient(apiURL),
		spinner: sp,
	}
}

// Init starts the poll loop.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.pollStatus(),
		m.spinner.Tick,
	)
}

// Messages for Bubbletea
type statusMsg struct {
	status *lifecycle.Status
	err    error
}

type applyResultMsg struct {
	err error
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// pollStatus fetches the lifecycle snapshot off the Update loop.
func (m Model) pollStatus() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		status, err := client.Status()
		return statusMsg{status: status, err: err}
	}
}

// applyPendingUpdate asks the instance to apply its parked artifact.
func (m Model) applyPendingUpdate() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		return applyResultMsg{err: client.ApplyUpdate("")}
	}
}
