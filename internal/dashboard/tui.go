// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package dashboard

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// DefaultRefresh is the live dashboard refresh interval.
const DefaultRefresh = 5 * time.Second

// Loader produces a fresh projection.
type Loader func(ctx context.Context) *Data

type dataMsg struct{ data *Data }

type tickMsg time.Time

// Model is the bubbletea model behind `autonomy dashboard --watch`.
type Model struct {
	load     Loader
	refresh  time.Duration
	spinner  spinner.Model
	data     *Data
	loading  bool
	quitting bool
}

// NewModel returns a live dashboard that reloads every refresh.
func NewModel(load Loader, refresh time.Duration) Model {
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return Model{load: load, refresh: refresh, spinner: sp, loading: true}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.loadCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			if !m.loading {
				m.loading = true
				return m, tea.Batch(m.spinner.Tick, m.loadCmd())
			}
		}
		return m, nil
	case dataMsg:
		m.data = msg.data
		m.loading = false
		return m, m.tickCmd()
	case tickMsg:
		m.loading = true
		return m, tea.Batch(m.spinner.Tick, m.loadCmd())
	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	status := dimStyle.Render("r to refresh  q to quit")
	if m.loading {
		status = m.spinner.View() + " refreshing…"
	}
	if m.data == nil {
		return status + "\n"
	}
	return Render(m.data) + status + "\n"
}

// Data returns the last loaded projection, or nil before the first load.
func (m Model) Data() *Data { return m.data }

func (m Model) loadCmd() tea.Cmd {
	load := m.load
	return func() tea.Msg {
		return dataMsg{data: load(context.Background())}
	}
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}
