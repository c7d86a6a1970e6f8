// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Butti Journey Contributors

package dashboard

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModel_LoadAndRefresh(t *testing.T) {
	loads := 0
	load := func(context.Context) *Data {
		loads++
		return &Data{GeneratedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	}
	m := NewModel(load, time.Second)

	assert.Contains(t, m.View(), "refreshing")
	require.NotNil(t, m.Init())

	msg := m.loadCmd()()
	updated, cmd := m.Update(msg)
	m = updated.(Model)
	assert.Equal(t, 1, loads)
	require.NotNil(t, m.Data())
	assert.False(t, m.loading)
	assert.NotNil(t, cmd, "schedules the next refresh")
	assert.Contains(t, m.View(), "Autonomy Dashboard")
	assert.Contains(t, m.View(), "q to quit")

	updated, cmd = m.Update(tickMsg(time.Now()))
	m = updated.(Model)
	assert.True(t, m.loading)
	assert.NotNil(t, cmd)
}

func TestModel_ManualRefreshAndQuit(t *testing.T) {
	m := NewModel(func(context.Context) *Data { return &Data{} }, 0)
	assert.Equal(t, DefaultRefresh, m.refresh)

	updated, _ := m.Update(dataMsg{data: &Data{}})
	m = updated.(Model)

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	m = updated.(Model)
	assert.True(t, m.loading)
	assert.NotNil(t, cmd)

	updated, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	m = updated.(Model)
	assert.True(t, m.quitting)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, m.View())
}
