// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package console

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/squidbay/squidops-tui/internal/session"
)

// =============================================================================
// MESSAGES
// =============================================================================

// sessionEventMsg carries a controller event into the program.
type sessionEventMsg struct {
	event session.Event
}

// authDoneMsg is the result of a login step.
type authDoneMsg struct {
	err error
}

// loadedMsg is the result of loading tab name at epoch.
type loadedMsg struct {
	tab   string
	epoch uint64
	err   error
}

// actionDoneMsg is the result of a panel action. reveal lines are shown
// once in a modal (new keys, backup codes).
type actionDoneMsg struct {
	message string
	reveal  []string
	title   string
	after   func(m *Model) tea.Cmd
	err     error
}

// tickMsg refreshes countdowns once a second.
type tickMsg time.Time

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}
