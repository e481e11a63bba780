// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/squidbay/squidops-tui/internal/ui/styles"
	"github.com/squidbay/squidops-tui/internal/util"
)

// =============================================================================
// STATUS BAR COMPONENT
// =============================================================================

// Status represents what the console is doing.
type Status int

const (
	StatusReady Status = iota
	StatusLoading
	StatusWorking
	StatusError
)

// String returns the display string for the status
func (s Status) String() string {
	switch s {
	case StatusReady:
		return "Ready"
	case StatusLoading:
		return "Loading..."
	case StatusWorking:
		return "Working..."
	case StatusError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Icon returns an icon for the status
// ACCESSIBILITY: Uses distinct shapes alongside colors for colorblind users
func (s Status) Icon() string {
	switch s {
	case StatusReady:
		return styles.StatusIndicators.Success
	case StatusLoading, StatusWorking:
		return styles.StatusIndicators.Pending
	case StatusError:
		return styles.StatusIndicators.Error
	default:
		return "?"
	}
}

// StatusBar is the bottom line: status, shortcuts on the left, session
// countdown on the right.
type StatusBar struct {
	Status    Status
	Width     int
	Shortcuts []key.Binding
	Countdown SessionCountdown
	theme     *styles.Theme
}

// NewStatusBar creates a new StatusBar component
func NewStatusBar(theme *styles.Theme) *StatusBar {
	return &StatusBar{
		Status:    StatusReady,
		Width:     80,
		Countdown: NewSessionCountdown(),
		theme:     theme,
	}
}

// SetWidth updates the status bar width
func (s *StatusBar) SetWidth(width int) {
	s.Width = width
}

// SetStatus updates the current status
func (s *StatusBar) SetStatus(status Status) {
	s.Status = status
}

// SetShortcuts replaces the shortcut hints.
func (s *StatusBar) SetShortcuts(bindings ...key.Binding) {
	s.Shortcuts = bindings
}

// View renders the status bar. Shortcuts are dropped before the countdown
// when space runs out.
func (s *StatusBar) View() string {
	inner := s.Width - 2 // padding
	if inner < 10 {
		inner = 10
	}

	left := s.Status.Icon() + " " + s.Status.String()
	right := s.Countdown.View(s.theme)
	shortcuts := RenderShortcuts(s.theme, s.Shortcuts)

	used := lipgloss.Width(left) + lipgloss.Width(right)
	if shortcuts != "" && used+lipgloss.Width(shortcuts)+4 <= inner {
		left += "  " + shortcuts
	}
	gap := inner - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		left = util.TruncateWidth(left, max(inner-lipgloss.Width(right)-1, 1))
		gap = max(inner-lipgloss.Width(left)-lipgloss.Width(right), 1)
	}
	return s.theme.StatusBar.Width(s.Width).Render(left + spaces(gap) + right)
}

func spaces(n int) string {
	if n <= 0 {
		return ""
	}
	return util.PadRight("", n)
}
