// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/squidbay/squidops-tui/internal/session"
	"github.com/squidbay/squidops-tui/internal/ui/styles"
)

// DefaultWarningThreshold is when the countdown turns amber.
const DefaultWarningThreshold = 2 * time.Minute

// =============================================================================
// SESSION COUNTDOWN
// =============================================================================

// SessionCountdown shows how long the session has left. The shorter of the
// hard limit and the idle limit wins, since either ends the session.
type SessionCountdown struct {
	warningThreshold time.Duration

	state     session.State
	remaining time.Duration
	idle      bool
}

// NewSessionCountdown creates a countdown with the default warning threshold.
func NewSessionCountdown() SessionCountdown {
	return SessionCountdown{warningThreshold: DefaultWarningThreshold}
}

// SetWarningThreshold sets when the countdown starts warning.
func (c *SessionCountdown) SetWarningThreshold(threshold time.Duration) {
	c.warningThreshold = threshold
}

// Update takes a fresh controller snapshot.
func (c *SessionCountdown) Update(snap session.Snapshot) {
	c.state = snap.State
	c.remaining = snap.SessionRemaining
	c.idle = false
	if snap.IdleRemaining > 0 && snap.IdleRemaining < c.remaining {
		c.remaining = snap.IdleRemaining
		c.idle = true
	}
}

// Remaining is the time until the session ends.
func (c SessionCountdown) Remaining() time.Duration {
	return c.remaining
}

// Warning reports whether the session is about to end.
func (c SessionCountdown) Warning() bool {
	return c.state == session.Authenticated && c.remaining <= c.warningThreshold
}

// View renders "session 3:59:12" or "idle 1:30" when the idle limit is nearer.
func (c SessionCountdown) View(theme *styles.Theme) string {
	if c.state != session.Authenticated {
		return ""
	}
	label := "session "
	if c.idle {
		label = "idle "
	}
	style := theme.Countdown
	if c.Warning() {
		style = theme.CountdownLow
		label = styles.StatusIndicators.Warning + " " + label
	}
	return style.Render(label + FormatClock(c.remaining))
}

// =============================================================================
// LOCKOUT BANNER
// =============================================================================

// LockoutBanner renders the lockout notice with its live countdown.
func LockoutBanner(theme *styles.Theme, remaining time.Duration, width int) string {
	text := styles.StatusIndicators.Error + " Too many failed attempts. Try again in " + FormatClock(remaining)
	style := theme.Lockout
	if width > 0 {
		style = style.Width(width).Align(lipgloss.Center)
	}
	return style.Render(text)
}

// ExpiredBanner renders why the last session ended, or "" when it was an
// ordinary logout.
func ExpiredBanner(theme *styles.Theme, reason session.Reason) string {
	msg := reason.Message()
	if msg == "" {
		return ""
	}
	return theme.NoticeError.Render(styles.StatusIndicators.Warning + " " + msg)
}
