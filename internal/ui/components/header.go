// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/squidbay/squidops-tui/internal/session"
	"github.com/squidbay/squidops-tui/internal/ui/styles"
)

// =============================================================================
// HEADER COMPONENT
// =============================================================================

// Header is the one-line title bar: brand and active tab on the left, API
// host and login state on the right.
type Header struct {
	Title    string
	TabTitle string
	Host     string
	State    session.State
	Width    int
	theme    *styles.Theme
}

// NewHeader creates a new Header component with default values
func NewHeader(theme *styles.Theme, host string) *Header {
	return &Header{
		Title: "SquidBay Admin",
		Host:  host,
		Width: 80,
		theme: theme,
	}
}

// SetWidth updates the header width
func (h *Header) SetWidth(width int) {
	h.Width = width
}

// stateBadge renders the login state.
func (h *Header) stateBadge() string {
	switch h.State {
	case session.Authenticated:
		return h.theme.BadgeSuccess.Render("AUTHENTICATED")
	case session.LockedOut:
		return h.theme.BadgeError.Render("LOCKED")
	case session.KeyPending, session.SecondFactorPending:
		return h.theme.BadgeWarning.Render("SIGNING IN")
	default:
		return h.theme.BadgeMuted.Render("SIGNED OUT")
	}
}

// View renders the header. The host is dropped first on narrow terminals.
func (h *Header) View() string {
	width := max(h.Width, 20)
	inner := width - 2

	left := h.theme.HeaderBrand.Render(h.Title)
	if h.TabTitle != "" {
		left += h.theme.HeaderInfo.Render(" / " + h.TabTitle)
	}
	badge := h.stateBadge()
	right := badge
	if h.Host != "" {
		withHost := h.theme.HeaderInfo.Render(h.Host) + " " + badge
		if lipgloss.Width(left)+lipgloss.Width(withHost)+1 <= inner {
			right = withHost
		}
	}
	gap := max(inner-lipgloss.Width(left)-lipgloss.Width(right), 1)
	return h.theme.Header.Width(width).Render(left + spaces(gap) + right)
}
