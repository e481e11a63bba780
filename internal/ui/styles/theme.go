// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds all the styled components for the console.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	ColorProfile termenv.Profile

	// Layout dimensions
	Width  int
	Height int

	// ==========================================================================
	// FRAME
	// ==========================================================================

	App         lipgloss.Style
	Header      lipgloss.Style
	HeaderBrand lipgloss.Style
	HeaderInfo  lipgloss.Style

	// ==========================================================================
	// SIDEBAR
	// ==========================================================================

	Sidebar       lipgloss.Style
	SidebarItem   lipgloss.Style
	SidebarActive lipgloss.Style

	// ==========================================================================
	// PANELS AND TABLES
	// ==========================================================================

	Panel       lipgloss.Style
	PanelTitle  lipgloss.Style
	Toolbar     lipgloss.Style
	ToolbarOn   lipgloss.Style
	TableHeader lipgloss.Style
	Row         lipgloss.Style
	RowSelected lipgloss.Style
	RowMuted    lipgloss.Style
	Empty       lipgloss.Style

	// Stat cards on the dashboard
	StatCard  lipgloss.Style
	StatValue lipgloss.Style
	StatLabel lipgloss.Style

	// Detail views
	Label lipgloss.Style
	Value lipgloss.Style
	Sats  lipgloss.Style

	// ==========================================================================
	// BADGES
	// ==========================================================================

	BadgeSuccess lipgloss.Style
	BadgeError   lipgloss.Style
	BadgeWarning lipgloss.Style
	BadgeMuted   lipgloss.Style

	// ==========================================================================
	// NOTICES, MODALS, LOGIN
	// ==========================================================================

	NoticeSuccess lipgloss.Style
	NoticeError   lipgloss.Style
	NoticeInfo    lipgloss.Style

	Modal      lipgloss.Style
	ModalTitle lipgloss.Style
	ModalHint  lipgloss.Style

	LoginBox   lipgloss.Style
	LoginTitle lipgloss.Style
	Lockout    lipgloss.Style

	// ==========================================================================
	// STATUS BAR
	// ==========================================================================

	StatusBar    lipgloss.Style
	ShortcutKey  lipgloss.Style
	ShortcutDesc lipgloss.Style
	Countdown    lipgloss.Style
	CountdownLow lipgloss.Style
}

// NewTheme creates a theme for mode: "dark", "light" or "auto" (detect).
func NewTheme(mode string) *Theme {
	profile := termenv.ColorProfile()
	var isDark bool
	switch strings.ToLower(mode) {
	case "dark":
		isDark = true
	case "light":
		isDark = false
	default:
		isDark = termenv.HasDarkBackground()
	}
	// AdaptiveColor consults the renderer, so forced modes must reach it.
	lipgloss.SetHasDarkBackground(isDark)

	t := &Theme{IsDark: isDark, ColorProfile: profile}
	t.initStyles()
	return t
}

// initStyles initializes all the lip gloss styles.
func (t *Theme) initStyles() {
	t.App = lipgloss.NewStyle()

	t.Header = lipgloss.NewStyle().
		Foreground(TextPrimary).
		Background(SurfaceDim).
		Padding(0, 1)
	t.HeaderBrand = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)
	t.HeaderInfo = lipgloss.NewStyle().
		Foreground(TextSecondary)

	// Sidebar
	t.Sidebar = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderRight(true).
		BorderForeground(Overlay).
		Padding(0, 1)
	t.SidebarItem = lipgloss.NewStyle().
		Foreground(TextSecondary).
		PaddingLeft(2)
	t.SidebarActive = lipgloss.NewStyle().
		Bold(true).
		Foreground(Purple).
		BorderStyle(lipgloss.ThickBorder()).
		BorderLeft(true).
		BorderForeground(Purple).
		PaddingLeft(1)

	// Panels
	t.Panel = lipgloss.NewStyle().Padding(0, 1)
	t.PanelTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan).
		MarginBottom(1)
	t.Toolbar = lipgloss.NewStyle().
		Foreground(TextMuted)
	t.ToolbarOn = lipgloss.NewStyle().
		Bold(true).
		Foreground(Purple)
	t.TableHeader = lipgloss.NewStyle().
		Bold(true).
		Foreground(TextSecondary).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(Overlay)
	t.Row = lipgloss.NewStyle().
		Foreground(TextPrimary)
	t.RowSelected = lipgloss.NewStyle().
		Foreground(TextPrimary).
		Background(SelectionBg).
		Bold(true)
	t.RowMuted = lipgloss.NewStyle().
		Foreground(TextMuted)
	t.Empty = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true).
		Padding(1, 2)

	t.StatCard = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(0, 2).
		MarginRight(1)
	t.StatValue = lipgloss.NewStyle().
		Bold(true).
		Foreground(TextPrimary)
	t.StatLabel = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.Label = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Width(18)
	t.Value = lipgloss.NewStyle().
		Foreground(TextPrimary)
	t.Sats = lipgloss.NewStyle().
		Foreground(Bitcoin)

	// Badges
	badge := lipgloss.NewStyle().Padding(0, 1).Foreground(TextInverse)
	t.BadgeSuccess = badge.Background(Emerald)
	t.BadgeError = badge.Background(Rose)
	t.BadgeWarning = badge.Background(Amber)
	t.BadgeMuted = lipgloss.NewStyle().Padding(0, 1).Foreground(TextSecondary).Background(Overlay)

	// Notices
	t.NoticeSuccess = lipgloss.NewStyle().Foreground(Emerald)
	t.NoticeError = lipgloss.NewStyle().Foreground(Rose).Bold(true)
	t.NoticeInfo = lipgloss.NewStyle().Foreground(Cyan)

	// Modals
	t.Modal = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Purple).
		Padding(1, 2).
		Width(60)
	t.ModalTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Purple).
		MarginBottom(1)
	t.ModalHint = lipgloss.NewStyle().
		Foreground(TextMuted).
		MarginTop(1)

	// Login
	t.LoginBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(Cyan).
		Padding(1, 3).
		Width(56)
	t.LoginTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan).
		MarginBottom(1)
	t.Lockout = lipgloss.NewStyle().
		Foreground(TextInverse).
		Background(RoseDeep).
		Bold(true).
		Padding(0, 1)

	// Status bar
	t.StatusBar = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Background(SurfaceDim).
		Padding(0, 1)
	t.ShortcutKey = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)
	t.ShortcutDesc = lipgloss.NewStyle().
		Foreground(TextMuted)
	t.Countdown = lipgloss.NewStyle().
		Foreground(TextSecondary)
	t.CountdownLow = lipgloss.NewStyle().
		Foreground(Amber).
		Bold(true)
}

// TrustStyle colors a trust score.
func (t *Theme) TrustStyle(trust int) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(TrustColor(trust))
}

// SetSize updates the theme dimensions for responsive layouts.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// GetLayoutMode returns the current layout mode based on width.
func (t *Theme) GetLayoutMode() LayoutMode {
	if t.Width < 60 {
		return LayoutNarrow
	}
	if t.Width < 100 {
		return LayoutMedium
	}
	return LayoutWide
}

// LayoutMode represents the current responsive layout mode.
type LayoutMode int

const (
	LayoutNarrow LayoutMode = iota // < 60 columns, sidebar becomes a drawer
	LayoutMedium                   // 60-100 columns
	LayoutWide                     // > 100 columns
)
