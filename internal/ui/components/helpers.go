// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"

	"github.com/squidbay/squidops-tui/internal/ui/styles"
)

// =============================================================================
// SHARED HELPER FUNCTIONS
// =============================================================================

// FormatClock formats a duration as M:SS, or H:MM:SS from an hour. Partial
// seconds round up so a countdown never shows 0:00 while time remains.
func FormatClock(d time.Duration) string {
	if d <= 0 {
		return "0:00"
	}
	total := int(math.Ceil(d.Seconds()))
	h, m, s := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// formatElapsed formats a duration as "12s" or "3m 04s".
func formatElapsed(d time.Duration) string {
	seconds := int(d.Seconds())
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	return fmt.Sprintf("%dm %02ds", seconds/60, seconds%60)
}

// RenderShortcuts renders bindings as "key desc" pairs separated by two spaces.
// Disabled bindings are skipped.
func RenderShortcuts(theme *styles.Theme, bindings []key.Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		if !b.Enabled() {
			continue
		}
		h := b.Help()
		parts = append(parts, theme.ShortcutKey.Render(h.Key)+" "+theme.ShortcutDesc.Render(h.Desc))
	}
	return strings.Join(parts, "  ")
}
