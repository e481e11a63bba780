// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// PROGRESS INDICATORS
// =============================================================================

// Bar characters.
var (
	ProgressFull    = "#"
	ProgressEmpty   = "-"
	ProgressPartial = []string{".", ":", "+"}
)

// RenderProgressBar draws a plain bar width cells wide at percent (0-100).
func RenderProgressBar(width int, percent float64) string {
	if width <= 0 {
		return ""
	}
	percent = min(max(percent, 0), 100)

	filled := float64(width) * percent / 100
	full := int(filled)
	partial := int((filled - float64(full)) * float64(len(ProgressPartial)+1))

	var sb strings.Builder
	sb.Grow(width)
	sb.WriteString(strings.Repeat(ProgressFull, full))
	if full < width && partial > 0 {
		sb.WriteString(ProgressPartial[partial-1])
		full++
	}
	sb.WriteString(strings.Repeat(ProgressEmpty, width-full))
	return sb.String()
}

// RenderTrust renders "NN [bar]" colored by trust, or "unscanned".
func RenderTrust(trust, width int) string {
	style := lipgloss.NewStyle().Foreground(TrustColor(trust))
	if trust < 0 {
		return style.Render("unscanned")
	}
	label := strconv.Itoa(trust)
	if width <= 0 {
		return style.Render(label)
	}
	return style.Render(label + " [" + RenderProgressBar(width, float64(trust)) + "]")
}
