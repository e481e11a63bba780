// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// UNICODE: marketplace names mix accented Latin, emoji and CJK. Every
// helper here counts terminal cells, never bytes.

// Ellipsis marks truncated cells.
const Ellipsis = "…"

// TruncateWidth cuts s to at most maxWidth cells, ending in an ellipsis
// when anything was dropped.
func TruncateWidth(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	return runewidth.Truncate(s, maxWidth, Ellipsis)
}

// PadRight truncates or pads s to exactly width cells.
func PadRight(s string, width int) string {
	return runewidth.FillRight(TruncateWidth(s, width), width)
}

// PadLeft truncates or right-aligns s in exactly width cells.
func PadLeft(s string, width int) string {
	return runewidth.FillLeft(TruncateWidth(s, width), width)
}

// StringWidth returns the display width of s.
func StringWidth(s string) int {
	return runewidth.StringWidth(s)
}

// TruncateRunes truncates s to maxRunes characters, appending an ellipsis
// when truncated.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes-1]) + Ellipsis
}

// SingleLine collapses all whitespace runs, newlines included, to one space.
func SingleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var printer = message.NewPrinter(language.English)

// FormatCount renders n with thousands separators: 12,250.
func FormatCount(n int64) string {
	return printer.Sprintf("%d", n)
}

// FormatSats renders an amount in satoshis: "12,250 sats".
func FormatSats(n int64) string {
	return FormatCount(n) + " sats"
}

// FormatUSD renders a dollar amount with cents: "$1,234.50".
func FormatUSD(v float64) string {
	if v < 0 {
		return "-" + printer.Sprintf("$%.2f", -v)
	}
	return printer.Sprintf("$%.2f", v)
}
