// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the squidops console.

All colors use Lip Gloss AdaptiveColor for automatic light/dark terminal
detection.

# Color System (colors.go)

  - Purple - selection and the active tab
  - Cyan - brand, headings, info notices
  - Emerald / Amber / Rose - success, warning, error; also good, fair, poor trust
  - Bitcoin - sats and fee figures

Every status also carries an ASCII indicator ([OK], [X], [!], [i]) so state
never depends on color alone.

# Theme System (theme.go)

NewTheme takes the configured mode. "auto" asks termenv whether the
background is dark; "dark" and "light" force it:

	theme := styles.NewTheme(cfg.UI.Theme)
	theme.SetSize(msg.Width, msg.Height)
	row := theme.RowSelected.Render(name)

# Bars (bars.go)

RenderProgressBar and RenderTrust draw ASCII bars for trust scores.
*/
package styles
