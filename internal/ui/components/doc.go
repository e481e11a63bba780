// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package components provides the reusable widgets of the squidops console.

# Key Types

  - Header: brand, active tab, API host and login state badge
  - StatusBar: status icon, shortcut hints and the session countdown
  - SessionCountdown: the nearer of the hard and idle limits, amber when close
  - Notice: a non-blocking inline message that expires on its own
  - Spinner: ASCII loading indicator with elapsed time

LockoutBanner and ExpiredBanner render the login screen's lockout countdown
and the reason the last session ended.

# Usage

	bar := components.NewStatusBar(theme)
	bar.Countdown.Update(ctrl.Snapshot())
	bar.SetShortcuts(keys.Search, keys.Filter, keys.Quit)
	footer := bar.View()

	notice := components.NewErrorNotice(err)
	cmd := notice.ExpireAfter() // later: notice = notice.Clear(msg)
*/
package components
