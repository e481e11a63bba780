// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package console is the SquidBay admin terminal console.
//
// The console is one Bubble Tea model. Before login it shows the key and
// second-factor form with the lockout countdown. After login it shows the
// tab sidebar and the active panel. Tabs are registered with a tabs.Loader
// and built lazily on first selection; switching tabs cancels the previous
// load and discards its late results.
//
// # Key Types
//
//   - Model: the Bubble Tea model
//   - Options: controller, theme, export settings
//   - KeyMap: key bindings
//
// # Usage
//
//	err := console.Run(ctx, console.Options{
//		Controller: ctrl,
//		Host:       "api.squidbay.io",
//	})
//
// Session events from the controller are delivered to the program, so an
// idle timeout or a 401 returns to the login screen with its banner.
package console
