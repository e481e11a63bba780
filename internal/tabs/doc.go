// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tabs implements the console's tab registry and module loader.
//
// Tabs are registered once at startup with a Factory. Selecting a tab makes
// it the only active one, closes the navigation drawer, cancels whatever the
// previous tab was still loading and constructs the tab's module on first
// use. The module's Load runs on every activation.
//
// # Key Types
//
//   - Loader: registry and activation state
//   - Module: a constructed tab body with a Load method
//   - Teardowner: optional hook run when a module's tab is deselected
//   - Activation: handle returned by Select, scoped to one activation epoch
//
// # Usage
//
//	l := tabs.NewLoader(tabs.WithLogger(logger))
//	_ = l.Register("skills", "Skills", func() (tabs.Module, error) {
//	    return market.NewSkills(backend), nil
//	})
//	if err := l.Activate(ctx, "skills"); err != nil { ... }
//
// A Factory that fails leaves the notice "module not available: <name>" on
// its tab; it is retried on the next selection.
package tabs
