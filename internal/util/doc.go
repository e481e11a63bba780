// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the console and the CLI.
//
// # Key Functions
//
// String Utilities:
//   - TruncateWidth, PadRight, PadLeft: cell-aware table columns
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - FormatSats, FormatUSD: amounts with thousands separators
//
// File Operations:
//   - AtomicWriteFile: Crash-safe file writing with fsync
//
// # Usage
//
//	cell := util.PadRight(skill.Name, 24)
//	fee := util.FormatSats(rev.FeeSats)
//	err := util.AtomicWriteFile(path, data, 0o600)
package util
