// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package market holds the SquidBay marketplace domain: wire normalization,
// the concrete list views and the summary panels of the console.
//
// Every response is decoded into a loose wire struct (numeric or string ids,
// 0/1 or bool flags, alternate field names) and converted once into a strict
// type. Nothing outside this package sees the wire shapes.
//
// # Key Types
//
//   - Backend: the session surface panels call (authorized, public, audit)
//   - Skills, Agents, Reviews, Transactions, Keys: list views with actions
//   - Overview, Security, Settings, Reports: summary panels
//
// All panels satisfy tabs.Module through Load.
//
// # Usage
//
//	skills := market.NewSkills(ctrl)
//	if err := skills.Load(ctx); err != nil { ... }
//	_ = skills.SetSort("trust-desc")
//	err := skills.Deactivate(ctx, "101", "malware report")
//
// Successful writes record an audit entry through Backend.Audit. Audits are
// best effort and never fail the write.
package market
