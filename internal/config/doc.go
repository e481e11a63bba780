// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for squidops.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - APIConfig: Marketplace endpoint, timeout, retries and rate limit
//   - SessionConfig: Login attempt budget, lockout and session timers
//   - Watcher: Reloads the file on change
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (SQUIDOPS_*)
//   - ~/.squidops/config.toml
//   - ~/.squidops/config.json
//   - Built-in defaults
//
// The admin key is never part of the configuration.
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Follow edits:
//
//	w, err := config.Watch(path, 0, func(cfg *config.Config, err error) { ... })
//	defer w.Close()
package config
