// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli is the squidops command line.
//
// Without a subcommand it starts the interactive console. The subcommands
// run headless for scripts and quick checks:
//
//   - verify: log in with $SQUIDOPS_KEY (or a hidden prompt) and report
//   - skills: list skills with --search, --filter, --sort and --category
//   - export: write transactions, skills, agents or reviews to a file
//   - config: show the effective configuration or its path
//   - version: print build information
//
// Global flags are --config, --api, --verbose and --json. Errors map to
// exit codes through GetExitCode; see errors.go.
//
// # Usage
//
//	func main() {
//		os.Exit(cli.Execute(ctx, os.Args[1:]))
//	}
package cli
