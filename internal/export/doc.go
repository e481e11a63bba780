// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes console reports to disk.
//
// A report is a Document: a slug, optional tabular data and an optional
// JSON payload. Exporters turn it into bytes; ExportToFile names the file
// squidbay-<slug>-<YYYY-MM-DD>.<ext> and writes it owner-readable only.
//
// # Key Types
//
//   - Document: the report content
//   - Exporter: format interface (CSV, JSON, Markdown table)
//   - Options: output directory, clock and open-after-export
//
// # Supported Formats
//
//   - CSV: RFC 4180 quoting, header row first
//   - JSON: two-space indented payload, or rows keyed by header
//   - Markdown: a pipe table with a small YAML front matter block
//
// # Usage
//
//	doc := &export.Document{Slug: "transactions", Headers: hdr, Rows: rows}
//	path, err := export.ExportToFile(doc, export.NewCSVExporter(), opts)
package export
