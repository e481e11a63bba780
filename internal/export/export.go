// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/squidbay/squidops-tui/internal/util"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Document is one report.
type Document struct {
	// Slug names the report in its file name, e.g. "transactions".
	Slug string

	// Title is used by human-readable formats.
	Title string

	// Headers and Rows hold tabular content.
	Headers []string
	Rows    [][]string

	// Data, when set, is the JSON payload. Tabular formats ignore it.
	Data any
}

// Exporter converts a document to a file format.
type Exporter interface {
	// Export renders the document.
	Export(doc *Document) ([]byte, error)

	// FileExtension returns the extension including the dot.
	FileExtension() string

	// MimeType returns the MIME type of the rendered output.
	MimeType() string
}

// Format names a supported output format.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "md"
)

// ErrUnsupportedFormat is returned by ParseFormat and ExporterFor.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ParseFormat accepts csv, json, md or markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, s)
}

// ExporterFor returns the exporter for f.
func ExporterFor(f Format) (Exporter, error) {
	switch f {
	case FormatCSV:
		return NewCSVExporter(), nil
	case FormatJSON:
		return NewJSONExporter(), nil
	case FormatMarkdown:
		return NewMarkdownExporter(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
}

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures where and how files are written.
type Options struct {
	// OutputDir is created if missing. Default: current directory.
	OutputDir string

	// OpenAfterExport opens the file in the default application.
	OpenAfterExport bool

	// Now dates the file name. Default: time.Now.
	Now func() time.Time
}

// DefaultOptions returns options writing to the current directory.
func DefaultOptions() *Options {
	return &Options{OutputDir: ".", Now: time.Now}
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ExportToFile renders doc with exporter and writes it to opts.OutputDir.
// It returns the written path.
func ExportToFile(doc *Document, exporter Exporter, opts *Options) (string, error) {
	if doc == nil {
		return "", errors.New("document is nil")
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	dir := opts.OutputDir
	if dir == "" {
		dir = "."
	}

	content, err := exporter.Export(doc)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	// SECURITY: reports carry admin-only data; keep them owner-only.
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	path := filepath.Join(dir, FileName(doc.Slug, exporter.FileExtension(), now()))
	if err := util.AtomicWriteFile(path, content, 0o600); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	if opts.OpenAfterExport {
		// Non-fatal; the file was written.
		_ = openFile(path)
	}
	return path, nil
}

// FileName returns squidbay-<slug>-<YYYY-MM-DD><ext> for the UTC date of t.
func FileName(slug, ext string, t time.Time) string {
	if slug == "" {
		slug = "export"
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("squidbay-%s-%s%s", slug, t.UTC().Format("2006-01-02"), ext)
}

// SanitizeName replaces every character outside [A-Za-z0-9] with '_'.
func SanitizeName(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

// openFile opens a file in the default application for the OS.
func openFile(path string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", `""`, path)
	case "darwin":
		cmd = exec.Command("open", path)
	case "linux":
		cmd = exec.Command("xdg-open", path)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}

// formatTimestamp formats a timestamp for report headers.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}
