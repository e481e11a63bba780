// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
)

// =============================================================================
// CSV EXPORTER
// =============================================================================

// CSVExporter writes the header row followed by every data row.
type CSVExporter struct{}

// NewCSVExporter creates a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Export renders the document as CSV with RFC 4180 quoting.
func (e *CSVExporter) Export(doc *Document) ([]byte, error) {
	if doc == nil {
		return nil, errors.New("document is nil")
	}
	if len(doc.Headers) == 0 {
		return nil, errors.New("document has no columns")
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(doc.Headers); err != nil {
		return nil, err
	}
	for i, row := range doc.Rows {
		if len(row) != len(doc.Headers) {
			return nil, fmt.Errorf("row %d has %d fields, want %d", i, len(row), len(doc.Headers))
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileExtension returns the file extension for CSV.
func (e *CSVExporter) FileExtension() string {
	return ".csv"
}

// MimeType returns the MIME type for CSV.
func (e *CSVExporter) MimeType() string {
	return "text/csv"
}
