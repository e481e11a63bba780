// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var fixedNow = func() time.Time { return time.Date(2025, 7, 4, 23, 30, 0, 0, time.UTC) }

func txDoc() *Document {
	return &Document{
		Slug:    "transactions",
		Title:   "Transactions",
		Headers: []string{"id", "skill_name", "amount_sats"},
		Rows: [][]string{
			{"tx-1", `Parser, "pro" edition`, "250"},
			{"tx-2", "Tide | Tables\nv2", "100"},
		},
	}
}

func TestFileName(t *testing.T) {
	require.Equal(t, "squidbay-transactions-2025-07-04.csv", FileName("transactions", ".csv", fixedNow()))
	require.Equal(t, "squidbay-export-2025-07-04.json", FileName("", "json", fixedNow()))

	// The date is the UTC date.
	est := time.FixedZone("EST", -5*3600)
	require.Equal(t, "squidbay-x-2025-07-05.md", FileName("x", ".md", time.Date(2025, 7, 4, 22, 0, 0, 0, est)))
}

func TestSanitizeName(t *testing.T) {
	require.Equal(t, "_nboard_Bot", SanitizeName("Önboard Bot"))
	require.Equal(t, "Krakenworks", SanitizeName("Krakenworks"))
}

func TestCSVExporter_Quoting(t *testing.T) {
	out, err := NewCSVExporter().Export(txDoc())
	require.NoError(t, err)
	want := "id,skill_name,amount_sats\n" +
		"tx-1,\"Parser, \"\"pro\"\" edition\",250\n" +
		"tx-2,\"Tide | Tables\nv2\",100\n"
	require.Equal(t, want, string(out))
}

func TestCSVExporter_RejectsRaggedRows(t *testing.T) {
	doc := txDoc()
	doc.Rows = append(doc.Rows, []string{"tx-3"})
	_, err := NewCSVExporter().Export(doc)
	require.ErrorContains(t, err, "row 2 has 1 fields")
}

func TestJSONExporter(t *testing.T) {
	out, err := NewJSONExporter().Export(txDoc())
	require.NoError(t, err)
	var rows []map[string]string
	require.NoError(t, json.Unmarshal(out, &rows))
	require.Len(t, rows, 2)
	require.Equal(t, "250", rows[0]["amount_sats"])

	out, err = NewJSONExporter().Export(&Document{Slug: "x", Data: map[string]int{"skills": 6}})
	require.NoError(t, err)
	require.Equal(t, "{\n  \"skills\": 6\n}\n", string(out))
}

func TestMarkdownExporter_EscapesCells(t *testing.T) {
	e := NewMarkdownExporter()
	e.now = fixedNow
	out, err := e.Export(txDoc())
	require.NoError(t, err)

	s := string(out)
	require.Contains(t, s, "title: Transactions\n")
	require.Contains(t, s, "| id | skill_name | amount_sats |\n| --- | --- | --- |\n")
	require.Contains(t, s, `| tx-2 | Tide \| Tables v2 | 100 |`)
	require.Contains(t, s, "_Generated 2025-07-04 23:30:00 UTC_")
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" Markdown ")
	require.NoError(t, err)
	require.Equal(t, FormatMarkdown, f)

	_, err = ParseFormat("xlsx")
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	e, err := ExporterFor(FormatCSV)
	require.NoError(t, err)
	require.Equal(t, "text/csv", e.MimeType())
}

func TestExportToFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	path, err := ExportToFile(txDoc(), NewCSVExporter(), &Options{OutputDir: dir, Now: fixedNow})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "squidbay-transactions-2025-07-04.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(data), "id,skill_name,amount_sats\n"))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}
}
