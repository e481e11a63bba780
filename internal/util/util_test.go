// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "nested", "out.csv")

	require.NoError(t, AtomicWriteFile(path, []byte("a,b\n"), 0o600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "a,b\n", string(data))
	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}
}

func TestAtomicWriteFile_OverwritesWithoutLeftovers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	require.NoError(t, AtomicWriteFile(path, []byte("old content that is longer"), 0o600))
	require.NoError(t, AtomicWriteFile(path, []byte("new"), 0o600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "new", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left behind")
}

func TestAtomicWriteFile_FailureKeepsTarget(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(path, 0o700))

	require.Error(t, AtomicWriteFile(path, []byte("x"), 0o600), "cannot replace a directory")
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

// =============================================================================
// STRING TESTS
// =============================================================================

func TestTruncateWidth(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"Krakenworks", 20, "Krakenworks"},
		{"Krakenworks", 6, "Krake…"},
		{"éclair summarizer", 7, "éclair…"},
		{"日本語テキスト", 5, "日本…"},
		{"anything", 0, ""},
	}
	for _, tt := range tests {
		got := TruncateWidth(tt.in, tt.width)
		require.Equal(t, tt.want, got, "TruncateWidth(%q, %d)", tt.in, tt.width)
		require.LessOrEqual(t, StringWidth(got), tt.width)
	}
}

func TestPad(t *testing.T) {
	require.Equal(t, "Önboard   ", PadRight("Önboard", 10))
	require.Equal(t, "  日本", PadLeft("日本", 6))
	require.Equal(t, 8, StringWidth(PadRight("🦑 Krakenworks", 8)))
}

func TestTruncateRunes(t *testing.T) {
	require.Equal(t, "héllo", TruncateRunes("héllo", 5))
	require.Equal(t, "hél…", TruncateRunes("héllo", 4))
	require.Empty(t, TruncateRunes("héllo", 0))
}

func TestSingleLine(t *testing.T) {
	require.Equal(t, "Missed half the totals.", SingleLine("  Missed half\n\tthe  totals. "))
}

func TestFormatAmounts(t *testing.T) {
	require.Equal(t, "12,250 sats", FormatSats(12250))
	require.Equal(t, "0 sats", FormatSats(0))
	require.Equal(t, "$1,234.50", FormatUSD(1234.5))
	require.Equal(t, "-$0.24", FormatUSD(-0.24))
}
