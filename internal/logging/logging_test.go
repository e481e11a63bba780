// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]zapcore.Level{"": zapcore.InfoLevel, "DEBUG": zapcore.DebugLevel, " warn ": zapcore.WarnLevel} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	require.Error(t, err)
}

func TestNew_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", DefaultFile)
	l, err := New(Options{Level: "info", File: path})
	require.NoError(t, err)

	l.Debug("HIDDEN")
	l.Info("SESSION_STARTED", zap.String("fingerprint", "1a2b3c4d"))
	require.NoError(t, l.SetLevel("debug"))
	l.Debug("VISIBLE")
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3, "debug is dropped until the level changes")

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.Equal(t, "SESSION_STARTED", first["msg"])
	require.Equal(t, "squidops", first["logger"])
	require.Equal(t, "1a2b3c4d", first["fingerprint"])
	require.Contains(t, lines[2], "VISIBLE")
}

func TestNew_NoSinkIsNop(t *testing.T) {
	l, err := New(Options{})
	require.NoError(t, err)
	l.Info("dropped")
	require.Error(t, l.SetLevel("nope"))
}

func TestDefaultPath(t *testing.T) {
	require.Equal(t, filepath.Join("home", ".squidops", "logs", "squidops.log"), DefaultPath(filepath.Join("home", ".squidops")))
}
