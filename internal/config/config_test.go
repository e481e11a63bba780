// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// isolate points the config directory at a temp dir and clears overrides.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(DirEnv, dir)
	for _, env := range []string{EnvAPIURL, EnvLogLevel, EnvExportDir, EnvTheme} {
		t.Setenv(env, "")
	}
	return dir
}

func writeFile(t *testing.T, path, content string, perm os.FileMode) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 4*time.Hour, cfg.Session.SessionTimeout())
	require.Equal(t, 30*time.Minute, cfg.Session.IdleTimeout())
	require.Equal(t, 15*time.Minute, cfg.Session.LockoutDuration())
	require.Equal(t, 30*time.Second, cfg.API.Timeout())
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	isolate(t)
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, DefaultBaseURL, cfg.API.BaseURL)
	require.Equal(t, DefaultTab, cfg.UI.DefaultTab)
}

func TestLoad_TOMLOverDefaults(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, `
[api]
base_url = "http://localhost:8080/"
max_retries = 0

[session]
idle_timeout_mins = 10

[logging]
level = "debug"
`, 0o644)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080", cfg.API.BaseURL, "trailing slash is trimmed")
	require.Zero(t, cfg.API.MaxRetries, "an explicit zero survives defaults")
	require.Equal(t, 10, cfg.Session.IdleTimeoutMins)
	require.Equal(t, DefaultSessionMins, cfg.Session.SessionTimeoutMins)
	require.Equal(t, "debug", cfg.Logging.Level)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}
}

func TestLoad_JSONFallback(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "config.json"), `{"ui": {"theme": "light", "default_tab": "reviews"}}`, 0o600)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "light", cfg.UI.Theme)
	require.Equal(t, "reviews", cfg.UI.DefaultTab)

	path, err := Path()
	require.NoError(t, err)
	require.Equal(t, "config.json", filepath.Base(path))
}

func TestLoad_BrokenFileFallsBackWithError(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "config.toml"), "[api\nbase_url = ", 0o600)

	cfg, err := Load()
	require.Error(t, err)
	require.NotNil(t, cfg, "defaults are still usable")
	require.Equal(t, DefaultBaseURL, cfg.API.BaseURL)
}

func TestLoad_InvalidFileIsFatal(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "config.toml"), "[ui]\ntheme = \"neon\"\n", 0o600)

	cfg, err := Load()
	require.Nil(t, cfg)
	var verrs ValidateErrors
	require.True(t, errors.As(err, &verrs))
	require.Equal(t, "ui.theme", verrs[0].Field)
}

func TestApplyEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv(EnvAPIURL, "https://staging.squidbay.example")
	t.Setenv(EnvLogLevel, "WARN")
	t.Setenv(EnvExportDir, "/tmp/reports")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://staging.squidbay.example", cfg.API.BaseURL)
	require.Equal(t, "warn", cfg.Logging.Level)
	require.Equal(t, "/tmp/reports", cfg.Export.Dir)
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.API.BaseURL = "http://api.squidbay.io"
	cfg.Session.IdleTimeoutMins = cfg.Session.SessionTimeoutMins + 1
	cfg.Session.LockoutSecs = 5
	cfg.Export.Format = "xlsx"

	err := cfg.Validate()
	var verrs ValidateErrors
	require.ErrorAs(t, err, &verrs)

	fields := make([]string, len(verrs))
	for i, e := range verrs {
		fields[i] = e.Field
	}
	require.Equal(t, []string{"api.base_url", "session.lockout_secs", "session.idle_timeout_mins", "export.format"}, fields)
}

func TestValidate_LoopbackMayUseHTTP(t *testing.T) {
	cfg := Default()
	cfg.API.BaseURL = "http://127.0.0.1:9000"
	require.NoError(t, cfg.Validate())
}

func TestGetSet(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Set("session.max_attempts", "3"))
	require.NoError(t, cfg.Set("ui.compact_mode", true))
	require.NoError(t, cfg.Set("api.requests_per_second", 2.5))

	v, err := cfg.Get("session.max_attempts")
	require.NoError(t, err)
	require.Equal(t, 3, v)
	require.True(t, cfg.UI.CompactMode)
	require.InDelta(t, 2.5, cfg.API.RequestsPerSecond, 1e-9)

	_, err = cfg.Get("session.nope")
	require.ErrorContains(t, err, "unknown field: session.nope")
	require.Error(t, cfg.Set("session.max_attempts", "many"))
	require.Contains(t, Keys(), "logging.file")
}

func TestSave_RoundTrip(t *testing.T) {
	isolate(t)
	cfg := Default()
	cfg.Export.Format = "json"
	cfg.UI.DefaultTab = "security"
	require.NoError(t, Save(cfg))

	path, err := ConfigPathTOML()
	require.NoError(t, err)
	got, err := LoadFromPath(path)
	require.NoError(t, err)
	require.Equal(t, cfg, got)
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, "[logging]\nlevel = \"info\"\n", 0o600)

	var (
		mu     sync.Mutex
		levels []string
	)
	w, err := Watch(path, 20*time.Millisecond, func(cfg *Config, err error) {
		if err != nil {
			return
		}
		mu.Lock()
		levels = append(levels, cfg.Logging.Level)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer w.Close()

	writeFile(t, path, "[logging]\nlevel = \"debug\"\n", 0o600)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(levels) > 0 && levels[len(levels)-1] == "debug"
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "close is idempotent")
}

// TestGlobal_ConcurrentAccess checks Global and SetGlobal under -race.
func TestGlobal_ConcurrentAccess(t *testing.T) {
	isolate(t)
	ResetGlobalForTesting()
	defer ResetGlobalForTesting()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			SetGlobal(Default())
		}()
		go func() {
			defer wg.Done()
			if Global() == nil {
				t.Error("Global() returned nil")
			}
		}()
	}
	wg.Wait()
}
