// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squidbay/squidops-tui/internal/apiclient"
	"github.com/squidbay/squidops-tui/internal/apitest"
	"github.com/squidbay/squidops-tui/internal/config"
	"github.com/squidbay/squidops-tui/internal/export"
	"github.com/squidbay/squidops-tui/internal/session"
	"github.com/squidbay/squidops-tui/internal/ui/console"
)

func TestMain(m *testing.M) {
	lipgloss.SetColorProfile(termenv.Ascii)
	os.Exit(m.Run())
}

// =============================================================================
// HARNESS
// =============================================================================

type result struct {
	out    string
	stderr string
	err    error
}

// run executes args against srv with an isolated config directory.
func run(t *testing.T, srv *apitest.Server, stdin string, args ...string) result {
	t.Helper()
	return runApp(t, newTestApp(t, stdin), srv, args...)
}

func newTestApp(t *testing.T, stdin string) *App {
	t.Helper()
	t.Setenv(config.DirEnv, t.TempDir())
	a := NewApp()
	a.In = strings.NewReader(stdin)
	a.ReadSecret = func(w io.Writer, prompt string) (string, error) {
		return "", &TTYRequiredError{Operation: "read the admin key"}
	}
	a.RunConsole = func(ctx context.Context, opts console.Options) error {
		t.Fatal("console started")
		return nil
	}
	return a
}

func runApp(t *testing.T, a *App, srv *apitest.Server, args ...string) result {
	t.Helper()
	var out, stderr bytes.Buffer
	a.Out = &out
	a.Err = &stderr
	root := a.RootCommand()
	if srv != nil {
		args = append([]string{"--api", srv.URL}, args...)
	}
	root.SetArgs(args)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return result{out: out.String(), stderr: stderr.String(), err: err}
}

func decode(t *testing.T, s string, data any) JSONResponse {
	t.Helper()
	resp := JSONResponse{Data: data}
	require.NoError(t, json.Unmarshal([]byte(s), &resp), s)
	return resp
}

// =============================================================================
// VERIFY
// =============================================================================

func TestVerify_KeyFromEnvironment(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()
	t.Setenv(KeyEnv, apitest.DefaultAdminKey)

	r := run(t, srv, "", "verify")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, "Admin key accepted")
	assert.Contains(t, r.out, srv.URL)
	assert.Contains(t, r.out, "not enabled")
	assert.Equal(t, 1, srv.Hits("/admin/verify"))
}

func TestVerify_SecondFactorFromInput(t *testing.T) {
	srv := apitest.NewServer(apitest.WithTOTP("JBSWY3DPEHPK3PXP"))
	defer srv.Close()
	t.Setenv(KeyEnv, apitest.DefaultAdminKey)

	code, err := totp.GenerateCode(srv.TOTPSecret(), time.Now())
	require.NoError(t, err)

	r := run(t, srv, code+"\n", "verify", "--json")
	require.NoError(t, r.err)
	assert.Contains(t, r.stderr, "Authenticator or backup code")

	var data VerifyData
	resp := decode(t, r.out, &data)
	assert.True(t, resp.Success)
	assert.Equal(t, "verify", resp.Command)
	assert.True(t, data.SecondFactor)
	assert.Equal(t, session.Authenticated.String(), data.State)
}

func TestVerify_BackupCode(t *testing.T) {
	srv := apitest.NewServer(apitest.WithTOTP("JBSWY3DPEHPK3PXP"), apitest.WithBackupCodes("abcd-1234"))
	defer srv.Close()
	t.Setenv(KeyEnv, apitest.DefaultAdminKey)

	r := run(t, srv, "abcd-1234\n", "verify")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, "verified")
	assert.Equal(t, 1, srv.Hits("/admin/2fa/verify"))
}

func TestVerify_WrongKey(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()
	t.Setenv(KeyEnv, "sb-admin-wrong")

	r := run(t, srv, "", "verify")
	require.Error(t, r.err)
	var authErr *session.AuthError
	require.True(t, errors.As(r.err, &authErr), "got %T", r.err)
	assert.Equal(t, ExitAuthError, GetExitCode(r.err))
	assert.Contains(t, r.err.Error(), "Authentication failed (1/5)")
}

func TestVerify_NoKeyWithoutTerminal(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()
	t.Setenv(KeyEnv, "")

	r := run(t, srv, "", "verify")
	var tty *TTYRequiredError
	require.True(t, errors.As(r.err, &tty), "got %v", r.err)
	assert.Equal(t, ExitUsageError, GetExitCode(r.err))
	assert.Zero(t, srv.Hits("/admin/verify"))
}

// =============================================================================
// SKILLS
// =============================================================================

func TestSkills_Table(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	t.Setenv(KeyEnv, apitest.DefaultAdminKey)

	r := run(t, srv, "", "skills", "--filter", "active", "--sort", "name-desc")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, "Tide Tables")
	assert.NotContains(t, r.out, "Sentiment Scout")
	assert.Contains(t, r.out, "5 of 6 skills")
	assert.Less(t, strings.Index(r.out, "Tide Tables"), strings.Index(r.out, "Invoice Parser"))
}

func TestSkills_SearchAndCategoryJSON(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	t.Setenv(KeyEnv, apitest.DefaultAdminKey)

	r := run(t, srv, "", "skills", "--category", "finance", "--search", "router", "--json")
	require.NoError(t, r.err)

	var data SkillsData
	decode(t, r.out, &data)
	assert.Equal(t, 6, data.Total)
	require.Len(t, data.Skills, 1)
	assert.Equal(t, "Lightning Router", data.Skills[0].Name)
	assert.Equal(t, "Krakenworks", data.Skills[0].Agent)
	assert.True(t, data.Skills[0].Active)
}

func TestSkills_UnknownFilter(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	t.Setenv(KeyEnv, apitest.DefaultAdminKey)

	r := run(t, srv, "", "skills", "--filter", "dormant")
	var verr *ValidationError
	require.True(t, errors.As(r.err, &verr), "got %v", r.err)
	assert.Contains(t, verr.Reason, "all, active, inactive")
	assert.Equal(t, ExitUsageError, GetExitCode(r.err))
}

// =============================================================================
// EXPORT
// =============================================================================

func TestExport_WritesFile(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	t.Setenv(KeyEnv, apitest.DefaultAdminKey)
	dir := t.TempDir()

	r := run(t, srv, "", "export", "skills", "--format", "json", "--out", dir, "--json")
	require.NoError(t, r.err)

	var data ExportData
	decode(t, r.out, &data)
	assert.Equal(t, "skills", data.Kind)
	assert.Equal(t, 6, data.Rows)
	assert.Equal(t, dir, filepath.Dir(data.Path))
	assert.Equal(t, export.FileName("skills", ".json", time.Now()), filepath.Base(data.Path))

	body, err := os.ReadFile(data.Path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Tide Tables")
}

func TestExport_TransactionsCSVFromConfigDefaults(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	t.Setenv(KeyEnv, apitest.DefaultAdminKey)
	dir := t.TempDir()
	t.Setenv(config.EnvExportDir, dir)

	r := run(t, srv, "", "export", "transactions")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, "Saved")

	matches, err := filepath.Glob(filepath.Join(dir, "squidbay-transactions-*.csv"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
}

func TestExport_BadArguments(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	t.Setenv(KeyEnv, apitest.DefaultAdminKey)

	r := run(t, srv, "", "export", "invoices")
	var verr *ValidationError
	require.True(t, errors.As(r.err, &verr), "got %v", r.err)

	r = run(t, srv, "", "export", "skills", "--format", "xlsx")
	require.ErrorIs(t, r.err, export.ErrUnsupportedFormat)
	assert.Equal(t, ExitUsageError, GetExitCode(r.err))
	assert.Zero(t, srv.Hits("/admin/verify"), "arguments are checked before login")
}

// =============================================================================
// CONFIG AND ROOT
// =============================================================================

func TestConfig_ShowAndPath(t *testing.T) {
	r := run(t, nil, "", "config", "show")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, "base_url")
	assert.Contains(t, r.out, config.DefaultBaseURL)

	r = run(t, nil, "", "config", "path", "--json")
	require.NoError(t, r.err)
	var data ConfigPathData
	decode(t, r.out, &data)
	assert.Equal(t, "config.toml", filepath.Base(data.Path))
	assert.False(t, data.Exists)
}

func TestConfig_ExplicitFileAndInvalidValues(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.toml")
	require.NoError(t, os.WriteFile(good, []byte("[ui]\ntheme = \"light\"\n"), 0o600))

	r := run(t, nil, "", "--config", good, "config", "show")
	require.NoError(t, r.err)
	assert.Contains(t, r.out, `theme = "light"`)

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[session]\nmax_attempts = -3\n"), 0o600))
	r = run(t, nil, "", "--config", bad, "config", "show")
	require.Error(t, r.err)
	assert.Equal(t, ExitConfigError, GetExitCode(r.err))
}

func TestRoot_StartsConsoleWithConfig(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()

	a := newTestApp(t, "")
	var got console.Options
	a.RunConsole = func(ctx context.Context, opts console.Options) error {
		got = opts
		return nil
	}
	r := runApp(t, a, srv)
	require.NoError(t, r.err)
	require.NotNil(t, got.Controller)
	assert.Equal(t, strings.TrimPrefix(srv.URL, "http://"), got.Host)
	assert.Equal(t, export.FormatCSV, got.ExportFormat)
	assert.Empty(t, got.ConfigPath, "no file to watch yet")
	assert.Equal(t, session.LoggedOut, got.Controller.State())
}

func TestVersion(t *testing.T) {
	r := run(t, nil, "", "version", "--json")
	require.NoError(t, r.err)
	var data VersionData
	decode(t, r.out, &data)
	assert.Equal(t, Version, data.Version)
}

// =============================================================================
// EXIT CODES
// =============================================================================

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitSuccess},
		{errors.New("boom"), ExitGeneralError},
		{NewValidationError("sort", "x", "unknown"), ExitUsageError},
		{&session.LockedError{Remaining: time.Minute}, ExitAuthError},
		{fmt.Errorf("wrapped: %w", &session.SessionExpiredError{Reason: session.ReasonUnauthorized}), ExitAuthError},
		{&apiclient.NetworkError{Op: "GET /skills", Err: errors.New("refused")}, ExitNetworkError},
		{&apiclient.NetworkError{Op: "GET /skills", Err: context.DeadlineExceeded}, ExitTimeoutError},
		{&apiclient.APIError{Status: 404, Message: "skill not found"}, ExitNotFoundError},
		{config.ValidateErrors{{Field: "api.base_url", Message: "required"}}, ExitConfigError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GetExitCode(tt.err), "%v", tt.err)
	}
}

func TestDisplayError_JSON(t *testing.T) {
	var buf bytes.Buffer
	DisplayError(&buf, "squidops skills", NewValidationError("filter", "x", "unknown"), true)
	resp := decode(t, buf.String(), nil)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "validation_error", resp.ErrorType)
	assert.Equal(t, "squidops skills", resp.Command)
}
