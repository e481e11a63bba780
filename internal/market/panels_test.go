// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package market

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/squidbay/squidops-tui/internal/apitest"
	"github.com/squidbay/squidops-tui/internal/listview"
	"github.com/squidbay/squidops-tui/internal/session"
)

// =============================================================================
// KEYS
// =============================================================================

func TestKeys_LoadAndFilter(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	k := NewKeys(newBackend(t, srv))
	require.NoError(t, k.Load(context.Background()))

	key, ok := k.Item("a1b2c3d4-0002")
	require.True(t, ok)
	require.Equal(t, "9c8b7a6f5e4d", key.Prefix, "hash is cut to a prefix")
	require.True(t, key.PendingRecovery)

	require.NoError(t, k.SetFilter("recovery"))
	require.Len(t, k.Visible(), 1)
	require.Equal(t, 2, k.Count("active"))

	require.NoError(t, k.SetFilter("all"))
	require.NoError(t, k.SetSort("rotated-desc"))
	require.Equal(t, "a1b2c3d4-0001", k.Visible()[0].AgentID)
}

func TestKeys_Rotate(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	b := newBackend(t, srv)
	k := NewKeys(b, WithClock(fixedNow))
	ctx := context.Background()
	require.NoError(t, k.Load(ctx))

	newKey, err := k.Rotate(ctx, "a1b2c3d4-0002")
	require.NoError(t, err)
	require.Empty(t, newKey, "the fake API only discloses the prefix")

	key, _ := k.Item("a1b2c3d4-0002")
	require.True(t, strings.HasPrefix(key.Prefix, "sbk_"))
	require.False(t, key.PendingRecovery)
	require.Equal(t, fixedNow(), key.RotatedAt)
	require.Equal(t, `Rotated key for agent "Dragline" (a1b2c3d4-0002)`, b.lastAudit(t).Detail)
}

func TestKeys_ResetAdminKeyEndsSession(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	b := newBackend(t, srv)
	k := NewKeys(b)
	ctx := context.Background()

	key, err := k.ResetAdminKey(ctx)
	require.NoError(t, err)
	require.Equal(t, srv.AdminKey(), key)
	require.Equal(t, "reset_admin_key", b.lastAudit(t).Action)

	err = k.Load(ctx)
	require.True(t, session.IsSessionExpired(err), "old key is revoked: %v", err)
}

// =============================================================================
// DASHBOARD
// =============================================================================

func TestDashboard_Counts(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	o := NewOverview(newBackend(t, srv))
	require.NoError(t, o.Load(context.Background()))

	d, ok := o.Dashboard()
	require.True(t, ok)
	want := Dashboard{
		Skills:           5,
		ActiveSkills:     5,
		Agents:           4,
		VerifiedAgents:   2,
		Jobs:             152,
		Reviews:          14,
		EstimatedFeeSats: 304,
		AverageTrust:     77,
		Scheduler:        &Scheduler{Active: true, DailyPosts: 3, DailyReplies: 12},
	}
	if diff := cmp.Diff(want, d); diff != "" {
		t.Errorf("dashboard mismatch (-want +got):\n%s", diff)
	}
}

func TestDashboard_SchedulerOptional(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	srv.Disable("/scheduler/status", http.StatusBadGateway)

	d, err := FetchDashboard(context.Background(), newBackend(t, srv))
	require.NoError(t, err)
	require.Nil(t, d.Scheduler)
	require.Equal(t, 5, d.Skills)
}

// =============================================================================
// SECURITY
// =============================================================================

func TestLevelOf(t *testing.T) {
	cases := map[int]TrustLevel{-1: TrustUnknown, 0: TrustPoor, 59: TrustPoor, 60: TrustFair, 84: TrustFair, 85: TrustGood, 100: TrustGood}
	for trust, want := range cases {
		require.Equal(t, want, LevelOf(trust), "trust %d", trust)
	}
}

func TestSecurity_Report(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	s := NewSecurity(newBackend(t, srv))
	require.NoError(t, s.Load(context.Background()))

	r, ok := s.Report()
	require.True(t, ok)
	require.True(t, r.Available)
	require.Equal(t, 1, r.ActiveThreats)
	require.Equal(t, 77, r.PlatformTrust())
	require.Len(t, r.History, 2)
	require.Equal(t, 100, r.History[0].Trust())
	require.Equal(t, r.History[0].ScannedAt, r.LastScanAt)
	require.Equal(t, "Invoice Parser", r.Threats[0].Target)
	require.NotEmpty(t, r.Raw)
}

func TestSecurity_ReportUnavailable(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	srv.Disable("/admin/security/report", http.StatusInternalServerError)

	r, err := FetchSecurity(context.Background(), newBackend(t, srv))
	require.NoError(t, err)
	require.False(t, r.Available)
	require.Equal(t, -1, r.PlatformTrust())
	require.Len(t, r.History, 2, "history loads independently")
}

func TestSecurity_FullScanAndAuditLog(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	b := newBackend(t, srv)
	s := NewSecurity(b)
	ctx := context.Background()

	sum, err := s.FullScan(ctx)
	require.NoError(t, err)
	require.Equal(t, ScanSummary{Scanned: 6, Threats: 1, Message: "Scanned 6 skills. 1 threats detected."}, sum)
	require.Equal(t, "full_platform_scan", b.lastAudit(t).Action)

	require.Eventually(t, func() bool {
		entries, err := s.AuditLog(ctx)
		return err == nil && len(entries) > 0 && entries[0].Action == "full_platform_scan"
	}, 2*time.Second, 20*time.Millisecond)
}

// =============================================================================
// SETTINGS
// =============================================================================

func TestSettings_DefaultsWhenEndpointMissing(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()
	srv.Disable("/admin/settings", http.StatusNotFound)
	s := NewSettings(newBackend(t, srv))

	require.NoError(t, s.Load(context.Background()))
	p, ok := s.Current()
	require.True(t, ok)
	require.Equal(t, DefaultMaxPostsPerDay, p.MaxPostsPerDay)
	require.Equal(t, DefaultMaxRepliesPerDay, p.MaxRepliesPerDay)
	require.Empty(t, p.MaskedToken())
}

func TestSettings_Cloudflare(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()
	b := newBackend(t, srv)
	s := NewSettings(b)
	ctx := context.Background()

	require.ErrorAs(t, s.SaveCloudflare(ctx, " ", ""), new(*listview.ValidationError))

	require.NoError(t, s.SaveCloudflare(ctx, "cf-secret-token-abcd", "zone-1"))
	require.Equal(t, "cf-secret-token-abcd", srv.Settings()["cloudflare_token"])
	require.Equal(t, apitest.AuditEntry{Action: "save_cf_config", Detail: "Updated Cloudflare config"}, b.lastAudit(t))

	require.NoError(t, s.Load(ctx))
	p, _ := s.Current()
	require.Equal(t, "****abcd", p.MaskedToken())

	// Saving with the masked value keeps the stored token.
	require.NoError(t, s.SaveCloudflare(ctx, p.MaskedToken(), "zone-2"))
	require.Equal(t, "cf-secret-token-abcd", srv.Settings()["cloudflare_token"])
	require.Equal(t, "zone-2", srv.Settings()["cloudflare_zone_id"])
}

func TestSettings_Scheduler(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()
	b := newBackend(t, srv)
	s := NewSettings(b)
	ctx := context.Background()

	require.ErrorAs(t, s.SaveScheduler(ctx, 21, 5), new(*listview.ValidationError))
	require.ErrorAs(t, s.SaveScheduler(ctx, 5, -1), new(*listview.ValidationError))
	require.Zero(t, srv.Hits("/admin/scheduler/config"))

	require.NoError(t, s.SaveScheduler(ctx, 5, 20))
	require.Equal(t, "Updated scheduler: 5 posts, 20 replies", b.lastAudit(t).Detail)
	require.NoError(t, s.Load(ctx))
	p, _ := s.Current()
	require.Equal(t, 5, p.MaxPostsPerDay)
	require.Equal(t, 20, p.MaxRepliesPerDay)
}

func TestSettings_TwoFactorEnrollment(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()
	b := newBackend(t, srv)
	s := NewSettings(b)
	ctx := context.Background()

	require.ErrorAs(t, s.EnableTwoFactor(ctx, "123456"), new(*listview.ValidationError), "setup comes first")

	setup, err := s.SetupTwoFactor(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, setup.Secret())
	require.True(t, strings.HasPrefix(setup.URL(), "otpauth://totp/"))

	require.ErrorAs(t, s.EnableTwoFactor(ctx, "12a456"), new(*listview.ValidationError))

	stale, err := totp.GenerateCode(setup.Secret(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.ErrorAs(t, s.EnableTwoFactor(ctx, stale), new(*listview.ActionError))
	require.Equal(t, session.Authenticated, b.State(), "a wrong enrollment code is not an auth failure")
	require.Empty(t, srv.TOTPSecret())

	code, err := totp.GenerateCode(setup.Secret(), time.Now())
	require.NoError(t, err)
	require.NoError(t, s.EnableTwoFactor(ctx, code))
	require.Equal(t, setup.Secret(), srv.TOTPSecret())
	require.Nil(t, s.Pending())
	require.Equal(t, "enable_2fa", b.lastAudit(t).Action)

	codes, err := s.RegenerateBackupCodes(ctx)
	require.NoError(t, err)
	require.Len(t, codes, 8)

	require.NoError(t, s.DisableTwoFactor(ctx))
	require.Empty(t, srv.TOTPSecret())
	require.Equal(t, "disable_2fa", b.lastAudit(t).Action)
}

func TestParseSetup_SecretOnly(t *testing.T) {
	key, err := parseSetup("JBSWY3DPEHPK3PXP", "https://api.example/qr.png")
	require.NoError(t, err)
	require.Equal(t, "JBSWY3DPEHPK3PXP", key.Secret())
	require.Equal(t, "SquidBay", key.Issuer())

	_, err = parseSetup("", "")
	require.Error(t, err)
}

// =============================================================================
// REPORTS
// =============================================================================

func TestReports_PlatformSummary(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	b := newBackend(t, srv)
	dir := t.TempDir()
	r := NewReports(b, dir, WithClock(fixedNow))

	res, err := r.Generate(context.Background(), ReportPlatformSummary)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "squidbay-platform-summary-2025-07-04.json"), res.Path)
	require.Equal(t, "Summary generated: 5 skills, 4 agents, 152 jobs.", res.Message)
	require.Equal(t, "Downloaded squidbay-platform-summary-2025-07-04.json", b.lastAudit(t).Detail)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	var got platformSummary
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, 3, got.Totals.AgentsWithSkills)
	require.Equal(t, []string{"utilities", "finance", "nlp", "data"}, got.Categories)
	names := ids(got.RecentSkills, func(s recentSkill) string { return s.Name })
	require.Equal(t, []string{"Lightning Router", "Tide Tables", "éclair summarizer", "Invoice Parser", "Drag-and-Drop Uploader"}, names)
}

func TestReports_FullExport(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	r := NewReports(newBackend(t, srv), t.TempDir(), WithClock(fixedNow))

	res, err := r.Generate(context.Background(), ReportFullExport)
	require.NoError(t, err)
	require.Equal(t, "Full export: 6 skills, 4 agents, 4 transactions, 4 reviews.", res.Message)
	require.True(t, strings.HasSuffix(res.Path, "squidbay-full-export-2025-07-04.json"))
}

func TestReports_EmptyTransactionsWritesNothing(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()
	b := newBackend(t, srv)
	r := NewReports(b, t.TempDir(), WithClock(fixedNow))

	res, err := r.Generate(context.Background(), ReportTransactions)
	require.NoError(t, err)
	require.Empty(t, res.Path)
	require.Equal(t, "No transactions to export.", res.Message)
	require.Zero(t, b.auditCount())
}

func TestReports_AgentComplianceAndAuditLog(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	dir := t.TempDir()
	r := NewReports(newBackend(t, srv), dir, WithClock(fixedNow))
	ctx := context.Background()

	res, err := r.Generate(ctx, ReportAgentCompliance)
	require.NoError(t, err)
	require.Equal(t, "Compliance report for 4 agents downloaded.", res.Message)

	res, err = r.Generate(ctx, ReportAuditLog)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(res.Message, "Audit log downloaded ("))

	_, err = r.Generate(ctx, "nonsense")
	require.ErrorContains(t, err, "unknown report")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}
