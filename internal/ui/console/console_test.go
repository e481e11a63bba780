// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package console

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/squidbay/squidops-tui/internal/apiclient"
	"github.com/squidbay/squidops-tui/internal/apitest"
	"github.com/squidbay/squidops-tui/internal/market"
	"github.com/squidbay/squidops-tui/internal/session"
)

func TestMain(m *testing.M) {
	lipgloss.SetColorProfile(termenv.Ascii)
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

const testSecret = "JBSWY3DPEHPK3PXP"

var fixedNow = func() time.Time { return time.Date(2025, 7, 4, 12, 0, 0, 0, time.UTC) }

// =============================================================================
// HARNESS
// =============================================================================

func newTestModel(t *testing.T, srv *apitest.Server, cfg session.Config) *Model {
	t.Helper()
	api := apiclient.New(srv.URL, apiclient.WithRateLimit(0), apiclient.WithMaxRetries(0))
	ctrl := session.New(api, cfg)
	t.Cleanup(func() { ctrl.Close() })

	m, err := New(context.Background(), Options{
		Controller: ctrl,
		Host:       "fake",
		Theme:      "dark",
		ExportDir:  t.TempDir(),
		Now:        fixedNow,
	})
	require.NoError(t, err)
	m.timers = false
	m.Update(tea.WindowSizeMsg{Width: 140, Height: 40})
	drive(t, m, m.Init())
	return m
}

// drive runs cmd and every command that follows from it.
func drive(t *testing.T, m *Model, cmd tea.Cmd) {
	t.Helper()
	queue := []tea.Cmd{cmd}
	for steps := 0; len(queue) > 0; steps++ {
		require.Less(t, steps, 1000, "command loop did not settle")
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		switch msg := c().(type) {
		case nil, tea.QuitMsg:
		case tea.BatchMsg:
			queue = append(queue, msg...)
		default:
			_, next := m.Update(msg)
			queue = append(queue, next)
		}
	}
}

func press(t *testing.T, m *Model, k tea.KeyType) {
	t.Helper()
	_, cmd := m.Update(tea.KeyMsg{Type: k})
	drive(t, m, cmd)
}

func typeText(t *testing.T, m *Model, s string) {
	t.Helper()
	for _, r := range s {
		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		drive(t, m, cmd)
	}
}

func login(t *testing.T, m *Model) {
	t.Helper()
	typeText(t, m, apitest.DefaultAdminKey)
	press(t, m, tea.KeyEnter)
	require.True(t, m.authed, "login failed: %s", m.login.err)
}

// =============================================================================
// LOGIN
// =============================================================================

func TestLogin_KeyOnly(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	m := newTestModel(t, srv, session.Config{})

	require.False(t, m.authed)
	require.Contains(t, m.View(), "Admin key")

	typeText(t, m, apitest.DefaultAdminKey)
	require.NotContains(t, m.View(), apitest.DefaultAdminKey, "key is echoed masked")

	press(t, m, tea.KeyEnter)
	require.True(t, m.authed)
	require.Equal(t, "dashboard", m.loader.Active())

	view := m.View()
	require.Contains(t, view, "AUTHENTICATED")
	require.Contains(t, view, "skills active")
	require.Contains(t, view, "2 Skills", "sidebar lists numbered tabs")
}

func TestLogin_SecondFactorWithBackupCode(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed(), apitest.WithTOTP(testSecret), apitest.WithBackupCodes("abcd-1234"))
	defer srv.Close()
	m := newTestModel(t, srv, session.Config{})

	login := func() {
		typeText(t, m, apitest.DefaultAdminKey)
		press(t, m, tea.KeyEnter)
	}
	login()
	require.False(t, m.authed)
	require.Equal(t, session.SecondFactorPending, m.snap.State)
	require.Contains(t, m.View(), "authenticator app")

	wrong := "000000"
	if good, _ := totp.GenerateCode(testSecret, time.Now()); good == wrong {
		wrong = "111111"
	}
	typeText(t, m, wrong)
	press(t, m, tea.KeyEnter)
	require.Equal(t, "Invalid code (1/5)", m.login.err)
	require.Contains(t, m.View(), "4 attempts left before lockout")

	// Tab switches to a backup code.
	press(t, m, tea.KeyTab)
	require.True(t, m.login.backup)
	require.Contains(t, m.View(), "backup codes")

	typeText(t, m, "abcd-1234")
	press(t, m, tea.KeyEnter)
	require.True(t, m.authed)
	require.Equal(t, "dashboard", m.loader.Active())
}

func TestLogin_CancelSecondFactor(t *testing.T) {
	srv := apitest.NewServer(apitest.WithTOTP(testSecret))
	defer srv.Close()
	m := newTestModel(t, srv, session.Config{})

	typeText(t, m, apitest.DefaultAdminKey)
	press(t, m, tea.KeyEnter)
	require.Equal(t, session.SecondFactorPending, m.snap.State)

	press(t, m, tea.KeyEsc)
	require.Equal(t, session.LoggedOut, m.snap.State)
	require.Contains(t, m.View(), "Admin key")
}

func TestLogin_Lockout(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()
	m := newTestModel(t, srv, session.Config{MaxAttempts: 2, LockoutDuration: time.Minute})

	typeText(t, m, "wrong")
	press(t, m, tea.KeyEnter)
	require.Equal(t, "Authentication failed (1/2)", m.login.err)
	require.Empty(t, m.login.key.Value(), "a rejected key is cleared")

	typeText(t, m, "wrong")
	press(t, m, tea.KeyEnter)
	require.Equal(t, session.LockedOut, m.snap.State)
	require.Contains(t, m.View(), "Too many failed attempts. Try again in")

	// Enter is ignored while locked, even with the right key.
	typeText(t, m, apitest.DefaultAdminKey)
	press(t, m, tea.KeyEnter)
	require.False(t, m.authed)
	require.Equal(t, 2, srv.Hits("/admin/verify"))
}

// =============================================================================
// SESSION END
// =============================================================================

func TestLogout(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	m := newTestModel(t, srv, session.Config{})
	login(t, m)

	press(t, m, tea.KeyCtrlL)
	require.False(t, m.authed)
	require.Equal(t, session.ReasonLogout, m.endReason)
	view := m.View()
	require.Contains(t, view, "Admin key")
	require.NotContains(t, view, "Session expired")
}

func TestUnauthorizedReturnsToLogin(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	m := newTestModel(t, srv, session.Config{})
	login(t, m)

	srv.RotateAdminKey("sb-admin-elsewhere")
	typeText(t, m, "5") // transactions: admin only
	require.False(t, m.authed)
	require.Equal(t, session.ReasonUnauthorized, m.endReason)
	require.Contains(t, m.View(), "Session expired")
}

func TestResetAdminKeyRevealsThenLogsOut(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	m := newTestModel(t, srv, session.Config{})
	login(t, m)

	typeText(t, m, "6")
	require.Equal(t, "keys", m.loader.Active())
	typeText(t, m, "R")
	require.NotNil(t, m.modal)
	require.Contains(t, m.View(), "Reset admin key")

	press(t, m, tea.KeyEnter)
	require.NotNil(t, m.modal, "new key is revealed")
	require.Contains(t, m.View(), srv.AdminKey())
	require.True(t, m.authed)

	press(t, m, tea.KeyEnter)
	require.Nil(t, m.modal)
	require.False(t, m.authed)
	require.Contains(t, m.View(), "Admin key")
}

// =============================================================================
// LIST PANELS
// =============================================================================

func TestSkills_SearchAndDeactivate(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	m := newTestModel(t, srv, session.Config{})
	login(t, m)

	typeText(t, m, "2")
	require.Equal(t, "skills", m.loader.Active())
	require.Contains(t, m.View(), "Tide Tables")
	require.Contains(t, m.View(), "6 of 6")

	typeText(t, m, "/")
	require.True(t, m.searching)
	typeText(t, m, "tide")
	press(t, m, tea.KeyEnter)
	require.False(t, m.searching)
	view := m.View()
	require.Contains(t, view, `Search: "tide"`)
	require.Contains(t, view, "1 of 6")
	require.NotContains(t, view, "Invoice Parser")

	typeText(t, m, "d")
	require.NotNil(t, m.modal)
	require.Contains(t, m.View(), "Deactivate Tide Tables")

	press(t, m, tea.KeyEnter)
	require.NotNil(t, m.modal, "a reason is required")
	require.Contains(t, m.View(), "reason is required")

	typeText(t, m, "stale data")
	press(t, m, tea.KeyEnter)
	require.Nil(t, m.modal)
	require.False(t, isActiveRecord(srv.Skill("105")))
	require.Contains(t, m.notice.Message, "Deactivated Tide Tables")

	// The row stays and can be reactivated.
	typeText(t, m, "a")
	require.True(t, isActiveRecord(srv.Skill("105")))
}

func isActiveRecord(r apitest.Record) bool {
	switch v := r["is_active"].(type) {
	case bool:
		return v
	case int:
		return v != 0
	case float64:
		return v != 0
	}
	return false
}

func TestSkills_FilterSortAndEscClearsSearch(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	m := newTestModel(t, srv, session.Config{})
	login(t, m)
	typeText(t, m, "2")

	p, ok := m.active()
	require.True(t, ok)
	lp := p.(*listPanel[market.Skill])

	typeText(t, m, "f") // all -> active
	require.Equal(t, "active", lp.list.State().Filter)
	require.Contains(t, m.View(), "Filter: Active (5)")

	typeText(t, m, "s") // name-asc -> name-desc
	require.Equal(t, "name-desc", lp.list.State().Sort)
	require.Equal(t, "Tide Tables", lp.list.Visible()[0].Name)

	typeText(t, m, "/")
	typeText(t, m, "router")
	require.Len(t, lp.list.Visible(), 1, "filters as you type")
	press(t, m, tea.KeyEsc)
	require.Empty(t, lp.list.State().Search)
	require.Len(t, lp.list.Visible(), 5)
}

func TestSkills_Export(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	m := newTestModel(t, srv, session.Config{})
	login(t, m)
	typeText(t, m, "2")

	typeText(t, m, "e")
	want := filepath.Join(m.opts.ExportDir, "squidbay-skills-2025-07-04.csv")
	require.FileExists(t, want)
	require.Contains(t, m.notice.Message, want)

	data, err := os.ReadFile(want)
	require.NoError(t, err)
	require.Contains(t, string(data), "Lightning Router")
}

// =============================================================================
// TABS AND LAYOUT
// =============================================================================

func TestTabs_CycleAndStaleLoad(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	m := newTestModel(t, srv, session.Config{})
	login(t, m)

	stale := m.loader.Epoch()
	press(t, m, tea.KeyTab)
	require.Equal(t, "skills", m.loader.Active())
	press(t, m, tea.KeyShiftTab)
	press(t, m, tea.KeyShiftTab)
	require.Equal(t, "github", m.loader.Active(), "wraps to the last tab")

	// A late failure from a superseded activation is dropped.
	m.Update(loadedMsg{tab: "dashboard", epoch: stale, err: errors.New("boom")})
	require.True(t, m.notice.IsZero())
}

func TestLayout_NarrowDrawer(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	m := newTestModel(t, srv, session.Config{})
	login(t, m)

	m.Update(tea.WindowSizeMsg{Width: 50, Height: 30})
	require.NotContains(t, m.View(), "4 Reviews", "no sidebar when narrow")

	press(t, m, tea.KeyCtrlB)
	require.True(t, m.loader.DrawerOpen())
	require.Contains(t, m.View(), "4 Reviews")

	typeText(t, m, "4")
	require.Equal(t, "reviews", m.loader.Active())
	require.False(t, m.loader.DrawerOpen(), "selecting a tab closes the drawer")
}

func TestMouse_CountsAsActivity(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	m := newTestModel(t, srv, session.Config{IdleTimeout: 300 * time.Millisecond})
	login(t, m)

	for range 8 {
		_, cmd := m.Update(tea.MouseMsg{X: 10, Y: 10, Type: tea.MouseMotion})
		drive(t, m, cmd)
		time.Sleep(75 * time.Millisecond)
	}
	require.Equal(t, session.Authenticated, m.ctrl.State(), "pointer movement keeps the session alive")

	require.Eventually(t, func() bool { return m.ctrl.State() == session.LoggedOut },
		2*time.Second, 20*time.Millisecond, "idle timer still fires without input")
}

func TestMouse_WheelScrollsList(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	m := newTestModel(t, srv, session.Config{})
	login(t, m)
	typeText(t, m, "2")

	p, ok := m.active()
	require.True(t, ok)
	lp := p.(*listPanel[market.Skill])
	require.Zero(t, lp.cursor)

	m.Update(tea.MouseMsg{Type: tea.MouseWheelDown})
	m.Update(tea.MouseMsg{Type: tea.MouseWheelDown})
	require.Equal(t, 2, lp.cursor)
	m.Update(tea.MouseMsg{Type: tea.MouseWheelUp})
	require.Equal(t, 1, lp.cursor)
}

func TestMouse_IgnoredBeforeLogin(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	m := newTestModel(t, srv, session.Config{})

	_, cmd := m.Update(tea.MouseMsg{Type: tea.MouseWheelDown})
	require.Nil(t, cmd)
	require.False(t, m.authed)
}

// =============================================================================
// OPERATIONS TABS
// =============================================================================

func TestAnalytics_PeriodKeyReloads(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	m := newTestModel(t, srv, session.Config{})
	login(t, m)

	drive(t, m, m.selectTab("analytics"))
	view := m.View()
	require.Contains(t, view, "unique visitors")
	require.Contains(t, view, "Top countries")
	require.Equal(t, 1, srv.Hits("/admin/cloudflare/analytics"))

	typeText(t, m, "p")
	p, ok := m.active()
	require.True(t, ok)
	require.Equal(t, "7d", p.(*analyticsPanel).Period())
	require.Equal(t, 2, srv.Hits("/admin/cloudflare/analytics"))
	tr, _ := p.(*analyticsPanel).Traffic()
	require.EqualValues(t, 120500, tr.Requests)
}

func TestAnalytics_NotConfiguredPointsToSettings(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()
	m := newTestModel(t, srv, session.Config{})
	login(t, m)

	drive(t, m, m.selectTab("analytics"))
	require.Contains(t, m.View(), "Cloudflare analytics is not configured")
	require.True(t, m.notice.IsZero(), "missing credentials are not an error")

	typeText(t, m, "w")
	require.Equal(t, "settings", m.loader.Active())
}

func TestInfra_ShowsHealthAndDeploy(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	m := newTestModel(t, srv, session.Config{})
	login(t, m)

	drive(t, m, m.selectTab("infra"))
	view := m.View()
	require.Contains(t, view, "ALL SYSTEMS UP")
	require.Contains(t, view, "2.14.0")
	require.Contains(t, view, "212MB")
	require.Contains(t, view, "X Status")
}

func TestGitHub_AckFromList(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	m := newTestModel(t, srv, session.Config{})
	login(t, m)

	drive(t, m, m.selectTab("github"))
	view := m.View()
	require.Contains(t, view, "Tide data stale")
	require.Contains(t, view, "2 unread")

	press(t, m, tea.KeyDown)
	typeText(t, m, "a")
	require.Equal(t, true, srv.Issue("9001")["acknowledged"])
	require.Contains(t, m.notice.Message, "Issue #42 marked read")
	require.Contains(t, m.View(), "1 unread")
}

// =============================================================================
// SETTINGS
// =============================================================================

func TestParseLimits(t *testing.T) {
	tests := []struct {
		in      string
		posts   int
		replies int
		wantErr bool
	}{
		{"3 10", 3, 10, false},
		{"3,10", 3, 10, false},
		{"  0   0 ", 0, 0, false},
		{"3", 0, 0, true},
		{"a 10", 0, 0, true},
		{"3 b", 0, 0, true},
	}
	for _, tt := range tests {
		posts, replies, err := parseLimits(tt.in)
		if tt.wantErr {
			require.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.posts, posts)
		require.Equal(t, tt.replies, replies)
	}
}

func TestSettings_Scheduler(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	m := newTestModel(t, srv, session.Config{})
	login(t, m)
	typeText(t, m, "9")
	require.Contains(t, m.View(), "Posts per day")

	typeText(t, m, "z")
	require.NotNil(t, m.modal)
	// Replace the prefilled value.
	for range 10 {
		press(t, m, tea.KeyBackspace)
	}
	typeText(t, m, "99 1")
	press(t, m, tea.KeyEnter)
	require.Nil(t, m.modal, "range errors come from the panel")
	require.Equal(t, 0, srv.Hits("/admin/scheduler/config"))
	require.Contains(t, m.notice.Message, "20")

	typeText(t, m, "z")
	for range 10 {
		press(t, m, tea.KeyBackspace)
	}
	typeText(t, m, "5 12")
	press(t, m, tea.KeyEnter)
	require.Equal(t, 1, srv.Hits("/admin/scheduler/config"))
	require.Contains(t, m.View(), "Replies per day")
}
