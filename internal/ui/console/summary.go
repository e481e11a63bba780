// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package console

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/squidbay/squidops-tui/internal/market"
	"github.com/squidbay/squidops-tui/internal/ui/styles"
	"github.com/squidbay/squidops-tui/internal/util"
)

// =============================================================================
// DASHBOARD
// =============================================================================

type dashboardPanel struct {
	*market.Overview
}

func newDashboardPanel(m *Model) *dashboardPanel {
	return &dashboardPanel{Overview: market.NewOverview(m.backend)}
}

func (p *dashboardPanel) handleKey(*Model, tea.KeyMsg) (tea.Cmd, bool) { return nil, false }

func (p *dashboardPanel) shortcuts(k KeyMap) []key.Binding { return k.GlobalHelp() }

func statCard(t *styles.Theme, label, value string) string {
	return t.StatCard.Render(t.StatValue.Render(value) + "\n" + t.StatLabel.Render(label))
}

// wrapCards lays cards out on as many rows as width needs.
func wrapCards(cards []string, width int) []string {
	var rows []string
	var row []string
	used := 0
	for _, c := range cards {
		w := lipgloss.Width(c)
		if len(row) > 0 && used+w > width {
			rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
			row, used = nil, 0
		}
		row = append(row, c)
		used += w
	}
	return append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
}

func (p *dashboardPanel) view(m *Model, width, _ int) string {
	t := m.theme
	d, ok := p.Dashboard()
	if !ok {
		return t.Empty.Render("Loading dashboard...")
	}
	trust := "n/a"
	if d.AverageTrust >= 0 {
		trust = strconv.Itoa(d.AverageTrust)
	}
	cards := []string{
		statCard(t, "skills active", fmt.Sprintf("%d / %d", d.ActiveSkills, d.Skills)),
		statCard(t, "agents verified", fmt.Sprintf("%d / %d", d.VerifiedAgents, d.Agents)),
		statCard(t, "jobs completed", util.FormatCount(d.Jobs)),
		statCard(t, "reviews", util.FormatCount(d.Reviews)),
		statCard(t, "est. fees", util.FormatSats(d.EstimatedFeeSats)),
		statCard(t, "avg trust", trust),
	}
	rows := wrapCards(cards, width)

	sched := t.StatLabel.Render("Marketing scheduler: unavailable")
	if s := d.Scheduler; s != nil {
		state := t.BadgeMuted.Render("PAUSED")
		if s.Active {
			state = t.BadgeSuccess.Render("ACTIVE")
		}
		sched = fmt.Sprintf("Marketing scheduler %s  %d posts/day, %d replies/day", state, s.DailyPosts, s.DailyReplies)
	}
	rows = append(rows, "", sched)
	return strings.Join(rows, "\n")
}

// =============================================================================
// SECURITY
// =============================================================================

type securityPanel struct {
	*market.Security
	audit []market.AuditEntry
}

func newSecurityPanel(m *Model) *securityPanel {
	return &securityPanel{Security: market.NewSecurity(m.backend, m.marketOpts()...)}
}

var (
	keyFullScan = bind("n", "n", "scan all skills")
	keyAuditLog = bind("l", "l", "audit log")
)

func (p *securityPanel) shortcuts(k KeyMap) []key.Binding {
	return []key.Binding{keyFullScan, keyAuditLog, k.NextTab, k.Logout}
}

func (p *securityPanel) handleKey(m *Model, msg tea.KeyMsg) (tea.Cmd, bool) {
	switch {
	case key.Matches(msg, keyFullScan):
		return m.act(func(ctx context.Context) actionDoneMsg {
			sum, err := p.FullScan(ctx)
			if err != nil {
				return actionDoneMsg{err: err}
			}
			return actionDoneMsg{message: sum.Message}
		}), true
	case key.Matches(msg, keyAuditLog):
		return m.act(func(ctx context.Context) actionDoneMsg {
			entries, err := p.AuditLog(ctx)
			if err != nil {
				return actionDoneMsg{err: err}
			}
			return actionDoneMsg{after: func(*Model) tea.Cmd {
				p.audit = entries
				return nil
			}}
		}), true
	}
	return nil, false
}

func (p *securityPanel) view(m *Model, width, height int) string {
	t := m.theme
	r, ok := p.Report()
	if !ok {
		return t.Empty.Render("Loading security report...")
	}
	var lines []string
	if r.Available {
		last := "never"
		if !r.LastScanAt.IsZero() {
			last = r.LastScanAt.Local().Format("2006-01-02 15:04")
		}
		lines = append(lines,
			t.Label.Render("Platform trust")+styles.RenderTrust(r.PlatformTrust(), 20),
			t.Label.Render("Active threats")+t.Value.Render(strconv.Itoa(r.ActiveThreats)),
			t.Label.Render("Last full scan")+t.Value.Render(last))
	} else {
		lines = append(lines, styles.RenderWarning("Security report unavailable"))
	}

	if len(r.Threats) > 0 {
		lines = append(lines, "", t.PanelTitle.Render("Threats"))
		for _, th := range r.Threats {
			lines = append(lines, util.TruncateWidth(fmt.Sprintf("[%s] %s %s: %s", th.Severity, th.Type, th.Target, th.Description), width))
		}
	}
	if len(r.History) > 0 {
		lines = append(lines, "", t.PanelTitle.Render("Recent scans"))
		limit := max(height-len(lines)-len(p.audit)-4, 3)
		for i, s := range r.History {
			if i >= limit {
				break
			}
			lines = append(lines, fmt.Sprintf("%s %s %s %s",
				util.PadRight(util.TruncateWidth(s.SkillName, 28), 28),
				util.PadRight(s.Result, 8),
				styles.RenderTrust(s.Trust(), 0),
				t.StatLabel.Render(dateCell(s.ScannedAt))))
		}
	}
	if len(p.audit) > 0 {
		lines = append(lines, "", t.PanelTitle.Render("Audit log"))
		for _, e := range p.audit {
			lines = append(lines, util.TruncateWidth(
				dateCell(e.CreatedAt)+" "+util.PadRight(e.Action, 22)+" "+util.SingleLine(e.Detail), width))
		}
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// SETTINGS
// =============================================================================

type settingsPanel struct {
	*market.Settings
}

func newSettingsPanel(m *Model) *settingsPanel {
	return &settingsPanel{Settings: market.NewSettings(m.backend, m.marketOpts()...)}
}

var (
	keySetup2FA    = bind("t", "t", "set up 2FA")
	keyDisable2FA  = bind("x", "x", "disable 2FA")
	keyBackupCodes = bind("b", "b", "new backup codes")
	keyCloudflare  = bind("w", "w", "cloudflare")
	keyScheduler   = bind("z", "z", "scheduler")
)

func (p *settingsPanel) shortcuts(k KeyMap) []key.Binding {
	return []key.Binding{keySetup2FA, keyDisable2FA, keyBackupCodes, keyCloudflare, keyScheduler, k.Logout}
}

func (p *settingsPanel) handleKey(m *Model, msg tea.KeyMsg) (tea.Cmd, bool) {
	switch {
	case key.Matches(msg, keySetup2FA):
		return m.act(func(ctx context.Context) actionDoneMsg {
			setup, err := p.SetupTwoFactor(ctx)
			if err != nil {
				return actionDoneMsg{err: err}
			}
			return actionDoneMsg{after: func(m *Model) tea.Cmd {
				p.promptEnable(m, setup)
				return nil
			}}
		}), true

	case key.Matches(msg, keyDisable2FA):
		d := newConfirmModal("Disable two-factor authentication", "Logins will need only the admin key.")
		d.submit = func(m *Model, _, _ string) tea.Cmd {
			return m.act(func(ctx context.Context) actionDoneMsg {
				if err := p.DisableTwoFactor(ctx); err != nil {
					return actionDoneMsg{err: err}
				}
				return actionDoneMsg{message: "Two-factor authentication disabled"}
			})
		}
		m.openModal(d)
		return nil, true

	case key.Matches(msg, keyBackupCodes):
		d := newConfirmModal("Generate new backup codes", "Every existing backup code stops working.")
		d.submit = func(m *Model, _, _ string) tea.Cmd {
			return m.act(func(ctx context.Context) actionDoneMsg {
				codes, err := p.RegenerateBackupCodes(ctx)
				if err != nil {
					return actionDoneMsg{err: err}
				}
				return actionDoneMsg{
					message: "New backup codes generated",
					title:   "Backup codes",
					reveal:  append(codes, "", "Shown once. Each code works one time."),
				}
			})
		}
		m.openModal(d)
		return nil, true

	case key.Matches(msg, keyCloudflare):
		cur, _ := p.Current()
		d := newInputModal("Cloudflare analytics", "API token: ", cur.MaskedToken())
		d.lines = []string{"Leave the masked value to keep the stored token."}
		d.submit = func(m *Model, _, token string) tea.Cmd {
			zone := newInputModal("Cloudflare analytics", "Zone ID: ", cur.CloudflareZoneID)
			zone.submit = func(m *Model, _, zoneID string) tea.Cmd {
				return m.act(func(ctx context.Context) actionDoneMsg {
					if err := p.SaveCloudflare(ctx, token, zoneID); err != nil {
						return actionDoneMsg{err: err}
					}
					return actionDoneMsg{message: "Cloudflare settings saved"}
				})
			}
			m.openModal(zone)
			return nil
		}
		m.openModal(d)
		return nil, true

	case key.Matches(msg, keyScheduler):
		cur, _ := p.Current()
		d := newInputModal("Marketing scheduler", "Posts and replies per day: ",
			fmt.Sprintf("%d %d", cur.MaxPostsPerDay, cur.MaxRepliesPerDay))
		d.lines = []string{fmt.Sprintf("Posts 0-%d, replies 0-%d.", market.MaxPostsPerDayLimit, market.MaxRepliesPerDayLimit)}
		d.validate = func(_, text string) error {
			_, _, err := parseLimits(text)
			return err
		}
		d.submit = func(m *Model, _, text string) tea.Cmd {
			posts, replies, _ := parseLimits(text)
			return m.act(func(ctx context.Context) actionDoneMsg {
				if err := p.SaveScheduler(ctx, posts, replies); err != nil {
					return actionDoneMsg{err: err}
				}
				return actionDoneMsg{message: "Scheduler limits saved"}
			})
		}
		m.openModal(d)
		return nil, true
	}
	return nil, false
}

// parseLimits reads "posts replies".
func parseLimits(text string) (posts, replies int, err error) {
	fields := strings.Fields(strings.ReplaceAll(text, ",", " "))
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("enter two numbers: posts and replies")
	}
	if posts, err = strconv.Atoi(fields[0]); err != nil {
		return 0, 0, fmt.Errorf("posts: %q is not a number", fields[0])
	}
	if replies, err = strconv.Atoi(fields[1]); err != nil {
		return 0, 0, fmt.Errorf("replies: %q is not a number", fields[1])
	}
	return posts, replies, nil
}

// promptEnable asks for a code from the new authenticator entry.
func (p *settingsPanel) promptEnable(m *Model, setup *market.TwoFactorSetup) {
	d := newInputModal("Set up two-factor authentication", "Code: ", "")
	d.lines = []string{
		"Add this account to your authenticator app:",
		"",
		"Secret: " + setup.Secret(),
		util.TruncateWidth(setup.URL(), 56),
		"",
		"Then enter the 6-digit code it shows.",
	}
	d.validate = func(_, code string) error { return market.ValidateTOTPCode(code) }
	d.submit = func(m *Model, _, code string) tea.Cmd {
		return m.act(func(ctx context.Context) actionDoneMsg {
			if err := p.EnableTwoFactor(ctx, code); err != nil {
				return actionDoneMsg{err: err}
			}
			return actionDoneMsg{message: "Two-factor authentication enabled"}
		})
	}
	m.openModal(d)
}

func (p *settingsPanel) view(m *Model, _, _ int) string {
	t := m.theme
	cur, ok := p.Current()
	if !ok {
		return t.Empty.Render("Loading settings...")
	}
	token := "not set"
	if cur.CloudflareTokenSet {
		token = cur.MaskedToken()
	}
	zone := cur.CloudflareZoneID
	if zone == "" {
		zone = "not set"
	}
	twoFA := "press t to enroll an authenticator"
	if p.Pending() != nil {
		twoFA = t.BadgeWarning.Render("SETUP PENDING") + " confirm with a code"
	}
	lines := []string{
		t.PanelTitle.Render("Security"),
		t.Label.Render("Two-factor") + twoFA,
		"",
		t.PanelTitle.Render("Cloudflare analytics"),
		t.Label.Render("API token") + t.Value.Render(token),
		t.Label.Render("Zone ID") + t.Value.Render(zone),
		"",
		t.PanelTitle.Render("Marketing scheduler"),
		t.Label.Render("Posts per day") + t.Value.Render(strconv.Itoa(cur.MaxPostsPerDay)),
		t.Label.Render("Replies per day") + t.Value.Render(strconv.Itoa(cur.MaxRepliesPerDay)),
	}
	if cur.APIBaseURL != "" {
		lines = append(lines, "", t.Label.Render("API")+t.Value.Render(cur.APIBaseURL))
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// REPORTS
// =============================================================================

type reportsPanel struct {
	*market.Reports
	cursor int
}

func newReportsPanel(m *Model) *reportsPanel {
	return &reportsPanel{Reports: market.NewReports(m.backend, m.opts.ExportDir, m.marketOpts()...)}
}

func (p *reportsPanel) shortcuts(k KeyMap) []key.Binding {
	return []key.Binding{k.Up, k.Down, bind("enter", "Enter", "generate"), k.NextTab, k.Logout}
}

func (p *reportsPanel) handleKey(m *Model, msg tea.KeyMsg) (tea.Cmd, bool) {
	n := len(market.ReportKinds)
	switch {
	case key.Matches(msg, m.keys.Up):
		p.cursor = (p.cursor + n - 1) % n
		return nil, true
	case key.Matches(msg, m.keys.Down):
		p.cursor = (p.cursor + 1) % n
		return nil, true
	case key.Matches(msg, m.keys.Select):
		kind := market.ReportKind(market.ReportKinds[p.cursor].Name)
		return m.act(func(ctx context.Context) actionDoneMsg {
			res, err := p.Generate(ctx, kind)
			if err != nil {
				return actionDoneMsg{err: err}
			}
			return actionDoneMsg{message: res.Message}
		}), true
	}
	return nil, false
}

func (p *reportsPanel) view(m *Model, _, _ int) string {
	t := m.theme
	lines := []string{t.StatLabel.Render("Reports are written to " + p.Dir()), ""}
	for i, c := range market.ReportKinds {
		if i == p.cursor {
			lines = append(lines, t.RowSelected.Render("> "+c.Label))
		} else {
			lines = append(lines, t.Row.Render("  "+c.Label))
		}
	}
	return strings.Join(lines, "\n")
}
