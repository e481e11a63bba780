// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package console

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/squidbay/squidops-tui/internal/market"
	"github.com/squidbay/squidops-tui/internal/ui/styles"
	"github.com/squidbay/squidops-tui/internal/util"
)

// =============================================================================
// ANALYTICS
// =============================================================================

type analyticsPanel struct {
	*market.Analytics
}

func newAnalyticsPanel(m *Model) *analyticsPanel {
	return &analyticsPanel{Analytics: market.NewAnalytics(m.backend, m.marketOpts()...)}
}

var (
	keyPeriod    = bind("p", "p", "period")
	keyConfigure = bind("w", "w", "configure")
)

func (p *analyticsPanel) shortcuts(k KeyMap) []key.Binding {
	if tr, ok := p.Traffic(); ok && !tr.Configured {
		return []key.Binding{keyConfigure, k.NextTab, k.Logout}
	}
	return []key.Binding{keyPeriod, k.NextTab, k.Refresh, k.Logout}
}

func (p *analyticsPanel) handleKey(m *Model, msg tea.KeyMsg) (tea.Cmd, bool) {
	switch {
	case key.Matches(msg, keyPeriod):
		p.NextPeriod()
		return m.selectTab(m.loader.Active()), true
	case key.Matches(msg, keyConfigure):
		return m.selectTab("settings"), true
	}
	return nil, false
}

func (p *analyticsPanel) view(m *Model, width, height int) string {
	t := m.theme
	tr, ok := p.Traffic()
	if !ok {
		return t.Empty.Render("Loading analytics...")
	}
	if !tr.Configured {
		return strings.Join([]string{
			styles.RenderWarning("Cloudflare analytics is not configured"),
			"",
			t.StatLabel.Render("Add an API token and zone ID under Settings, or press w to go there."),
		}, "\n")
	}

	var periods []string
	for _, name := range market.AnalyticsPeriods {
		if name == tr.Period {
			periods = append(periods, t.ToolbarOn.Render(name))
		} else {
			periods = append(periods, t.Toolbar.Render(name))
		}
	}
	cards := []string{
		statCard(t, "requests", util.FormatCount(tr.Requests)),
		statCard(t, "page views", util.FormatCount(tr.PageViews)),
		statCard(t, "unique visitors", util.FormatCount(tr.UniqueVisitors)),
		statCard(t, "threats blocked", util.FormatCount(tr.Threats)),
		statCard(t, "bandwidth", fmt.Sprintf("%.1f MB", tr.BandwidthMB())),
	}
	lines := append([]string{t.Toolbar.Render("Period ") + strings.Join(periods, " "), ""}, wrapCards(cards, width)...)

	// Tables share what is left of the height.
	limit := max((height-len(lines)-8)/3, 3)
	if len(tr.Countries) > 0 {
		lines = append(lines, "", t.PanelTitle.Render("Top countries"))
		for i, c := range tr.Countries {
			if i >= limit {
				break
			}
			lines = append(lines, util.PadRight(c.Country, 8)+util.PadLeft(util.FormatCount(c.Requests), 12))
		}
	}
	if len(tr.TopPages) > 0 {
		lines = append(lines, "", t.PanelTitle.Render("Top pages"))
		for i, pg := range tr.TopPages {
			if i >= limit {
				break
			}
			lines = append(lines, util.PadRight(util.TruncateWidth(pg.Path, max(width-14, 10)), max(width-14, 10))+
				util.PadLeft(util.FormatCount(pg.Views), 12))
		}
	}
	if len(tr.StatusCodes) > 0 {
		var codes []string
		for _, sc := range tr.StatusCodes {
			codes = append(codes, sc.Code+" "+util.FormatCount(sc.Count))
		}
		lines = append(lines, "", t.PanelTitle.Render("Status codes"), util.TruncateWidth(strings.Join(codes, "  "), width))
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// INFRASTRUCTURE
// =============================================================================

type infraPanel struct {
	*market.Infra
}

func newInfraPanel(m *Model) *infraPanel {
	return &infraPanel{Infra: market.NewInfra(m.backend, m.marketOpts()...)}
}

func (p *infraPanel) handleKey(*Model, tea.KeyMsg) (tea.Cmd, bool) { return nil, false }

func (p *infraPanel) shortcuts(k KeyMap) []key.Binding { return k.GlobalHelp() }

func latencyCell(t *styles.Theme, e market.EndpointHealth) string {
	ms := fmt.Sprintf("%dms", e.Latency.Milliseconds())
	switch {
	case !e.Up:
		return t.BadgeError.Render("DOWN")
	case e.Latency <= market.LatencyGood:
		return t.NoticeSuccess.Render(ms)
	case e.Latency <= market.LatencyFair:
		return t.BadgeWarning.Render(ms)
	default:
		return t.NoticeError.Render(ms)
	}
}

func (p *infraPanel) view(m *Model, width, _ int) string {
	t := m.theme
	s, ok := p.Status()
	if !ok {
		return t.Empty.Render("Checking endpoints...")
	}

	health := t.BadgeSuccess.Render("ALL SYSTEMS UP")
	if !s.AllUp() {
		health = t.BadgeWarning.Render(fmt.Sprintf("%d/%d UP", s.Healthy(), len(s.Endpoints)))
	}
	lines := []string{t.Label.Render("API health") + health}

	if d := s.Deploy; d != nil {
		lines = append(lines, t.Label.Render("Version")+t.Value.Render(d.Label()))
		if d.Commit != "" {
			lines = append(lines, t.Label.Render("Commit")+t.Value.Render(d.Commit[:min(len(d.Commit), 7)]))
		}
		if !d.DeployedAt.IsZero() {
			lines = append(lines, t.Label.Render("Deployed")+t.Value.Render(d.DeployedAt.Local().Format("2006-01-02 15:04")))
		}
	} else {
		lines = append(lines, t.Label.Render("Version")+t.StatLabel.Render("unavailable"))
	}
	lines = append(lines, t.Label.Render("Avg latency")+t.Value.Render(fmt.Sprintf("%dms", s.AverageLatency().Milliseconds())))

	lines = append(lines, "", t.PanelTitle.Render("Endpoints"))
	for _, e := range s.Endpoints {
		kind := "public"
		if e.Admin {
			kind = "admin"
		}
		row := util.PadRight(e.Name, 14) + " " + util.PadRight(e.Path, 18) + " " + util.PadRight(kind, 7) + " " + latencyCell(t, e)
		if e.Err != "" {
			row += " " + t.StatLabel.Render(util.SingleLine(e.Err))
		}
		lines = append(lines, util.TruncateWidth(row, width))
	}

	lines = append(lines, "", t.PanelTitle.Render("Server metrics"))
	if !s.MetricsAvailable {
		lines = append(lines, t.StatLabel.Render("Metrics endpoint unavailable"))
		return strings.Join(lines, "\n")
	}
	if s.Memory != "" {
		lines = append(lines, t.Label.Render("memory")+t.Value.Render(s.Memory))
	}
	for _, mt := range s.Metrics {
		lines = append(lines, util.TruncateWidth(t.Label.Render(mt.Name)+t.Value.Render(mt.Value), width))
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// GITHUB
// =============================================================================

func issueStatus(i market.Issue) string {
	if i.Acknowledged {
		return "read"
	}
	return "unread"
}

func newGitHubPanel(m *Model) *listPanel[market.Issue] {
	g := market.NewGitHub(m.backend, m.marketOpts()...)
	return &listPanel[market.Issue]{
		load:       g.Load,
		list:       g.View,
		id:         func(i market.Issue) string { return i.ID },
		noun:       "issues",
		facetLabel: "Repository",
		columns: []column[market.Issue]{
			{title: "#", width: 6, right: true, cell: func(i market.Issue) string { return i.Number }},
			{title: "Title", cell: func(i market.Issue) string { return i.Title }},
			{title: "Repository", width: 22, cell: func(i market.Issue) string { return i.Repo }},
			{title: "Author", width: 12, cell: func(i market.Issue) string { return i.Author }},
			{title: "Status", width: 7, cell: issueStatus},
			{title: "Date", width: 10, cell: func(i market.Issue) string { return dateCell(i.CreatedAt) }},
		},
		muted: func(i market.Issue) bool { return i.Acknowledged },
		summary: func(m *Model) string {
			conns := g.Connections()
			verified := 0
			for _, c := range conns {
				if c.Verified {
					verified++
				}
			}
			out := m.theme.Toolbar.Render(fmt.Sprintf("Repos %d (%d verified)", len(conns), verified))
			if n := g.Unread(); n > 0 {
				out += "  " + m.theme.BadgeWarning.Render(fmt.Sprintf("%d unread", n))
			}
			return out
		},
		detail: func(i market.Issue) [][2]string {
			d := [][2]string{
				{"Labels", strings.Join(i.Labels, ", ")},
				{"URL", i.URL},
				{"Opened", dateCell(i.CreatedAt)},
			}
			for _, c := range g.Connections() {
				if c.Repo == i.Repo {
					state := "pending"
					if c.Verified {
						state = "verified"
					}
					d = append(d, [2]string{"Agent", fmt.Sprintf("%s (%s)", c.AgentName, state)})
				}
			}
			return d
		},
		actions: []rowAction[market.Issue]{
			{
				binding: bind("a", "a", "mark read"),
				when:    func(i market.Issue) bool { return !i.Acknowledged },
				run: func(m *Model, i market.Issue) tea.Cmd {
					return m.act(func(ctx context.Context) actionDoneMsg {
						if err := g.Ack(ctx, i.ID); err != nil {
							return actionDoneMsg{err: err}
						}
						return actionDoneMsg{message: "Issue #" + i.Number + " marked read"}
					})
				},
			},
		},
		export: func(m *Model, items []market.Issue) tea.Cmd {
			return exportDocument(m, market.IssuesDocument(items), "github_issues", len(items))
		},
	}
}
