// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package console

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/squidbay/squidops-tui/internal/export"
	"github.com/squidbay/squidops-tui/internal/market"
	"github.com/squidbay/squidops-tui/internal/session"
	"github.com/squidbay/squidops-tui/internal/util"
)

// =============================================================================
// SHARED
// =============================================================================

func bind(keys, help, desc string) key.Binding {
	return key.NewBinding(key.WithKeys(strings.Split(keys, ",")...), key.WithHelp(help, desc))
}

func dateCell(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02")
}

func activeCell(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}

func trustCell(trust int) string {
	if trust < 0 {
		return "unscanned"
	}
	return strconv.Itoa(trust)
}

func required(field string) func(string, string) error {
	return func(_, text string) error {
		if text == "" {
			return errors.New(field + " is required")
		}
		return nil
	}
}

// exportDocument writes doc in the configured format.
func exportDocument(m *Model, doc *export.Document, what string, n int) tea.Cmd {
	format, dir, now := m.opts.ExportFormat, m.opts.ExportDir, m.now
	backend := m.backend
	return m.act(func(context.Context) actionDoneMsg {
		e, err := export.ExporterFor(format)
		if err != nil {
			return actionDoneMsg{err: err}
		}
		path, err := export.ExportToFile(doc, e, &export.Options{OutputDir: dir, Now: now})
		if err != nil {
			return actionDoneMsg{err: fmt.Errorf("export %s: %w", what, err)}
		}
		backend.Audit("export_"+what, fmt.Sprintf("Exported %d %s as %s", n, what, strings.ToUpper(string(format))))
		return actionDoneMsg{message: "Saved " + path}
	})
}

// =============================================================================
// SKILLS
// =============================================================================

func newSkillsPanel(m *Model) *listPanel[market.Skill] {
	s := market.NewSkills(m.backend, m.marketOpts()...)
	return &listPanel[market.Skill]{
		load: s.Load,
		list: s.View,
		id:   func(sk market.Skill) string { return sk.ID },
		noun: "skills",
		columns: []column[market.Skill]{
			{title: "Name", cell: func(sk market.Skill) string { return sk.Name }},
			{title: "Agent", width: 16, cell: func(sk market.Skill) string { return sk.AgentName }},
			{title: "Category", width: 12, cell: func(sk market.Skill) string { return sk.Category }},
			{title: "Trust", width: 9, right: true, cell: func(sk market.Skill) string { return trustCell(sk.Trust()) }},
			{title: "Jobs", width: 6, right: true, cell: func(sk market.Skill) string { return util.FormatCount(sk.SuccessCount) }},
			{title: "Status", width: 8, cell: func(sk market.Skill) string { return activeCell(sk.Active) }},
		},
		muted: func(sk market.Skill) bool { return !sk.Active },
		detail: func(sk market.Skill) [][2]string {
			d := [][2]string{
				{"ID", sk.ID},
				{"Slug", sk.Slug},
				{"Version", sk.Version},
				{"Delivery", sk.DeliveryMode},
				{"Tiers", strings.Join(sk.Tiers, ", ")},
				{"Execution", util.FormatSats(sk.PriceExecution)},
				{"Skill file", util.FormatSats(sk.PriceSkillFile)},
				{"Full package", util.FormatSats(sk.PriceFullPackage)},
				{"Rating", fmt.Sprintf("%.1f (%d reviews)", sk.Rating(), sk.RatingCount)},
				{"Created", dateCell(sk.CreatedAt)},
				{"Description", sk.Description},
			}
			if sk.Scan != nil {
				d = append(d, [2]string{"Last scan", fmt.Sprintf("%s, risk %d, %s", sk.Scan.Result, sk.Scan.RiskScore, dateCell(sk.Scan.ScannedAt))})
			}
			if sk.DeactivationReason != "" {
				d = append(d, [2]string{"Deactivated", sk.DeactivationReason})
			}
			return d
		},
		actions: []rowAction[market.Skill]{
			{
				binding: bind("d", "d", "deactivate"),
				when:    func(sk market.Skill) bool { return sk.Active },
				run: func(m *Model, sk market.Skill) tea.Cmd {
					d := newInputModal("Deactivate "+sk.Name, "Reason: ", "")
					d.lines = []string{"The skill is hidden from the marketplace. It can be reactivated."}
					d.validate = required("reason")
					d.submit = func(m *Model, _, reason string) tea.Cmd {
						return m.act(func(ctx context.Context) actionDoneMsg {
							if err := s.Deactivate(ctx, sk.ID, reason); err != nil {
								return actionDoneMsg{err: err}
							}
							return actionDoneMsg{message: "Deactivated " + sk.Name}
						})
					}
					m.openModal(d)
					return nil
				},
			},
			{
				binding: bind("a", "a", "reactivate"),
				when:    func(sk market.Skill) bool { return !sk.Active },
				run: func(m *Model, sk market.Skill) tea.Cmd {
					return m.act(func(ctx context.Context) actionDoneMsg {
						if err := s.Reactivate(ctx, sk.ID); err != nil {
							return actionDoneMsg{err: err}
						}
						return actionDoneMsg{message: "Reactivated " + sk.Name}
					})
				},
			},
			{
				binding: bind("n", "n", "rescan"),
				run: func(m *Model, sk market.Skill) tea.Cmd {
					return m.act(func(ctx context.Context) actionDoneMsg {
						if err := s.Rescan(ctx, sk.ID); err != nil {
							return actionDoneMsg{err: err}
						}
						return actionDoneMsg{message: "Rescanned " + sk.Name}
					})
				},
			},
		},
		export: func(m *Model, items []market.Skill) tea.Cmd {
			return exportDocument(m, market.SkillsDocument(items), "skills", len(items))
		},
	}
}

// =============================================================================
// AGENTS
// =============================================================================

func newAgentsPanel(m *Model) *listPanel[market.Agent] {
	a := market.NewAgents(m.backend, m.marketOpts()...)
	return &listPanel[market.Agent]{
		load: a.Load,
		list: a.View,
		id:   func(ag market.Agent) string { return ag.ID },
		noun: "agents",
		columns: []column[market.Agent]{
			{title: "Name", cell: func(ag market.Agent) string { return ag.Name }},
			{title: "Lightning", width: 22, cell: func(ag market.Agent) string { return ag.LightningAddress }},
			{title: "X", width: 14, cell: func(ag market.Agent) string {
				if ag.XHandle == "" {
					return ""
				}
				return "@" + ag.XHandle
			}},
			{title: "Skills", width: 6, right: true, cell: func(ag market.Agent) string { return util.FormatCount(ag.SkillCount) }},
			{title: "A2A", width: 8, cell: func(ag market.Agent) string {
				if ag.CardVerified {
					return "verified"
				}
				return "-"
			}},
		},
		muted: func(ag market.Agent) bool { return ag.SkillCount == 0 },
		detail: func(ag market.Agent) [][2]string {
			return [][2]string{
				{"ID", ag.ID},
				{"Agent card", ag.AgentCardURL},
				{"Website", ag.Website},
				{"X verified", strconv.FormatBool(ag.XVerified)},
				{"Joined", dateCell(ag.CreatedAt)},
			}
		},
		actions: []rowAction[market.Agent]{
			{
				binding: bind("p", "p", "compliance file"),
				run: func(m *Model, ag market.Agent) tea.Cmd {
					dir := m.opts.ExportDir
					return m.act(func(ctx context.Context) actionDoneMsg {
						path, err := a.DownloadCompliance(ctx, ag.ID, dir)
						if err != nil {
							return actionDoneMsg{err: err}
						}
						return actionDoneMsg{message: "Saved " + path}
					})
				},
			},
		},
		export: func(m *Model, items []market.Agent) tea.Cmd {
			return exportDocument(m, market.AgentsDocument(items), "agents", len(items))
		},
	}
}

// =============================================================================
// REVIEWS
// =============================================================================

func reviewStatus(rv market.Review) string {
	switch {
	case !rv.Active:
		return "moderated"
	case rv.Reported():
		return "reported"
	default:
		return "active"
	}
}

func newReviewsPanel(m *Model) *listPanel[market.Review] {
	r := market.NewReviews(m.backend, m.marketOpts()...)
	return &listPanel[market.Review]{
		load: r.Load,
		list: r.View,
		id:   func(rv market.Review) string { return rv.ID },
		noun: "reviews",
		columns: []column[market.Review]{
			{title: "Reviewer", width: 14, cell: func(rv market.Review) string { return rv.ReviewerName }},
			{title: "Skill", width: 22, cell: func(rv market.Review) string { return rv.SkillName }},
			{title: "Rating", width: 6, cell: func(rv market.Review) string { return fmt.Sprintf("%d/5", rv.Rating) }},
			{title: "Comment", cell: func(rv market.Review) string { return rv.Comment }},
			{title: "Status", width: 9, cell: reviewStatus},
		},
		muted: func(rv market.Review) bool { return !rv.Active },
		summary: func(m *Model) string {
			if n := r.OpenReports(); n > 0 {
				return m.theme.BadgeWarning.Render(fmt.Sprintf("%d open reports", n))
			}
			return ""
		},
		detail: func(rv market.Review) [][2]string {
			d := [][2]string{
				{"Agent", rv.AgentName},
				{"Tier", rv.Tier},
				{"Posted", dateCell(rv.CreatedAt)},
				{"Comment", rv.Comment},
				{"Seller reply", rv.Reply},
				{"Moderation", rv.ModerationReason},
			}
			if rv.Reported() {
				d = append(d, [2]string{"Report", strings.TrimSpace(rv.Report.Reason + " " + rv.Report.Text)})
			}
			return d
		},
		actions: []rowAction[market.Review]{
			{
				binding: bind("m", "m", "moderate"),
				when:    func(rv market.Review) bool { return rv.Active },
				run: func(m *Model, rv market.Review) tea.Cmd {
					d := newInputModal("Moderate review by "+rv.ReviewerName, "Detail (optional): ", "")
					d.lines = []string{"The review is hidden from buyers. It is never deleted."}
					d.choices = market.ModerationReasons
					d.submit = func(m *Model, reason, detail string) tea.Cmd {
						return m.act(func(ctx context.Context) actionDoneMsg {
							if err := r.Moderate(ctx, rv.ID, reason, detail); err != nil {
								return actionDoneMsg{err: err}
							}
							return actionDoneMsg{message: "Review moderated"}
						})
					}
					m.openModal(d)
					return nil
				},
			},
			{
				binding: bind("u", "u", "restore"),
				when:    func(rv market.Review) bool { return !rv.Active },
				run: func(m *Model, rv market.Review) tea.Cmd {
					return m.act(func(ctx context.Context) actionDoneMsg {
						if err := r.Restore(ctx, rv.ID); err != nil {
							return actionDoneMsg{err: err}
						}
						return actionDoneMsg{message: "Review restored"}
					})
				},
			},
			{
				binding: bind("x", "x", "dismiss report"),
				when:    market.Review.Reported,
				run: func(m *Model, rv market.Review) tea.Cmd {
					return m.act(func(ctx context.Context) actionDoneMsg {
						if err := r.AckReport(ctx, rv.ID); err != nil {
							return actionDoneMsg{err: err}
						}
						return actionDoneMsg{message: "Report dismissed"}
					})
				},
			},
		},
		export: func(m *Model, items []market.Review) tea.Cmd {
			return exportDocument(m, market.ReviewsDocument(items), "reviews", len(items))
		},
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func newTransactionsPanel(m *Model) *listPanel[market.Transaction] {
	t := market.NewTransactions(m.backend, m.marketOpts()...)
	return &listPanel[market.Transaction]{
		load:       t.Load,
		list:       t.View,
		id:         func(tx market.Transaction) string { return tx.ID },
		noun:       "transactions",
		facetLabel: "Status",
		columns: []column[market.Transaction]{
			{title: "ID", width: 15, cell: func(tx market.Transaction) string { return tx.ID }},
			{title: "Skill", cell: func(tx market.Transaction) string { return tx.SkillName }},
			{title: "Buyer", width: 12, cell: func(tx market.Transaction) string { return tx.BuyerName }},
			{title: "Seller", width: 12, cell: func(tx market.Transaction) string { return tx.SellerName }},
			{title: "Amount", width: 12, right: true, cell: func(tx market.Transaction) string { return util.FormatSats(tx.AmountSats) }},
			{title: "Status", width: 9, cell: func(tx market.Transaction) string { return tx.Status }},
			{title: "Date", width: 10, cell: func(tx market.Transaction) string { return dateCell(tx.CreatedAt) }},
		},
		muted: func(tx market.Transaction) bool { return !tx.Completed() },
		summary: func(m *Model) string {
			rev := t.Revenue()
			if rev.Transactions == 0 {
				return ""
			}
			fees := util.FormatSats(rev.FeeSats)
			if rev.FeesUSD > 0 {
				fees += " (" + util.FormatUSD(rev.FeesUSD) + ")"
			}
			return m.theme.Toolbar.Render("Volume ") + m.theme.Sats.Render(util.FormatSats(rev.VolumeSats)) +
				m.theme.Toolbar.Render("  Fees ") + m.theme.Sats.Render(fees) +
				m.theme.Toolbar.Render(fmt.Sprintf("  Completed %d/%d", rev.Completed, rev.Transactions))
		},
		detail: func(tx market.Transaction) [][2]string {
			fee := util.FormatSats(tx.FeeSats)
			if !tx.FeeKnown {
				fee = "not recorded"
			}
			return [][2]string{
				{"Tier", tx.Tier},
				{"Platform fee", fee},
				{"Created", tx.CreatedAt.Local().Format(time.RFC1123)},
			}
		},
		export: func(m *Model, _ []market.Transaction) tea.Cmd {
			dir := m.opts.ExportDir
			return m.act(func(context.Context) actionDoneMsg {
				path, err := t.ExportCSV(dir)
				if err != nil {
					return actionDoneMsg{err: err}
				}
				return actionDoneMsg{message: "Saved " + path}
			})
		},
	}
}

// =============================================================================
// KEYS
// =============================================================================

func newKeysPanel(m *Model) *listPanel[market.Key] {
	k := market.NewKeys(m.backend, m.marketOpts()...)
	return &listPanel[market.Key]{
		load: k.Load,
		list: k.View,
		id:   func(key market.Key) string { return key.AgentID },
		noun: "keys",
		columns: []column[market.Key]{
			{title: "Agent", cell: func(key market.Key) string { return key.AgentName }},
			{title: "Key", width: 16, cell: func(key market.Key) string { return key.Prefix + "..." }},
			{title: "Status", width: 10, cell: func(key market.Key) string {
				if key.PendingRecovery {
					return "recovery"
				}
				return activeCell(key.Active)
			}},
			{title: "Created", width: 10, cell: func(key market.Key) string { return dateCell(key.CreatedAt) }},
			{title: "Rotated", width: 10, cell: func(key market.Key) string { return dateCell(key.RotatedAt) }},
		},
		muted: func(key market.Key) bool { return !key.Active },
		actions: []rowAction[market.Key]{
			{
				binding: bind("o", "o", "rotate"),
				run: func(m *Model, key market.Key) tea.Cmd {
					d := newConfirmModal("Rotate key for "+key.AgentName,
						"The agent's current key stops working immediately.")
					d.submit = func(m *Model, _, _ string) tea.Cmd {
						return m.act(func(ctx context.Context) actionDoneMsg {
							newKey, err := k.Rotate(ctx, key.AgentID)
							if err != nil {
								return actionDoneMsg{err: err}
							}
							return actionDoneMsg{
								message: "Key rotated for " + key.AgentName,
								title:   "New key for " + key.AgentName,
								reveal:  []string{newKey, "", "Shown once. Send it to the agent now."},
							}
						})
					}
					m.openModal(d)
					return nil
				},
			},
		},
		panelActions: []panelAction{
			{
				binding: bind("R", "R", "reset admin key"),
				run: func(m *Model) tea.Cmd {
					d := newConfirmModal("Reset admin key",
						"Every console using the current admin key is signed out,",
						"including this one.")
					d.submit = func(m *Model, _, _ string) tea.Cmd {
						return m.act(func(ctx context.Context) actionDoneMsg {
							newKey, err := k.ResetAdminKey(ctx)
							if err != nil {
								return actionDoneMsg{err: err}
							}
							return actionDoneMsg{
								title:  "New admin key",
								reveal: []string{newKey, "", "Shown once. Store it before closing this dialog."},
								after: func(m *Model) tea.Cmd {
									m.ctrl.Logout()
									return m.syncSession(session.ReasonLogout)
								},
							}
						})
					}
					m.openModal(d)
					return nil
				},
			},
		},
	}
}
