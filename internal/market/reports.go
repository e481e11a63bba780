// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package market

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/squidbay/squidops-tui/internal/export"
	"github.com/squidbay/squidops-tui/internal/listview"
	"github.com/squidbay/squidops-tui/internal/session"
)

const (
	platformName      = "SquidBay.io"
	recentSkillsLimit = 5
	auditExportLimit  = 1000
)

// ReportKind names a downloadable report.
type ReportKind string

const (
	ReportPlatformSummary ReportKind = "platform-summary"
	ReportAgentCompliance ReportKind = "agent-compliance"
	ReportSecurity        ReportKind = "security-report"
	ReportTransactions    ReportKind = "transactions"
	ReportAuditLog        ReportKind = "audit-log"
	ReportFullExport      ReportKind = "full-export"
)

// ReportKinds lists every report in menu order.
var ReportKinds = []listview.Choice{
	{Name: string(ReportPlatformSummary), Label: "Platform Summary"},
	{Name: string(ReportAgentCompliance), Label: "Agent Compliance"},
	{Name: string(ReportSecurity), Label: "Security Report"},
	{Name: string(ReportTransactions), Label: "Transaction Export (CSV)"},
	{Name: string(ReportAuditLog), Label: "Audit Log"},
	{Name: string(ReportFullExport), Label: "Full Data Export"},
}

// ReportResult describes a finished report. Path is empty when there was
// nothing to write.
type ReportResult struct {
	Path    string
	Message string
}

// Reports is the reports tab. Every report is written into one directory.
type Reports struct {
	backend Backend
	dir     string
	opts    options
}

// NewReports creates the reports tab writing into dir.
func NewReports(b Backend, dir string, opts ...Option) *Reports {
	return &Reports{backend: b, dir: dir, opts: buildOptions(opts)}
}

// Load is a no-op; reports are generated on demand.
func (r *Reports) Load(context.Context) error { return nil }

// Dir is the output directory.
func (r *Reports) Dir() string { return r.dir }

// Generate builds and writes one report.
func (r *Reports) Generate(ctx context.Context, kind ReportKind) (ReportResult, error) {
	var (
		res ReportResult
		err error
	)
	switch kind {
	case ReportPlatformSummary:
		res, err = r.platformSummary(ctx)
	case ReportAgentCompliance:
		res, err = r.agentCompliance(ctx)
	case ReportSecurity:
		res, err = r.securityReport(ctx)
	case ReportTransactions:
		res, err = r.transactions(ctx)
	case ReportAuditLog:
		res, err = r.auditLog(ctx)
	case ReportFullExport:
		res, err = r.fullExport(ctx)
	default:
		return ReportResult{}, fmt.Errorf("unknown report %q", kind)
	}
	if err != nil {
		return ReportResult{}, fmt.Errorf("%s: %w", kind, err)
	}
	return res, nil
}

// write saves doc and records the download.
func (r *Reports) write(doc *export.Document, e export.Exporter) (string, error) {
	path, err := export.ExportToFile(doc, e, &export.Options{OutputDir: r.dir, Now: r.opts.now})
	if err != nil {
		return "", err
	}
	r.backend.Audit("download_report", "Downloaded "+filepath.Base(path))
	r.opts.logger.Info("REPORT_WRITTEN", zap.String("slug", doc.Slug), zap.String("path", path))
	return path, nil
}

func (r *Reports) writeJSON(slug string, data any) (string, error) {
	return r.write(&export.Document{Slug: slug, Data: data}, export.NewJSONExporter())
}

func (r *Reports) stamp() string {
	return r.opts.now().UTC().Format(time.RFC3339)
}

// =============================================================================
// REPORTS
// =============================================================================

type recentSkill struct {
	Name     string `json:"name"`
	Agent    string `json:"agent"`
	Category string `json:"category"`
	Created  string `json:"created"`
}

type platformSummary struct {
	GeneratedAt string `json:"generated_at"`
	Platform    string `json:"platform"`
	Totals      struct {
		Skills           int   `json:"skills"`
		Agents           int   `json:"agents"`
		TotalJobs        int64 `json:"total_jobs"`
		AgentsWithSkills int   `json:"agents_with_skills"`
	} `json:"totals"`
	Categories   []string      `json:"categories"`
	RecentSkills []recentSkill `json:"recent_skills"`
}

func (r *Reports) platformSummary(ctx context.Context) (ReportResult, error) {
	var (
		skills []Skill
		agents []Agent
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var resp skillsResponse
		if err := r.backend.PublicJSON(gctx, "/skills?limit=500", &resp); err != nil {
			return tolerate(err)
		}
		for _, w := range resp.Skills {
			skills = append(skills, w.normalize())
		}
		return nil
	})
	g.Go(func() error {
		list, err := FetchAgents(gctx, r.backend)
		if err != nil {
			return tolerate(err)
		}
		agents = list
		return nil
	})
	if err := g.Wait(); err != nil {
		return ReportResult{}, err
	}

	s := platformSummary{GeneratedAt: r.stamp(), Platform: platformName, Categories: []string{}, RecentSkills: []recentSkill{}}
	s.Totals.Skills, s.Totals.Agents = len(skills), len(agents)
	seen := map[string]bool{}
	for _, sk := range skills {
		s.Totals.TotalJobs += sk.SuccessCount
		if sk.Category != "" && !seen[sk.Category] {
			seen[sk.Category] = true
			s.Categories = append(s.Categories, sk.Category)
		}
	}
	for _, a := range agents {
		if a.SkillCount > 0 {
			s.Totals.AgentsWithSkills++
		}
	}
	newest := slices.Clone(skills)
	slices.SortStableFunc(newest, listview.Descending(listview.ByTime(func(s Skill) time.Time { return s.CreatedAt })))
	for _, sk := range newest[:min(len(newest), recentSkillsLimit)] {
		s.RecentSkills = append(s.RecentSkills, recentSkill{
			Name: sk.Name, Agent: sk.AgentName, Category: sk.Category, Created: formatTime(sk.CreatedAt),
		})
	}

	path, err := r.writeJSON("platform-summary", s)
	if err != nil {
		return ReportResult{}, err
	}
	return ReportResult{Path: path, Message: fmt.Sprintf("Summary generated: %d skills, %d agents, %d jobs.",
		s.Totals.Skills, s.Totals.Agents, s.Totals.TotalJobs)}, nil
}

type complianceAgent struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Verified     bool   `json:"verified"`
	XVerified    bool   `json:"x_verified"`
	HasLightning bool   `json:"has_lightning"`
	SkillCount   int64  `json:"skill_count"`
	CreatedAt    string `json:"created_at"`
}

func (r *Reports) agentCompliance(ctx context.Context) (ReportResult, error) {
	var resp agentsResponse
	if err := getAdmin(ctx, r.backend, "/admin/agents", &resp); err != nil {
		return ReportResult{}, err
	}
	report := struct {
		GeneratedAt string            `json:"generated_at"`
		AgentCount  int               `json:"agent_count"`
		Agents      []complianceAgent `json:"agents"`
	}{GeneratedAt: r.stamp(), AgentCount: len(resp.Agents), Agents: []complianceAgent{}}
	for _, w := range resp.Agents {
		a := w.normalize()
		report.Agents = append(report.Agents, complianceAgent{
			ID:           a.ID,
			Name:         a.Name,
			Verified:     a.CardVerified,
			XVerified:    a.XVerified,
			HasLightning: a.LightningAddress != "",
			SkillCount:   a.SkillCount,
			CreatedAt:    formatTime(a.CreatedAt),
		})
	}

	path, err := r.writeJSON("agent-compliance", report)
	if err != nil {
		return ReportResult{}, err
	}
	return ReportResult{Path: path, Message: fmt.Sprintf("Compliance report for %d agents downloaded.", report.AgentCount)}, nil
}

func (r *Reports) securityReport(ctx context.Context) (ReportResult, error) {
	var raw json.RawMessage
	if err := getAdmin(ctx, r.backend, "/admin/security/report", &raw); err != nil {
		return ReportResult{}, err
	}
	path, err := r.writeJSON("security-report", raw)
	if err != nil {
		return ReportResult{}, err
	}
	return ReportResult{Path: path, Message: "Security report downloaded."}, nil
}

func (r *Reports) transactions(ctx context.Context) (ReportResult, error) {
	txs, _, err := FetchTransactions(ctx, r.backend)
	if err != nil {
		return ReportResult{}, err
	}
	if len(txs) == 0 {
		return ReportResult{Message: "No transactions to export."}, nil
	}
	path, err := r.write(TransactionsDocument(txs), export.NewCSVExporter())
	if err != nil {
		return ReportResult{}, err
	}
	return ReportResult{Path: path, Message: fmt.Sprintf("Exported %d transactions as CSV.", len(txs))}, nil
}

func (r *Reports) auditLog(ctx context.Context) (ReportResult, error) {
	var raw json.RawMessage
	path := "/admin/audit-log?limit=" + strconv.Itoa(auditExportLimit)
	if err := getAdmin(ctx, r.backend, path, &raw); err != nil {
		return ReportResult{}, err
	}
	var resp struct {
		Entries []json.RawMessage `json:"entries"`
		Log     []json.RawMessage `json:"log"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return ReportResult{}, fmt.Errorf("decode audit log: %w", err)
	}
	n := len(resp.Entries)
	if resp.Entries == nil {
		n = len(resp.Log)
	}
	file, err := r.writeJSON("audit-log", raw)
	if err != nil {
		return ReportResult{}, err
	}
	return ReportResult{Path: file, Message: fmt.Sprintf("Audit log downloaded (%d entries).", n)}, nil
}

type fullExport struct {
	ExportedAt   string            `json:"exported_at"`
	Platform     string            `json:"platform"`
	Skills       []json.RawMessage `json:"skills"`
	Agents       []json.RawMessage `json:"agents"`
	Transactions []json.RawMessage `json:"transactions"`
	Reviews      []json.RawMessage `json:"reviews"`
	AuditLog     []json.RawMessage `json:"audit_log"`
}

// fullExport copies every collection as served. A collection that cannot be
// read is exported empty.
func (r *Reports) fullExport(ctx context.Context) (ReportResult, error) {
	out := fullExport{ExportedAt: r.stamp(), Platform: platformName}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var resp struct {
			Skills []json.RawMessage `json:"skills"`
		}
		if err := adminOrPublic(gctx, r.backend, "/admin/skills", "/skills?limit=500", &resp); err != nil {
			return tolerate(err)
		}
		out.Skills = resp.Skills
		return nil
	})
	g.Go(func() error {
		var resp struct {
			Agents []json.RawMessage `json:"agents"`
		}
		if err := r.backend.PublicJSON(gctx, "/agents", &resp); err != nil {
			return tolerate(err)
		}
		out.Agents = resp.Agents
		return nil
	})
	g.Go(func() error {
		var resp struct {
			Transactions []json.RawMessage `json:"transactions"`
		}
		if err := getAdmin(gctx, r.backend, "/admin/transactions", &resp); err != nil {
			return tolerate(err)
		}
		out.Transactions = resp.Transactions
		return nil
	})
	g.Go(func() error {
		var resp struct {
			Reviews []json.RawMessage `json:"reviews"`
		}
		if err := getAdmin(gctx, r.backend, "/admin/reviews", &resp); err != nil {
			return tolerate(err)
		}
		out.Reviews = resp.Reviews
		return nil
	})
	g.Go(func() error {
		var resp struct {
			Entries []json.RawMessage `json:"entries"`
			Log     []json.RawMessage `json:"log"`
		}
		if err := getAdmin(gctx, r.backend, "/admin/audit-log?limit="+strconv.Itoa(auditExportLimit), &resp); err != nil {
			return tolerate(err)
		}
		out.AuditLog = resp.Entries
		if out.AuditLog == nil {
			out.AuditLog = resp.Log
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return ReportResult{}, err
	}

	for _, p := range []*[]json.RawMessage{&out.Skills, &out.Agents, &out.Transactions, &out.Reviews, &out.AuditLog} {
		if *p == nil {
			*p = []json.RawMessage{}
		}
	}
	path, err := r.writeJSON("full-export", out)
	if err != nil {
		return ReportResult{}, err
	}
	return ReportResult{Path: path, Message: fmt.Sprintf("Full export: %d skills, %d agents, %d transactions, %d reviews.",
		len(out.Skills), len(out.Agents), len(out.Transactions), len(out.Reviews))}, nil
}

// tolerate drops err unless the session is gone or the caller gave up.
func tolerate(err error) error {
	if session.IsSessionExpired(err) || isContextErr(err) {
		return err
	}
	return nil
}

// =============================================================================
// LIST DOCUMENTS
// =============================================================================

// SkillsDocument renders skills for export.
func SkillsDocument(skills []Skill) *export.Document {
	rows := make([][]string, len(skills))
	for i, s := range skills {
		trust := ""
		if t := s.Trust(); t >= 0 {
			trust = strconv.Itoa(t)
		}
		rows[i] = []string{
			s.ID, s.Name, s.AgentName, s.Category, strconv.FormatBool(s.Active),
			trust, strconv.FormatInt(s.SuccessCount, 10), formatTime(s.CreatedAt),
		}
	}
	return &export.Document{
		Slug:    "skills",
		Title:   "Skills",
		Headers: []string{"id", "name", "agent_name", "category", "is_active", "trust", "success_count", "created_at"},
		Rows:    rows,
	}
}

// AgentsDocument renders agents for export.
func AgentsDocument(agents []Agent) *export.Document {
	rows := make([][]string, len(agents))
	for i, a := range agents {
		rows[i] = []string{
			a.ID, a.Name, a.LightningAddress, a.XHandle, strconv.FormatBool(a.CardVerified),
			strconv.FormatInt(a.SkillCount, 10), formatTime(a.CreatedAt),
		}
	}
	return &export.Document{
		Slug:    "agents",
		Title:   "Agents",
		Headers: []string{"id", "agent_name", "lightning_address", "x_handle", "agent_card_verified", "skill_count", "created_at"},
		Rows:    rows,
	}
}

// ReviewsDocument renders reviews for export.
func ReviewsDocument(reviews []Review) *export.Document {
	rows := make([][]string, len(reviews))
	for i, r := range reviews {
		rows[i] = []string{
			r.ID, r.AgentName, r.SkillName, r.ReviewerName, strconv.FormatInt(r.Rating, 10),
			r.Comment, strconv.FormatBool(r.Active), r.ModerationReason, strconv.FormatBool(r.Reported()),
			formatTime(r.CreatedAt),
		}
	}
	return &export.Document{
		Slug:  "reviews",
		Title: "Reviews",
		Headers: []string{
			"id", "agent_name", "skill_name", "reviewer_name", "rating",
			"comment", "is_active", "moderation_reason", "reported", "created_at",
		},
		Rows: rows,
	}
}
