// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/squidbay/squidops-tui/internal/session"
)

// =============================================================================
// TRUST LEVELS
// =============================================================================

// TrustLevel buckets a 0-100 trust score for display.
type TrustLevel int

const (
	TrustUnknown TrustLevel = iota
	TrustPoor
	TrustFair
	TrustGood
)

// LevelOf classifies a trust score; negative scores are unknown.
func LevelOf(trust int) TrustLevel {
	switch {
	case trust < 0:
		return TrustUnknown
	case trust >= 85:
		return TrustGood
	case trust >= 60:
		return TrustFair
	default:
		return TrustPoor
	}
}

// =============================================================================
// SECURITY REPORT
// =============================================================================

// Threat is one active finding from the scanner.
type Threat struct {
	Type        string
	Target      string
	Severity    string
	Description string
	DetectedAt  time.Time
}

// ScanRecord is one entry of the scan history.
type ScanRecord struct {
	SkillID   string
	SkillName string
	Result    string
	// RiskScore is -1 when the scan recorded no score.
	RiskScore int
	ScannedAt time.Time
}

// Trust is 100 minus the risk, or -1.
func (s ScanRecord) Trust() int {
	if s.RiskScore < 0 {
		return -1
	}
	return 100 - s.RiskScore
}

// SecurityReport is the security tab's state.
type SecurityReport struct {
	// Available is false when the report endpoint failed; History may still
	// be populated.
	Available     bool
	ActiveThreats int
	LastScanAt    time.Time
	// OverallRisk is -1 when the server has no platform score yet.
	OverallRisk int
	Threats     []Threat
	History     []ScanRecord
	// Raw is the report as served, for download.
	Raw json.RawMessage
}

// PlatformTrust is 100 minus the overall risk, or -1.
func (r SecurityReport) PlatformTrust() int {
	if r.OverallRisk < 0 {
		return -1
	}
	return 100 - r.OverallRisk
}

type wireThreat struct {
	Type        string   `json:"type"`
	Category    string   `json:"category"`
	SkillName   string   `json:"skill_name"`
	Target      string   `json:"target"`
	Severity    string   `json:"severity"`
	Description string   `json:"description"`
	Message     string   `json:"message"`
	DetectedAt  FlexTime `json:"detected_at"`
	CreatedAt   FlexTime `json:"created_at"`
}

type wireReport struct {
	ActiveThreats FlexInt      `json:"active_threats"`
	LastScanAt    FlexTime     `json:"last_scan_at"`
	OverallScore  *FlexFloat   `json:"overall_score"`
	RiskScore     *FlexFloat   `json:"risk_score"`
	Threats       []wireThreat `json:"threats"`
}

type wireScanRecord struct {
	SkillID   FlexString `json:"skill_id"`
	SkillName string     `json:"skill_name"`
	Result    string     `json:"result"`
	RiskScore *FlexFloat `json:"risk_score"`
	ScannedAt FlexTime   `json:"scanned_at"`
}

func (w wireThreat) normalize() Threat {
	detected := w.DetectedAt.Time()
	if detected.IsZero() {
		detected = w.CreatedAt.Time()
	}
	return Threat{
		Type:        firstNonEmpty(w.Type, w.Category),
		Target:      firstNonEmpty(w.SkillName, w.Target),
		Severity:    w.Severity,
		Description: firstNonEmpty(w.Description, w.Message),
		DetectedAt:  detected,
	}
}

func (w wireScanRecord) normalize() ScanRecord {
	s := ScanRecord{
		SkillID:   string(w.SkillID),
		SkillName: w.SkillName,
		Result:    w.Result,
		RiskScore: -1,
		ScannedAt: w.ScannedAt.Time(),
	}
	if w.RiskScore != nil {
		s.RiskScore = int(*w.RiskScore)
	}
	return s
}

func buildReport(raw json.RawMessage, w wireReport, history []wireScanRecord) SecurityReport {
	r := SecurityReport{
		Available:     raw != nil,
		ActiveThreats: int(w.ActiveThreats),
		LastScanAt:    w.LastScanAt.Time(),
		OverallRisk:   -1,
		Raw:           raw,
	}
	switch {
	case w.OverallScore != nil:
		r.OverallRisk = int(*w.OverallScore)
	case w.RiskScore != nil:
		r.OverallRisk = int(*w.RiskScore)
	}
	for _, t := range w.Threats {
		r.Threats = append(r.Threats, t.normalize())
	}
	if r.ActiveThreats == 0 {
		r.ActiveThreats = len(r.Threats)
	}
	for _, h := range history {
		r.History = append(r.History, h.normalize())
	}
	if r.LastScanAt.IsZero() && len(r.History) > 0 {
		r.LastScanAt = r.History[0].ScannedAt
	}
	return r
}

// FetchSecurity loads the security report and scan history in parallel.
// Either may fail independently; only a dead session is an error.
func FetchSecurity(ctx context.Context, b Backend) (SecurityReport, error) {
	var (
		raw     json.RawMessage
		report  wireReport
		history []wireScanRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var body json.RawMessage
		if err := getAdmin(gctx, b, "/admin/security/report", &body); err != nil {
			if session.IsSessionExpired(err) {
				return err
			}
			return nil
		}
		if err := json.Unmarshal(body, &report); err != nil {
			return fmt.Errorf("decode security report: %w", err)
		}
		raw = body
		return nil
	})
	g.Go(func() error {
		var resp struct {
			Scans []wireScanRecord `json:"scans"`
		}
		if err := getAdmin(gctx, b, "/admin/security/scan-history", &resp); err != nil {
			if session.IsSessionExpired(err) {
				return err
			}
			return nil
		}
		history = resp.Scans
		return nil
	})
	if err := g.Wait(); err != nil {
		return SecurityReport{}, err
	}
	return buildReport(raw, report, history), nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

// AuditEntry is one server-side audit record.
type AuditEntry struct {
	Action    string
	Detail    string
	CreatedAt time.Time
}

type wireAuditEntry struct {
	Action    string   `json:"action"`
	Details   string   `json:"details"`
	Detail    string   `json:"detail"`
	Message   string   `json:"message"`
	CreatedAt FlexTime `json:"created_at"`
}

// auditLogResponse accepts both the current "entries" and the older "log" key.
type auditLogResponse struct {
	Entries []wireAuditEntry `json:"entries"`
	Log     []wireAuditEntry `json:"log"`
}

func (r auditLogResponse) list() []wireAuditEntry {
	if r.Entries != nil {
		return r.Entries
	}
	return r.Log
}

// FetchAuditLog reads the newest limit audit entries.
func FetchAuditLog(ctx context.Context, b Backend, limit int) ([]AuditEntry, error) {
	var resp auditLogResponse
	if err := getAdmin(ctx, b, "/admin/audit-log?limit="+strconv.Itoa(limit), &resp); err != nil {
		return nil, err
	}
	wire := resp.list()
	out := make([]AuditEntry, len(wire))
	for i, w := range wire {
		out[i] = AuditEntry{
			Action:    w.Action,
			Detail:    firstNonEmpty(w.Details, w.Detail, w.Message),
			CreatedAt: w.CreatedAt.Time(),
		}
	}
	return out, nil
}

// =============================================================================
// PANEL
// =============================================================================

// AuditPreviewLimit is how many audit entries the security tab shows.
const AuditPreviewLimit = 20

// ScanSummary is the outcome of a full platform scan.
type ScanSummary struct {
	Scanned int
	Threats int
	Message string
}

// Security is the security tab.
type Security struct {
	backend Backend
	opts    options

	mu     sync.Mutex
	report SecurityReport
	loaded bool
}

// NewSecurity creates the security tab over b.
func NewSecurity(b Backend, opts ...Option) *Security {
	return &Security{backend: b, opts: buildOptions(opts)}
}

// Load refreshes the report and history.
func (s *Security) Load(ctx context.Context) error {
	r, err := FetchSecurity(ctx, s.backend)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.report, s.loaded = r, true
	s.mu.Unlock()
	return nil
}

// Report returns the last loaded report and whether a load has succeeded.
func (s *Security) Report() (SecurityReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report, s.loaded
}

// FullScan rescans every skill on the platform.
func (s *Security) FullScan(ctx context.Context) (ScanSummary, error) {
	var resp struct {
		Message      string  `json:"message"`
		Scanned      FlexInt `json:"scanned"`
		Threats      FlexInt `json:"threats"`
		ThreatsFound FlexInt `json:"threats_found"`
	}
	if err := s.backend.AuthorizedJSON(ctx, http.MethodPost, "/admin/security/scan-all", nil, &resp); err != nil {
		return ScanSummary{}, fmt.Errorf("full scan: %w", err)
	}
	s.backend.Audit("full_platform_scan", "Ran full platform security scan")

	sum := ScanSummary{Scanned: int(resp.Scanned), Threats: int(max(resp.Threats, resp.ThreatsFound))}
	sum.Message = resp.Message
	if sum.Message == "" {
		sum.Message = fmt.Sprintf("Scanned %d skills. %d threats detected.", sum.Scanned, sum.Threats)
	}
	s.opts.logger.Info("FULL_SCAN_COMPLETE", zap.Int("scanned", sum.Scanned), zap.Int("threats", sum.Threats))
	return sum, nil
}

// AuditLog reads the most recent audit entries.
func (s *Security) AuditLog(ctx context.Context) ([]AuditEntry, error) {
	return FetchAuditLog(ctx, s.backend, AuditPreviewLimit)
}
