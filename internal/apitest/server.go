// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package apitest is an in-memory SquidBay marketplace API.
//
// It backs package tests (through httptest) and the cmd/fakeapi demo binary.
// Records are kept as loose JSON objects so tests can reproduce the mixed
// shapes the real API returns (0/1 flags, numeric ids, alternate keys).
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pquerna/otp/totp"
)

// Record is one loosely typed API object.
type Record = map[string]any

// AuditEntry is one POST /admin/audit-log body.
type AuditEntry struct {
	Action    string `json:"action"`
	Detail    string `json:"detail"`
	CreatedAt string `json:"created_at"`
}

// Marketplace is the mutable fake state plus its HTTP handler.
type Marketplace struct {
	mu sync.Mutex

	adminKey      string
	totpSecret    string
	pendingSecret string
	backupCodes   map[string]bool

	skills       []Record
	agents       []Record
	reviews      []Record
	reports      []Record
	transactions []Record
	keys         []Record
	scans        []Record
	threats      []Record
	audit        []AuditEntry
	btcPrice     float64
	overallRisk  *int
	settings     Record
	// analytics maps a period to its body; nil means Cloudflare is not configured.
	analytics   map[string]Record
	deployInfo  Record
	metrics     Record
	issues      []Record
	connections []Record

	disabled map[string]int
	hits     map[string]int

	router *mux.Router
}

// Option configures a Marketplace.
type Option func(*Marketplace)

// WithAdminKey sets the accepted admin key.
func WithAdminKey(key string) Option {
	return func(m *Marketplace) { m.adminKey = key }
}

// WithTOTP enables the second factor with the given base32 secret.
func WithTOTP(secret string) Option {
	return func(m *Marketplace) { m.totpSecret = secret }
}

// WithBackupCodes registers one-time backup codes.
func WithBackupCodes(codes ...string) Option {
	return func(m *Marketplace) {
		for _, c := range codes {
			m.backupCodes[c] = true
		}
	}
}

// WithSeed loads the demo fixtures.
func WithSeed() Option {
	return func(m *Marketplace) { m.seed() }
}

// DefaultAdminKey is the key accepted unless WithAdminKey is used.
const DefaultAdminKey = "sb-admin-test-key"

// NewMarketplace creates an empty marketplace.
func NewMarketplace(opts ...Option) *Marketplace {
	m := &Marketplace{
		adminKey:    DefaultAdminKey,
		backupCodes: map[string]bool{},
		settings:    Record{"max_posts_per_day": 3, "max_replies_per_day": 10},
		disabled:    map[string]int{},
		hits:        map[string]int{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.router = m.routes()
	return m
}

// Server is a Marketplace served over httptest.
type Server struct {
	*Marketplace
	*httptest.Server
}

// NewServer starts an httptest server for a new marketplace. Call Close when done.
func NewServer(opts ...Option) *Server {
	m := NewMarketplace(opts...)
	return &Server{Marketplace: m, Server: httptest.NewServer(m)}
}

// ServeHTTP implements http.Handler.
func (m *Marketplace) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.router.ServeHTTP(w, r)
}

// =============================================================================
// TEST CONTROLS
// =============================================================================

// Disable makes every request matching the route template (for example
// "/admin/skills") answer with status.
func (m *Marketplace) Disable(route string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disabled[route] = status
}

// RotateAdminKey changes the accepted admin key, so an existing session gets 401s.
func (m *Marketplace) RotateAdminKey(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adminKey = key
}

// AdminKey returns the currently accepted admin key.
func (m *Marketplace) AdminKey() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adminKey
}

// Settings returns a copy of the stored platform settings.
func (m *Marketplace) Settings() Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.settings)
}

// Hits returns how many requests reached the route template.
func (m *Marketplace) Hits(route string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits[route]
}

// TotalHits returns the number of requests served.
func (m *Marketplace) TotalHits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, v := range m.hits {
		n += v
	}
	return n
}

// AuditLog returns a copy of the recorded audit entries.
func (m *Marketplace) AuditLog() []AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AuditEntry(nil), m.audit...)
}

// TOTPSecret returns the active second-factor secret ("" when disabled).
func (m *Marketplace) TOTPSecret() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totpSecret
}

// SetSkills replaces the skill records.
func (m *Marketplace) SetSkills(rs ...Record) { m.set(&m.skills, rs) }

// SetAgents replaces the agent records.
func (m *Marketplace) SetAgents(rs ...Record) { m.set(&m.agents, rs) }

// SetReviews replaces the review records.
func (m *Marketplace) SetReviews(rs ...Record) { m.set(&m.reviews, rs) }

// SetReports replaces the reported-review records.
func (m *Marketplace) SetReports(rs ...Record) { m.set(&m.reports, rs) }

// SetTransactions replaces the transaction records.
func (m *Marketplace) SetTransactions(rs ...Record) { m.set(&m.transactions, rs) }

// SetKeys replaces the agent key records.
func (m *Marketplace) SetKeys(rs ...Record) { m.set(&m.keys, rs) }

// SetBTCPrice sets the USD price returned by /admin/btc-price.
func (m *Marketplace) SetBTCPrice(usd float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.btcPrice = usd
}

// SetAnalytics sets the Cloudflare analytics body for period. Until the
// first call the analytics endpoint reports missing credentials.
func (m *Marketplace) SetAnalytics(period string, body Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.analytics == nil {
		m.analytics = map[string]Record{}
	}
	m.analytics[period] = clone(body)
}

// SetIssues replaces the GitHub issue records.
func (m *Marketplace) SetIssues(rs ...Record) { m.set(&m.issues, rs) }

// SetConnections replaces the GitHub connection records.
func (m *Marketplace) SetConnections(rs ...Record) { m.set(&m.connections, rs) }

// Issue returns a copy of the GitHub issue with id, or nil.
func (m *Marketplace) Issue(id string) Record { return m.get(m.issuesRef, id) }

// Skill returns a copy of the skill with id, or nil.
func (m *Marketplace) Skill(id string) Record { return m.get(m.skillsRef, id) }

// Review returns a copy of the review with id, or nil.
func (m *Marketplace) Review(id string) Record { return m.get(m.reviewsRef, id) }

func (m *Marketplace) skillsRef() []Record  { return m.skills }
func (m *Marketplace) reviewsRef() []Record { return m.reviews }
func (m *Marketplace) issuesRef() []Record  { return m.issues }

func (m *Marketplace) set(dst *[]Record, rs []Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(rs))
	for i, r := range rs {
		out[i] = clone(r)
	}
	*dst = out
}

func (m *Marketplace) get(list func() []Record, id string) Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r := find(list(), id); r != nil {
		return clone(r)
	}
	return nil
}

// =============================================================================
// ROUTES
// =============================================================================

func (m *Marketplace) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(m.countAndGate)

	// Public reads
	r.HandleFunc("/skills", m.handlePublicSkills).Methods("GET")
	r.HandleFunc("/skills/{id}", m.handlePublicSkill).Methods("GET")
	r.HandleFunc("/agents", m.handlePublicAgents).Methods("GET")
	r.HandleFunc("/agents/{id}", m.handlePublicAgent).Methods("GET")
	r.HandleFunc("/health", m.handleHealth).Methods("GET")
	r.HandleFunc("/scheduler/status", m.handleScheduler).Methods("GET")
	r.HandleFunc("/x/status", m.handleXStatus).Methods("GET")

	// Protected routes
	a := r.NewRoute().Subrouter()
	a.Use(m.requireKey)
	a.HandleFunc("/admin/verify", m.handleVerify).Methods("GET")
	a.HandleFunc("/admin/2fa/verify", m.handleVerify2FA).Methods("POST")
	a.HandleFunc("/admin/2fa/setup", m.handleSetup2FA).Methods("POST")
	a.HandleFunc("/admin/2fa/disable", m.handleDisable2FA).Methods("POST")
	a.HandleFunc("/admin/2fa/backup-codes", m.handleBackupCodes).Methods("POST")
	a.HandleFunc("/admin/audit-log", m.handleAuditPost).Methods("POST")
	a.HandleFunc("/admin/audit-log", m.handleAuditGet).Methods("GET")

	a.HandleFunc("/admin/skills", m.handleAdminSkills).Methods("GET")
	a.HandleFunc("/admin/scan/{id}", m.handleScan).Methods("POST")
	a.HandleFunc("/register/{id}", m.handleDeactivate).Methods("DELETE")
	a.HandleFunc("/register/{id}", m.handleUpdateSkill).Methods("PUT")

	a.HandleFunc("/admin/agents", m.handleAdminAgents).Methods("GET")
	a.HandleFunc("/admin/agents/{id}", m.handleUpdateAgent).Methods("PUT")
	a.HandleFunc("/admin/agents/{id}/compliance", m.handleCompliance).Methods("GET")

	a.HandleFunc("/admin/reviews", m.handleAdminReviews).Methods("GET")
	a.HandleFunc("/admin/reviews/reported", m.handleReported).Methods("GET")
	a.HandleFunc("/admin/reviews/reports/{id}/ack", m.handleAck).Methods("PUT")
	a.HandleFunc("/admin/reviews/{id}/moderate", m.handleModerate).Methods("PUT")

	a.HandleFunc("/admin/transactions", m.handleTransactions).Methods("GET")
	a.HandleFunc("/admin/btc-price", m.handleBTCPrice).Methods("GET")

	a.HandleFunc("/admin/keys", m.handleKeys).Methods("GET")
	a.HandleFunc("/admin/keys/reset-admin", m.handleResetAdmin).Methods("POST")
	a.HandleFunc("/admin/keys/{id}/rotate", m.handleRotate).Methods("POST")

	a.HandleFunc("/admin/settings", m.handleGetSettings).Methods("GET")
	a.HandleFunc("/admin/settings", m.handlePutSettings).Methods("PUT")
	a.HandleFunc("/admin/scheduler/config", m.handleSchedulerConfig).Methods("PUT")

	a.HandleFunc("/admin/security/report", m.handleSecurityReport).Methods("GET")
	a.HandleFunc("/admin/security/scan-history", m.handleScanHistory).Methods("GET")
	a.HandleFunc("/admin/security/scan-all", m.handleScanAll).Methods("POST")

	a.HandleFunc("/admin/cloudflare/analytics", m.handleAnalytics).Methods("GET")
	a.HandleFunc("/admin/deploy-info", m.handleDeployInfo).Methods("GET")
	a.HandleFunc("/admin/metrics", m.handleMetrics).Methods("GET")

	a.HandleFunc("/admin/github/issues", m.handleIssues).Methods("GET")
	a.HandleFunc("/admin/github/issues/{id}/ack", m.handleAckIssue).Methods("POST")
	a.HandleFunc("/admin/github/connections", m.handleConnections).Methods("GET")
	return r
}

// countAndGate records hits per route template and applies Disable.
func (m *Marketplace) countAndGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tpl := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if t, err := route.GetPathTemplate(); err == nil {
				tpl = t
			}
		}
		m.mu.Lock()
		m.hits[tpl]++
		status, off := m.disabled[tpl]
		m.mu.Unlock()
		if off {
			writeError(w, status, http.StatusText(status))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Marketplace) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		ok := r.Header.Get("x-squidbay-key") == m.adminKey
		m.mu.Unlock()
		if !ok {
			writeError(w, http.StatusUnauthorized, "Invalid admin key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// AUTH HANDLERS
// =============================================================================

func (m *Marketplace) handleVerify(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	enabled := m.totpSecret != ""
	m.mu.Unlock()
	writeJSON(w, http.StatusOK, Record{"valid": true, "totp_enabled": enabled})
}

func (m *Marketplace) handleVerify2FA(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code       string `json:"code"`
		BackupCode string `json:"backup_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case body.BackupCode != "":
		if m.backupCodes[body.BackupCode] {
			delete(m.backupCodes, body.BackupCode)
			writeJSON(w, http.StatusOK, Record{"success": true})
			return
		}
	case body.Code != "":
		secret := m.totpSecret
		if secret == "" {
			secret = m.pendingSecret
		}
		if secret != "" && totp.Validate(body.Code, secret) {
			if m.totpSecret == "" {
				m.totpSecret, m.pendingSecret = m.pendingSecret, ""
			}
			writeJSON(w, http.StatusOK, Record{"success": true})
			return
		}
	}
	if m.pendingSecret != "" && m.totpSecret == "" {
		// Enrollment from a live session: a bad code is not an auth failure.
		writeError(w, http.StatusBadRequest, "Invalid code")
		return
	}
	writeError(w, http.StatusUnauthorized, "Invalid code")
}

func (m *Marketplace) handleSetup2FA(w http.ResponseWriter, r *http.Request) {
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "SquidBay", AccountName: "admin"})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	m.mu.Lock()
	m.pendingSecret = key.Secret()
	m.mu.Unlock()
	writeJSON(w, http.StatusOK, Record{"secret": key.Secret(), "otpauth_url": key.URL()})
}

func (m *Marketplace) handleDisable2FA(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.totpSecret, m.pendingSecret = "", ""
	m.mu.Unlock()
	writeJSON(w, http.StatusOK, Record{"success": true})
}

func (m *Marketplace) handleBackupCodes(w http.ResponseWriter, r *http.Request) {
	codes := make([]string, 8)
	m.mu.Lock()
	m.backupCodes = map[string]bool{}
	for i := range codes {
		codes[i] = strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
		m.backupCodes[codes[i]] = true
	}
	m.mu.Unlock()
	writeJSON(w, http.StatusOK, Record{"codes": codes})
}

func (m *Marketplace) handleAuditPost(w http.ResponseWriter, r *http.Request) {
	var e AuditEntry
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil || e.Action == "" {
		writeError(w, http.StatusBadRequest, "action required")
		return
	}
	e.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	m.mu.Lock()
	m.audit = append(m.audit, e)
	m.mu.Unlock()
	writeJSON(w, http.StatusCreated, Record{"success": true})
}

func (m *Marketplace) handleAuditGet(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	m.mu.Lock()
	entries := make([]AuditEntry, 0, len(m.audit))
	for i := len(m.audit) - 1; i >= 0 && len(entries) < limit; i-- {
		entries = append(entries, m.audit[i])
	}
	m.mu.Unlock()
	writeJSON(w, http.StatusOK, Record{"entries": entries})
}

// =============================================================================
// SKILL HANDLERS
// =============================================================================

func (m *Marketplace) handlePublicSkills(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	m.mu.Lock()
	out := []Record{}
	for _, s := range m.skills {
		if len(out) >= limit {
			break
		}
		if isActive(s) {
			out = append(out, clone(s))
		}
	}
	m.mu.Unlock()
	writeJSON(w, http.StatusOK, Record{"skills": out})
}

func (m *Marketplace) handlePublicSkill(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := find(m.skills, mux.Vars(r)["id"])
	if s == nil {
		writeError(w, http.StatusNotFound, "Skill not found")
		return
	}
	writeJSON(w, http.StatusOK, Record{"skill": clone(s)})
}

func (m *Marketplace) handleAdminSkills(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	writeJSON(w, http.StatusOK, Record{"skills": cloneAll(m.skills)})
}

func (m *Marketplace) handleScan(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := find(m.skills, mux.Vars(r)["id"])
	if s == nil {
		writeError(w, http.StatusNotFound, "Skill not found")
		return
	}
	risk := len(fmt.Sprint(s["name"])) % 30
	result := "clean"
	if risk > 20 {
		result = "warning"
	}
	scan := Record{"risk_score": risk, "result": result, "scanned_at": time.Now().UTC().Format(time.RFC3339)}
	s["scan"] = scan
	m.scans = append([]Record{{"skill_id": s["id"], "skill_name": s["name"], "risk_score": risk, "result": result, "scanned_at": scan["scanned_at"]}}, m.scans...)
	writeJSON(w, http.StatusOK, Record{"success": true, "scan": clone(scan)})
}

func (m *Marketplace) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := find(m.skills, mux.Vars(r)["id"])
	if s == nil {
		writeError(w, http.StatusNotFound, "Skill not found")
		return
	}
	s["is_active"] = 0
	writeJSON(w, http.StatusOK, Record{"success": true})
}

func (m *Marketplace) handleUpdateSkill(w http.ResponseWriter, r *http.Request) {
	var patch Record
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := find(m.skills, mux.Vars(r)["id"])
	if s == nil {
		writeError(w, http.StatusNotFound, "Skill not found")
		return
	}
	for k, v := range patch {
		if k == "is_active" {
			if b, ok := v.(bool); ok {
				v = boolInt(b)
			}
		}
		s[k] = v
	}
	writeJSON(w, http.StatusOK, Record{"success": true, "skill": clone(s)})
}

// =============================================================================
// AGENT HANDLERS
// =============================================================================

func (m *Marketplace) handlePublicAgents(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	writeJSON(w, http.StatusOK, Record{"agents": cloneAll(m.agents)})
}

func (m *Marketplace) handleAdminAgents(w http.ResponseWriter, r *http.Request) {
	m.handlePublicAgents(w, r)
}

func (m *Marketplace) handlePublicAgent(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := mux.Vars(r)["id"]
	a := find(m.agents, id)
	if a == nil {
		writeError(w, http.StatusNotFound, "Agent not found")
		return
	}
	reviews := []Record{}
	for _, rv := range m.reviews {
		if fmt.Sprint(rv["agent_id"]) == id && isActive(rv) {
			reviews = append(reviews, clone(rv))
		}
	}
	writeJSON(w, http.StatusOK, Record{"agent": clone(a), "reviews": reviews})
}

func (m *Marketplace) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	var patch Record
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a := find(m.agents, mux.Vars(r)["id"])
	if a == nil {
		writeError(w, http.StatusNotFound, "Agent not found")
		return
	}
	for k, v := range patch {
		a[k] = v
	}
	writeJSON(w, http.StatusOK, Record{"success": true, "agent": clone(a)})
}

func (m *Marketplace) handleCompliance(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := mux.Vars(r)["id"]
	a := find(m.agents, id)
	if a == nil {
		writeError(w, http.StatusNotFound, "Agent not found")
		return
	}
	skills := []Record{}
	for _, s := range m.skills {
		if fmt.Sprint(s["agent_id"]) == id {
			skills = append(skills, clone(s))
		}
	}
	writeJSON(w, http.StatusOK, Record{"agent": clone(a), "skills": skills, "generated_at": time.Now().UTC().Format(time.RFC3339)})
}

// =============================================================================
// REVIEW HANDLERS
// =============================================================================

func (m *Marketplace) handleAdminReviews(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	writeJSON(w, http.StatusOK, Record{"reviews": cloneAll(m.reviews)})
}

func (m *Marketplace) handleReported(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	writeJSON(w, http.StatusOK, Record{"reports": cloneAll(m.reports)})
}

func (m *Marketplace) handleModerate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason  string `json:"reason"`
		Restore bool   `json:"restore"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rv := find(m.reviews, mux.Vars(r)["id"])
	if rv == nil {
		writeError(w, http.StatusNotFound, "Review not found")
		return
	}
	switch {
	case body.Restore:
		rv["is_active"] = 1
		delete(rv, "moderation_reason")
	case strings.TrimSpace(body.Reason) == "":
		writeError(w, http.StatusBadRequest, "reason required")
		return
	default:
		rv["is_active"] = 0
		rv["moderation_reason"] = body.Reason
	}
	writeJSON(w, http.StatusOK, Record{"success": true, "review": clone(rv)})
}

func (m *Marketplace) handleAck(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.reports[:0]
	found := false
	for _, rp := range m.reports {
		if fmt.Sprint(rp["id"]) == id || fmt.Sprint(rp["review_id"]) == id {
			found = true
			continue
		}
		kept = append(kept, rp)
	}
	m.reports = kept
	if !found {
		writeError(w, http.StatusNotFound, "Report not found")
		return
	}
	writeJSON(w, http.StatusOK, Record{"success": true})
}

// =============================================================================
// TRANSACTION / KEY / SECURITY HANDLERS
// =============================================================================

func (m *Marketplace) handleTransactions(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	writeJSON(w, http.StatusOK, Record{"transactions": cloneAll(m.transactions)})
}

func (m *Marketplace) handleBTCPrice(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.btcPrice <= 0 {
		writeError(w, http.StatusServiceUnavailable, "price unavailable")
		return
	}
	writeJSON(w, http.StatusOK, Record{"price_usd": m.btcPrice})
}

func (m *Marketplace) handleKeys(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	writeJSON(w, http.StatusOK, Record{"keys": cloneAll(m.keys)})
}

func (m *Marketplace) handleRotate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if fmt.Sprint(k["agent_id"]) == id || fmt.Sprint(k["id"]) == id {
			prefix := "sbk_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
			k["key_prefix"] = prefix
			k["rotated_at"] = time.Now().UTC().Format(time.RFC3339)
			k["pending_recovery"] = false
			writeJSON(w, http.StatusOK, Record{"success": true, "key_prefix": prefix})
			return
		}
	}
	writeError(w, http.StatusNotFound, "Agent not found")
}

func (m *Marketplace) handleSecurityReport(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	report := Record{"threats": cloneAll(m.threats), "active_threats": len(m.threats)}
	if m.overallRisk != nil {
		report["overall_score"] = *m.overallRisk
	}
	if len(m.scans) > 0 {
		report["last_scan_at"] = m.scans[0]["scanned_at"]
	}
	writeJSON(w, http.StatusOK, report)
}

func (m *Marketplace) handleScanHistory(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	writeJSON(w, http.StatusOK, Record{"scans": cloneAll(m.scans)})
}

func (m *Marketplace) handleScanAll(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC().Format(time.RFC3339)
	total, scanned := 0, 0
	for _, s := range m.skills {
		risk := len(fmt.Sprint(s["name"])) % 30
		s["scan"] = Record{"risk_score": risk, "result": "clean", "scanned_at": now}
		total += risk
		scanned++
	}
	overall := 0
	if scanned > 0 {
		overall = total / scanned
	}
	m.overallRisk = &overall
	m.scans = append([]Record{{"skill_name": "platform", "risk_score": overall, "result": "clean", "scanned_at": now}}, m.scans...)
	writeJSON(w, http.StatusOK, Record{"success": true, "scanned": scanned, "threats_found": len(m.threats)})
}

func (m *Marketplace) handleScheduler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Record{"active": true, "daily_posts": 3, "daily_replies": 12})
}

func (m *Marketplace) handleResetAdmin(w http.ResponseWriter, r *http.Request) {
	key := "sb-admin-" + strings.ReplaceAll(uuid.NewString(), "-", "")
	m.mu.Lock()
	m.adminKey = key
	m.mu.Unlock()
	writeJSON(w, http.StatusOK, Record{"success": true, "key": key})
}

// handleGetSettings never returns the Cloudflare token itself.
func (m *Marketplace) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := clone(m.settings)
	if tok, ok := out["cloudflare_token"].(string); ok && tok != "" {
		out["cloudflare_token"] = true
		out["cloudflare_token_suffix"] = tok[max(0, len(tok)-4):]
	}
	writeJSON(w, http.StatusOK, out)
}

func (m *Marketplace) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var patch Record
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range []string{"cloudflare_token", "cloudflare_zone_id"} {
		if v, ok := patch[k]; ok && v != nil {
			m.settings[k] = v
		}
	}
	writeJSON(w, http.StatusOK, Record{"success": true})
}

func (m *Marketplace) handleSchedulerConfig(w http.ResponseWriter, r *http.Request) {
	var body struct {
		MaxPosts   *int `json:"max_posts_per_day"`
		MaxReplies *int `json:"max_replies_per_day"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.MaxPosts == nil || body.MaxReplies == nil {
		writeError(w, http.StatusBadRequest, "max_posts_per_day and max_replies_per_day required")
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings["max_posts_per_day"] = *body.MaxPosts
	m.settings["max_replies_per_day"] = *body.MaxReplies
	writeJSON(w, http.StatusOK, Record{"success": true})
}

// =============================================================================
// INFRA / ANALYTICS / GITHUB HANDLERS
// =============================================================================

func (m *Marketplace) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Record{"status": "ok"})
}

func (m *Marketplace) handleXStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Record{"connected": true, "posts_today": 1})
}

func (m *Marketplace) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "24h"
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.analytics == nil {
		writeError(w, http.StatusBadRequest, "Cloudflare API token not configured")
		return
	}
	body, ok := m.analytics[period]
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid period")
		return
	}
	writeJSON(w, http.StatusOK, clone(body))
}

func (m *Marketplace) handleDeployInfo(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deployInfo == nil {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	writeJSON(w, http.StatusOK, clone(m.deployInfo))
}

func (m *Marketplace) handleMetrics(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.metrics == nil {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	writeJSON(w, http.StatusOK, clone(m.metrics))
}

func (m *Marketplace) handleIssues(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	writeJSON(w, http.StatusOK, Record{"issues": cloneAll(m.issues)})
}

func (m *Marketplace) handleConnections(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	writeJSON(w, http.StatusOK, Record{"connections": cloneAll(m.connections)})
}

func (m *Marketplace) handleAckIssue(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, is := range m.issues {
		if fmt.Sprint(is["id"]) == id || fmt.Sprint(is["number"]) == id {
			is["acknowledged"] = true
			writeJSON(w, http.StatusOK, Record{"success": true})
			return
		}
	}
	writeError(w, http.StatusNotFound, "Issue not found")
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Record{"error": msg})
}

func queryInt(r *http.Request, name string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(name)); err == nil && v > 0 {
		return v
	}
	return def
}

func find(list []Record, id string) Record {
	for _, r := range list {
		if fmt.Sprint(r["id"]) == id {
			return r
		}
	}
	return nil
}

func isActive(r Record) bool {
	switch v := r["is_active"].(type) {
	case bool:
		return v
	case int:
		return v != 0
	case float64:
		return v != 0
	}
	return true
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func clone(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		if nested, ok := v.(Record); ok {
			v = clone(nested)
		}
		out[k] = v
	}
	return out
}

func cloneAll(rs []Record) []Record {
	out := make([]Record, len(rs))
	for i, r := range rs {
		out[i] = clone(r)
	}
	return out
}
