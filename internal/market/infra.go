// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package market

import (
	"bytes"
	"context"
	"encoding/json"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/squidbay/squidops-tui/internal/session"
)

// Endpoint is one health-checked API path.
type Endpoint struct {
	Name string
	Path string
	// Admin endpoints are called with the session key.
	Admin bool
}

// HealthEndpoints are probed by the infrastructure tab.
var HealthEndpoints = []Endpoint{
	{Name: "API Root", Path: "/health"},
	{Name: "Skills List", Path: "/skills?limit=1"},
	{Name: "Agents List", Path: "/agents"},
	{Name: "Scheduler", Path: "/scheduler/status"},
	{Name: "X Status", Path: "/x/status"},
	{Name: "Admin Verify", Path: "/admin/verify", Admin: true},
}

// Latency bands for display.
const (
	LatencyGood = 500 * time.Millisecond
	LatencyFair = time.Second
)

// EndpointHealth is the outcome of one probe.
type EndpointHealth struct {
	Endpoint
	Up      bool
	Latency time.Duration
	Err     string
}

// Deploy describes the running server build.
type Deploy struct {
	Version    string
	Commit     string
	DeployedAt time.Time
}

// Label is the version, else the short commit, else "Live".
func (d Deploy) Label() string {
	if d.Version != "" {
		return d.Version
	}
	if d.Commit != "" {
		return d.Commit[:min(len(d.Commit), 7)]
	}
	return "Live"
}

// Metric is one server metric rendered as text.
type Metric struct {
	Name  string
	Value string
}

// InfraStatus is the infrastructure tab's state.
type InfraStatus struct {
	// Deploy is nil when deploy info is unavailable.
	Deploy *Deploy
	// MetricsAvailable is false when /admin/metrics failed.
	MetricsAvailable bool
	// Memory is the server's memory figure, or "".
	Memory string
	// Metrics excludes the memory fields, sorted by name.
	Metrics   []Metric
	Endpoints []EndpointHealth
}

// Healthy counts endpoints that answered.
func (s InfraStatus) Healthy() int {
	n := 0
	for _, e := range s.Endpoints {
		if e.Up {
			n++
		}
	}
	return n
}

// AllUp reports whether every probe succeeded.
func (s InfraStatus) AllUp() bool {
	return s.Healthy() == len(s.Endpoints)
}

// AverageLatency is the mean over all probes, or 0 with none.
func (s InfraStatus) AverageLatency() time.Duration {
	if len(s.Endpoints) == 0 {
		return 0
	}
	var sum time.Duration
	for _, e := range s.Endpoints {
		sum += e.Latency
	}
	return (sum / time.Duration(len(s.Endpoints))).Round(time.Millisecond)
}

type wireDeploy struct {
	Version    string   `json:"version"`
	Commit     string   `json:"commit"`
	DeployedAt FlexTime `json:"deployed_at"`
}

// metricValue renders a metric: strings bare, everything else as compact JSON.
func metricValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func buildMetrics(raw map[string]json.RawMessage) (memory string, metrics []Metric) {
	if v, ok := raw["memory_mb"]; ok && !bytes.Equal(bytes.TrimSpace(v), jsonNull) {
		memory = metricValue(v) + "MB"
	} else if v, ok := raw["memory"]; ok {
		memory = metricValue(v)
	}
	for name, v := range raw {
		if name == "memory_mb" || name == "memory" {
			continue
		}
		metrics = append(metrics, Metric{Name: name, Value: metricValue(v)})
	}
	slices.SortFunc(metrics, func(a, b Metric) int { return strings.Compare(a.Name, b.Name) })
	return memory, metrics
}

// probe times one endpoint. Only a dead session is returned as an error.
func probe(ctx context.Context, b Backend, ep Endpoint) (EndpointHealth, error) {
	var sink json.RawMessage
	start := time.Now()
	var err error
	if ep.Admin {
		err = getAdmin(ctx, b, ep.Path, &sink)
	} else {
		err = b.PublicJSON(ctx, ep.Path, &sink)
	}
	h := EndpointHealth{Endpoint: ep, Up: err == nil, Latency: time.Since(start).Round(time.Millisecond)}
	if err != nil {
		if session.IsSessionExpired(err) {
			return h, err
		}
		h.Err = err.Error()
	}
	return h, nil
}

// FetchInfra reads deploy info and metrics and probes every health endpoint,
// all in parallel. Individual failures are recorded, not returned.
func FetchInfra(ctx context.Context, b Backend) (InfraStatus, error) {
	var (
		s      InfraStatus
		deploy *wireDeploy
		raw    map[string]json.RawMessage
	)
	s.Endpoints = make([]EndpointHealth, len(HealthEndpoints))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var w wireDeploy
		if err := getAdmin(gctx, b, "/admin/deploy-info", &w); err != nil {
			if session.IsSessionExpired(err) {
				return err
			}
			return nil
		}
		deploy = &w
		return nil
	})
	g.Go(func() error {
		var m map[string]json.RawMessage
		if err := getAdmin(gctx, b, "/admin/metrics", &m); err != nil {
			if session.IsSessionExpired(err) {
				return err
			}
			return nil
		}
		raw = m
		return nil
	})
	for i, ep := range HealthEndpoints {
		g.Go(func() error {
			h, err := probe(gctx, b, ep)
			s.Endpoints[i] = h
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return InfraStatus{}, err
	}

	if deploy != nil {
		s.Deploy = &Deploy{Version: deploy.Version, Commit: deploy.Commit, DeployedAt: deploy.DeployedAt.Time()}
	}
	if raw != nil {
		s.MetricsAvailable = true
		s.Memory, s.Metrics = buildMetrics(raw)
	}
	return s, nil
}

// =============================================================================
// PANEL
// =============================================================================

// Infra is the infrastructure tab.
type Infra struct {
	backend Backend
	opts    options

	mu     sync.Mutex
	status InfraStatus
	loaded bool
}

// NewInfra creates the infrastructure tab over b.
func NewInfra(b Backend, opts ...Option) *Infra {
	return &Infra{backend: b, opts: buildOptions(opts)}
}

// Load probes the server.
func (i *Infra) Load(ctx context.Context) error {
	s, err := FetchInfra(ctx, i.backend)
	if err != nil {
		return err
	}
	i.mu.Lock()
	i.status, i.loaded = s, true
	i.mu.Unlock()
	if !s.AllUp() {
		i.opts.logger.Warn("ENDPOINTS_DEGRADED", zap.Int("healthy", s.Healthy()), zap.Int("total", len(s.Endpoints)))
	}
	return nil
}

// Status returns the last probe results.
func (i *Infra) Status() (InfraStatus, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status, i.loaded
}
