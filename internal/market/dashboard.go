// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package market

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// estimatedFeePerJob approximates platform revenue when only job counts are
// known (the public API does not expose fees).
const estimatedFeePerJob = 2

// Scheduler is the marketing scheduler's status. Nil when unavailable.
type Scheduler struct {
	Active       bool
	DailyPosts   int64
	DailyReplies int64
}

// Dashboard is the overview tab's summary.
type Dashboard struct {
	Skills         int
	ActiveSkills   int
	Agents         int
	VerifiedAgents int
	Jobs           int64
	Reviews        int64
	// EstimatedFeeSats is jobs times a flat per-job fee.
	EstimatedFeeSats int64
	// AverageTrust is over scanned skills; -1 when none are scanned.
	AverageTrust int
	Scheduler    *Scheduler
}

// FetchDashboard loads skills, agents and scheduler status in parallel.
// Scheduler failures are tolerated.
func FetchDashboard(ctx context.Context, b Backend) (Dashboard, error) {
	var (
		skills []wireSkill
		agents []wireAgent
		sched  *Scheduler
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var resp skillsResponse
		if err := b.PublicJSON(gctx, "/skills?limit=500", &resp); err != nil {
			return err
		}
		skills = resp.Skills
		return nil
	})
	g.Go(func() error {
		var resp agentsResponse
		if err := b.PublicJSON(gctx, "/agents", &resp); err != nil {
			return err
		}
		agents = resp.Agents
		return nil
	})
	g.Go(func() error {
		var resp struct {
			Active       FlexBool `json:"active"`
			DailyPosts   FlexInt  `json:"daily_posts"`
			DailyReplies FlexInt  `json:"daily_replies"`
		}
		if err := getAdmin(gctx, b, "/scheduler/status", &resp); err != nil {
			return nil
		}
		sched = &Scheduler{
			Active:       bool(resp.Active),
			DailyPosts:   int64(resp.DailyPosts),
			DailyReplies: int64(resp.DailyReplies),
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}

	d := Dashboard{Agents: len(agents), AverageTrust: -1, Scheduler: sched}
	var trustSum, scanned int
	for _, w := range skills {
		sk := w.normalize()
		d.Skills++
		if sk.Active {
			d.ActiveSkills++
		}
		d.Jobs += sk.SuccessCount
		d.Reviews += sk.RatingCount
		if t := sk.Trust(); t >= 0 {
			trustSum += t
			scanned++
		}
	}
	if scanned > 0 {
		d.AverageTrust = (trustSum + scanned/2) / scanned
	}
	d.EstimatedFeeSats = d.Jobs * estimatedFeePerJob
	for _, a := range agents {
		if a.CardVerified {
			d.VerifiedAgents++
		}
	}
	return d, nil
}

// Overview is the dashboard tab.
type Overview struct {
	backend Backend

	mu     sync.Mutex
	data   Dashboard
	loaded bool
}

// NewOverview creates the dashboard tab over b.
func NewOverview(b Backend) *Overview {
	return &Overview{backend: b}
}

// Load refreshes the summary.
func (o *Overview) Load(ctx context.Context) error {
	d, err := FetchDashboard(ctx, o.backend)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.data, o.loaded = d, true
	o.mu.Unlock()
	return nil
}

// Dashboard returns the last loaded summary.
func (o *Overview) Dashboard() (Dashboard, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.data, o.loaded
}
